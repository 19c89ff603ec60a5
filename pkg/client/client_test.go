package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	app "github.com/satsjar/satsjar/internal/app"
	"github.com/satsjar/satsjar/internal/app/httpapi"
	"github.com/satsjar/satsjar/internal/app/services/mpesa"
	"github.com/satsjar/satsjar/internal/logging"
	"github.com/satsjar/satsjar/internal/middleware"
)

// fakeGateway stands in for Daraja so tests control push outcomes and can
// count gateway traffic.
type fakeGateway struct {
	mu        sync.Mutex
	initiated int
	queried   int
	result    mpesa.PushResult
}

func (f *fakeGateway) InitiateSTKPush(ctx context.Context, phoneNumber string, amountKES int64, reference string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiated++
	return "ws_CO_test", nil
}

func (f *fakeGateway) QueryStatus(ctx context.Context, checkoutRequestID string) (mpesa.PushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried++
	return f.result, nil
}

func (f *fakeGateway) setResult(r mpesa.PushResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = r
}

func (f *fakeGateway) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initiated, f.queried
}

func newTestServer(t *testing.T, gateway mpesa.Client) *httptest.Server {
	t.Helper()
	application, err := app.New(app.Stores{}, app.Clients{Mpesa: gateway}, app.Config{}, nil)
	if err != nil {
		t.Fatalf("app: %v", err)
	}

	secret := []byte("client-test-secret")
	handler := httpapi.NewHandler(application, secret, time.Hour)
	auth := middleware.NewAuthMiddleware(secret, logging.NewLogger("test", io.Discard), httpapi.AuthSkipPaths)
	server := httptest.NewServer(auth.Handler(handler))
	t.Cleanup(server.Close)
	return server
}

func registerParent(t *testing.T, server *httptest.Server) *Session {
	t.Helper()
	session, err := New(server.URL).Register(context.Background(), "Wanjiku", "0712345678", "123456")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return session
}

func TestRegisterLoginChildFlow(t *testing.T) {
	server := newTestServer(t, nil)
	ctx := context.Background()

	session := registerParent(t, server)
	if session.User.PhoneNumber != "254712345678" {
		t.Fatalf("phone not normalized: %q", session.User.PhoneNumber)
	}

	childID, err := session.CreateChild(ctx, "Alex", 10, "123456")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if childID == "" {
		t.Fatalf("empty child id")
	}

	children, err := session.Children(ctx)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 1 || children[0].ID != childID || children[0].Name != "Alex" {
		t.Fatalf("unexpected children: %+v", children)
	}

	childSession, err := New(server.URL).ChildLogin(ctx, childID, "123456")
	if err != nil {
		t.Fatalf("child login: %v", err)
	}
	balance, err := childSession.Balance(ctx)
	if err != nil {
		t.Fatalf("child balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("fresh child balance = %d", balance)
	}
}

// Child validation runs before any network call, so a dead server still
// returns the exact validation messages.
func TestCreateChildValidatesLocally(t *testing.T) {
	session := &Session{client: New("http://127.0.0.1:1"), token: "unused"}
	ctx := context.Background()

	cases := []struct {
		name    string
		age     int
		pin     string
		message string
	}{
		{"", 10, "123456", "fields required"},
		{"Alex", 0, "123456", "fields required"},
		{"Alex", 19, "123456", "invalid age"},
		{"Alex", 10, "12", "invalid pin"},
		{"Alex", 10, "abcdef", "invalid pin"},
	}
	for _, tc := range cases {
		_, err := session.CreateChild(ctx, tc.name, tc.age, tc.pin)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("CreateChild(%q,%d,%q) err = %v, want APIError", tc.name, tc.age, tc.pin, err)
		}
		if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != tc.message {
			t.Fatalf("CreateChild(%q,%d,%q) = %d %q, want 400 %q",
				tc.name, tc.age, tc.pin, apiErr.StatusCode, apiErr.Message, tc.message)
		}
	}
}

func TestLogoutClearsSession(t *testing.T) {
	server := newTestServer(t, nil)
	ctx := context.Background()

	session := registerParent(t, server)
	if _, err := session.Balance(ctx); err != nil {
		t.Fatalf("balance before logout: %v", err)
	}

	session.Logout()
	if session.User.ID != "" {
		t.Fatalf("logout kept user data")
	}
	_, err := session.Balance(ctx)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("balance after logout err = %v, want 401", err)
	}
}

func TestDepositFlowValidatesBeforeNetwork(t *testing.T) {
	gateway := &fakeGateway{}
	server := newTestServer(t, gateway)
	session := registerParent(t, server)
	ctx := context.Background()

	flow := NewDepositFlow(session, nil)
	if err := flow.Submit(ctx, "254712345678", 5); err == nil {
		t.Fatalf("amount below minimum accepted")
	}
	if err := flow.Submit(ctx, "", 100); err == nil {
		t.Fatalf("empty phone accepted")
	}
	if flow.State() != DepositIdle {
		t.Fatalf("state after rejected submits = %s", flow.State())
	}
	if initiated, _ := gateway.counts(); initiated != 0 {
		t.Fatalf("gateway called %d times for invalid input", initiated)
	}
}

func TestDepositFlowSettlesOnce(t *testing.T) {
	gateway := &fakeGateway{}
	gateway.setResult(mpesa.PushResult{Pending: true})
	server := newTestServer(t, gateway)
	session := registerParent(t, server)
	ctx := context.Background()

	refreshes := 0
	var settled DepositStatus
	flow := NewDepositFlow(session, func(status DepositStatus) {
		refreshes++
		settled = status
	})

	if err := flow.Submit(ctx, "254712345678", 100); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if flow.State() != DepositPending {
		t.Fatalf("state after submit = %s", flow.State())
	}

	state, err := flow.CheckStatus(ctx)
	if err != nil {
		t.Fatalf("check pending: %v", err)
	}
	if state != DepositPending || refreshes != 0 {
		t.Fatalf("pending check: state=%s refreshes=%d", state, refreshes)
	}

	gateway.setResult(mpesa.PushResult{Success: true, Desc: "processed"})
	state, err = flow.CheckStatus(ctx)
	if err != nil {
		t.Fatalf("check completed: %v", err)
	}
	if state != DepositCompleted {
		t.Fatalf("state = %s, want completed", state)
	}
	if refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", refreshes)
	}
	if settled.AmountSats != 100*35 {
		t.Fatalf("amountSats = %d, want %d", settled.AmountSats, 100*35)
	}

	// a settled flow is stable and stops polling
	_, queriedBefore := gateway.counts()
	for i := 0; i < 3; i++ {
		if state, err = flow.CheckStatus(ctx); err != nil || state != DepositCompleted {
			t.Fatalf("recheck %d: state=%s err=%v", i, state, err)
		}
	}
	if _, queriedAfter := gateway.counts(); queriedAfter != queriedBefore {
		t.Fatalf("settled flow still queried the gateway")
	}
	if refreshes != 1 {
		t.Fatalf("refreshes after rechecks = %d, want 1", refreshes)
	}

	// the ledger carries exactly one deposit entry; achievement rewards
	// may add further credits on top
	txs, err := session.Transactions(ctx)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	deposits := 0
	for _, tx := range txs {
		if tx.Description == "mpesa deposit" {
			deposits++
			if tx.Amount != 100*35 {
				t.Fatalf("deposit amount = %d, want %d", tx.Amount, 100*35)
			}
		}
	}
	if deposits != 1 {
		t.Fatalf("mpesa deposit entries = %d, want 1", deposits)
	}

	balance, err := session.Balance(ctx)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance < 100*35 {
		t.Fatalf("balance = %d, want at least %d", balance, 100*35)
	}

	flow.Reset()
	if flow.State() != DepositIdle {
		t.Fatalf("state after reset = %s", flow.State())
	}
}

func TestDepositFlowInitiationFailure(t *testing.T) {
	// no mpesa client configured: the server rejects every initiation
	server := newTestServer(t, nil)
	session := registerParent(t, server)
	ctx := context.Background()

	flow := NewDepositFlow(session, nil)
	if err := flow.Submit(ctx, "254712345678", 100); err == nil {
		t.Fatalf("rejected initiation must surface")
	}
	if flow.State() != DepositFailed {
		t.Fatalf("state after rejected initiation = %s, want failed", flow.State())
	}
	if flow.LastError() == "" {
		t.Fatalf("failure reason not surfaced")
	}

	flow.Reset()
	if flow.State() != DepositIdle || flow.LastError() != "" {
		t.Fatalf("reset did not clear the failure")
	}
}

func TestDepositFlowFailure(t *testing.T) {
	gateway := &fakeGateway{}
	gateway.setResult(mpesa.PushResult{Success: false, Desc: "Request cancelled by user"})
	server := newTestServer(t, gateway)
	session := registerParent(t, server)
	ctx := context.Background()

	refreshes := 0
	flow := NewDepositFlow(session, func(DepositStatus) { refreshes++ })
	if err := flow.Submit(ctx, "254712345678", 50); err != nil {
		t.Fatalf("submit: %v", err)
	}

	state, err := flow.CheckStatus(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if state != DepositFailed {
		t.Fatalf("state = %s, want failed", state)
	}
	if flow.LastError() != "Request cancelled by user" {
		t.Fatalf("last error = %q", flow.LastError())
	}
	if refreshes != 0 {
		t.Fatalf("failed deposit refreshed the balance")
	}

	balance, err := session.Balance(ctx)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("failed deposit credited %d sats", balance)
	}
}
