package mpesa

import (
	"context"
	"testing"
	"time"

	"github.com/satsjar/satsjar/internal/app/domain/mpesa"
	"github.com/satsjar/satsjar/internal/app/domain/savings"
	"github.com/satsjar/satsjar/internal/app/storage/memory"
)

type fakeClient struct {
	initiations int
	queries     int
	initErr     error
	result      PushResult
	queryErr    error
}

func (f *fakeClient) InitiateSTKPush(context.Context, string, int64, string) (string, error) {
	f.initiations++
	if f.initErr != nil {
		return "", f.initErr
	}
	return "ws_CO_1", nil
}

func (f *fakeClient) QueryStatus(context.Context, string) (PushResult, error) {
	f.queries++
	return f.result, f.queryErr
}

type fakeWallet struct {
	credits int
	total   int64
	err     error
}

func (f *fakeWallet) Credit(_ context.Context, _ string, amountSats int64, _ string) (savings.Transaction, error) {
	if f.err != nil {
		return savings.Transaction{}, f.err
	}
	f.credits++
	f.total += amountSats
	return savings.Transaction{}, nil
}

func TestRequestDepositValidation(t *testing.T) {
	client := &fakeClient{}
	svc := New(memory.New(), client, &fakeWallet{}, Options{}, nil)
	ctx := context.Background()

	if _, err := svc.RequestDeposit(ctx, "a1", "254712345678", 5); err == nil {
		t.Fatalf("below-minimum amount must fail")
	}
	if _, err := svc.RequestDeposit(ctx, "a1", "254712345678", 0); err == nil {
		t.Fatalf("zero amount must fail")
	}
	if _, err := svc.RequestDeposit(ctx, "a1", "254712345678", -10); err == nil {
		t.Fatalf("negative amount must fail")
	}
	if client.initiations != 0 {
		t.Fatalf("gateway must not be called for invalid amounts")
	}
}

func TestRequestDepositFailureLeavesNoRecord(t *testing.T) {
	store := memory.New()
	svc := New(store, &fakeClient{initErr: context.DeadlineExceeded}, &fakeWallet{}, Options{}, nil)

	if _, err := svc.RequestDeposit(context.Background(), "a1", "254712345678", 100); err == nil {
		t.Fatalf("initiation failure must surface")
	}
	pending, _ := store.ListPendingDepositRequests(context.Background())
	if len(pending) != 0 {
		t.Fatalf("rejected initiation must persist nothing")
	}
}

func TestDepositConversion(t *testing.T) {
	svc := New(memory.New(), &fakeClient{}, &fakeWallet{}, Options{SatsPerKES: 40}, nil)

	req, err := svc.RequestDeposit(context.Background(), "a1", "254712345678", 100)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.AmountSats != 4000 {
		t.Fatalf("amount_sats = %d, want 4000", req.AmountSats)
	}
	if req.Status != mpesa.StatusPending {
		t.Fatalf("fresh request must be pending")
	}
}

func TestCheckStatusCreditsOnce(t *testing.T) {
	client := &fakeClient{result: PushResult{Pending: true}}
	wallet := &fakeWallet{}
	svc := New(memory.New(), client, wallet, Options{SatsPerKES: 35}, nil)
	ctx := context.Background()

	req, err := svc.RequestDeposit(ctx, "a1", "254712345678", 100)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	got, err := svc.CheckStatus(ctx, "a1", req.ID)
	if err != nil || got.Status != mpesa.StatusPending {
		t.Fatalf("pending push must stay pending: %+v %v", got, err)
	}

	client.result = PushResult{Success: true, Desc: "The service request is processed successfully."}
	got, err = svc.CheckStatus(ctx, "a1", req.ID)
	if err != nil || got.Status != mpesa.StatusCompleted {
		t.Fatalf("successful push must complete: %+v %v", got, err)
	}
	if wallet.credits != 1 || wallet.total != 3500 {
		t.Fatalf("expected one 3500 sat credit, got %d/%d", wallet.credits, wallet.total)
	}

	// terminal status never reverts and never re-credits
	queriesBefore := client.queries
	got, err = svc.CheckStatus(ctx, "a1", req.ID)
	if err != nil || got.Status != mpesa.StatusCompleted {
		t.Fatalf("terminal status must hold: %+v %v", got, err)
	}
	if wallet.credits != 1 {
		t.Fatalf("completed deposit credited twice")
	}
	if client.queries != queriesBefore {
		t.Fatalf("terminal request must not hit the gateway")
	}
}

func TestFailedCreditKeepsDepositPending(t *testing.T) {
	client := &fakeClient{result: PushResult{Success: true, Desc: "ok"}}
	wallet := &fakeWallet{err: context.DeadlineExceeded}
	svc := New(memory.New(), client, wallet, Options{SatsPerKES: 35}, nil)
	ctx := context.Background()

	req, err := svc.RequestDeposit(ctx, "a1", "254712345678", 100)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if _, err := svc.CheckStatus(ctx, "a1", req.ID); err == nil {
		t.Fatalf("failed credit must surface")
	}
	pending, _ := svc.ListPending(ctx)
	if len(pending) != 1 {
		t.Fatalf("deposit with failed credit must stay pending, got %d pending", len(pending))
	}

	// the next poll retries the settlement and credits exactly once
	wallet.err = nil
	got, err := svc.CheckStatus(ctx, "a1", req.ID)
	if err != nil || got.Status != mpesa.StatusCompleted {
		t.Fatalf("retried settlement must complete: %+v %v", got, err)
	}
	if wallet.credits != 1 || wallet.total != 3500 {
		t.Fatalf("expected one 3500 sat credit, got %d/%d", wallet.credits, wallet.total)
	}
}

func TestCheckStatusFailure(t *testing.T) {
	client := &fakeClient{result: PushResult{Success: false, Desc: "Request cancelled by user"}}
	wallet := &fakeWallet{}
	svc := New(memory.New(), client, wallet, Options{}, nil)
	ctx := context.Background()

	req, _ := svc.RequestDeposit(ctx, "a1", "254712345678", 100)
	got, err := svc.CheckStatus(ctx, "a1", req.ID)
	if err != nil || got.Status != mpesa.StatusFailed {
		t.Fatalf("cancelled push must fail: %+v %v", got, err)
	}
	if wallet.credits != 0 {
		t.Fatalf("failed deposit must not credit")
	}
}

func TestPendingTimeout(t *testing.T) {
	store := memory.New()
	client := &fakeClient{result: PushResult{Pending: true}}
	svc := New(store, client, &fakeWallet{}, Options{PendingTimeout: time.Nanosecond}, nil)
	ctx := context.Background()

	req, _ := svc.RequestDeposit(ctx, "a1", "254712345678", 100)
	time.Sleep(time.Millisecond)

	got, err := svc.CheckStatus(ctx, "a1", req.ID)
	if err != nil || got.Status != mpesa.StatusFailed {
		t.Fatalf("expired push must fail: %+v %v", got, err)
	}
}

func TestHandleCallback(t *testing.T) {
	wallet := &fakeWallet{}
	svc := New(memory.New(), &fakeClient{}, wallet, Options{SatsPerKES: 35}, nil)
	ctx := context.Background()

	req, _ := svc.RequestDeposit(ctx, "a1", "254712345678", 100)

	payload := []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"m1","CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"The service request is processed successfully."}}}`)
	if err := svc.HandleCallback(ctx, payload); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if wallet.credits != 1 {
		t.Fatalf("callback must credit once, got %d", wallet.credits)
	}

	// duplicate delivery is a no-op
	if err := svc.HandleCallback(ctx, payload); err != nil {
		t.Fatalf("duplicate callback: %v", err)
	}
	if wallet.credits != 1 {
		t.Fatalf("duplicate callback re-credited")
	}

	got, _ := svc.CheckStatus(ctx, "a1", req.ID)
	if got.Status != mpesa.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}

	// unknown checkout ids are acknowledged
	unknown := []byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_unknown","ResultCode":0,"ResultDesc":"ok"}}}`)
	if err := svc.HandleCallback(ctx, unknown); err != nil {
		t.Fatalf("unknown checkout id must be dropped: %v", err)
	}

	if err := svc.HandleCallback(ctx, []byte(`{"nope":true}`)); err == nil {
		t.Fatalf("malformed payload must be rejected")
	}
}
