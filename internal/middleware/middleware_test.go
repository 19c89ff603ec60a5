package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/satsjar/satsjar/internal/logging"
)

var testSecret = []byte("test-secret")

func okHandler() (http.Handler, *int) {
	calls := new(int)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusOK)
	}), calls
}

func TestAuthMiddlewareRoundTrip(t *testing.T) {
	log := logging.NewLogger("test", io.Discard)
	auth := NewAuthMiddleware(testSecret, log, []string{"/api/auth/login"})
	next, _ := okHandler()
	handler := auth.Handler(next)

	// skip path passes through without a token
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("skip path status = %d", rec.Code)
	}

	// missing header is rejected
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/wallet/balance", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", rec.Code)
	}

	// valid token is accepted and the user id lands in the context
	token, err := NewToken(testSecret, "user-1", "parent", "254712345678", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var seenUser string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = GetUserID(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/api/wallet/balance", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	auth.Handler(inner).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || seenUser != "user-1" {
		t.Fatalf("valid token: status=%d user=%q", rec.Code, seenUser)
	}

	// expired token is rejected
	expired, _ := NewToken(testSecret, "user-1", "parent", "", -time.Minute)
	req = httptest.NewRequest(http.MethodGet, "/api/wallet/balance", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token status = %d", rec.Code)
	}
}

func TestRateLimiterAuthTier(t *testing.T) {
	log := logging.NewLogger("test", io.Discard)
	rl := NewRateLimiter(Tier{Requests: 10, Window: 15 * time.Minute}, Tier{Requests: 60, Window: time.Minute}, log)
	next, calls := okHandler()
	handler := rl.Handler(next)

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, rec.Code)
		}
	}

	// the 11th request is rejected before the handler runs
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("11th request status = %d, want 429", rec.Code)
	}
	if *calls != 10 {
		t.Fatalf("handler ran %d times, want 10", *calls)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("429 body is not json: %v", err)
	}
	if msg, _ := body["error"].(string); msg == "" {
		t.Fatalf("429 body missing error message: %v", body)
	}

	// a different client is unaffected
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other client status = %d", rec.Code)
	}
}

func TestRateLimiterTiersAreIndependent(t *testing.T) {
	log := logging.NewLogger("test", io.Discard)
	rl := NewRateLimiter(Tier{Requests: 1, Window: 15 * time.Minute}, Tier{Requests: 60, Window: time.Minute}, log)
	next, _ := okHandler()
	handler := rl.Handler(next)

	// exhaust the auth tier
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(rec, req)
	}

	// api traffic from the same client still flows
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/wallet/balance", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("api tier throttled by auth tier: %d", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	log := logging.NewLogger("test", io.Discard)
	rec := httptest.NewRecorder()
	handler := NewRecoveryMiddleware(log, true).Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/wallet/balance", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("panic status = %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("500 body is not json: %v", err)
	}
	if strings.Contains(rec.Body.String(), "goroutine") {
		t.Fatalf("production response must not echo the stack")
	}
	if msg, _ := body["error"].(string); msg == "" {
		t.Fatalf("500 body missing error message: %v", body)
	}
}
