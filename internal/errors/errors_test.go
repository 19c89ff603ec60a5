package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestGetServiceErrorUnwrapsChains(t *testing.T) {
	base := Validation("invalid age")
	wrapped := fmt.Errorf("create child: %w", base)

	got := GetServiceError(wrapped)
	if got == nil {
		t.Fatalf("expected service error in chain")
	}
	if got.Code != CodeValidation {
		t.Fatalf("unexpected code: %s", got.Code)
	}
	if HTTPStatus(wrapped) != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", HTTPStatus(wrapped))
	}
}

func TestHTTPStatusDefaultsToInternal(t *testing.T) {
	if HTTPStatus(fmt.Errorf("boom")) != http.StatusInternalServerError {
		t.Fatalf("plain errors must map to 500")
	}
}

func TestWithDetails(t *testing.T) {
	err := RateLimitExceeded(10, "15m").WithDetails("key", "1.2.3.4")
	if err.Details["limit"] != 10 || err.Details["key"] != "1.2.3.4" {
		t.Fatalf("details not attached: %v", err.Details)
	}
	if err.HTTPStatus != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: %d", err.HTTPStatus)
	}
}
