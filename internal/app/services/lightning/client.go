package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/satsjar/satsjar/internal/httputil"
)

// Client talks to a Lightning wallet backend.
type Client interface {
	CreateInvoice(ctx context.Context, amountSats int64, memo string) (CreatedInvoice, error)
	InvoicePaid(ctx context.Context, paymentHash string) (bool, error)
}

// CreatedInvoice is the backend's response to an invoice creation.
type CreatedInvoice struct {
	PaymentHash    string `json:"payment_hash"`
	PaymentRequest string `json:"payment_request"`
}

// LNbitsClient implements Client against the LNbits wallet API.
type LNbitsClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewLNbitsClient creates a client for the given LNbits instance.
func NewLNbitsClient(baseURL, apiKey string) *LNbitsClient {
	return &LNbitsClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "lnbits",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (c *LNbitsClient) do(ctx context.Context, method, path string, body, target interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var reader *bytes.Reader
		if body != nil {
			payload, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			reader = bytes.NewReader(payload)
		} else {
			reader = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Api-Key", c.apiKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return nil, httputil.DecodeResponse(resp, target)
	})
	return err
}

// CreateInvoice asks LNbits for a new payment request.
func (c *LNbitsClient) CreateInvoice(ctx context.Context, amountSats int64, memo string) (CreatedInvoice, error) {
	payload := map[string]interface{}{
		"out":    false,
		"amount": amountSats,
		"memo":   memo,
	}
	var created CreatedInvoice
	if err := c.do(ctx, http.MethodPost, "/api/v1/payments", payload, &created); err != nil {
		return CreatedInvoice{}, fmt.Errorf("create invoice: %w", err)
	}
	return created, nil
}

// InvoicePaid reports whether the invoice with the given hash has settled.
func (c *LNbitsClient) InvoicePaid(ctx context.Context, paymentHash string) (bool, error) {
	var status struct {
		Paid bool `json:"paid"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/payments/"+paymentHash, nil, &status); err != nil {
		return false, fmt.Errorf("check invoice: %w", err)
	}
	return status.Paid, nil
}
