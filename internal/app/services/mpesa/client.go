package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"

	"github.com/satsjar/satsjar/internal/httputil"
)

// stkResultPending is Daraja's error code for a push the payer has not yet
// acted on.
const stkResultPending = "500.001.1001"

// PushResult is the outcome of an STK push status query.
type PushResult struct {
	Pending bool
	Success bool
	Desc    string
}

// Client talks to the mobile-money gateway.
type Client interface {
	InitiateSTKPush(ctx context.Context, phoneNumber string, amountKES int64, reference string) (string, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (PushResult, error)
}

// DarajaConfig configures the Safaricom Daraja client.
type DarajaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
}

// DarajaClient implements Client against the Daraja sandbox or production
// API. OAuth tokens are cached until shortly before expiry.
type DarajaClient struct {
	cfg     DarajaConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewDarajaClient creates a Daraja client.
func NewDarajaClient(cfg DarajaConfig) *DarajaClient {
	return &DarajaClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "daraja",
			Timeout: 60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (c *DarajaClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("oauth request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := httputil.DecodeResponse(resp, &body); err != nil {
		return "", fmt.Errorf("oauth response: %w", err)
	}

	c.token = body.AccessToken
	// Daraja tokens last an hour; refresh with margin.
	c.tokenExpiry = time.Now().Add(50 * time.Minute)
	return c.token, nil
}

func (c *DarajaClient) post(ctx context.Context, path string, payload, target interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return nil, httputil.DecodeResponse(resp, target)
	})
	return err
}

func (c *DarajaClient) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))
}

// InitiateSTKPush sends a payment prompt to the payer's phone and returns
// the gateway's checkout request id.
func (c *DarajaClient) InitiateSTKPush(ctx context.Context, phoneNumber string, amountKES int64, reference string) (string, error) {
	timestamp := time.Now().Format("20060102150405")

	payload := map[string]interface{}{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            amountKES,
		"PartyA":            phoneNumber,
		"PartyB":            c.cfg.ShortCode,
		"PhoneNumber":       phoneNumber,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  reference,
		"TransactionDesc":   "SatsJar deposit",
	}

	var resp struct {
		CheckoutRequestID string `json:"CheckoutRequestID"`
		ResponseCode      string `json:"ResponseCode"`
		ResponseDesc      string `json:"ResponseDescription"`
	}
	if err := c.post(ctx, "/mpesa/stkpush/v1/processrequest", payload, &resp); err != nil {
		return "", fmt.Errorf("stk push: %w", err)
	}
	if resp.ResponseCode != "0" {
		return "", fmt.Errorf("stk push rejected: %s", resp.ResponseDesc)
	}
	return resp.CheckoutRequestID, nil
}

// QueryStatus asks the gateway for the outcome of an earlier push. Daraja
// answers a still-processing query with an HTTP error carrying a dedicated
// error code, so the raw body is inspected before the status is judged.
func (c *DarajaClient) QueryStatus(ctx context.Context, checkoutRequestID string) (PushResult, error) {
	timestamp := time.Now().Format("20060102150405")

	payload := map[string]interface{}{
		"BusinessShortCode": c.cfg.ShortCode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	raw, err := c.postRaw(ctx, "/mpesa/stkpushquery/v1/query", payload)
	if err != nil {
		return PushResult{}, fmt.Errorf("stk query: %w", err)
	}

	if gjson.GetBytes(raw, "errorCode").String() == stkResultPending {
		return PushResult{Pending: true}, nil
	}
	if code := gjson.GetBytes(raw, "errorCode").String(); code != "" {
		return PushResult{}, fmt.Errorf("stk query error %s: %s", code, gjson.GetBytes(raw, "errorMessage").String())
	}
	return PushResult{
		Success: gjson.GetBytes(raw, "ResultCode").String() == "0",
		Desc:    gjson.GetBytes(raw, "ResultDesc").String(),
	}, nil
}

// postRaw is like post but returns the response body regardless of the HTTP
// status, since Daraja encodes in-flight pushes as errors.
func (c *DarajaClient) postRaw(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	raw, err := c.breaker.Execute(func() (interface{}, error) {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, _, err = httputil.ReadAllWithLimit(resp.Body, 1<<20)
		return body, err
	})
	if err != nil {
		return nil, err
	}
	return raw.([]byte), nil
}
