// Package client is the typed Go client for the SatsJar REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client talks to a SatsJar server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given server.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// User is the account object returned by authentication endpoints.
type User struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Balance     int64  `json:"balance"`
}

// Session is an authenticated client. It is created at login and discarded
// at logout; tokens are never refreshed implicitly.
type Session struct {
	client *Client
	token  string
	User   User
}

func (c *Client) do(ctx context.Context, method, path, token string, payload, target interface{}) error {
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error, Code: apiErr.Code}
	}

	if target == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

type authResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Register creates a parent account and returns an authenticated session.
func (c *Client) Register(ctx context.Context, name, phoneNumber, pin string) (*Session, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "phoneNumber": phoneNumber, "pin": pin,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &Session{client: c, token: resp.Token, User: resp.User}, nil
}

// Login authenticates a parent account.
func (c *Client) Login(ctx context.Context, phoneNumber, pin string) (*Session, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", "", map[string]string{
		"phoneNumber": phoneNumber, "pin": pin,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &Session{client: c, token: resp.Token, User: resp.User}, nil
}

// ChildLogin authenticates a child jar.
func (c *Client) ChildLogin(ctx context.Context, childID, pin string) (*Session, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/child-login", "", map[string]string{
		"childId": childID, "pin": pin,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &Session{client: c, token: resp.Token, User: resp.User}, nil
}

// Logout clears the session's credentials.
func (s *Session) Logout() {
	s.token = ""
	s.User = User{}
}

// Balance returns the jar balance in sats.
func (s *Session) Balance(ctx context.Context) (int64, error) {
	var resp struct {
		Balance int64 `json:"balance"`
	}
	if err := s.client.do(ctx, http.MethodGet, "/api/wallet/balance", s.token, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

// Transaction is one ledger entry.
type Transaction struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	Description  string    `json:"description"`
	BalanceAfter int64     `json:"balanceAfter"`
	Timestamp    time.Time `json:"timestamp"`
}

// Transactions returns the ledger, newest first.
func (s *Session) Transactions(ctx context.Context) ([]Transaction, error) {
	var txs []Transaction
	if err := s.client.do(ctx, http.MethodGet, "/api/wallet/transactions", s.token, nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// Child is a child jar as returned by the children listing.
type Child struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Age     int    `json:"age"`
	JarID   string `json:"jarId"`
	Balance int64  `json:"balance"`
}

// CreateChild validates its input locally before any network call, so the
// caller gets the same errors whether or not the server is reachable.
func (s *Session) CreateChild(ctx context.Context, name string, age int, pin string) (string, error) {
	if name == "" || age == 0 || pin == "" {
		return "", &APIError{StatusCode: http.StatusBadRequest, Message: "fields required"}
	}
	if age < 1 || age > 18 {
		return "", &APIError{StatusCode: http.StatusBadRequest, Message: "invalid age"}
	}
	if !isSixDigits(pin) {
		return "", &APIError{StatusCode: http.StatusBadRequest, Message: "invalid pin"}
	}

	var resp struct {
		ChildID string `json:"childId"`
	}
	err := s.client.do(ctx, http.MethodPost, "/api/auth/create-child", s.token, map[string]interface{}{
		"childName": name, "childAge": age, "childPin": pin,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ChildID, nil
}

// Children lists the parent's child jars.
func (s *Session) Children(ctx context.Context) ([]Child, error) {
	var children []Child
	if err := s.client.do(ctx, http.MethodGet, "/api/parent/children", s.token, nil, &children); err != nil {
		return nil, err
	}
	return children, nil
}

// DeleteChild removes a child jar.
func (s *Session) DeleteChild(ctx context.Context, childID string) error {
	return s.client.do(ctx, http.MethodDelete, "/api/parent/children/"+childID, s.token, nil, nil)
}

// ResetChildPIN sets a new PIN on a child jar.
func (s *Session) ResetChildPIN(ctx context.Context, childID, pin string) error {
	if !isSixDigits(pin) {
		return &APIError{StatusCode: http.StatusBadRequest, Message: "invalid pin"}
	}
	return s.client.do(ctx, http.MethodPost, "/api/parent/children/"+childID+"/reset-pin", s.token,
		map[string]string{"pin": pin}, nil)
}

// Achievement is one gamification entry.
type Achievement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Progress    int64  `json:"progress"`
	MaxProgress int64  `json:"maxProgress"`
	Unlocked    bool   `json:"unlocked"`
	Reward      int64  `json:"reward"`
}

// Achievements returns the jar's achievement list.
func (s *Session) Achievements(ctx context.Context) ([]Achievement, error) {
	var list []Achievement
	if err := s.client.do(ctx, http.MethodGet, "/api/achievements", s.token, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func isSixDigits(pin string) bool {
	if len(pin) != 6 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
