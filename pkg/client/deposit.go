package client

import (
	"context"
	"errors"
	"net/http"
)

// DepositState is the state of an M-Pesa deposit flow.
type DepositState string

const (
	DepositIdle      DepositState = "idle"
	DepositPending   DepositState = "pending"
	DepositCompleted DepositState = "completed"
	DepositFailed    DepositState = "failed"
)

// DepositStatus is the server's view of one deposit request.
type DepositStatus struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	AmountKES  int64  `json:"amountKes"`
	AmountSats int64  `json:"amountSats"`
	ResultDesc string `json:"resultDesc,omitempty"`
}

// DepositFlow drives one STK push deposit from submission to settlement.
// Invalid input never leaves the idle state, and a completing deposit
// triggers the refresh hook exactly once.
type DepositFlow struct {
	session   *Session
	state     DepositState
	depositID string
	lastErr   string
	onSettled func(DepositStatus)
	refreshed bool
}

// NewDepositFlow creates an idle flow for the session. onSettled, if not
// nil, runs once when the deposit completes.
func NewDepositFlow(session *Session, onSettled func(DepositStatus)) *DepositFlow {
	return &DepositFlow{session: session, state: DepositIdle, onSettled: onSettled}
}

// State returns the current flow state.
func (f *DepositFlow) State() DepositState { return f.state }

// LastError returns the failure description, if any.
func (f *DepositFlow) LastError() string { return f.lastErr }

// Submit initiates the STK push. Validation failures are rejected before
// any network call and leave the flow idle; a rejected initiation moves the
// flow to failed with the reason in LastError.
func (f *DepositFlow) Submit(ctx context.Context, phoneNumber string, amountKES int64) error {
	if f.state != DepositIdle {
		return &APIError{StatusCode: http.StatusConflict, Message: "deposit already in progress"}
	}
	if phoneNumber == "" {
		return &APIError{StatusCode: http.StatusBadRequest, Message: "phone number required"}
	}
	if amountKES < 10 {
		return &APIError{StatusCode: http.StatusBadRequest, Message: "minimum deposit is 10 KES"}
	}

	var resp DepositStatus
	err := f.session.client.do(ctx, http.MethodPost, "/api/payments/mpesa/stk-push", f.session.token,
		map[string]interface{}{"phoneNumber": phoneNumber, "amount": amountKES}, &resp)
	if err != nil {
		f.state = DepositFailed
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			f.lastErr = apiErr.Message
		} else {
			f.lastErr = err.Error()
		}
		return err
	}

	f.depositID = resp.ID
	f.state = DepositPending
	return nil
}

// CheckStatus polls the server once and advances the flow. Terminal states
// are stable: checking a settled flow does not hit the network.
func (f *DepositFlow) CheckStatus(ctx context.Context) (DepositState, error) {
	if f.state != DepositPending {
		return f.state, nil
	}

	var resp DepositStatus
	err := f.session.client.do(ctx, http.MethodGet, "/api/payments/status/"+f.depositID, f.session.token, nil, &resp)
	if err != nil {
		return f.state, err
	}

	switch resp.Status {
	case "completed":
		f.state = DepositCompleted
		if f.onSettled != nil && !f.refreshed {
			f.refreshed = true
			f.onSettled(resp)
		}
	case "failed":
		f.state = DepositFailed
		f.lastErr = resp.ResultDesc
	}
	return f.state, nil
}

// Reset returns a settled or failed flow to idle so it can be reused.
func (f *DepositFlow) Reset() {
	f.state = DepositIdle
	f.depositID = ""
	f.lastErr = ""
	f.refreshed = false
}
