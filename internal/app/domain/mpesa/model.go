package mpesa

import "time"

// Status tracks an STK push deposit. Transitions are pending → completed or
// pending → failed; a terminal status never reverts.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// DepositRequest records one STK push sent to a payer's phone. The record is
// created only after Daraja accepts the initiation; a rejected initiation
// never produces a pending row.
type DepositRequest struct {
	ID                string    `json:"id" db:"id"`
	AccountID         string    `json:"accountId" db:"account_id"`
	CheckoutRequestID string    `json:"checkoutRequestId" db:"checkout_request_id"`
	PhoneNumber       string    `json:"phoneNumber" db:"phone_number"`
	AmountKES         int64     `json:"amountKes" db:"amount_kes"`
	AmountSats        int64     `json:"amountSats" db:"amount_sats"`
	Status            Status    `json:"status" db:"status"`
	ResultDesc        string    `json:"resultDesc,omitempty" db:"result_desc"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time `json:"updatedAt" db:"updated_at"`
	CompletedAt       time.Time `json:"completedAt,omitempty" db:"completed_at"`
}
