package lightning

import "time"

// Invoice is a Lightning payment request issued for an account. A paid
// invoice credits the account exactly once.
type Invoice struct {
	ID             string    `json:"id" db:"id"`
	AccountID      string    `json:"accountId" db:"account_id"`
	PaymentHash    string    `json:"paymentHash" db:"payment_hash"`
	PaymentRequest string    `json:"paymentRequest" db:"payment_request"`
	AmountSats     int64     `json:"amountSats" db:"amount_sats"`
	Memo           string    `json:"memo,omitempty" db:"memo"`
	Paid           bool      `json:"paid" db:"paid"`
	SettledAt      time.Time `json:"settledAt,omitempty" db:"settled_at"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}
