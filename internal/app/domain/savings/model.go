package savings

import "time"

// Type classifies a ledger entry.
type Type string

const (
	TypeDeposit    Type = "deposit"
	TypeWithdrawal Type = "withdrawal"
)

// Transaction is one append-only ledger entry. Entries are immutable once
// created; BalanceAfter records the account balance the entry produced.
type Transaction struct {
	ID           string    `json:"id" db:"id"`
	AccountID    string    `json:"accountId" db:"account_id"`
	Type         Type      `json:"type" db:"type"`
	Amount       int64     `json:"amount" db:"amount"`
	Description  string    `json:"description" db:"description"`
	BalanceAfter int64     `json:"balanceAfter" db:"balance_after"`
	CreatedAt    time.Time `json:"timestamp" db:"created_at"`
}

// Goal is a named savings target in sats. Achieved is a one-way transition.
type Goal struct {
	ID         string    `json:"id" db:"id"`
	AccountID  string    `json:"accountId" db:"account_id"`
	Name       string    `json:"name" db:"name"`
	TargetSats int64     `json:"targetSats" db:"target_sats"`
	SavedSats  int64     `json:"savedSats" db:"saved_sats"`
	Achieved   bool      `json:"achieved" db:"achieved"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}

// Progress returns goal completion as a percentage capped at 100.
func (g Goal) Progress() int {
	if g.TargetSats <= 0 {
		return 0
	}
	pct := g.SavedSats * 100 / g.TargetSats
	if pct > 100 {
		pct = 100
	}
	return int(pct)
}
