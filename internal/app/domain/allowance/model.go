package allowance

import "time"

// Allowance is a recurring deposit a parent schedules for a child jar. The
// schedule is a cron expression evaluated by the allowance scheduler.
type Allowance struct {
	ID         string    `json:"id" db:"id"`
	ParentID   string    `json:"parentId" db:"parent_id"`
	ChildID    string    `json:"childId" db:"child_id"`
	AmountSats int64     `json:"amountSats" db:"amount_sats"`
	Schedule   string    `json:"schedule" db:"schedule"`
	Enabled    bool      `json:"enabled" db:"enabled"`
	LastRun    time.Time `json:"lastRun,omitempty" db:"last_run"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}
