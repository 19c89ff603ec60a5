package achievement

import "time"

// Category groups achievements for the client's filters.
type Category string

const (
	CategorySavings Category = "savings"
	CategoryStreak  Category = "streak"
	CategoryGoals   Category = "goals"
)

// Definition is one row of the achievement rule table. Definitions come from
// configuration, not from user data.
type Definition struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Category    Category `json:"category" yaml:"category"`
	MaxProgress int64    `json:"maxProgress" yaml:"max_progress"`
	RewardSats  int64    `json:"reward" yaml:"reward_sats"`
}

// Achievement is a user's progress against one definition. Progress only
// increases and Unlocked is a one-way transition; the reward is credited at
// most once, when the achievement unlocks.
type Achievement struct {
	ID          string    `json:"id" db:"id"`
	AccountID   string    `json:"accountId" db:"account_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Category    Category  `json:"category" db:"category"`
	Progress    int64     `json:"progress" db:"progress"`
	MaxProgress int64     `json:"maxProgress" db:"max_progress"`
	Unlocked    bool      `json:"unlocked" db:"unlocked"`
	RewardSats  int64     `json:"reward" db:"reward_sats"`
	UnlockedAt  time.Time `json:"unlockedAt,omitempty" db:"unlocked_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}
