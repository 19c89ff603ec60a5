package notification

import "time"

// Settings controls which SMS notifications an account receives.
type Settings struct {
	AccountID     string    `json:"accountId" db:"account_id"`
	SMSEnabled    bool      `json:"smsEnabled" db:"sms_enabled"`
	GoalAlerts    bool      `json:"goalAlerts" db:"goal_alerts"`
	DepositAlerts bool      `json:"depositAlerts" db:"deposit_alerts"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// DefaultSettings returns the settings a new account starts with.
func DefaultSettings(accountID string) Settings {
	return Settings{
		AccountID:     accountID,
		SMSEnabled:    true,
		GoalAlerts:    true,
		DepositAlerts: true,
		UpdatedAt:     time.Now().UTC(),
	}
}
