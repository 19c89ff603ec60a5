package storage

import (
	"context"
	"errors"

	"github.com/satsjar/satsjar/internal/app/domain/account"
	"github.com/satsjar/satsjar/internal/app/domain/achievement"
	"github.com/satsjar/satsjar/internal/app/domain/allowance"
	"github.com/satsjar/satsjar/internal/app/domain/lightning"
	"github.com/satsjar/satsjar/internal/app/domain/mpesa"
	"github.com/satsjar/satsjar/internal/app/domain/notification"
	"github.com/satsjar/satsjar/internal/app/domain/savings"
)

// ErrNotFound is returned by every store when the requested record does not
// exist, regardless of backend.
var ErrNotFound = errors.New("record not found")

// AccountStore persists parent and child accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct account.Account) (account.Account, error)
	UpdateAccount(ctx context.Context, acct account.Account) (account.Account, error)
	GetAccount(ctx context.Context, id string) (account.Account, error)
	GetAccountByPhone(ctx context.Context, phone string) (account.Account, error)
	ListChildren(ctx context.Context, parentID string) ([]account.Account, error)
	DeleteAccount(ctx context.Context, id string) error
}

// SavingsStore persists the append-only transaction ledger.
type SavingsStore interface {
	CreateTransaction(ctx context.Context, tx savings.Transaction) (savings.Transaction, error)
	ListTransactions(ctx context.Context, accountID string) ([]savings.Transaction, error)
}

// GoalStore persists savings goals.
type GoalStore interface {
	CreateGoal(ctx context.Context, goal savings.Goal) (savings.Goal, error)
	UpdateGoal(ctx context.Context, goal savings.Goal) (savings.Goal, error)
	GetGoal(ctx context.Context, id string) (savings.Goal, error)
	ListGoals(ctx context.Context, accountID string) ([]savings.Goal, error)
}

// MpesaStore persists STK push deposit requests.
type MpesaStore interface {
	CreateDepositRequest(ctx context.Context, req mpesa.DepositRequest) (mpesa.DepositRequest, error)
	UpdateDepositRequest(ctx context.Context, req mpesa.DepositRequest) (mpesa.DepositRequest, error)
	GetDepositRequest(ctx context.Context, id string) (mpesa.DepositRequest, error)
	GetDepositRequestByCheckoutID(ctx context.Context, checkoutRequestID string) (mpesa.DepositRequest, error)
	ListPendingDepositRequests(ctx context.Context) ([]mpesa.DepositRequest, error)
}

// InvoiceStore persists Lightning invoices.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, inv lightning.Invoice) (lightning.Invoice, error)
	UpdateInvoice(ctx context.Context, inv lightning.Invoice) (lightning.Invoice, error)
	GetInvoiceByHash(ctx context.Context, paymentHash string) (lightning.Invoice, error)
}

// AchievementStore persists per-account achievement progress.
type AchievementStore interface {
	CreateAchievement(ctx context.Context, ach achievement.Achievement) (achievement.Achievement, error)
	UpdateAchievement(ctx context.Context, ach achievement.Achievement) (achievement.Achievement, error)
	GetAchievement(ctx context.Context, accountID, definitionID string) (achievement.Achievement, error)
	ListAchievements(ctx context.Context, accountID string) ([]achievement.Achievement, error)
}

// NotificationStore persists notification settings.
type NotificationStore interface {
	GetSettings(ctx context.Context, accountID string) (notification.Settings, error)
	SaveSettings(ctx context.Context, settings notification.Settings) (notification.Settings, error)
}

// AllowanceStore persists recurring allowance schedules.
type AllowanceStore interface {
	CreateAllowance(ctx context.Context, a allowance.Allowance) (allowance.Allowance, error)
	UpdateAllowance(ctx context.Context, a allowance.Allowance) (allowance.Allowance, error)
	GetAllowance(ctx context.Context, id string) (allowance.Allowance, error)
	ListAllowances(ctx context.Context, childID string) ([]allowance.Allowance, error)
	ListEnabledAllowances(ctx context.Context) ([]allowance.Allowance, error)
}
