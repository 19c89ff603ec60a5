// Package wallet implements balances, the transaction ledger, and savings
// goals for an account.
package wallet

import (
	"context"
	"errors"
	"time"

	apperr "github.com/satsjar/satsjar/internal/errors"
	"github.com/satsjar/satsjar/internal/app/domain/savings"
	"github.com/satsjar/satsjar/internal/app/storage"
	"github.com/satsjar/satsjar/internal/app/storage/rediscache"
	"github.com/satsjar/satsjar/pkg/logger"
)

// Recorder observes wallet activity. The achievements service implements it
// to advance progress; a nil recorder is ignored.
type Recorder interface {
	RecordDeposit(ctx context.Context, accountID string, amountSats int64)
	RecordGoalAchieved(ctx context.Context, accountID string)
}

// Store is the storage surface the wallet needs.
type Store interface {
	storage.AccountStore
	storage.SavingsStore
	storage.GoalStore
}

// Service manages balances and goals.
type Service struct {
	store    Store
	cache    *rediscache.Cache
	recorder Recorder
	log      *logger.Logger
}

// New creates a wallet service. cache may be nil to disable caching.
func New(store Store, cache *rediscache.Cache, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("wallet")
	}
	return &Service{store: store, cache: cache, log: log}
}

// AttachRecorder wires an activity recorder. Set once at startup.
func (s *Service) AttachRecorder(r Recorder) { s.recorder = r }

// Balance returns the account balance in sats, preferring the cache.
func (s *Service) Balance(ctx context.Context, accountID string) (int64, error) {
	if cached, err := s.cache.GetBalance(ctx, accountID); err == nil {
		return cached, nil
	} else if !errors.Is(err, rediscache.ErrMiss) {
		s.log.WithError(err).Warn("balance cache read failed")
	}

	acct, err := s.store.GetAccount(ctx, accountID)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, apperr.NotFound("account")
	}
	if err != nil {
		return 0, apperr.Internal("balance lookup failed", err)
	}

	if err := s.cache.SetBalance(ctx, accountID, acct.Balance); err != nil {
		s.log.WithError(err).Warn("balance cache write failed")
	}
	return acct.Balance, nil
}

// Credit adds sats to the account and appends a deposit ledger entry.
func (s *Service) Credit(ctx context.Context, accountID string, amountSats int64, description string) (savings.Transaction, error) {
	if amountSats <= 0 {
		return savings.Transaction{}, apperr.Validation("amount must be positive")
	}
	return s.apply(ctx, accountID, savings.TypeDeposit, amountSats, description, true)
}

// CreditReward adds sats without notifying the recorder. Used for credits
// the recorder itself produces, so rewards never count as user deposits.
func (s *Service) CreditReward(ctx context.Context, accountID string, amountSats int64, description string) (savings.Transaction, error) {
	if amountSats <= 0 {
		return savings.Transaction{}, apperr.Validation("amount must be positive")
	}
	return s.apply(ctx, accountID, savings.TypeDeposit, amountSats, description, false)
}

// Debit removes sats from the account and appends a withdrawal ledger entry.
func (s *Service) Debit(ctx context.Context, accountID string, amountSats int64, description string) (savings.Transaction, error) {
	if amountSats <= 0 {
		return savings.Transaction{}, apperr.Validation("amount must be positive")
	}
	return s.apply(ctx, accountID, savings.TypeWithdrawal, amountSats, description, true)
}

func (s *Service) apply(ctx context.Context, accountID string, txType savings.Type, amountSats int64, description string, notify bool) (savings.Transaction, error) {
	acct, err := s.store.GetAccount(ctx, accountID)
	if errors.Is(err, storage.ErrNotFound) {
		return savings.Transaction{}, apperr.NotFound("account")
	}
	if err != nil {
		return savings.Transaction{}, apperr.Internal("account lookup failed", err)
	}

	switch txType {
	case savings.TypeDeposit:
		acct.Balance += amountSats
	case savings.TypeWithdrawal:
		if acct.Balance < amountSats {
			return savings.Transaction{}, apperr.Validation("insufficient balance")
		}
		acct.Balance -= amountSats
	}

	acct, err = s.store.UpdateAccount(ctx, acct)
	if err != nil {
		return savings.Transaction{}, apperr.Internal("balance update failed", err)
	}

	tx, err := s.store.CreateTransaction(ctx, savings.Transaction{
		AccountID:    accountID,
		Type:         txType,
		Amount:       amountSats,
		Description:  description,
		BalanceAfter: acct.Balance,
	})
	if err != nil {
		return savings.Transaction{}, apperr.Internal("ledger write failed", err)
	}

	// Cache refresh is best effort; a stale entry expires on its own.
	if err := s.cache.SetBalance(ctx, accountID, acct.Balance); err != nil {
		s.log.WithError(err).Warn("balance cache refresh failed")
	}

	if notify && txType == savings.TypeDeposit && s.recorder != nil {
		s.recorder.RecordDeposit(ctx, accountID, amountSats)
	}

	s.log.WithFields(map[string]interface{}{
		"account_id": accountID,
		"type":       string(txType),
		"amount":     amountSats,
	}).Info("ledger entry recorded")
	return tx, nil
}

// Transactions returns the account ledger, newest first.
func (s *Service) Transactions(ctx context.Context, accountID string) ([]savings.Transaction, error) {
	txs, err := s.store.ListTransactions(ctx, accountID)
	if err != nil {
		return nil, apperr.Internal("ledger read failed", err)
	}
	return txs, nil
}

// CreateGoal creates a savings goal for the account.
func (s *Service) CreateGoal(ctx context.Context, accountID, name string, targetSats int64) (savings.Goal, error) {
	if name == "" || targetSats <= 0 {
		return savings.Goal{}, apperr.Validation("goal name and positive target required")
	}
	goal, err := s.store.CreateGoal(ctx, savings.Goal{
		AccountID:  accountID,
		Name:       name,
		TargetSats: targetSats,
	})
	if err != nil {
		return savings.Goal{}, apperr.Internal("goal creation failed", err)
	}
	return goal, nil
}

// ListGoals returns the account's goals.
func (s *Service) ListGoals(ctx context.Context, accountID string) ([]savings.Goal, error) {
	goals, err := s.store.ListGoals(ctx, accountID)
	if err != nil {
		return nil, apperr.Internal("goal listing failed", err)
	}
	return goals, nil
}

// ContributeToGoal earmarks amountSats of the account's savings towards the
// goal. Achieved is a one-way transition; the first time the target is
// reached the recorder is notified.
func (s *Service) ContributeToGoal(ctx context.Context, accountID, goalID string, amountSats int64) (savings.Goal, error) {
	if amountSats <= 0 {
		return savings.Goal{}, apperr.Validation("amount must be positive")
	}

	goal, err := s.store.GetGoal(ctx, goalID)
	if errors.Is(err, storage.ErrNotFound) {
		return savings.Goal{}, apperr.NotFound("goal")
	}
	if err != nil {
		return savings.Goal{}, apperr.Internal("goal lookup failed", err)
	}
	if goal.AccountID != accountID {
		return savings.Goal{}, apperr.Forbidden("goal does not belong to this account")
	}

	goal.SavedSats += amountSats
	justAchieved := !goal.Achieved && goal.SavedSats >= goal.TargetSats
	if justAchieved {
		goal.Achieved = true
	}

	goal, err = s.store.UpdateGoal(ctx, goal)
	if err != nil {
		return savings.Goal{}, apperr.Internal("goal update failed", err)
	}

	if justAchieved {
		s.log.WithFields(map[string]interface{}{
			"account_id": accountID,
			"goal_id":    goal.ID,
		}).Info("savings goal achieved")
		if s.recorder != nil {
			s.recorder.RecordGoalAchieved(ctx, accountID)
		}
	}
	return goal, nil
}

// UpdateGoal renames a goal or changes its target. SavedSats and Achieved
// are preserved.
func (s *Service) UpdateGoal(ctx context.Context, accountID, goalID, name string, targetSats int64) (savings.Goal, error) {
	goal, err := s.store.GetGoal(ctx, goalID)
	if errors.Is(err, storage.ErrNotFound) {
		return savings.Goal{}, apperr.NotFound("goal")
	}
	if err != nil {
		return savings.Goal{}, apperr.Internal("goal lookup failed", err)
	}
	if goal.AccountID != accountID {
		return savings.Goal{}, apperr.Forbidden("goal does not belong to this account")
	}

	if name != "" {
		goal.Name = name
	}
	if targetSats > 0 {
		goal.TargetSats = targetSats
		if !goal.Achieved && goal.SavedSats >= goal.TargetSats {
			goal.Achieved = true
		}
	}
	goal.UpdatedAt = time.Now().UTC()

	goal, err = s.store.UpdateGoal(ctx, goal)
	if err != nil {
		return savings.Goal{}, apperr.Internal("goal update failed", err)
	}
	return goal, nil
}
