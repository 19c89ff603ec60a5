// Package allowances implements recurring deposits parents schedule for
// child jars. Schedules are standard cron expressions.
package allowances

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	apperr "github.com/satsjar/satsjar/internal/errors"
	"github.com/satsjar/satsjar/internal/app/domain/account"
	"github.com/satsjar/satsjar/internal/app/domain/allowance"
	"github.com/satsjar/satsjar/internal/app/domain/savings"
	"github.com/satsjar/satsjar/internal/app/storage"
	"github.com/satsjar/satsjar/pkg/logger"
)

// Crediter credits a wallet balance. Implemented by the wallet service.
type Crediter interface {
	Credit(ctx context.Context, accountID string, amountSats int64, description string) (savings.Transaction, error)
}

// Store is the storage surface the allowance service needs.
type Store interface {
	storage.AllowanceStore
	storage.AccountStore
}

// Service manages allowance schedules.
type Service struct {
	store  Store
	wallet Crediter
	log    *logger.Logger
}

// New creates an allowance service.
func New(store Store, wallet Crediter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("allowances")
	}
	return &Service{store: store, wallet: wallet, log: log}
}

// Create schedules a recurring allowance for a child owned by the caller.
func (s *Service) Create(ctx context.Context, parentID, childID string, amountSats int64, schedule string) (allowance.Allowance, error) {
	if amountSats <= 0 {
		return allowance.Allowance{}, apperr.Validation("amount must be positive")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return allowance.Allowance{}, apperr.Validation("invalid schedule expression")
	}

	child, err := s.store.GetAccount(ctx, childID)
	if errors.Is(err, storage.ErrNotFound) {
		return allowance.Allowance{}, apperr.NotFound("child")
	}
	if err != nil {
		return allowance.Allowance{}, apperr.Internal("account lookup failed", err)
	}
	if child.Role != account.RoleChild || child.ParentID != parentID {
		return allowance.Allowance{}, apperr.Forbidden("child does not belong to this account")
	}

	created, err := s.store.CreateAllowance(ctx, allowance.Allowance{
		ParentID:   parentID,
		ChildID:    childID,
		AmountSats: amountSats,
		Schedule:   schedule,
		Enabled:    true,
	})
	if err != nil {
		return allowance.Allowance{}, apperr.Internal("allowance creation failed", err)
	}

	s.log.WithFields(map[string]interface{}{
		"parent_id": parentID,
		"child_id":  childID,
		"schedule":  schedule,
	}).Info("allowance scheduled")
	return created, nil
}

// List returns the allowances feeding a child jar.
func (s *Service) List(ctx context.Context, childID string) ([]allowance.Allowance, error) {
	list, err := s.store.ListAllowances(ctx, childID)
	if err != nil {
		return nil, apperr.Internal("allowance listing failed", err)
	}
	return list, nil
}

// SetEnabled pauses or resumes an allowance owned by the caller.
func (s *Service) SetEnabled(ctx context.Context, parentID, allowanceID string, enabled bool) (allowance.Allowance, error) {
	a, err := s.store.GetAllowance(ctx, allowanceID)
	if errors.Is(err, storage.ErrNotFound) {
		return allowance.Allowance{}, apperr.NotFound("allowance")
	}
	if err != nil {
		return allowance.Allowance{}, apperr.Internal("allowance lookup failed", err)
	}
	if a.ParentID != parentID {
		return allowance.Allowance{}, apperr.Forbidden("allowance does not belong to this account")
	}

	a.Enabled = enabled
	a, err = s.store.UpdateAllowance(ctx, a)
	if err != nil {
		return allowance.Allowance{}, apperr.Internal("allowance update failed", err)
	}
	return a, nil
}

// RunDue pays every enabled allowance whose schedule has fired since its
// last run. Called by the scheduler; safe to call repeatedly.
func (s *Service) RunDue(ctx context.Context, now time.Time) {
	enabled, err := s.store.ListEnabledAllowances(ctx)
	if err != nil {
		s.log.WithError(err).Warn("list enabled allowances failed")
		return
	}

	for _, a := range enabled {
		sched, err := cron.ParseStandard(a.Schedule)
		if err != nil {
			s.log.WithError(err).WithField("allowance_id", a.ID).Warn("unparseable schedule")
			continue
		}

		base := a.LastRun
		if base.IsZero() {
			base = a.CreatedAt
		}
		if sched.Next(base).After(now) {
			continue
		}

		// The period is consumed before the credit; a failed credit is
		// logged and not retried, never paid twice.
		a.LastRun = now.UTC()
		if _, err := s.store.UpdateAllowance(ctx, a); err != nil {
			s.log.WithError(err).WithField("allowance_id", a.ID).Error("allowance bookkeeping failed")
			continue
		}

		if _, err := s.wallet.Credit(ctx, a.ChildID, a.AmountSats, "allowance"); err != nil {
			s.log.WithError(err).WithField("allowance_id", a.ID).Error("allowance credit failed")
			continue
		}
		s.log.WithFields(map[string]interface{}{
			"allowance_id": a.ID,
			"child_id":     a.ChildID,
			"amount_sats":  a.AmountSats,
		}).Info("allowance paid")
	}
}
