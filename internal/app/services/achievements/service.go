// Package achievements tracks savings gamification. Progress is monotonic,
// unlocking is a one-way transition, and a reward is credited at most once.
package achievements

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	apperr "github.com/satsjar/satsjar/internal/errors"
	"github.com/satsjar/satsjar/internal/app/domain/achievement"
	"github.com/satsjar/satsjar/internal/app/domain/savings"
	"github.com/satsjar/satsjar/internal/app/metrics"
	"github.com/satsjar/satsjar/internal/app/storage"
	"github.com/satsjar/satsjar/pkg/logger"
)

//go:embed definitions.yaml
var defaultDefinitions []byte

// Rewarder credits unlock rewards. Implemented by the wallet service's
// reward path, which does not feed back into progress recording.
type Rewarder interface {
	CreditReward(ctx context.Context, accountID string, amountSats int64, description string) (savings.Transaction, error)
}

// Service materializes achievement progress from a rule table.
type Service struct {
	store    storage.AchievementStore
	defs     []achievement.Definition
	rewarder Rewarder
	log      *logger.Logger
}

// LoadDefinitions reads the rule table from path, or the built-in table
// when path is empty.
func LoadDefinitions(path string) ([]achievement.Definition, error) {
	raw := defaultDefinitions
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read definitions: %w", err)
		}
	}

	var doc struct {
		Achievements []achievement.Definition `yaml:"achievements"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse definitions: %w", err)
	}
	if len(doc.Achievements) == 0 {
		return nil, errors.New("empty achievement rule table")
	}
	for _, def := range doc.Achievements {
		if def.ID == "" || def.MaxProgress <= 0 {
			return nil, fmt.Errorf("invalid achievement definition %q", def.ID)
		}
	}
	return doc.Achievements, nil
}

// New creates an achievements service over the given rule table.
func New(store storage.AchievementStore, defs []achievement.Definition, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("achievements")
	}
	return &Service{store: store, defs: defs, log: log}
}

// AttachRewarder wires the reward crediter. Set once at startup.
func (s *Service) AttachRewarder(r Rewarder) { s.rewarder = r }

// List returns the account's progress against every definition. Accounts
// without stored rows get zero-progress entries, so the list is never empty.
func (s *Service) List(ctx context.Context, accountID string) ([]achievement.Achievement, error) {
	stored, err := s.store.ListAchievements(ctx, accountID)
	if err != nil {
		return nil, apperr.Internal("achievement listing failed", err)
	}

	byID := make(map[string]achievement.Achievement, len(stored))
	for _, ach := range stored {
		byID[ach.ID] = ach
	}

	result := make([]achievement.Achievement, 0, len(s.defs))
	for _, def := range s.defs {
		if ach, ok := byID[def.ID]; ok {
			result = append(result, ach)
			continue
		}
		result = append(result, fromDefinition(accountID, def))
	}
	return result, nil
}

func fromDefinition(accountID string, def achievement.Definition) achievement.Achievement {
	return achievement.Achievement{
		ID:          def.ID,
		AccountID:   accountID,
		Title:       def.Title,
		Description: def.Description,
		Category:    def.Category,
		MaxProgress: def.MaxProgress,
		RewardSats:  def.RewardSats,
	}
}

// RecordDeposit advances savings and streak achievements after a deposit.
func (s *Service) RecordDeposit(ctx context.Context, accountID string, amountSats int64) {
	for _, def := range s.defs {
		switch def.Category {
		case achievement.CategorySavings:
			s.advance(ctx, accountID, def, false)
		case achievement.CategoryStreak:
			s.advance(ctx, accountID, def, true)
		}
	}
}

// RecordGoalAchieved advances goal achievements when a savings goal is
// reached.
func (s *Service) RecordGoalAchieved(ctx context.Context, accountID string) {
	for _, def := range s.defs {
		if def.Category == achievement.CategoryGoals {
			s.advance(ctx, accountID, def, false)
		}
	}
}

// advance increments progress by one. With oncePerDay set, a second event on
// the same calendar day is a no-op; this is how streaks count days rather
// than deposits.
func (s *Service) advance(ctx context.Context, accountID string, def achievement.Definition, oncePerDay bool) {
	ach, err := s.store.GetAchievement(ctx, accountID, def.ID)
	created := false
	if errors.Is(err, storage.ErrNotFound) {
		ach = fromDefinition(accountID, def)
		created = true
	} else if err != nil {
		s.log.WithError(err).WithField("achievement_id", def.ID).Warn("achievement lookup failed")
		return
	}

	if ach.Unlocked {
		return
	}
	if oncePerDay && !created && sameDay(ach.UpdatedAt, time.Now()) && ach.Progress > 0 {
		return
	}

	ach.Progress++
	if ach.Progress > ach.MaxProgress {
		ach.Progress = ach.MaxProgress
	}

	justUnlocked := ach.Progress >= ach.MaxProgress
	if justUnlocked {
		ach.Unlocked = true
		ach.UnlockedAt = time.Now().UTC()
	}

	if created {
		_, err = s.store.CreateAchievement(ctx, ach)
	} else {
		_, err = s.store.UpdateAchievement(ctx, ach)
	}
	if err != nil {
		s.log.WithError(err).WithField("achievement_id", def.ID).Warn("achievement write failed")
		return
	}

	if justUnlocked {
		metrics.RecordAchievementUnlocked()
		s.log.WithFields(map[string]interface{}{
			"account_id":     accountID,
			"achievement_id": def.ID,
		}).Info("achievement unlocked")
		if s.rewarder != nil && def.RewardSats > 0 {
			if _, err := s.rewarder.CreditReward(ctx, accountID, def.RewardSats, "achievement reward: "+def.Title); err != nil {
				s.log.WithError(err).WithField("achievement_id", def.ID).Error("reward credit failed")
			}
		}
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
