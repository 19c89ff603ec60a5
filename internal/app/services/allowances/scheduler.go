package allowances

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/satsjar/satsjar/internal/app/system"
	"github.com/satsjar/satsjar/pkg/logger"
)

// Scheduler drives RunDue on a fixed cadence using a cron runner.
type Scheduler struct {
	service *Service
	log     *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

var _ system.Service = (*Scheduler)(nil)

// NewScheduler creates the allowance scheduler.
func NewScheduler(service *Service, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("allowance-scheduler")
	}
	return &Scheduler{service: service, log: log}
}

func (s *Scheduler) Name() string { return "allowance-scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	runner := cron.New()
	if _, err := runner.AddFunc("@every 1m", func() {
		s.service.RunDue(runCtx, time.Now())
	}); err != nil {
		cancel()
		return err
	}
	runner.Start()
	s.cron = runner
	s.running = true

	s.log.Info("allowance scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	runner := s.cron
	cancel := s.cancel
	s.running = false
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	stopCtx := runner.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
