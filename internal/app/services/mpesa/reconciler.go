package mpesa

import (
	"context"
	"sync"
	"time"

	"github.com/satsjar/satsjar/internal/app/system"
	"github.com/satsjar/satsjar/pkg/logger"
)

// Reconciler polls the gateway for pending pushes whose callback never
// arrived, so deposits settle even when the webhook is lost.
type Reconciler struct {
	service  *Service
	interval time.Duration
	log      *logger.Logger

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	nextAttempt map[string]time.Time
}

var _ system.Service = (*Reconciler)(nil)

// NewReconciler creates a reconciler around the mpesa service.
func NewReconciler(service *Service, interval time.Duration, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NewDefault("mpesa-reconciler")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		service:     service,
		interval:    interval,
		log:         log,
		nextAttempt: make(map[string]time.Time),
	}
}

func (r *Reconciler) Name() string { return "mpesa-reconciler" }

func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.tick(runCtx)
			}
		}
	}()

	r.log.Info("mpesa reconciler started")
	return nil
}

func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (r *Reconciler) tick(ctx context.Context) {
	pending, err := r.service.ListPending(ctx)
	if err != nil {
		r.log.WithError(err).Warn("list pending deposits failed")
		return
	}

	now := time.Now()
	for _, req := range pending {
		if !r.shouldAttempt(req.ID, now) {
			continue
		}

		refreshed, err := r.service.CheckStatus(ctx, req.AccountID, req.ID)
		if err != nil {
			r.log.WithError(err).Warnf("status check for deposit %s failed", req.ID)
			r.scheduleNext(req.ID)
			continue
		}
		if !refreshed.Status.Terminal() {
			r.scheduleNext(req.ID)
			continue
		}
		r.log.Infof("deposit %s reconciled (status=%s)", req.ID, refreshed.Status)
		r.clearSchedule(req.ID)
	}
}

func (r *Reconciler) shouldAttempt(id string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, ok := r.nextAttempt[id]
	return !ok || now.After(next)
}

func (r *Reconciler) scheduleNext(id string) {
	r.mu.Lock()
	r.nextAttempt[id] = time.Now().Add(r.interval)
	r.mu.Unlock()
}

func (r *Reconciler) clearSchedule(id string) {
	r.mu.Lock()
	delete(r.nextAttempt, id)
	r.mu.Unlock()
}
