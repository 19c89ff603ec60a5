// Package app wires the SatsJar services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	apperr "github.com/satsjar/satsjar/internal/errors"
	"github.com/satsjar/satsjar/internal/app/services/accounts"
	achievementsvc "github.com/satsjar/satsjar/internal/app/services/achievements"
	allowancesvc "github.com/satsjar/satsjar/internal/app/services/allowances"
	lightningsvc "github.com/satsjar/satsjar/internal/app/services/lightning"
	mpesasvc "github.com/satsjar/satsjar/internal/app/services/mpesa"
	notificationsvc "github.com/satsjar/satsjar/internal/app/services/notifications"
	walletsvc "github.com/satsjar/satsjar/internal/app/services/wallet"
	"github.com/satsjar/satsjar/internal/app/storage"
	"github.com/satsjar/satsjar/internal/app/storage/memory"
	"github.com/satsjar/satsjar/internal/app/storage/rediscache"
	"github.com/satsjar/satsjar/internal/app/system"
	"github.com/satsjar/satsjar/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Accounts      storage.AccountStore
	Savings       storage.SavingsStore
	Goals         storage.GoalStore
	Mpesa         storage.MpesaStore
	Invoices      storage.InvoiceStore
	Achievements  storage.AchievementStore
	Notifications storage.NotificationStore
	Allowances    storage.AllowanceStore
}

// Clients are the external payment and messaging backends. Nil clients are
// replaced with stubs that reject every call, so the rest of the
// application never nil-checks them.
type Clients struct {
	Mpesa     mpesasvc.Client
	Lightning lightningsvc.Client
	SMS       notificationsvc.Sender
}

// Config tunes application behaviour.
type Config struct {
	Mpesa             mpesasvc.Options
	AchievementsPath  string
	ReconcileInterval time.Duration
	Cache             *rediscache.Cache
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Accounts      *accounts.Service
	Wallet        *walletsvc.Service
	Lightning     *lightningsvc.Service
	Mpesa         *mpesasvc.Service
	Achievements  *achievementsvc.Service
	Notifications *notificationsvc.Service
	Allowances    *allowancesvc.Service
}

type walletStore struct {
	storage.AccountStore
	storage.SavingsStore
	storage.GoalStore
}

type allowanceStore struct {
	storage.AllowanceStore
	storage.AccountStore
}

// New builds a fully initialised application with the provided stores and
// clients.
func New(stores Stores, clients Clients, cfg Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Accounts == nil {
		stores.Accounts = mem
	}
	if stores.Savings == nil {
		stores.Savings = mem
	}
	if stores.Goals == nil {
		stores.Goals = mem
	}
	if stores.Mpesa == nil {
		stores.Mpesa = mem
	}
	if stores.Invoices == nil {
		stores.Invoices = mem
	}
	if stores.Achievements == nil {
		stores.Achievements = mem
	}
	if stores.Notifications == nil {
		stores.Notifications = mem
	}
	if stores.Allowances == nil {
		stores.Allowances = mem
	}

	if clients.Mpesa == nil {
		log.Warn("no mpesa client configured; mobile-money deposits disabled")
		clients.Mpesa = unconfiguredMpesa{}
	}
	if clients.Lightning == nil {
		log.Warn("no lightning client configured; lightning deposits disabled")
		clients.Lightning = unconfiguredLightning{}
	}

	manager := system.NewManager()

	acctService := accounts.New(stores.Accounts, log)
	walletService := walletsvc.New(walletStore{stores.Accounts, stores.Savings, stores.Goals}, cfg.Cache, log)

	defs, err := achievementsvc.LoadDefinitions(cfg.AchievementsPath)
	if err != nil {
		return nil, fmt.Errorf("load achievement definitions: %w", err)
	}
	achievementService := achievementsvc.New(stores.Achievements, defs, log)
	achievementService.AttachRewarder(walletService)
	walletService.AttachRecorder(achievementService)

	lightningService := lightningsvc.New(stores.Invoices, clients.Lightning, walletService, log)
	mpesaService := mpesasvc.New(stores.Mpesa, clients.Mpesa, walletService, cfg.Mpesa, log)
	notificationService := notificationsvc.New(stores.Notifications, clients.SMS, log)
	allowanceService := allowancesvc.New(allowanceStore{stores.Allowances, stores.Accounts}, walletService, log)

	reconciler := mpesasvc.NewReconciler(mpesaService, cfg.ReconcileInterval, log)
	scheduler := allowancesvc.NewScheduler(allowanceService, log)
	for _, svc := range []system.Service{reconciler, scheduler} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:       manager,
		log:           log,
		Accounts:      acctService,
		Wallet:        walletService,
		Lightning:     lightningService,
		Mpesa:         mpesaService,
		Achievements:  achievementService,
		Notifications: notificationService,
		Allowances:    allowanceService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before
// Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered background services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all background services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

type unconfiguredMpesa struct{}

func (unconfiguredMpesa) InitiateSTKPush(context.Context, string, int64, string) (string, error) {
	return "", apperr.Validation("mobile-money deposits are not configured")
}

func (unconfiguredMpesa) QueryStatus(context.Context, string) (mpesasvc.PushResult, error) {
	return mpesasvc.PushResult{}, apperr.Validation("mobile-money deposits are not configured")
}

type unconfiguredLightning struct{}

func (unconfiguredLightning) CreateInvoice(context.Context, int64, string) (lightningsvc.CreatedInvoice, error) {
	return lightningsvc.CreatedInvoice{}, apperr.Validation("lightning deposits are not configured")
}

func (unconfiguredLightning) InvoicePaid(context.Context, string) (bool, error) {
	return false, apperr.Validation("lightning deposits are not configured")
}
