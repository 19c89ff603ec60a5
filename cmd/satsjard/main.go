// Command satsjard runs the SatsJar backend: the REST API, the M-Pesa
// reconciler, and the allowance scheduler.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	app "github.com/satsjar/satsjar/internal/app"
	"github.com/satsjar/satsjar/internal/app/httpapi"
	"github.com/satsjar/satsjar/internal/app/metrics"
	lightningsvc "github.com/satsjar/satsjar/internal/app/services/lightning"
	mpesasvc "github.com/satsjar/satsjar/internal/app/services/mpesa"
	notificationsvc "github.com/satsjar/satsjar/internal/app/services/notifications"
	"github.com/satsjar/satsjar/internal/app/storage/postgres"
	"github.com/satsjar/satsjar/internal/app/storage/rediscache"
	"github.com/satsjar/satsjar/internal/config"
	"github.com/satsjar/satsjar/internal/logging"
	"github.com/satsjar/satsjar/internal/middleware"
	"github.com/satsjar/satsjar/internal/platform/migrations"
	"github.com/satsjar/satsjar/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		logger.NewDefault("satsjard").WithError(err).Fatal("startup failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New("satsjard", cfg.LogLevel)
	httpLog := logging.NewLogger("satsjard", os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStores()

	cache, err := buildCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	application, err := app.New(stores, buildClients(cfg), app.Config{
		Mpesa: mpesasvc.Options{
			SatsPerKES:     cfg.SatsPerKES,
			PendingTimeout: cfg.Mpesa.PendingTimeout,
		},
		AchievementsPath: cfg.AchievementsPath,
		Cache:            cache,
	}, log)
	if err != nil {
		return err
	}

	if err := application.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := application.Stop(stopCtx); err != nil {
			log.WithError(err).Error("background services did not stop cleanly")
		}
	}()

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      buildHandler(cfg, application, httpLog),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildHandler assembles the middleware chain around the REST API. Recovery
// sits outermost so panics anywhere in the chain produce a clean 500.
func buildHandler(cfg *config.Config, application *app.Application, httpLog *logging.Logger) http.Handler {
	api := metrics.InstrumentHandler(httpapi.NewHandler(application, []byte(cfg.JWT.Secret), cfg.JWT.TTL))

	auth := middleware.NewAuthMiddleware([]byte(cfg.JWT.Secret), httpLog, httpapi.AuthSkipPaths)
	limiter := middleware.NewRateLimiter(
		middleware.Tier{Requests: cfg.RateLimit.AuthRequests, Window: cfg.RateLimit.AuthWindow},
		middleware.Tier{Requests: cfg.RateLimit.APIRequests, Window: cfg.RateLimit.APIWindow},
		httpLog,
	)
	limiter.StartCleanup(cfg.RateLimit.AuthWindow)

	chain := auth.Handler(api)
	chain = limiter.Handler(chain)
	chain = middleware.NewCORSMiddleware([]string{"*"}).Handler(chain)
	chain = middleware.NewTracingMiddleware(httpLog).Handler(chain)
	chain = middleware.NewRecoveryMiddleware(httpLog, cfg.IsProduction()).Handler(chain)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", chain)
	return mux
}

func buildStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (app.Stores, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set; using the in-memory store")
		return app.Stores{}, func() {}, nil
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DatabaseURL)
	if err != nil {
		return app.Stores{}, nil, err
	}
	if err := migrations.Apply(ctx, db.DB); err != nil {
		db.Close()
		return app.Stores{}, nil, err
	}

	store := postgres.New(db)
	return app.Stores{
		Accounts:      store,
		Savings:       store,
		Goals:         store,
		Mpesa:         store,
		Invoices:      store,
		Achievements:  store,
		Notifications: store,
		Allowances:    store,
	}, func() { db.Close() }, nil
}

func buildCache(ctx context.Context, cfg *config.Config, log *logger.Logger) (*rediscache.Cache, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	cache, err := rediscache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	log.WithField("addr", cfg.RedisAddr).Info("balance cache enabled")
	return cache, nil
}

func buildClients(cfg *config.Config) app.Clients {
	var clients app.Clients
	if cfg.Mpesa.ConsumerKey != "" {
		clients.Mpesa = mpesasvc.NewDarajaClient(mpesasvc.DarajaConfig{
			BaseURL:        cfg.Mpesa.BaseURL,
			ConsumerKey:    cfg.Mpesa.ConsumerKey,
			ConsumerSecret: cfg.Mpesa.ConsumerSecret,
			ShortCode:      cfg.Mpesa.ShortCode,
			Passkey:        cfg.Mpesa.Passkey,
			CallbackURL:    cfg.Mpesa.CallbackURL,
		})
	}
	if cfg.Lightning.BaseURL != "" {
		clients.Lightning = lightningsvc.NewLNbitsClient(cfg.Lightning.BaseURL, cfg.Lightning.APIKey)
	}
	if cfg.SMS.BaseURL != "" {
		clients.SMS = notificationsvc.NewHTTPSender(cfg.SMS.BaseURL, cfg.SMS.APIKey, cfg.SMS.From)
	}
	return clients
}
