package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/sudo-init-do/gigmarket/internal/alerts"
	"github.com/sudo-init-do/gigmarket/internal/config"
	"github.com/sudo-init-do/gigmarket/internal/db"
	"github.com/sudo-init-do/gigmarket/internal/marketplace"
	"github.com/sudo-init-do/gigmarket/internal/messaging"
	"github.com/sudo-init-do/gigmarket/internal/observability"
	"github.com/sudo-init-do/gigmarket/internal/server"
	"github.com/sudo-init-do/gigmarket/internal/store/pgstore"
	"github.com/sudo-init-do/gigmarket/internal/store/sqlstore"
)

var version = "dev"

// store is what both persistence backends provide.
type store interface {
	marketplace.Store
	messaging.MessageStore
}

func main() {
	port := pflag.String("port", "", "listen port (overrides PORT)")
	driver := pflag.String("store", "", "store driver: postgres|sqlite (overrides STORE_DRIVER)")
	logLevel := pflag.String("log-level", "", "log level (overrides LOG_LEVEL)")
	pflag.Parse()

	// Load validates too; flags may still fix what the environment got wrong.
	cfg, _ := config.Load()
	if *port != "" {
		cfg.Port = *port
	}
	if *driver != "" {
		cfg.DB.Driver = *driver
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	observability.SetupLogger(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	st, err := openStore(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("store unavailable")
	}

	var (
		notifier marketplace.Notifier
		offline  messaging.OfflineNotifier
		worker   *alerts.Processor
		closeQ   func() error
	)
	if cfg.Alerts.Enabled() {
		queue, client := alerts.NewRedisQueue(cfg.Alerts.RedisAddr)
		notifier, offline, closeQ = queue, queue, client.Close
		worker = alerts.NewProcessor(cfg.Alerts.RedisAddr, cfg.Alerts.Concurrency)
		if err := worker.Start(); err != nil {
			log.Fatal().Err(err).Msg("alerts worker failed")
		}
	} else {
		log.Warn().Msg("REDIS_ADDR not set; order and message alerts are disabled")
	}

	registry := messaging.NewRegistry()
	dispatcher := messaging.NewDispatcher(messaging.DispatcherDeps{
		Store:    st,
		Pusher:   registry,
		Offline:  offline,
		MaxRunes: cfg.Realtime.MessageMaxRunes,
	})
	typing := messaging.NewTypingCoordinator(registry, cfg.Realtime.TypingIdleWindow, nil)

	app := server.New(server.Deps{
		Config: cfg,
		Store:  st,
		Marketplace: &marketplace.Handler{
			Orders:        marketplace.NewOrderService(marketplace.OrderDeps{Orders: st, Gigs: st, Pusher: registry, Notifier: notifier}),
			Reviews:       marketplace.NewReviewService(marketplace.ReviewDeps{Reviews: st, Orders: st, Gigs: st}),
			Gigs:          marketplace.NewGigService(st, nil),
			WebhookSecret: cfg.PaymentWebhookSecret,
		},
		Messaging: &messaging.Handler{Dispatcher: dispatcher, Registry: registry},
		Gateway:   messaging.NewGateway(registry, dispatcher, typing, cfg.Realtime, cfg.CORSAllowedOrigins),
	})
	app.Server.ReadTimeout = cfg.ReadTimeout
	app.Server.WriteTimeout = cfg.WriteTimeout

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.DB.Driver).Str("version", version).Msg("server listening")
		if err := app.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := app.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if worker != nil {
		worker.Shutdown()
	}
	if closeQ != nil {
		if err := closeQ(); err != nil {
			log.Error().Err(err).Msg("alerts client close")
		}
	}
	if err := st.Close(); err != nil {
		log.Error().Err(err).Msg("store close")
	}
	if err := shutdownOTel(sctx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
}

func openStore(ctx context.Context, cfg config.DBConfig) (store, error) {
	if cfg.Driver == config.DriverSQLite {
		return sqlstore.Open(cfg.SQLitePath)
	}
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pgstore.New(pool), nil
}
