package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/safar/renew-path-trade/internal/advisor"
	"github.com/safar/renew-path-trade/internal/auth"
	"github.com/safar/renew-path-trade/internal/classify"
	"github.com/safar/renew-path-trade/internal/config"
	"github.com/safar/renew-path-trade/internal/database"
	"github.com/safar/renew-path-trade/internal/httpapi"
	"github.com/safar/renew-path-trade/internal/logging"
	"github.com/safar/renew-path-trade/internal/market"
	"github.com/safar/renew-path-trade/internal/metrics"
	"github.com/safar/renew-path-trade/internal/payment"
	"github.com/safar/renew-path-trade/internal/realtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Log.Service, cfg.Log.Env, cfg.Log.File)
	if err != nil {
		log.Fatalf("Create logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("database_connect_failed", zap.Error(err))
	}
	defer db.Close()

	logger.Info("database_connected", zap.String("driver", cfg.Database.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New("renewpath")
	hub := realtime.NewHub(cfg.Realtime.SubscriberBuffer, logger, m)

	// With the postgres source the change triggers notify the hub through the
	// listener, so workflows must not publish a second time.
	var changes realtime.Publisher = hub
	if cfg.Realtime.Source == config.RealtimeSourcePostgres {
		changes = realtime.Discard
		listener := realtime.NewListener(cfg.Database.URL, cfg.Realtime, hub, logger)
		go func() {
			if err := listener.Run(ctx); err != nil {
				logger.Error("realtime_listener_failed", zap.Error(err))
			}
		}()
	}

	payments := payment.NewAdapter(db, payment.NewRazorpay(cfg.Gateway), cfg.Gateway, changes, logger, m)
	svc := market.NewService(db, payments, changes, logger, m)

	verifier, local := identity(cfg, db)

	api := httpapi.New(httpapi.Deps{
		Market:     svc,
		Payments:   payments,
		Verifier:   verifier,
		Local:      local,
		Hub:        hub,
		Classifier: classify.NewClient(cfg.Classifier),
		Advisor:    advisor.NewClient(cfg.Advisor),
		Log:        logger,
		Metrics:    m,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server_shutdown_failed", zap.Error(err))
		}
	}()

	logger.Info("server_starting",
		zap.String("port", cfg.Server.Port),
		zap.String("auth_mode", cfg.Auth.Mode),
		zap.String("realtime_source", cfg.Realtime.Source),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server_failed", zap.Error(err))
	}
	logger.Info("server_stopped")
}

func identity(cfg *config.Config, db *sqlx.DB) (auth.Verifier, *auth.LocalProvider) {
	if cfg.Auth.Mode == config.AuthModeLocal {
		local := auth.NewLocalProvider(db, cfg.Auth.SessionTTL, bcrypt.DefaultCost)
		return local, local
	}
	return auth.NewRemoteVerifier(cfg.Auth), nil
}
