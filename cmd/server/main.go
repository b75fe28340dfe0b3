package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"signup-portal/internal/config"
	"signup-portal/internal/csrf"
	apphttp "signup-portal/internal/http"
	"signup-portal/internal/logging"
	"signup-portal/internal/metrics"
	"signup-portal/internal/repository"
	"signup-portal/internal/repository/migrations"
	"signup-portal/internal/repository/postgres"
	"signup-portal/internal/repository/sqlite"
	"signup-portal/internal/service"
	"signup-portal/internal/session"
	"signup-portal/web"
)

const sessionSweepInterval = 5 * time.Minute

func main() {
	boot := logrus.New()
	boot.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		boot.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		boot.Fatalf("setup logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, accounts, err := openAccounts(ctx, cfg)
	if err != nil {
		logger.Fatalf("open account store: %v", err)
	}
	defer db.Close()

	applied, err := migrations.Up(ctx, db, cfg.Database.Driver)
	if err != nil {
		logger.Fatalf("migrate %s: %v", cfg.Database.Driver, err)
	}
	logger.WithField("applied", applied).Infof("%s schema ready", cfg.Database.Driver)

	store, closeStore, err := buildSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup session store: %v", err)
	}
	defer closeStore()

	tmpl, err := web.Templates()
	if err != nil {
		logger.Fatalf("parse templates: %v", err)
	}

	sessions := session.NewManager(store, session.ManagerConfig{
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		Secure:     cfg.Session.Secure,
		Logger:     logger,
	})
	registrations := service.NewRegistrationService(accounts, service.BcryptHasher{Cost: cfg.Auth.BcryptCost})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.HandlerDeps{
		Registrations:  registrations,
		Accounts:       accounts,
		Sessions:       sessions,
		Issuer:         csrf.NewIssuer(store, metrics.CSRFTokensIssued.Inc),
		Templates:      tmpl,
		Static:         web.Static(),
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func openAccounts(ctx context.Context, cfg config.Config) (*sql.DB, repository.AccountRepository, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		return db, postgres.NewAccountRepository(db), nil
	default:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, sqlite.NewAccountRepository(db), nil
	}
}

func buildSessionStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (session.Store, func(), error) {
	if cfg.Session.Store != "redis" {
		store := session.NewMemoryStore(cfg.Session.TTL)
		go store.RunSweeper(ctx, sessionSweepInterval)
		logger.Info("using in-memory session store")
		return store, func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Infof("using redis session store at %s", opts.Addr)
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warnf("close redis: %v", err)
		}
	}
	return session.NewRedisStore(client, cfg.Session.TTL), closeFn, nil
}
