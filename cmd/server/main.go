package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kestrelrealty/backoffice/internal/aggregator"
	"github.com/kestrelrealty/backoffice/internal/api"
	"github.com/kestrelrealty/backoffice/internal/app"
	"github.com/kestrelrealty/backoffice/internal/app/maintenance"
	iauth "github.com/kestrelrealty/backoffice/internal/auth"
	"github.com/kestrelrealty/backoffice/internal/backend"
	"github.com/kestrelrealty/backoffice/internal/database"
	"github.com/kestrelrealty/backoffice/internal/entities"
	"github.com/kestrelrealty/backoffice/internal/poller"
	"github.com/kestrelrealty/backoffice/internal/realtime"
	"github.com/kestrelrealty/backoffice/internal/services"
	"github.com/kestrelrealty/backoffice/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backoffice-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	if err := ensureSecretsPresent(cfg); err != nil {
		return err
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	jwtService, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         cfg.Auth.JWT.Secret,
		Issuer:         cfg.Auth.JWT.Issuer,
		AccessTokenTTL: cfg.Auth.JWT.TTL,
	})
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	registry := entities.NewRegistry()

	client, err := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
		Token:   cfg.Backend.Token,
	}, registry)
	if err != nil {
		return fmt.Errorf("initialise backend client: %w", err)
	}

	agg, err := aggregator.New(client, registry,
		aggregator.WithRecentLimit(cfg.Poller.RecentLimit),
		aggregator.WithFeedLimit(cfg.Poller.FeedLimit),
	)
	if err != nil {
		return fmt.Errorf("initialise aggregator: %w", err)
	}

	var hub *realtime.Hub
	pollerOpts := []poller.Option{
		poller.WithInterval(cfg.Poller.Interval),
		poller.WithCycleTimeout(cfg.Poller.CycleTimeout),
	}
	if cfg.Features.Realtime.Enabled {
		hub = realtime.NewHub()
		pollerOpts = append(pollerOpts, poller.WithBroadcaster(hub))
	}

	feedPoller, err := poller.New(agg, pollerOpts...)
	if err != nil {
		return fmt.Errorf("initialise poller: %w", err)
	}
	if err := feedPoller.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}
	defer feedPoller.Stop()

	feedSvc, err := services.NewFeedService(db, feedPoller, registry)
	if err != nil {
		return fmt.Errorf("initialise feed service: %w", err)
	}
	ackSvc, err := services.NewAckService(db, client, registry)
	if err != nil {
		return fmt.Errorf("initialise ack service: %w", err)
	}
	entitySvc, err := services.NewEntityService(client, registry)
	if err != nil {
		return fmt.Errorf("initialise entity service: %w", err)
	}

	if cfg.Maintenance.Enabled {
		pruner := maintenance.NewPruner(db,
			maintenance.WithSchedule(cfg.Maintenance.Schedule),
			maintenance.WithReadMarkerRetention(cfg.Maintenance.ReadMarkerRetention),
			maintenance.WithAckRetention(cfg.Maintenance.AckRetention),
		)
		if err := pruner.Start(); err != nil {
			return fmt.Errorf("start maintenance jobs: %w", err)
		}
		defer func() {
			stopCtx := pruner.Stop()
			<-stopCtx.Done()
		}()
	}

	router, err := api.NewRouter(api.Services{
		Feed:   feedSvc,
		Ack:    ackSvc,
		Entity: entitySvc,
	}, registry, hub, jwtService, cfg)
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func ensureSecretsPresent(cfg *app.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Auth.JWT.Secret = strings.TrimSpace(cfg.Auth.JWT.Secret)
	if cfg.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be configured")
	}

	return nil
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
