package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/umlforge/umlforge/api"
	"github.com/umlforge/umlforge/internal/config"
	"github.com/umlforge/umlforge/internal/db"
	"github.com/umlforge/umlforge/internal/slogging"
)

func main() {
	configFile := flag.String("config", "", "path to config file (yaml)")
	migrateDown := flag.Bool("migrate-down", false, "roll back all database migrations and exit")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := slogging.Initialize(slogging.Config{
		Level:            slogging.ParseLogLevel(cfg.Logging.Level),
		IsDev:            cfg.Logging.IsDev,
		LogDir:           cfg.Logging.LogDir,
		MaxAgeDays:       cfg.Logging.MaxAgeDays,
		MaxSizeMB:        cfg.Logging.MaxSizeMB,
		MaxBackups:       cfg.Logging.MaxBackups,
		AlsoLogToConsole: cfg.Logging.AlsoLogToConsole,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	logger := slogging.Get()
	defer logger.Close()

	if err := run(cfg, *migrateDown); err != nil {
		logger.Error("Server exited with error: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, migrateDown bool) error {
	logger := slogging.Get()

	pg, err := db.NewPostgresDB(db.PostgresConfig{
		Host:     cfg.Database.Postgres.Host,
		Port:     cfg.Database.Postgres.Port,
		User:     cfg.Database.Postgres.User,
		Password: cfg.Database.Postgres.Password,
		Database: cfg.Database.Postgres.Database,
		SSLMode:  cfg.Database.Postgres.SSLMode,
	})
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pg.Close()

	if migrateDown {
		if cfg.Database.Postgres.MigrationsPath == "" {
			return fmt.Errorf("migrate-down requires database.postgres.migrations_path")
		}
		return pg.MigrateDown(db.MigrationConfig{
			MigrationsPath: cfg.Database.Postgres.MigrationsPath,
			DatabaseName:   cfg.Database.Postgres.Database,
		})
	}

	if cfg.Database.Postgres.MigrationsPath != "" {
		if err := pg.RunMigrations(db.MigrationConfig{
			MigrationsPath: cfg.Database.Postgres.MigrationsPath,
			DatabaseName:   cfg.Database.Postgres.Database,
		}); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	store := api.NewDatabaseStore(pg.DB())
	opts := []api.ServerOption{}

	redisDB, err := db.NewRedisDB(db.RedisConfig{
		Host:     cfg.Database.Redis.Host,
		Port:     cfg.Database.Redis.Port,
		Password: cfg.Database.Redis.Password,
		DB:       cfg.Database.Redis.DB,
	})
	if err != nil {
		// The engine runs correctly without the cache, just slower.
		logger.Warn("Redis unavailable, running without snapshot cache: %v", err)
		redisDB = nil
	} else {
		defer redisDB.Close()
		opts = append(opts, api.WithCache(api.NewDiagramCache(redisDB)))
	}

	if cfg.AI.Enabled {
		if redisDB == nil {
			logger.Warn("Recognition disabled: requires Redis for rate limiting")
		} else {
			recognizer, err := api.NewLLMRecognizer(cfg.AI.Model, cfg.AI.APIKey)
			if err != nil {
				return fmt.Errorf("recognition: %w", err)
			}
			limiter := api.NewAPIRateLimiter(redisDB, cfg.AI.RecognitionRateLimit, cfg.AI.RecognitionRateWindow)
			opts = append(opts, api.WithRecognizer(recognizer, limiter))
		}
	}

	checkDB := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pg.Ping(ctx)
	}
	var checkRedis func() error
	if redisDB != nil {
		checkRedis = func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisDB.Ping(ctx)
		}
	}
	opts = append(opts, api.WithHealthChecks(checkDB, checkRedis))

	server := api.NewServer(cfg, store, store, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	server.Reaper().Start(ctx)

	if !cfg.Logging.IsDev {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	server.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Interface, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
