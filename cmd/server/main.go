package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/sessionshare/internal/auth"
	"github.com/pscheid92/sessionshare/internal/collab"
	"github.com/pscheid92/sessionshare/internal/httpserver"
	"github.com/pscheid92/sessionshare/internal/platform/config"
	"github.com/pscheid92/sessionshare/internal/platform/logging"
	"github.com/pscheid92/sessionshare/internal/platform/retry"
	"github.com/pscheid92/sessionshare/internal/storage/memory"
	"github.com/pscheid92/sessionshare/internal/storage/postgres"
	"github.com/pscheid92/sessionshare/internal/storage/redisstore"
)

const connectTimeout = 30 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

var connectPolicy = retry.Policy{
	MaxAttempts:    5,
	InitialBackoff: 500 * time.Millisecond,
	OnRetry: func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Storage connection failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	},
}

func setupPostgres(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := retry.Do(ctx, connectPolicy, func() (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL)
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *redisstore.Repository {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	repo, err := retry.Do(ctx, connectPolicy, func() (*redisstore.Repository, error) {
		repo, err := redisstore.New(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := repo.Ping(ctx); err != nil {
			_ = repo.Close()
			return nil, err
		}
		return repo, nil
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return repo
}

func runGracefulShutdown(srv *httpserver.Server, timeout time.Duration) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "storage", cfg.StorageBackend)

	var (
		repo         collab.Repository
		healthChecks []httpserver.HealthCheck
	)
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		pool := setupPostgres(cfg)
		defer pool.Close()
		repo = postgres.NewRepository(pool)
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "postgres", Check: pool.Ping})
	case config.BackendRedis:
		redisRepo := setupRedis(cfg)
		defer func() { _ = redisRepo.Close() }()
		repo = redisRepo
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "redis", Check: redisRepo.Ping})
	default:
		slog.Warn("Using in-memory storage, all sessions are lost on restart")
		repo = memory.New()
	}

	collabSvc := collab.NewService(repo, clock)
	tokens := auth.NewManager(cfg.AuthSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, clock)

	srv := httpserver.NewServer(cfg, collabSvc, tokens, healthChecks)

	done := runGracefulShutdown(srv, cfg.ShutdownTimeout)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
