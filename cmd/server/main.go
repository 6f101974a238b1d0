package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/montybuilt/MPS-sub000/internal/backend"
	"github.com/montybuilt/MPS-sub000/internal/curriculum"
	"github.com/montybuilt/MPS-sub000/internal/live"
	"github.com/montybuilt/MPS-sub000/internal/platform/cache"
	"github.com/montybuilt/MPS-sub000/internal/platform/config"
	"github.com/montybuilt/MPS-sub000/internal/platform/database"
	"github.com/montybuilt/MPS-sub000/internal/session"
	"github.com/montybuilt/MPS-sub000/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var checks []readinessCheck
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	b, err := newBackend(ctx, cfg, &checks, &closers)
	if err != nil {
		slog.Error("failed to set up backend", "mode", cfg.Backend.Mode, "error", err)
		os.Exit(1)
	}
	kv, err := newKV(ctx, cfg, &checks, &closers)
	if err != nil {
		slog.Error("failed to set up storage", "mode", cfg.Storage.Mode, "error", err)
		os.Exit(1)
	}

	hub := live.NewHub()
	ctrl := session.NewController(b, storage.NewRepository(kv),
		session.WithNotifier(hub),
		session.WithDedupe(cfg.Session.DedupeAttempts),
		session.WithFlushTimeout(cfg.Session.FlushTimeout),
	)

	mux := newMux(&api{ctrl: ctrl, hub: hub, checks: checks})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "backend", cfg.Backend.Mode, "storage", cfg.Storage.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	// The last write-back of the session; failures are already logged.
	_ = ctrl.Close(shutdownCtx)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newBackend(ctx context.Context, cfg *config.Config, checks *[]readinessCheck, closers *[]func()) (backend.Backend, error) {
	switch cfg.Backend.Mode {
	case config.BackendHTTP:
		return backend.NewHTTPClient(cfg.Backend.URL, backend.WithTimeout(cfg.Backend.Timeout))

	case config.BackendPostgres:
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, db.Close)
		*checks = append(*checks, readinessCheck{name: "database", check: db.HealthCheck})
		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		return backend.NewPostgresBackend(db.Pool)

	default:
		loader, err := curriculum.NewLoader(cfg.Backend.LocalDir)
		if err != nil {
			return nil, err
		}
		return backend.NewMemoryBackendFromLoader(loader), nil
	}
}

func newKV(ctx context.Context, cfg *config.Config, checks *[]readinessCheck, closers *[]func()) (storage.KV, error) {
	if cfg.Storage.Mode != config.StorageRedis {
		return storage.NewMemoryKV(), nil
	}
	c, err := cache.New(ctx, cfg.Cache.URL, cfg.Storage.Prefix)
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, func() { _ = c.Close() })
	*checks = append(*checks, readinessCheck{name: "cache", check: c.HealthCheck})
	return c, nil
}
