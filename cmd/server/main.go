package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/mlready/internal/config"
	"github.com/JonMunkholm/mlready/internal/engine"
	"github.com/JonMunkholm/mlready/internal/logging"
	"github.com/JonMunkholm/mlready/internal/metrics"
	"github.com/JonMunkholm/mlready/internal/pgexport"
	"github.com/JonMunkholm/mlready/internal/web"
)

func main() {
	// Overload lets a local .env win over the shell environment.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		slog.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded", "config", cfg.String())

	eng, err := engine.New(cfg.EngineOptions())
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var db pgexport.DB
	if cfg.Database.Enabled() {
		pool, err := connect(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		db = pool
	} else {
		slog.Info("database loading disabled")
	}

	server, err := web.NewServer(web.Options{
		Engine:         eng,
		Metrics:        metrics.New(),
		DB:             db,
		MaxConcurrent:  cfg.Limits.MaxConcurrent,
		MaxWait:        cfg.Limits.MaxWait,
		MaxUploadBytes: cfg.Limits.MaxUploadBytes,
		RequestTimeout: cfg.Server.RequestTimeout,
		APIKeys:        cfg.Security.APIKeys,
		TrustedProxies: cfg.Security.TrustedProxies,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
	})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if active := server.Limiter().Active(); active > 0 {
			slog.Info("waiting for passes to complete", "active", active)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}

func connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
