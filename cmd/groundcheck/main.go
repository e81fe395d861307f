package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/probelab/groundcheck/internal/adapters"
	"github.com/probelab/groundcheck/internal/config"
	"github.com/probelab/groundcheck/internal/engine"
	"github.com/probelab/groundcheck/internal/httpapi"
	"github.com/probelab/groundcheck/internal/ratelimit"
	"github.com/probelab/groundcheck/internal/storage"
	"github.com/probelab/groundcheck/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Telemetry.LogLevel),
	}))
	slog.SetDefault(logger)

	// Connect to PostgreSQL. The engine runs without it; only the result
	// audit trail is lost.
	var store storage.ResultStore = storage.NoopStore{}
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Warn("failed to configure database pool (results will not be persisted)", "error", err)
	} else {
		defer dbPool.Close()
		if err := dbPool.Ping(context.Background()); err != nil {
			logger.Warn("database not reachable (results will not be persisted)", "error", err)
		} else {
			logger.Info("database connected")
			store = storage.NewPGResultStore(dbPool)
		}
	}

	// Connect to Redis
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (rate limiting disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	metrics := telemetry.NewMetrics()

	// Build provider registry
	registry := adapters.BuildFromConfig(loader.Providers(), loader.Capabilities)
	loader.OnReload(func() {
		registry.Replace(adapters.BuildFromConfig(loader.Providers(), loader.Capabilities))
		logger.Info("provider registry reloaded")
	})

	orchestrator := engine.NewOrchestrator(
		registry,
		loader.Config,
		loader.Capabilities,
		loader.Locales,
		metrics,
		logger,
	)
	handler := httpapi.NewHandler(orchestrator, store)

	limiter := ratelimit.NewLimiter(rdb)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/healthz", handler.Healthz)

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiter, loader.Config, metrics))
		r.Post("/v1/ground", handler.Ground)
	})

	// Metrics server on its own port
	if cfg.Telemetry.MetricsPort > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
			logger.Info("metrics server starting", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("groundcheck starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	attempts, failures := orchestrator.Counters()
	logger.Info("groundcheck stopped", "attempts", attempts, "failures", failures)
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
