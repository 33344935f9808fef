package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/knowledge-network/knsearch/internal/breaker"
	"github.com/knowledge-network/knsearch/internal/cache"
	"github.com/knowledge-network/knsearch/internal/config"
	dbRedis "github.com/knowledge-network/knsearch/internal/db/redis"
	"github.com/knowledge-network/knsearch/internal/engine"
	"github.com/knowledge-network/knsearch/internal/indexer"
	logpkg "github.com/knowledge-network/knsearch/internal/logger"
	"github.com/knowledge-network/knsearch/internal/metrics"
	"github.com/knowledge-network/knsearch/internal/monitor"
	"github.com/knowledge-network/knsearch/internal/projection"
	analyticsrepo "github.com/knowledge-network/knsearch/internal/repository/analytics"
	chiTransport "github.com/knowledge-network/knsearch/internal/transport/chi"
	"github.com/knowledge-network/knsearch/internal/transport/platform"
	healthuc "github.com/knowledge-network/knsearch/internal/usecase/health"
	searchuc "github.com/knowledge-network/knsearch/internal/usecase/search"
	"github.com/knowledge-network/knsearch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting knsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("engine_url", cfg.Engine.BaseURL),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register orchestrator metrics explicitly (no init())
	metrics.Register()

	eng := engine.NewHTTPClient(engine.HTTPConfig{
		BaseURL: cfg.Engine.BaseURL,
		Timeout: time.Duration(cfg.Engine.TimeoutSec) * time.Second,
		Refresh: engine.RefreshMode(cfg.Engine.Refresh),
		Logger:  logger,
	})

	guard := breaker.New(breaker.Config{
		FailureThreshold:    cfg.Breaker.FailureThreshold,
		HalfOpenMaxAttempts: cfg.Breaker.HalfOpenMaxAttempts,
		ResetTimeout:        time.Duration(cfg.Breaker.ResetTimeoutSec) * time.Second,
		BackoffFactor:       cfg.Breaker.BackoffFactor,
		MaxResetTimeout:     time.Duration(cfg.Breaker.MaxResetTimeoutSec) * time.Second,
	}, metrics.BreakerState, metrics.BreakerTransitions, logger)

	resultCache := cache.New(store, cfg.Cache.KeyPrefix, metrics.CacheTotal, metrics.CacheWarmupFailures, logger)

	// Platform collaborators
	perms := platform.NewPermissionsClient(platform.PermissionsConfig{
		BaseURL: cfg.Upstreams.PermissionsBaseURL,
		Logger:  logger,
	})
	entities := platform.NewEntityStoreClient(platform.EntityStoreConfig{
		BaseURL: cfg.Upstreams.EntityStoreBaseURL,
		Logger:  logger,
	})
	if cfg.Upstreams.PermissionsBaseURL == "" {
		logger.Warn("Permissions service not configured, all callers are admins")
	}

	projector := projection.New(entities)

	// Indexing pipeline: debounced batcher behind the event registry
	batcher := indexer.NewBatcher(indexer.Config{
		Index:          cfg.Engine.Index,
		DebounceWindow: time.Duration(cfg.Indexer.DebounceMS) * time.Millisecond,
		MaxBatchSize:   cfg.Indexer.MaxBatchSize,
	}, projector, entities, eng, guard, resultCache, logger).
		WithMetrics(metrics.IndexerQueueDepth, metrics.IndexerFlushTotal).
		WithErrorHandler(func(fe indexer.FlushError) {
			logger.Error("Batch flush failed",
				zap.String("workspace_id", fe.WorkspaceID),
				zap.Error(fe.Err),
			)
		})

	registry := indexer.NewRegistry(logger)
	registry.Register(batcher)

	mon := monitor.New(monitor.Config{
		WindowSize:      cfg.Monitor.WindowSize,
		AlertLatencyP95: time.Duration(cfg.Monitor.AlertLatencyP95MS) * time.Millisecond,
		AlertErrorRate:  cfg.Monitor.AlertErrorRate,
	}, metrics.OperationDuration, metrics.AlertsTotal, logger).
		WithCacheHitRatio(resultCache.HitRate)

	analytics := analyticsrepo.New(store, 0)

	searchSvc := searchuc.New(searchuc.Config{
		Index:     cfg.Engine.Index,
		ResultTTL: time.Duration(cfg.Cache.ResultTTLSec) * time.Second,
	}, eng, guard, resultCache, perms, analytics, registry, mon, logger)

	healthSvc := healthuc.New(store, eng, breakerHealthReader{guard})

	server := chiTransport.NewServer(searchSvc, healthSvc, mon, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during HTTP shutdown", zap.Error(err))
	}

	// Drain queued index events before exiting so no accepted write is lost.
	batcher.Shutdown(shutdownCtx)

	logger.Info("Server stopped gracefully")
}

// breakerHealthReader exposes the breaker state as a plain string for health reports.
type breakerHealthReader struct {
	breaker *breaker.Breaker
}

func (r breakerHealthReader) State() string {
	return string(r.breaker.State())
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
