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

	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/config"
	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/db/redis"
	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/domain"
	logpkg "github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/logger"
	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/metrics"
	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/repository/corpus"
	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/repository/embcache"
	chiTransport "github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/transport/chi"
	openaiTransport "github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/transport/openai"
	healthuc "github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/usecase/health"
	llmuc "github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/usecase/llm"
	retrievaluc "github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/usecase/retrieval"
	"github.com/Astrolabe-Analytics/battery-knowledge-management-app-sub000/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting paperdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Shared store for the embedding cache. The corpus repository acquires
	// its own handle lazily so /v1/corpus/invalidate can drop it.
	store, err := redis.NewStore(redis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	// Embedder chain: OpenAI -> content-addressed cache
	baseEmbedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	embedder := embcache.New(
		baseEmbedder, store,
		time.Duration(cfg.Storage.CacheTTLSec)*time.Second,
		metrics.EmbeddingCacheTotal, logger,
	)
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Completer chain: OpenAI -> retrying. Optional; without a model the
	// pipeline runs unexpanded and unreranked.
	var completer domain.Completer
	if cfg.LLM.Model != "" {
		base := openaiTransport.NewCompleter(&openaiTransport.CompleterConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Logger:  logger,
		})
		completer = llmuc.NewRetryingCompleter(base, llmuc.RetryPolicy{
			MaxAttempts:  cfg.LLM.Retry.MaxAttempts,
			InitialDelay: time.Duration(cfg.LLM.Retry.InitialDelayMS) * time.Millisecond,
			Multiplier:   cfg.LLM.Retry.Multiplier,
			MaxDelay:     time.Duration(cfg.LLM.Retry.MaxDelayMS) * time.Millisecond,
		}, logger)
		logger.Info("Completer created", zap.String("model", cfg.LLM.Model))
	} else {
		logger.Warn("No LLM model configured; expansion and reranking disabled")
	}

	// Corpus repository over a lazily-acquired handle.
	acquire := func(context.Context) (corpus.Store, error) {
		return redis.NewStore(redis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
	}
	corpusRepo := corpus.New(acquire, cfg.Storage.KeyPrefix, cfg.Embedding.Dimensions)

	if err := corpusRepo.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure corpus index", zap.Error(err))
	}

	retrievalSvc := retrievaluc.New(corpusRepo, embedder, completer, retrievaluc.Options{
		TopK:                 cfg.Retrieval.TopK,
		NCandidates:          cfg.Retrieval.NCandidates,
		Alpha:                cfg.Retrieval.Alpha,
		EnableQueryExpansion: cfg.Retrieval.QueryExpansionEnabled(),
		EnableReranking:      cfg.Retrieval.RerankingEnabled(),
		PreviewChars:         cfg.Retrieval.PreviewChars,
		MaxTokens:            cfg.LLM.MaxTokens,
		Temperature:          cfg.LLM.Temperature,
	}, logger)

	healthSvc := healthuc.New(corpusRepo, baseEmbedder)

	server := chiTransport.NewServer(retrievalSvc, corpusRepo, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.RegisterRoutes(r)

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
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
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

			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
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
