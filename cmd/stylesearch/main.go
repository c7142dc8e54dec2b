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
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/kailas-cloud/stylesearch/internal/config"
	dbRedis "github.com/kailas-cloud/stylesearch/internal/db/redis"
	"github.com/kailas-cloud/stylesearch/internal/index"
	logpkg "github.com/kailas-cloud/stylesearch/internal/logger"
	"github.com/kailas-cloud/stylesearch/internal/metrics"
	"github.com/kailas-cloud/stylesearch/internal/repository/catalog"
	"github.com/kailas-cloud/stylesearch/internal/repository/embcache"
	chiTransport "github.com/kailas-cloud/stylesearch/internal/transport/chi"
	"github.com/kailas-cloud/stylesearch/internal/transport/clip"
	browseuc "github.com/kailas-cloud/stylesearch/internal/usecase/browse"
	healthuc "github.com/kailas-cloud/stylesearch/internal/usecase/health"
	patchuc "github.com/kailas-cloud/stylesearch/internal/usecase/patch"
	searchuc "github.com/kailas-cloud/stylesearch/internal/usecase/search"
	"github.com/kailas-cloud/stylesearch/internal/version"
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

	logger.Info("Starting stylesearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("index_path", cfg.Index.Path),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
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

	// Register search pipeline metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	// Embedder chain: CLIP service -> text embedding cache
	clipEmbedder := clip.NewEmbedder(&clip.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	cacheTTL := time.Duration(cfg.Embedding.CacheTTLHours) * time.Hour
	texts := embcache.New(clipEmbedder, store, cacheTTL, metrics.EmbeddingCacheTotal, logger)

	catalogRepo := catalog.New(store, logger)
	snapshot, err := catalogRepo.LoadAll(ctx)
	if err != nil {
		logger.Fatal("Failed to load catalog", zap.Error(err))
	}
	logger.Info("Catalog loaded", zap.Int("products", snapshot.Len()))

	idx, err := index.Load(cfg.Index.Path)
	if err != nil {
		logger.Fatal("Failed to load vector index", zap.Error(err))
	}
	logger.Info("Vector index loaded",
		zap.Int("vectors", idx.Len()), zap.Int("dim", idx.Dim()))

	patchSvc, err := patchuc.New(texts, clipEmbedder, patchuc.Config{
		GridSize:          cfg.Patch.GridSize,
		FineGridSize:      cfg.Patch.FineGridSize,
		MinCellPx:         cfg.Patch.MinCellPx,
		MinStandardCellPx: cfg.Patch.MinStandardCellPx,
		MinCropPx:         cfg.Patch.MinCropPx,
		LowConfidence:     cfg.Patch.LowConfidence,
		ItemBoostCutoff:   cfg.Patch.ItemBoostCutoff,
		ItemBoost:         cfg.Patch.ItemBoost,
		MaterialWeight:    cfg.Patch.MaterialWeight,
		ZoomFactor:        cfg.Patch.ZoomFactor,
		Workers:           cfg.Patch.Workers,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create patch service", zap.Error(err))
	}
	defer patchSvc.Release()

	// Tagging degrades to no tags when the vocabulary cannot be embedded.
	if err := patchSvc.LoadTagVocabulary(ctx); err != nil {
		logger.Warn("Tag vocabulary unavailable, patches will be untagged", zap.Error(err))
	}

	searchSvc := searchuc.New(texts, idx, snapshot, patchSvc, searchuc.Config{
		DefaultLimit:     cfg.Search.DefaultLimit,
		RetrievalFactor:  cfg.Search.RetrievalFactor,
		RetrievalCap:     cfg.Search.RetrievalCap,
		TextWeightIntent: cfg.Search.TextWeightIntent,
		TextWeightPlain:  cfg.Search.TextWeightPlain,
	})
	browseSvc := browseuc.New(snapshot)
	healthSvc := healthuc.New(store, clipEmbedder, idx)

	server := chiTransport.NewServer(searchSvc, browseSvc, healthSvc, logger, cfg.HTTP.MaxUploadMB)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: cfg.HTTP.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler)
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
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

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
