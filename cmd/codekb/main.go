// Command codekb runs the code-knowledge assistant's HTTP server: webhook
// ingestion, admin sync/backfill/URL ingestion, and retrieval-augmented
// chat, all backed by a single SQLite knowledge base.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sourcelens/codekb/internal/codehost"
	"github.com/sourcelens/codekb/internal/config"
	"github.com/sourcelens/codekb/internal/denylist"
	"github.com/sourcelens/codekb/internal/httpapi"
	"github.com/sourcelens/codekb/internal/indexer"
	"github.com/sourcelens/codekb/internal/ingest"
	"github.com/sourcelens/codekb/internal/llm"
	"github.com/sourcelens/codekb/internal/middleware"
	"github.com/sourcelens/codekb/internal/observability"
	"github.com/sourcelens/codekb/internal/rag"
	"github.com/sourcelens/codekb/internal/retrieval"
	"github.com/sourcelens/codekb/internal/security/auth"
	"github.com/sourcelens/codekb/internal/security/ratelimit"
	"github.com/sourcelens/codekb/internal/store/sqlite"
	"github.com/sourcelens/codekb/internal/taskqueue"
	"github.com/sourcelens/codekb/internal/tls"
)

const Version = "0.1.0"

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		Output:        os.Stdout,
		AddSource:     true,
		SentryEnabled: cfg.Observability.Sentry.Enabled,
	})

	logger.Info("codekb starting",
		"version", Version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"database", cfg.Database.Path,
		"code_host_backend", cfg.CodeHost.Backend,
		"task_queue_backend", cfg.TaskQueue.Backend,
		"llm_backend", cfg.LLM.Backend,
	)

	var metrics *observability.MetricsCollector
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetricsCollector("codekb")
		go startMetricsServer(cfg.Observability.Metrics, logger)
	} else {
		logger.Info("metrics collection disabled")
	}

	var tracerProvider *observability.TracerProvider
	if cfg.Observability.Tracing.Enabled {
		tracerProvider, err = observability.NewTracerProvider(observability.TracerConfig{
			ServiceName:    "codekb",
			ServiceVersion: Version,
			Environment:    cfg.Observability.Sentry.Environment,
			OTLPEndpoint:   cfg.Observability.Tracing.Endpoint,
			SamplingRate:   cfg.Observability.Tracing.SampleRate,
			Enabled:        true,
		})
		if err != nil {
			logger.Error("failed to initialize tracing provider", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown tracer provider", "error", err)
			}
		}()
	} else {
		logger.Info("tracing disabled")
	}

	if cfg.Observability.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Observability.Sentry.DSN,
			Environment:      cfg.Observability.Sentry.Environment,
			Release:          cfg.Observability.Sentry.Release,
			TracesSampleRate: cfg.Observability.Sentry.SampleRate,
			EnableTracing:    true,
		}); err != nil {
			logger.Error("failed to initialize sentry", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	} else {
		logger.Info("sentry disabled")
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	codeClient := buildCodeHostClient(cfg, logger)
	queue, closeQueue := buildTaskQueue(ctx, cfg, logger)
	if closeQueue != nil {
		defer closeQueue()
	}
	llmClient := buildLLMClient(cfg)

	if cfg.Denylist.MaxFileSizeBytes > 0 {
		denylist.MaxFileSizeBytes = cfg.Denylist.MaxFileSizeBytes
	}

	ix := indexer.New(store, codeClient, logger.Underlying())
	ix.MinLines = cfg.Chunker.MinLines
	ix.MaxLines = cfg.Chunker.MaxLines
	dispatcher := ingest.New(queue, codeClient, store, logger.Underlying(), cfg.CodeHost.IndexTaskURL, cfg.CodeHost.DeleteTaskURL)
	dispatcher.MinLines = cfg.Chunker.MinLines
	dispatcher.MaxLines = cfg.Chunker.MaxLines
	retriever := retrieval.New(store)
	retriever.MinFTSResults = cfg.Retrieval.MinFTSResults
	retriever.MaxChunks = cfg.Retrieval.MaxChunks
	retriever.TrigramThresh = cfg.Retrieval.TrigramThresh
	orchestrator := rag.New(retriever, store, llmClient, logger.Underlying())

	errorHandler := observability.NewErrorHandler(logger, metrics, cfg.Observability.Sentry.Enabled)

	server := &httpapi.Server{
		Indexer:       ix,
		Dispatcher:    dispatcher,
		Orchestrator:  orchestrator,
		Store:         store,
		Logger:        logger.Underlying(),
		ErrorHandler:  errorHandler,
		WebhookSecret: []byte(cfg.CodeHost.WebhookSecret),
	}

	runHTTPServer(ctx, cfg, server, logger, metrics)
}

// buildCodeHostClient selects a codehost.Client per cfg.CodeHost.Backend.
func buildCodeHostClient(cfg *config.Config, logger *observability.Logger) codehost.Client {
	switch cfg.CodeHost.Backend {
	case "local":
		logger.Info("code host backend: local git", "dir", cfg.CodeHost.LocalReposDir)
		return codehost.NewLocalGitClient(cfg.CodeHost.LocalReposDir)
	default:
		logger.Info("code host backend: github")
		return codehost.NewGitHubClient(cfg.CodeHost.GitHubToken)
	}
}

// buildTaskQueue selects a taskqueue.Queue per cfg.TaskQueue.Backend. For
// the redis backend it also starts a RedisWorker goroutine that drains the
// queue and POSTs each job to the server's own index/delete task
// endpoints.
func buildTaskQueue(ctx context.Context, cfg *config.Config, logger *observability.Logger) (taskqueue.Queue, func()) {
	if cfg.TaskQueue.Backend != "redis" {
		logger.Info("task queue backend: in-memory")
		return taskqueue.NewInMemoryQueue(), nil
	}

	logger.Info("task queue backend: redis", "addr", cfg.TaskQueue.RedisAddr)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.TaskQueue.RedisAddr})
	queue := taskqueue.NewRedisQueue(rdb, "codekb:tasks")

	worker := taskqueue.NewRedisWorker(rdb, "codekb:tasks", logger.Underlying())
	workerCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := worker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("redis task worker stopped", "error", err)
		}
	}()

	return queue, func() {
		cancel()
		rdb.Close()
	}
}

// buildLLMClient selects an llm.Client per cfg.LLM.Backend.
func buildLLMClient(cfg *config.Config) llm.Client {
	if cfg.LLM.Backend == "memory" {
		return llm.NewInMemoryClient()
	}
	return llm.NewHTTPClient(cfg.LLM.Endpoint, cfg.LLM.APIKey, cfg.LLM.Model)
}

// startMetricsServer serves Prometheus metrics on a separate port.
func startMetricsServer(cfg config.MetricsConfig, logger *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","component":"metrics"}`)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}
	logger.Info("starting metrics server", "addr", addr, "path", cfg.Path)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "error", err)
	}
}

// runHTTPServer builds the middleware chain around server.Mux(), starts
// listening, and blocks until SIGINT/SIGTERM triggers a graceful shutdown.
func runHTTPServer(ctx context.Context, cfg *config.Config, server *httpapi.Server, logger *observability.Logger, metrics *observability.MetricsCollector) {
	var tlsManager *tls.Manager
	if cfg.TLS.Enabled {
		var err error
		tlsManager, err = tls.NewManager(&cfg.TLS, logger)
		if err != nil {
			logger.Error("failed to initialize tls manager", "error", err)
			os.Exit(1)
		}
		if err := tlsManager.ValidateCertificates(); err != nil {
			logger.Error("certificate validation failed", "error", err)
			os.Exit(1)
		}
	}

	var authMiddleware *middleware.AuthMiddleware
	if cfg.Auth.Enabled {
		jwtManager, err := auth.NewJWTManager(cfg.Auth.PrivateKey, cfg.Auth.PublicKey, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TokenExpiry)
		if err != nil {
			logger.Error("failed to initialize jwt manager", "error", err)
			os.Exit(1)
		}
		authMiddleware = middleware.NewAuthMiddleware(jwtManager)
		logger.Info("jwt authentication enabled", "issuer", cfg.Auth.Issuer, "audience", cfg.Auth.Audience)
	} else {
		logger.Info("jwt authentication disabled")
	}

	var rateLimitMiddleware *middleware.RateLimitMiddleware
	if cfg.RateLimit.Enabled {
		rl, err := ratelimit.NewRateLimiter(ratelimit.Config{
			Enabled:         cfg.RateLimit.Enabled,
			Algorithm:       ratelimit.Algorithm(cfg.RateLimit.Algorithm),
			Redis:           ratelimit.RedisConfig(cfg.RateLimit.Redis),
			Default:         ratelimit.LimitConfig(cfg.RateLimit.Default),
			Health:          ratelimit.LimitConfig(cfg.RateLimit.Health),
			Webhook:         ratelimit.LimitConfig(cfg.RateLimit.Webhook),
			Auth:            ratelimit.LimitConfig(cfg.RateLimit.Chat),
			BurstMultiplier: cfg.RateLimit.BurstMultiplier,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
		})
		if err != nil {
			logger.Error("failed to initialize rate limiter", "error", err)
			os.Exit(1)
		}
		rateLimitMiddleware = middleware.NewRateLimitMiddleware(middleware.RateLimitConfig{
			RateLimiter:      rl,
			MetricsCollector: metrics,
			SkipPaths:        cfg.RateLimit.SkipPaths,
		}, logger)
		logger.Info("rate limiting enabled", "algorithm", cfg.RateLimit.Algorithm)
	} else {
		logger.Info("rate limiting disabled")
	}

	securityMiddleware := middleware.NewSecurityMiddleware(middleware.SecurityConfig{
		CSP: middleware.CSPConfig{
			Enabled: cfg.Security.CSP.Enabled,
			Default: cfg.Security.CSP.Default,
			Script:  cfg.Security.CSP.Script,
			Style:   cfg.Security.CSP.Style,
			Image:   cfg.Security.CSP.Image,
			Font:    cfg.Security.CSP.Font,
			Connect: cfg.Security.CSP.Connect,
			Media:   cfg.Security.CSP.Media,
			Object:  cfg.Security.CSP.Object,
			Frame:   cfg.Security.CSP.Frame,
			Report:  cfg.Security.CSP.Report,
		},
		HSTS: middleware.HSTSConfig{
			Enabled:           cfg.Security.HSTS.Enabled,
			MaxAge:            cfg.Security.HSTS.MaxAge,
			IncludeSubdomains: cfg.Security.HSTS.IncludeSubdomains,
			Preload:           cfg.Security.HSTS.Preload,
		},
		XFrameOptions:       cfg.Security.XFrameOptions,
		XContentTypeOptions: cfg.Security.XContentTypeOptions,
		ReferrerPolicy:      cfg.Security.ReferrerPolicy,
		PermissionsPolicy:   cfg.Security.PermissionsPolicy,
	}, logger)

	corsMiddleware := middleware.NewCORSMiddleware(middleware.CORSConfig(cfg.CORS), logger)

	var handler http.Handler = server.Handler()
	if rateLimitMiddleware != nil {
		handler = rateLimitMiddleware.Middleware(handler)
	}
	handler = corsMiddleware.Middleware(handler)
	handler = securityMiddleware.Middleware(handler)
	if authMiddleware != nil {
		handler = authMiddleware.Middleware(handler)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if tlsManager != nil {
		httpServer.TLSConfig = tlsManager.GetTLSConfig()
		if err := tlsManager.StartHTTPRedirect(ctx, cfg.TLS.HTTPRedirectPort); err != nil {
			logger.Error("failed to start http redirect server", "error", err)
			os.Exit(1)
		}
	}

	go func() {
		var err error
		scheme := "http"
		if tlsManager != nil {
			scheme = "https"
			logger.Info("listening", "addr", addr, "scheme", scheme)
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			logger.Info("listening", "addr", addr, "scheme", scheme)
			err = httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
