package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/adapters/cache"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/adapters/database"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/adapters/search"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/api/handlers"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/api/routes"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/application/services"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/providers"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/openai"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/typesense"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/observability"
	"github.com/zatekoja/Clinicalordervalidation/backend/pkg/config"
	"github.com/zatekoja/Clinicalordervalidation/backend/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Server.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized successfully")
		}
	}

	requestMetrics, err := observability.InitRequestMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize request metrics")
	}
	contextMetrics, err := observability.InitContextMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize context metrics")
	}

	// The relational store is authoritative and the only hard dependency.
	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()
	log.Info().Msg("PostgreSQL client initialized successfully")

	// Cache and search tiers are best-effort: clients are created without a
	// connectivity check and every call degrades on failure.
	redisClient := redis.New(&cfg.Redis)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Redis unreachable at startup; cache reads will miss until it recovers")
	}

	cacheMetrics := observability.NewCacheMetrics()
	store := cache.NewStore(cache.NewRedisAdapter(redisClient), cacheMetrics, cache.WithRetry(cacheRetryConfig(cfg.Engine)))
	ttl := cache.TTLPolicyFromConfig(cfg.Engine)

	typesenseClient := typesense.New(&cfg.Typesense, cfg.OpenAI.EmbeddingDims)
	searchAdapter := search.NewTypesenseAdapter(typesenseClient, store, ttl)
	searchProbe := providers.HealthCheckerFunc(typesenseClient.Health)

	medicalCodes := database.NewMedicalCodeAdapter(pgClient)

	var embedder providers.EmbeddingProvider
	if cfg.OpenAI.APIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY is not set; rare-condition lookup uses text search only")
	} else {
		openaiClient, err := openai.NewClient(&cfg.OpenAI)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize OpenAI client")
		} else {
			embedder = openaiClient
		}
	}

	// Initialize services
	contextService := services.NewContextService(
		searchAdapter,
		searchProbe,
		medicalCodes,
		medicalCodes,
		services.ContextServiceConfigFromEngine(cfg.Engine),
		services.WithRequestScope(func(ctx context.Context) context.Context {
			return search.WithLoaders(ctx, searchAdapter.NewLoaders())
		}),
		services.WithContextMetrics(contextMetrics),
	)
	rareConditionService := services.NewRareConditionService(
		embedder,
		searchAdapter,
		medicalCodes,
		store,
		ttl.Embedding,
		cfg.Engine.RareConditionLimit,
	)
	warmingService := services.NewCacheWarmingService(medicalCodes, store, cfg.Engine.WarmupBatchSize)
	invalidationService := services.NewCacheInvalidationService(store)

	if cfg.Engine.WarmupOnStartup {
		warmingService.StartBackground(ctx, false)
		log.Info().Msg("Cache warm-up started in background")
	}

	// Initialize handlers
	contextHandler := handlers.NewContextHandler(contextService)
	rareConditionHandler := handlers.NewRareConditionHandler(rareConditionService)
	cacheHandler := handlers.NewCacheHandler(ctx, cacheMetrics, invalidationService, warmingService)
	healthHandler := handlers.NewHealthHandler(map[string]providers.HealthChecker{
		handlers.RequiredDependency: providers.HealthCheckerFunc(pgClient.Ping),
		"redis":                     providers.HealthCheckerFunc(redisClient.Ping),
		"typesense":                 searchProbe,
	})

	router := routes.NewRouter(
		contextHandler,
		rareConditionHandler,
		cacheHandler,
		healthHandler,
		cfg.Server.AllowedOrigins,
		requestMetrics,
	)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}

	log.Info().Msg("Server stopped")
}

// cacheRetryConfig applies the engine's retry tuning to the cache policy.
func cacheRetryConfig(engine config.EngineConfig) retry.Config {
	cfg := retry.CacheConfig()
	if engine.CacheRetries >= 0 {
		cfg.MaxAttempts = engine.CacheRetries + 1
	}
	if engine.CacheRetryDelay > 0 {
		cfg.InitialDelay = engine.CacheRetryDelay
		cfg.MaxDelay = engine.CacheRetryDelay
	}
	return cfg
}
