package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/adapters/cache"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/adapters/database"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/application/services"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/redis"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/observability"
	"github.com/zatekoja/Clinicalordervalidation/backend/pkg/config"
)

func main() {
	var force bool
	flag.BoolVar(&force, "force", false, "invalidate warm keys and reload even if a previous run completed")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-warmup", cfg.Server.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	// Unlike the API, a warm-up without Redis has nothing to do.
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Redis client")
	}
	defer redisClient.Close()

	store := cache.NewStore(cache.NewRedisAdapter(redisClient), nil)
	service := services.NewCacheWarmingService(database.NewMedicalCodeAdapter(pgClient), store, cfg.Engine.WarmupBatchSize)

	stats, err := service.WarmCache(ctx, force)
	if err != nil {
		log.Fatal().Err(err).Msg("Cache warm-up failed")
	}
	if stats.Skipped {
		log.Info().Msg("Cache already warm; pass -force to reload")
		return
	}
	if stats.FailedWrites > 0 {
		log.Fatal().Int("failed_writes", stats.FailedWrites).Msg("Cache warm-up incomplete")
	}
}
