package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/adapters/database"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/adapters/search"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/application/services"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/providers"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/openai"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/typesense"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/observability"
	"github.com/zatekoja/Clinicalordervalidation/backend/pkg/config"
)

func main() {
	var reset bool
	var intervalFlag string
	var workers int
	flag.BoolVar(&reset, "reset", false, "drop existing Typesense collections before reindexing")
	flag.StringVar(&intervalFlag, "interval", "", "repeat interval for reindexing (e.g. 6h, 30m)")
	flag.IntVar(&workers, "workers", 4, "concurrent embedding requests")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-indexer", cfg.Server.Environment)

	intervalValue := strings.TrimSpace(intervalFlag)
	if intervalValue == "" {
		intervalValue = strings.TrimSpace(os.Getenv("REINDEX_INTERVAL"))
	}

	var interval time.Duration
	if intervalValue != "" {
		interval, err = time.ParseDuration(intervalValue)
		if err != nil {
			log.Fatal().Err(err).Str("interval", intervalValue).Msg("Invalid interval")
		}
		if interval <= 0 {
			log.Fatal().Msg("Interval must be greater than zero")
		}
	}
	if os.Getenv("RESET_TYPESENSE") == "true" {
		reset = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		if err := indexOnce(ctx, cfg, reset, workers); err != nil {
			log.Error().Err(err).Msg("Reindex failed")
		}

		if interval <= 0 {
			break
		}

		reset = false
		log.Info().Dur("next_run", interval).Msg("Reindex complete")

		select {
		case <-ctx.Done():
			log.Info().Msg("Reindexer shutting down")
			return
		case <-time.After(interval):
		}
	}
}

func indexOnce(ctx context.Context, cfg *config.Config, reset bool, workers int) error {
	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		return err
	}
	defer pgClient.Close()

	tsClient, err := typesense.NewClient(&cfg.Typesense, cfg.OpenAI.EmbeddingDims)
	if err != nil {
		return err
	}

	var embedder providers.EmbeddingProvider
	if cfg.OpenAI.APIKey != "" {
		openaiClient, err := openai.NewClient(&cfg.OpenAI)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize OpenAI client; rare conditions indexed without embeddings")
		} else {
			embedder = openaiClient
		}
	}

	service := services.NewIndexSyncService(
		database.NewMedicalCodeAdapter(pgClient),
		search.NewIndexWriter(tsClient, 0),
		embedder,
		cfg.Engine.WarmupBatchSize,
		workers,
		2,
	)
	_, err = service.Sync(ctx, reset)
	return err
}
