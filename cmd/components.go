package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/xhad/neardup/internal/types"
	"github.com/xhad/neardup/pkg/config"
	"github.com/xhad/neardup/pkg/llm"
	"github.com/xhad/neardup/pkg/pipeline"
	"github.com/xhad/neardup/pkg/scraper"
	"github.com/xhad/neardup/pkg/similarity"
	"github.com/xhad/neardup/pkg/store"
)

const providerNone = "none"

type components struct {
	engine   *similarity.Engine
	scraper  *scraper.Scraper
	pipeline *pipeline.Pipeline
}

func buildComponents(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*components, error) {
	engineConfig := similarity.DefaultConfig()
	engineConfig.ThresholdMinHash = cfg.Similarity.ThresholdMinHash
	engineConfig.ThresholdSimHash = cfg.Similarity.ThresholdSimHash
	engineConfig.ThresholdEmbedding = cfg.Similarity.ThresholdEmbedding
	engineConfig.NumPerm = cfg.Similarity.NumPerm
	engineConfig.EmbeddingEnabled = !cfg.Embedding.Disabled
	engineConfig.EmbeddingModel = cfg.Embedding.Model
	engineConfig.Logger = logger

	engine, err := similarity.New(engineConfig, loadEmbedder(ctx, cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize similarity engine: %w", err)
	}

	classifier, err := loadClassifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}

	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		MaxDepth:          cfg.Scraper.MaxDepth,
		MaxPages:          cfg.Scraper.MaxPages,
		RateLimit:         cfg.Scraper.RateLimit,
		UserAgent:         cfg.Scraper.UserAgent,
		IgnorePatterns:    cfg.Scraper.IgnorePatterns,
		AllowedExtensions: cfg.Scraper.AllowedExtensions,
		Timeout:           cfg.Scraper.Timeout,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scraper: %w", err)
	}

	p := pipeline.New(pipeline.Config{
		Concurrency: cfg.Scraper.Concurrency,
		Retries:     cfg.Scraper.Retries,
		Logger:      logger,
	}, s, engine, classifier)

	return &components{engine: engine, scraper: s, pipeline: p}, nil
}

// loadEmbedder returns nil when the backend is disabled or does not answer a
// probe; the engine then runs without the embedding signal.
func loadEmbedder(ctx context.Context, cfg *config.Config, logger zerolog.Logger) similarity.Embedder {
	if cfg.Embedding.Disabled {
		return nil
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   cfg.Embedding.Model,
		BaseURL: cfg.Embedding.BaseURL,
		Timeout: cfg.Embedding.Timeout,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to initialize embedder")
		return nil
	}

	dim, err := embedder.Probe(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("model", embedder.Model()).Msg("embedding backend not reachable")
		return nil
	}

	logger.Info().Str("model", embedder.Model()).Int("dimension", dim).Msg("embedding backend loaded")
	return embedder
}

func loadClassifier(cfg *config.Config) (types.Classifier, error) {
	if cfg.Classifier.Provider == providerNone {
		return nil, nil
	}

	classifier, err := llm.NewClassifierWithConfig(llm.ClassifierConfig{
		Provider:    cfg.Classifier.Provider,
		Model:       cfg.Classifier.Model,
		BaseURL:     cfg.Classifier.BaseURL,
		APIKey:      cfg.Classifier.APIKey,
		Temperature: cfg.Classifier.Temperature,
		MaxTokens:   cfg.Classifier.MaxTokens,
		Timeout:     cfg.Classifier.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return classifier, nil
}

func openStore(ctx context.Context, cfg *config.Config, embeddings store.EmbeddingSource, logger zerolog.Logger) (*store.ResultStore, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is not configured")
	}

	s, err := store.NewWithConfig(ctx, store.ResultStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
		BatchSize:  cfg.Database.BatchSize,
		Logger:     logger,
	}, embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize result store: %w", err)
	}
	return s, nil
}
