package types

import (
	"context"

	"github.com/xhad/neardup/internal/models"
	"github.com/xhad/neardup/pkg/similarity"
)

// Core interfaces
type Fetcher interface {
	Fetch(ctx context.Context, url string) (models.Document, error)
}

type Classifier interface {
	Classify(ctx context.Context, title, content string) (similarity.Classification, error)
}

type ResultSink interface {
	Store(ctx context.Context, results []models.Result) error
	Close()
}

// Detector is the part of the similarity engine the outer layers depend on.
type Detector interface {
	Evaluate(id, title, content string) (similarity.Verdict, similarity.Scores)
	CachePut(id string, c similarity.Classification)
	CacheGet(id string) (similarity.Classification, bool)
	Stats() similarity.Stats
	Logs(limit int) []similarity.LogEntry
	EmbeddingOf(id string) ([]float32, bool)
}
