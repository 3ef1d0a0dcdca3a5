// Package similarity decides whether an incoming document is a near-duplicate
// of an earlier one using three independent signals: MinHash over token and
// character shingles, a 64-bit SimHash, and a dense embedding.
//
// An Engine owns its stores, counters, classification cache and audit log.
// Only documents judged unique are added to the stores, so later documents
// always match against the first representative of a duplicate group.
package similarity

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xhad/neardup/pkg/processor"
	"github.com/xhad/neardup/pkg/signature"
)

// Method names the signal that produced a duplicate verdict.
type Method string

const (
	MethodEmbedding Method = "Embedding"
	MethodMinHash   Method = "MinHash"
	MethodSimHash   Method = "SimHash"
)

const (
	DefaultThresholdMinHash   = 0.35
	DefaultThresholdSimHash   = 16
	DefaultThresholdEmbedding = 0.80
	DefaultEmbeddingModel     = "nomic-embed-text:latest"

	logTitleLimit = 100
)

type Config struct {
	ThresholdMinHash   float64
	ThresholdSimHash   int
	ThresholdEmbedding float64
	NumPerm            int
	Seed               int64
	EmbeddingEnabled   bool
	EmbeddingModel     string
	Logger             zerolog.Logger
	// Now stamps similarity log entries; defaults to time.Now in UTC.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		ThresholdMinHash:   DefaultThresholdMinHash,
		ThresholdSimHash:   DefaultThresholdSimHash,
		ThresholdEmbedding: DefaultThresholdEmbedding,
		NumPerm:            signature.DefaultNumPerm,
		Seed:               signature.DefaultSeed,
		EmbeddingEnabled:   true,
		EmbeddingModel:     DefaultEmbeddingModel,
		Logger:             zerolog.Nop(),
	}
}

func (c Config) validate() error {
	if c.ThresholdMinHash <= 0 || c.ThresholdMinHash > 1 {
		return fmt.Errorf("threshold_minhash must be in (0, 1], got %v", c.ThresholdMinHash)
	}
	if c.ThresholdEmbedding <= 0 || c.ThresholdEmbedding > 1 {
		return fmt.Errorf("threshold_embedding must be in (0, 1], got %v", c.ThresholdEmbedding)
	}
	if c.ThresholdSimHash < 0 || c.ThresholdSimHash >= signature.FingerprintBits {
		return fmt.Errorf("threshold_simhash must be in [0, %d), got %d", signature.FingerprintBits, c.ThresholdSimHash)
	}
	if c.NumPerm < 0 {
		return fmt.Errorf("num_perm cannot be negative")
	}
	return nil
}

// Verdict is the duplicate decision for one document. The zero value means
// unique.
type Verdict struct {
	IsDuplicate bool    `json:"is_duplicate"`
	Method      Method  `json:"method,omitempty"`
	MatchedID   string  `json:"original_url,omitempty"`
	Similarity  float64 `json:"similarity,omitempty"`
}

// Scores is the evidence gathered for every evaluation, whatever the verdict.
type Scores struct {
	MinHashMaxSimilarity   float64 `json:"minhash_max_similarity"`
	SimHashMinDistance     int     `json:"simhash_min_distance"`
	EmbeddingMaxSimilarity float64 `json:"embedding_max_similarity"`
	EmbeddingEnabled       bool    `json:"embedding_enabled"`
}

// Engine is safe for concurrent use; each Evaluate runs as one critical
// section covering scan, decision and insertion.
type Engine struct {
	mu sync.Mutex

	config   Config
	logger   zerolog.Logger
	now      func() time.Time
	hasher   *signature.MinHasher
	embedder Embedder

	shingles processor.Processor
	semantic processor.Processor

	minhashes  *store[signature.MinHash]
	simhashes  *store[signature.SimHash]
	embeddings *store[[]float32]

	stats stats
	cache map[string]Classification
	logs  []LogEntry
}

// New creates an engine. A nil embedder, or EmbeddingEnabled=false, leaves
// the embedding signal permanently absent; it never fails construction.
func New(config Config, embedder Embedder) (*Engine, error) {
	if config.NumPerm == 0 {
		config.NumPerm = signature.DefaultNumPerm
	}
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = DefaultEmbeddingModel
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid similarity config: %w", err)
	}

	now := config.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	if !config.EmbeddingEnabled {
		embedder = nil
	} else if embedder == nil {
		config.Logger.Warn().
			Str("model", config.EmbeddingModel).
			Msg("embedding backend unavailable, continuing without embedding signal")
	}

	return &Engine{
		config:     config,
		logger:     config.Logger,
		now:        now,
		hasher:     signature.NewMinHasher(config.NumPerm, config.Seed),
		embedder:   embedder,
		shingles:   processor.Shingling(),
		semantic:   processor.Embedding(),
		minhashes:  newStore[signature.MinHash](),
		simhashes:  newStore[signature.SimHash](),
		embeddings: newStore[[]float32](),
		stats:      newStats(),
		cache:      make(map[string]Classification),
	}, nil
}

// Evaluate decides whether the document is a near-duplicate of a stored
// unique document. Unique documents are added to the stores; duplicates
// only update the duplicate counters. Every call is recorded in the
// similarity log.
//
// IDs are expected to be unique across calls. Evaluating a stored ID again
// as unique replaces its signatures in place, so UniqueCount plus
// TotalDuplicates no longer equals the number of calls.
func (e *Engine) Evaluate(id, title, content string) (Verdict, Scores) {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc := e.sign(id, title+" "+content)
	best := e.bestMatches(doc)
	scores := best.scores(doc.Embedding.Present())
	verdict := decide(best, e.config)

	if verdict.IsDuplicate {
		e.stats.recordDuplicate(verdict.Method)
	} else {
		e.insert(doc)
	}

	e.record(id, title, content, scores)

	return verdict, scores
}

// decide applies the fixed priority Embedding > MinHash > SimHash. A signal
// only fires when its store produced a match.
func decide(best matches, config Config) Verdict {
	switch {
	case best.embeddingID != "" && best.embedding >= config.ThresholdEmbedding:
		return Verdict{
			IsDuplicate: true,
			Method:      MethodEmbedding,
			MatchedID:   best.embeddingID,
			Similarity:  best.embedding,
		}
	case best.minhashID != "" && best.minhash >= config.ThresholdMinHash:
		return Verdict{
			IsDuplicate: true,
			Method:      MethodMinHash,
			MatchedID:   best.minhashID,
			Similarity:  best.minhash,
		}
	case best.simhashID != "" && best.simhash <= config.ThresholdSimHash:
		return Verdict{
			IsDuplicate: true,
			Method:      MethodSimHash,
			MatchedID:   best.simhashID,
			Similarity:  signature.DistanceSimilarity(best.simhash),
		}
	}
	return Verdict{}
}

func (e *Engine) insert(doc Document) {
	e.minhashes.insert(doc.ID, doc.MinHash)
	e.simhashes.insert(doc.ID, doc.SimHash)
	if doc.Embedding.Present() {
		e.embeddings.insert(doc.ID, doc.Embedding.Vector)
	}
}

func (e *Engine) record(id, title, content string, scores Scores) {
	e.logs = append(e.logs, LogEntry{
		URL:           id,
		Title:         processor.Truncate(title, logTitleLimit),
		ContentLength: len([]rune(content)),
		Timestamp:     e.now(),
		Scores:        scores,
	})

	e.logger.Debug().
		Str("url", id).
		Float64("minhash", scores.MinHashMaxSimilarity).
		Float64("simhash", signature.DistanceSimilarity(scores.SimHashMinDistance)).
		Float64("embedding", scores.EmbeddingMaxSimilarity).
		Msg("similarity check")
}
