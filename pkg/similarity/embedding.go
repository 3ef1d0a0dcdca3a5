package similarity

import (
	"context"
	"errors"
	"fmt"

	"github.com/xhad/neardup/pkg/signature"
)

// ErrNoEmbedder is reported when the engine runs without an embedding
// backend.
var ErrNoEmbedder = errors.New("no embedding backend configured")

var errEmptyText = errors.New("nothing to embed")

// Embedder turns text into a dense vector. Implementations own their
// timeout; the engine passes a background context.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingResult is either a vector or the reason there is none.
type EmbeddingResult struct {
	Vector []float32
	Err    error
}

func (r EmbeddingResult) Present() bool {
	return r.Err == nil && len(r.Vector) > 0
}

// EmbeddingInfo describes the embedding signal of an engine.
type EmbeddingInfo struct {
	Enabled   bool   `json:"enabled"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

func (e *Engine) sign(id, combined string) Document {
	shingled := e.shingles.Process(combined)
	return Document{
		ID:        id,
		MinHash:   e.hasher.SignText(shingled),
		SimHash:   signature.NewSimHash(shingled),
		Embedding: e.embed(id, e.semantic.Process(combined)),
	}
}

// embed never fails the caller: errors and panics from the backend turn
// into an absent embedding.
func (e *Engine) embed(id, text string) (result EmbeddingResult) {
	if e.embedder == nil {
		return EmbeddingResult{Err: ErrNoEmbedder}
	}
	if text == "" {
		return EmbeddingResult{Err: errEmptyText}
	}

	defer func() {
		if r := recover(); r != nil {
			result = EmbeddingResult{Err: fmt.Errorf("embedding backend panicked: %v", r)}
		}
		if result.Err != nil {
			e.logger.Warn().Err(result.Err).Str("url", id).Msg("embedding unavailable")
		}
	}()

	vector, err := e.embedder.Embed(context.Background(), text)
	if err != nil {
		return EmbeddingResult{Err: fmt.Errorf("failed to create embedding: %w", err)}
	}
	if len(vector) == 0 {
		return EmbeddingResult{Err: errors.New("embedding backend returned an empty vector")}
	}

	owned := make([]float32, len(vector))
	copy(owned, vector)
	return EmbeddingResult{Vector: owned}
}

// EmbeddingInfo reports whether embeddings are active, the configured model
// and the dimension of stored vectors (0 until one is stored).
func (e *Engine) EmbeddingInfo() EmbeddingInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	info := EmbeddingInfo{
		Enabled: e.embedder != nil,
		Model:   e.config.EmbeddingModel,
	}
	if e.embeddings.len() > 0 {
		info.Dimension = len(e.embeddings.entries[0].sig)
	}
	return info
}

// EmbeddingOf returns a copy of the stored vector for a unique document.
func (e *Engine) EmbeddingOf(id string) ([]float32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	vector, ok := e.embeddings.get(id)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vector))
	copy(out, vector)
	return out, true
}
