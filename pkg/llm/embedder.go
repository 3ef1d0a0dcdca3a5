package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms/ollama"
)

type EmbedderConfig struct {
	Model   string
	BaseURL string // Ollama server URL
	// Timeout bounds a single embedding request.
	Timeout time.Duration
}

// embeddingClient is the part of *ollama.LLM the embedder uses.
type embeddingClient interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedder produces document embeddings from an Ollama server.
type Embedder struct {
	config EmbedderConfig
	client embeddingClient
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	// Validate and set default values for config fields if necessary
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest" // Default Ollama model
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.Timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative")
	} else if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	emb, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return newEmbedder(config, emb), nil
}

func newEmbedder(config EmbedderConfig, client embeddingClient) *Embedder {
	return &Embedder{
		config: config,
		client: client,
	}
}

func (e *Embedder) Model() string {
	return e.config.Model
}

// Embed returns the embedding of text, bounded by the configured timeout.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	embeddings, err := e.client.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding request to %s failed: %w", e.config.Model, err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, errors.New("embedding response was empty")
	}
	return embeddings[0], nil
}

// Probe checks that the backend answers and returns the vector dimension.
func (e *Embedder) Probe(ctx context.Context) (int, error) {
	vector, err := e.Embed(ctx, "probe")
	if err != nil {
		return 0, err
	}
	return len(vector), nil
}
