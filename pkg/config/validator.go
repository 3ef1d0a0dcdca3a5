package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate similarity thresholds
	if c.Similarity.ThresholdMinHash <= 0 || c.Similarity.ThresholdMinHash > 1 {
		errors = append(errors, ValidationError{
			Field:   "similarity.threshold_minhash",
			Message: "threshold_minhash must be in (0, 1]",
		})
	}

	if c.Similarity.ThresholdSimHash < 0 || c.Similarity.ThresholdSimHash >= 64 {
		errors = append(errors, ValidationError{
			Field:   "similarity.threshold_simhash",
			Message: "threshold_simhash must be between 0 and 63",
		})
	}

	if c.Similarity.ThresholdEmbedding <= 0 || c.Similarity.ThresholdEmbedding > 1 {
		errors = append(errors, ValidationError{
			Field:   "similarity.threshold_embedding",
			Message: "threshold_embedding must be in (0, 1]",
		})
	}

	if c.Similarity.NumPerm < 1 {
		errors = append(errors, ValidationError{
			Field:   "similarity.num_perm",
			Message: "num_perm must be positive",
		})
	}

	// Validate embedding backend
	if !c.Embedding.Disabled && !validHTTPURL(c.Embedding.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "embedding.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	// Validate classifier backend
	switch c.Classifier.Provider {
	case "ollama":
		if !validHTTPURL(c.Classifier.BaseURL) {
			errors = append(errors, ValidationError{
				Field:   "classifier.base_url",
				Message: "invalid Ollama base URL",
			})
		}
	case "anthropic":
		if c.Classifier.APIKey == "" {
			errors = append(errors, ValidationError{
				Field:   "classifier.api_key",
				Message: "Anthropic API key is required",
			})
		}
	case "none":
	default:
		errors = append(errors, ValidationError{
			Field:   "classifier.provider",
			Message: fmt.Sprintf("unknown provider: %s", c.Classifier.Provider),
		})
	}

	if c.Classifier.MaxTokens < 1 || c.Classifier.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "classifier.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.Classifier.Temperature < 0 || c.Classifier.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "classifier.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	// Validate Database config
	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Scraper config
	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Scraper.Concurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.concurrency",
			Message: "concurrency must be positive",
		})
	}

	if c.Scraper.Retries < 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.retries",
			Message: "retries must not be negative",
		})
	}

	if c.Scraper.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must be positive",
		})
	}

	// Validate extensions format
	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "scraper.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.format",
			Message: "format must be console or json",
		})
	}

	return errors
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
