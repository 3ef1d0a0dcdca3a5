package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
similarity:
  threshold_minhash: 0.5
  threshold_simhash: 10
  threshold_embedding: 0.9
  num_perm: 64

embedding:
  base_url: "http://localhost:11434"
  model: "mxbai-embed-large"
  timeout: 5s

classifier:
  provider: "ollama"
  model: "llama3"
  max_tokens: 300

database:
  url: "postgres://localhost:5432/test"
  table_name: "test_results"
  vector_dim: 1024
  batch_size: 50

scraper:
  rate_limit: 1.5
  concurrency: 8
  ignore_patterns:
    - "/test/"
  allowed_extensions:
    - ".html"
    - "/"

output:
  results_path: "out.csv"
  append: true

log:
  format: "json"
  level: "debug"
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 0.5, config.Similarity.ThresholdMinHash)
	assert.Equal(t, 10, config.Similarity.ThresholdSimHash)
	assert.Equal(t, 0.9, config.Similarity.ThresholdEmbedding)
	assert.Equal(t, 64, config.Similarity.NumPerm)
	assert.Equal(t, "mxbai-embed-large", config.Embedding.Model)
	assert.Equal(t, 5*time.Second, config.Embedding.Timeout)
	assert.Equal(t, 300, config.Classifier.MaxTokens)
	assert.Equal(t, "test_results", config.Database.TableName)
	assert.Equal(t, 1024, config.Database.VectorDim)
	assert.Equal(t, 8, config.Scraper.Concurrency)
	assert.Equal(t, []string{"/test/"}, config.Scraper.IgnorePatterns)
	assert.Equal(t, "out.csv", config.Output.ResultsPath)
	assert.True(t, config.Output.Append)

	// unset values fall back to defaults
	assert.Equal(t, 10*time.Second, config.Scraper.Timeout)
	assert.Equal(t, ":8080", config.Server.Addr)

	assert.Empty(t, config.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	config, err := getDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, 0.35, config.Similarity.ThresholdMinHash)
	assert.Equal(t, 16, config.Similarity.ThresholdSimHash)
	assert.Equal(t, 0.80, config.Similarity.ThresholdEmbedding)
	assert.Equal(t, 128, config.Similarity.NumPerm)
	assert.Equal(t, "ollama", config.Classifier.Provider)
	assert.Equal(t, "llama3", config.Classifier.Model)
	assert.Empty(t, config.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		errorMessages []string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name: "bad thresholds",
			mutate: func(c *Config) {
				c.Similarity.ThresholdMinHash = 1.5
				c.Similarity.ThresholdSimHash = 64
				c.Similarity.ThresholdEmbedding = -1
			},
			errorMessages: []string{
				"similarity.threshold_minhash: threshold_minhash must be in (0, 1]",
				"similarity.threshold_simhash: threshold_simhash must be between 0 and 63",
				"similarity.threshold_embedding: threshold_embedding must be in (0, 1]",
			},
		},
		{
			name: "anthropic without key",
			mutate: func(c *Config) {
				c.Classifier.Provider = "anthropic"
				c.Classifier.APIKey = ""
			},
			errorMessages: []string{"classifier.api_key: Anthropic API key is required"},
		},
		{
			name: "unknown provider",
			mutate: func(c *Config) {
				c.Classifier.Provider = "gpt"
			},
			errorMessages: []string{"classifier.provider: unknown provider: gpt"},
		},
		{
			name: "invalid urls and sizes",
			mutate: func(c *Config) {
				c.Embedding.BaseURL = "invalid-url"
				c.Database.URL = "invalid-url"
				c.Database.VectorDim = -1
			},
			errorMessages: []string{
				"embedding.base_url: invalid Ollama base URL",
				"database.url: invalid database URL",
				"database.vector_dim: vector_dim must be positive",
			},
		},
		{
			name: "disabled embedding skips url check",
			mutate: func(c *Config) {
				c.Embedding.Disabled = true
				c.Embedding.BaseURL = ""
			},
		},
		{
			name: "scraper and log",
			mutate: func(c *Config) {
				c.Scraper.RateLimit = 0
				c.Scraper.AllowedExtensions = []string{"html"}
				c.Log.Format = "xml"
			},
			errorMessages: []string{
				"scraper.rate_limit: rate_limit must be positive",
				"scraper.allowed_extensions: invalid extension format: html",
				"log.format: format must be console or json",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := newConfig()
			applyDefaults(config)
			tt.mutate(config)

			errors := config.Validate()
			require.Len(t, errors, len(tt.errorMessages))
			for i, msg := range tt.errorMessages {
				assert.Equal(t, msg, errors[i].Error())
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("NEARDUP_LOG_LEVEL", "warn")

	config := &Config{}
	require.NoError(t, mergeWithEnv(config))

	assert.Equal(t, "http://env-ollama:11434", config.Embedding.BaseURL)
	assert.Equal(t, "http://env-ollama:11434", config.Classifier.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Database.URL)
	assert.Equal(t, "sk-test", config.Classifier.APIKey)
	assert.Equal(t, "warn", config.Log.Level)
}

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func TestLoadConfigKeepsExplicitZeroSimHashThreshold(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, "similarity:\n  threshold_simhash: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, 0, config.Similarity.ThresholdSimHash)
	assert.Equal(t, 0.35, config.Similarity.ThresholdMinHash)
	assert.Empty(t, config.Validate())
}

func TestLoadConfigRejectsExplicitZeroMinHashThreshold(t *testing.T) {
	config, err := LoadConfig(writeConfig(t, "similarity:\n  threshold_minhash: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, 0.0, config.Similarity.ThresholdMinHash)
	errors := config.Validate()
	require.Len(t, errors, 1)
	assert.Equal(t, "similarity.threshold_minhash", errors[0].Field)
}

func TestLoadConfigAnthropicDoesNotInheritOllamaURL(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	config, err := LoadConfig(writeConfig(t, "classifier:\n  provider: anthropic\n"))
	require.NoError(t, err)

	assert.Equal(t, "anthropic", config.Classifier.Provider)
	assert.Empty(t, config.Classifier.BaseURL)
	assert.Equal(t, "claude-3-5-haiku-latest", config.Classifier.Model)
	assert.Equal(t, "http://env-ollama:11434", config.Embedding.BaseURL)
	assert.Empty(t, config.Validate())
}

func TestSetClassifierProvider(t *testing.T) {
	t.Run("drops inherited ollama defaults", func(t *testing.T) {
		config := newConfig()
		applyDefaults(config)
		require.Equal(t, "http://localhost:11434", config.Classifier.BaseURL)

		config.SetClassifierProvider("anthropic")

		assert.Empty(t, config.Classifier.BaseURL)
		assert.Equal(t, "claude-3-5-haiku-latest", config.Classifier.Model)
	})

	t.Run("keeps explicit settings", func(t *testing.T) {
		config := newConfig()
		config.Classifier.BaseURL = "https://proxy.example.com"
		config.Classifier.Model = "claude-sonnet-4-0"
		applyDefaults(config)

		config.SetClassifierProvider("anthropic")

		assert.Equal(t, "https://proxy.example.com", config.Classifier.BaseURL)
		assert.Equal(t, "claude-sonnet-4-0", config.Classifier.Model)
	})

	t.Run("back to ollama", func(t *testing.T) {
		config := newConfig()
		config.Classifier.Provider = "anthropic"
		applyDefaults(config)

		config.SetClassifierProvider("ollama")

		assert.Equal(t, config.Embedding.BaseURL, config.Classifier.BaseURL)
		assert.Equal(t, "llama3", config.Classifier.Model)
	})
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("NEARDUP_DOTENV_PROBE=loaded\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("NEARDUP_DOTENV_PROBE") })

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("NEARDUP_DOTENV_PROBE"))

	assert.NoError(t, loadDotEnv(filepath.Join(dir, "missing.env")))
}
