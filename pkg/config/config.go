package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Similarity struct {
		ThresholdMinHash   float64 `yaml:"threshold_minhash"`
		ThresholdSimHash   int     `yaml:"threshold_simhash"`
		ThresholdEmbedding float64 `yaml:"threshold_embedding"`
		NumPerm            int     `yaml:"num_perm"`
	} `yaml:"similarity"`

	Embedding struct {
		Disabled bool          `yaml:"disabled"`
		BaseURL  string        `yaml:"base_url"`
		Model    string        `yaml:"model"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"embedding"`

	Classifier struct {
		Provider    string        `yaml:"provider"`
		BaseURL     string        `yaml:"base_url"`
		Model       string        `yaml:"model"`
		APIKey      string        `yaml:"api_key"`
		MaxTokens   int           `yaml:"max_tokens"`
		Temperature float64       `yaml:"temperature"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"classifier"`

	Scraper struct {
		Timeout           time.Duration `yaml:"timeout"`
		RateLimit         float64       `yaml:"rate_limit"`
		UserAgent         string        `yaml:"user_agent"`
		Concurrency       int           `yaml:"concurrency"`
		Retries           int           `yaml:"retries"`
		MaxDepth          int           `yaml:"max_depth"`
		MaxPages          int           `yaml:"max_pages"`
		IgnorePatterns    []string      `yaml:"ignore_patterns"`
		AllowedExtensions []string      `yaml:"allowed_extensions"`
	} `yaml:"scraper"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"database"`

	Output struct {
		ResultsPath string `yaml:"results_path"`
		ReportPath  string `yaml:"report_path"`
		LogsPath    string `yaml:"logs_path"`
		Append      bool   `yaml:"append"`
	} `yaml:"output"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Log struct {
		Format string `yaml:"format"`
		Level  string `yaml:"level"`
	} `yaml:"log"`
}

// envOverrides are read after the file so the environment wins.
type envOverrides struct {
	OllamaBaseURL   string `envconfig:"OLLAMA_BASE_URL"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	LogLevel        string `envconfig:"NEARDUP_LOG_LEVEL"`
	LogFormat       string `envconfig:"NEARDUP_LOG_FORMAT"`
}

func LoadConfig(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/neardup/config.yaml"),
			"/etc/neardup/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := newConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := mergeWithEnv(config); err != nil {
		return nil, err
	}
	applyDefaults(config)

	return config, nil
}

// newConfig presets the fields whose zero value is a valid setting, so the
// file is decoded over them and an explicit zero survives.
func newConfig() *Config {
	config := &Config{}
	config.Similarity.ThresholdMinHash = 0.35
	config.Similarity.ThresholdSimHash = 16
	config.Similarity.ThresholdEmbedding = 0.80
	config.Similarity.NumPerm = 128
	return config
}

func getDefaultConfig() (*Config, error) {
	config := newConfig()
	if err := mergeWithEnv(config); err != nil {
		return nil, err
	}
	applyDefaults(config)
	return config, nil
}

// loadDotEnv fills unset environment variables from a .env file when one
// exists.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error loading %s: %w", path, err)
	}
	return nil
}

func applyDefaults(config *Config) {
	if config.Embedding.BaseURL == "" {
		config.Embedding.BaseURL = "http://localhost:11434"
	}
	if config.Embedding.Model == "" {
		config.Embedding.Model = "nomic-embed-text:latest"
	}
	if config.Embedding.Timeout == 0 {
		config.Embedding.Timeout = 30 * time.Second
	}

	applyClassifierDefaults(config)
	if config.Classifier.MaxTokens == 0 {
		config.Classifier.MaxTokens = 512
	}
	if config.Classifier.Temperature == 0 {
		config.Classifier.Temperature = 0.2
	}
	if config.Classifier.Timeout == 0 {
		config.Classifier.Timeout = 60 * time.Second
	}

	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 10 * time.Second
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 10.0
	}
	if config.Scraper.UserAgent == "" {
		config.Scraper.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	}
	if config.Scraper.Concurrency == 0 {
		config.Scraper.Concurrency = 4
	}
	if config.Scraper.Retries == 0 {
		config.Scraper.Retries = 2
	}
	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 2
	}
	if config.Scraper.MaxPages == 0 {
		config.Scraper.MaxPages = 100
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "results"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Output.ResultsPath == "" {
		config.Output.ResultsPath = "results.csv"
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}

	if config.Log.Format == "" {
		config.Log.Format = "console"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

var defaultClassifierModels = map[string]string{
	"ollama":    "llama3",
	"anthropic": "claude-3-5-haiku-latest",
}

// applyClassifierDefaults fills the model for the provider. Only the ollama
// provider shares the embedding server URL; anthropic keeps an empty base
// URL so the SDK default is used.
func applyClassifierDefaults(config *Config) {
	if config.Classifier.Provider == "" {
		config.Classifier.Provider = "ollama"
	}
	if config.Classifier.Provider == "ollama" && config.Classifier.BaseURL == "" {
		config.Classifier.BaseURL = config.Embedding.BaseURL
	}
	if config.Classifier.Model == "" {
		config.Classifier.Model = defaultClassifierModels[config.Classifier.Provider]
	}
}

// SetClassifierProvider switches the classifier backend. The base URL and
// model inherited from the previous provider's defaults are dropped.
func (c *Config) SetClassifierProvider(provider string) {
	if provider == c.Classifier.Provider {
		return
	}
	if c.Classifier.Provider == "ollama" && c.Classifier.BaseURL == c.Embedding.BaseURL {
		c.Classifier.BaseURL = ""
	}
	if c.Classifier.Model == defaultClassifierModels[c.Classifier.Provider] {
		c.Classifier.Model = ""
	}
	c.Classifier.Provider = provider
	applyClassifierDefaults(c)
}

func mergeWithEnv(config *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("error reading environment: %w", err)
	}

	if env.OllamaBaseURL != "" {
		config.Embedding.BaseURL = env.OllamaBaseURL
		if config.Classifier.Provider == "" || config.Classifier.Provider == "ollama" {
			config.Classifier.BaseURL = env.OllamaBaseURL
		}
	}
	if env.DatabaseURL != "" {
		config.Database.URL = env.DatabaseURL
	}
	if env.AnthropicAPIKey != "" {
		config.Classifier.APIKey = env.AnthropicAPIKey
	}
	if env.LogLevel != "" {
		config.Log.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		config.Log.Format = env.LogFormat
	}
	return nil
}
