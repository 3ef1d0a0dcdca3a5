package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/neardup/pkg/processor"
	"github.com/xhad/neardup/pkg/similarity"
)

const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"

	promptContentLimit = 1000
)

// ClassifierConfig represents the configuration for a classifier.
type ClassifierConfig struct {
	Provider    string
	Model       string
	BaseURL     string // Ollama server URL, or an Anthropic API override
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// generator sends one prompt and returns the raw completion text.
type generator interface {
	generate(ctx context.Context, prompt string) (string, error)
}

// Classifier assigns a category and a short summary to a document.
type Classifier struct {
	config  ClassifierConfig
	backend generator
}

func NewClassifierWithConfig(config ClassifierConfig) (*Classifier, error) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 512
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	var backend generator
	switch config.Provider {
	case ProviderOllama:
		if config.Model == "" {
			config.Model = "llama3"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		llm, err := ollama.New(ollama.WithModel(config.Model),
			ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		backend = &ollamaGenerator{llm: llm, temperature: config.Temperature, maxTokens: config.MaxTokens}
	case ProviderAnthropic:
		if config.APIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		if config.Model == "" {
			config.Model = "claude-3-5-haiku-latest"
		}
		opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
		if config.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(config.BaseURL))
		}
		client := anthropic.NewClient(opts...)
		backend = &anthropicGenerator{client: &client, model: config.Model, maxTokens: config.MaxTokens}
	default:
		return nil, fmt.Errorf("unknown classifier provider: %s", config.Provider)
	}

	return newClassifier(config, backend), nil
}

func newClassifier(config ClassifierConfig, backend generator) *Classifier {
	return &Classifier{config: config, backend: backend}
}

// Classify asks the model for a category and summary. A reply without a
// usable category is an error; callers decide the fallback.
func (c *Classifier) Classify(ctx context.Context, title, content string) (similarity.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	text, err := c.backend.generate(ctx, BuildPrompt(title, content))
	if err != nil {
		return similarity.Classification{}, fmt.Errorf("classification error: %w", err)
	}
	return ParseResponse(text)
}

// BuildPrompt renders the classification prompt for one document.
func BuildPrompt(title, content string) string {
	var b strings.Builder

	b.WriteString("You are an intelligent assistant that classifies and summarizes websites.\n\n")
	b.WriteString("Categories:\n")
	for _, category := range Categories {
		fmt.Fprintf(&b, "%s: %s\n", category.Name, category.Description)
	}

	b.WriteString("\nRules for summary:\n")
	b.WriteString("- Do NOT mention company or platform names (e.g., Amazon, Wikipedia, Udemy, Coursera).\n")
	b.WriteString("- Focus only on the content topic, not the source or brand.\n")

	b.WriteString("\nRules about classification:\n")
	b.WriteString("- Based on the website's title, content, and the summary you wrote, you MUST choose exactly ONE category from the provided list.\n")
	b.WriteString("- Do not say any category which is not in the provided list. Choose the closest category.\n")

	b.WriteString("\nWebsite details:\n")
	fmt.Fprintf(&b, "Title: %s\n", title)
	fmt.Fprintf(&b, "Content: %s\n", processor.Truncate(content, promptContentLimit))

	b.WriteString("\nRespond in the following format:\n")
	b.WriteString("Category: <ChosenCategory>\n")
	b.WriteString("Summary: <Short summary about the website>\n")

	return b.String()
}

var errNoCategory = errors.New("model did not return a category")

// ParseResponse extracts the "Category:" and "Summary:" lines of a reply.
func ParseResponse(text string) (similarity.Classification, error) {
	var result similarity.Classification

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "category:"):
			result.Category = strings.TrimSpace(line[len("category:"):])
		case strings.HasPrefix(lower, "summary:"):
			result.Summary = strings.TrimSpace(line[len("summary:"):])
		}
	}

	if result.Category == "" || result.Category == UnknownCategory {
		return similarity.Classification{}, fmt.Errorf("%w: %q", errNoCategory, text)
	}
	return result, nil
}

type ollamaGenerator struct {
	llm         llms.Model
	temperature float64
	maxTokens   int
}

func (g *ollamaGenerator) generate(ctx context.Context, prompt string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	response, err := g.llm.GenerateContent(ctx, content,
		llms.WithTemperature(g.temperature),
		llms.WithMaxTokens(g.maxTokens))
	if err != nil {
		return "", err
	}
	if response == nil || len(response.Choices) == 0 {
		return "", errors.New("no response from LLM")
	}
	return response.Choices[0].Content, nil
}

type anthropicGenerator struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

func (g *anthropicGenerator) generate(ctx context.Context, prompt string) (string, error) {
	response, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(g.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}
