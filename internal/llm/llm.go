package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dshills/whispernote/pkg/types"
)

// Provider names
const (
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"

	DefaultOllamaURL       = "http://localhost:11434"
	DefaultOllamaModel     = "llama2"
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1/chat/completions"
	DefaultOpenRouterModel = "openai/gpt-3.5-turbo"

	EnvOllamaURL        = "OLLAMA_URL"
	EnvOllamaModel      = "OLLAMA_MODEL"
	EnvOpenRouterAPIKey = "OPENROUTER_API_KEY"
	EnvOpenRouterModel  = "OPENROUTER_MODEL"

	// SystemPrompt is sent ahead of every user prompt
	SystemPrompt = "You are a helpful assistant."

	defaultTimeout = 60 * time.Second
)

var (
	ErrMissingAPIKey       = errors.New("api key not configured")
	ErrUnsupportedProvider = errors.New("unsupported language model provider")
)

// LanguageModel generates a completion for a single prompt
type LanguageModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config selects and configures a provider
type Config struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// New creates the configured language model. An empty provider defaults
// to OpenRouter when OPENROUTER_API_KEY is set and Ollama otherwise.
func New(cfg Config) (LanguageModel, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOllama
		if cfg.APIKey != "" || os.Getenv(EnvOpenRouterAPIKey) != "" {
			provider = ProviderOpenRouter
		}
	}

	switch provider {
	case ProviderOllama:
		return NewOllama(cfg), nil
	case ProviderOpenRouter:
		return NewOpenRouter(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func chatMessages(prompt string) []message {
	return []message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: prompt},
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// upstream wraps err as an upstream failure unless the caller gave up
func upstream(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %w", types.ErrUpstream, err)
}

// statusError describes a non-200 response including a bounded body excerpt
func statusError(name string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("%s responded with %d: %s", name, resp.StatusCode, strings.TrimSpace(string(body)))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
