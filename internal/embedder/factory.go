package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Dimension         int           `yaml:"dimension"`
	CacheSize         int           `yaml:"cache_size"`
	BatchSize         int           `yaml:"batch_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// New creates an embedder with explicit configuration. An empty provider
// is resolved with DetectProvider.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = DetectProvider()
	}

	switch provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg, cache)
	case ProviderJina:
		return NewJinaProvider(cfg, cache)
	case ProviderOllama:
		return NewOllamaProvider(cfg, cache)
	case ProviderLocal:
		return NewLocalProvider(cfg, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider picks a provider from the environment:
// JINA_API_KEY, then OPENAI_API_KEY, then the offline local provider.
func DetectProvider() string {
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
