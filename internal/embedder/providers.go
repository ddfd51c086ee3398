package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"golang.org/x/time/rate"

	"github.com/dshills/whispernote/pkg/types"
)

// Provider configuration
const (
	ProviderOpenAI = "openai"
	ProviderJina   = "jina"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"

	// Default models
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultLocalModel  = "local-hashing"

	// Default endpoints
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultJinaBaseURL   = "https://api.jina.ai/v1"
	DefaultOllamaURL     = "http://localhost:11434"

	// Dimensions
	OpenAIDimension = 1536
	JinaDimension   = 1024
	LocalDimension  = 384

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	// Environment variables
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"

	defaultTimeout = 30 * time.Second
)

// transport posts JSON to an embedding API with rate limiting and retries
type transport struct {
	client  *http.Client
	limiter *rate.Limiter
	retry   RetryConfig
}

func newTransport(cfg Config) *transport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &transport{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		retry:   DefaultRetryConfig(),
	}
}

// postJSON sends body to url and decodes the JSON response into out.
// Failures are wrapped with types.ErrUpstream.
func (t *transport) postJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	_, err = retryWithBackoff(ctx, t.retry, func() (struct{}, error) {
		if err := t.limiter.Wait(ctx); err != nil {
			return struct{}{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return struct{}{}, permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("api call: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return struct{}{}, permanent(apiErr)
			}
			return struct{}{}, apiErr
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, permanent(fmt.Errorf("decode response: %w", err))
		}
		return struct{}{}, nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %w", types.ErrUpstream, err)
	}
	return nil
}

func (t *transport) close() {
	t.client.CloseIdleConnections()
}

// OpenAIProvider implements Embedder for OpenAI-compatible /embeddings APIs.
// Jina AI uses the same wire format.
type OpenAIProvider struct {
	name      string
	baseURL   string
	apiKey    string
	model     string
	batchSize int
	dimension atomic.Int64
	transport *transport
	cache     *Cache
}

// NewOpenAIProvider creates an embedder for the OpenAI API or a compatible server
func NewOpenAIProvider(cfg Config, cache *Cache) (*OpenAIProvider, error) {
	return newOpenAICompatible(ProviderOpenAI, EnvOpenAIAPIKey, DefaultOpenAIBaseURL, DefaultOpenAIModel, OpenAIDimension, cfg, cache)
}

// NewJinaProvider creates an embedder for the Jina AI API
func NewJinaProvider(cfg Config, cache *Cache) (*OpenAIProvider, error) {
	return newOpenAICompatible(ProviderJina, EnvJinaAPIKey, DefaultJinaBaseURL, DefaultJinaModel, JinaDimension, cfg, cache)
}

func newOpenAICompatible(name, keyEnv, baseURL, model string, dimension int, cfg Config, cache *Cache) (*OpenAIProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(keyEnv)
	}
	// A custom base URL may point at a local server that needs no key
	if apiKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, keyEnv)
	}
	if cfg.BaseURL != "" {
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Model != "" && cfg.Model != model {
		model = cfg.Model
		dimension = cfg.Dimension
	}

	p := &OpenAIProvider{
		name:      name,
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     model,
		batchSize: batchSizeOrDefault(cfg.BatchSize),
		transport: newTransport(cfg),
		cache:     cache,
	}
	p.dimension.Store(int64(dimension))
	return p, nil
}

func (o *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return embedBatched(ctx, o.cache, texts, o.batchSize, o.callAPI)
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]any{
		"input": texts,
		"model": o.model,
	}

	headers := map[string]string{}
	if o.apiKey != "" {
		headers["Authorization"] = "Bearer " + o.apiKey
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := o.transport.postJSON(ctx, o.baseURL+"/embeddings", headers, reqBody, &apiResp); err != nil {
		return nil, err
	}

	sort.SliceStable(apiResp.Data, func(i, j int) bool {
		return apiResp.Data[i].Index < apiResp.Data[j].Index
	})
	vectors := make([][]float32, len(apiResp.Data))
	for i, data := range apiResp.Data {
		vectors[i] = data.Embedding
	}
	if len(vectors) > 0 {
		o.dimension.Store(int64(len(vectors[0])))
	}
	return vectors, nil
}

func (o *OpenAIProvider) Dimension() int {
	return int(o.dimension.Load())
}

func (o *OpenAIProvider) Provider() string {
	return o.name
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	o.transport.close()
	return nil
}

// OllamaProvider implements Embedder using a local Ollama server's /api/embed
type OllamaProvider struct {
	baseURL   string
	model     string
	batchSize int
	dimension atomic.Int64
	transport *transport
	cache     *Cache
}

// NewOllamaProvider creates an embedder for an Ollama server
func NewOllamaProvider(cfg Config, cache *Cache) (*OllamaProvider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}

	p := &OllamaProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		batchSize: batchSizeOrDefault(cfg.BatchSize),
		transport: newTransport(cfg),
		cache:     cache,
	}
	p.dimension.Store(int64(cfg.Dimension))
	return p, nil
}

func (o *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return embedBatched(ctx, o.cache, texts, o.batchSize, o.callAPI)
}

func (o *OllamaProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]any{
		"model": o.model,
		"input": texts,
	}

	var apiResp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := o.transport.postJSON(ctx, o.baseURL+"/api/embed", nil, reqBody, &apiResp); err != nil {
		return nil, err
	}
	if len(apiResp.Embeddings) > 0 {
		o.dimension.Store(int64(len(apiResp.Embeddings[0])))
	}
	return apiResp.Embeddings, nil
}

func (o *OllamaProvider) Dimension() int {
	return int(o.dimension.Load())
}

func (o *OllamaProvider) Provider() string {
	return ProviderOllama
}

func (o *OllamaProvider) Model() string {
	return o.model
}

func (o *OllamaProvider) Close() error {
	o.transport.close()
	return nil
}

// LocalProvider embeds text offline by hashing word features into a fixed
// number of buckets. Texts sharing words end up close in cosine distance,
// which is enough for tests and small note collections without a model.
type LocalProvider struct {
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a hashing embedder
func NewLocalProvider(cfg Config, cache *Cache) (*LocalProvider, error) {
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{dimension: dimension, cache: cache}, nil
}

func (l *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return embedBatched(ctx, l.cache, texts, MaxBatchSize, func(ctx context.Context, batch []string) ([][]float32, error) {
		vectors := make([][]float32, len(batch))
		for i, text := range batch {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			vectors[i] = l.embedOne(text)
		}
		return vectors, nil
	})
}

// embedOne hashes each lowercased word and word bigram into a signed bucket
func (l *LocalProvider) embedOne(text string) []float32 {
	vector := make([]float32, l.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	add := func(feature string, weight float32) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum64()
		bucket := int(sum % uint64(l.dimension))
		if sum&(1<<63) != 0 {
			weight = -weight
		}
		vector[bucket] += weight
	}

	for i, word := range words {
		add(word, 1)
		if i > 0 {
			add(words[i-1]+" "+word, 0.5)
		}
	}
	return NormalizeVector(vector)
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return DefaultLocalModel
}

func (l *LocalProvider) Close() error {
	return nil
}

func batchSizeOrDefault(n int) int {
	if n <= 0 {
		return DefaultBatchSize
	}
	return min(n, MaxBatchSize)
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
