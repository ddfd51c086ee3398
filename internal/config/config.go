// Package config loads whispernote settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/whispernote/internal/chunker"
	"github.com/dshills/whispernote/internal/embedder"
	"github.com/dshills/whispernote/internal/llm"
	"github.com/dshills/whispernote/internal/logging"
	"github.com/dshills/whispernote/internal/storage"
	"github.com/dshills/whispernote/internal/storage/qdrant"
	"github.com/dshills/whispernote/pkg/types"
)

// Storage backends
const (
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// FileName is the config file looked up in the working directory
const FileName = "whispernote.yaml"

// NotesConfig describes the notes directory
type NotesConfig struct {
	Directory     string   `yaml:"directory"`
	Extensions    []string `yaml:"extensions"`
	ExcludeHidden bool     `yaml:"exclude_hidden"`
}

// ChunkerConfig controls passage splitting
type ChunkerConfig struct {
	ChunkSize    int    `yaml:"chunk_size"`
	Overlap      int    `yaml:"overlap"`
	SplitPattern string `yaml:"split_pattern"`
	NoSplit      bool   `yaml:"no_split"`
	Annotate     bool   `yaml:"annotate"`
}

// IndexerConfig controls indexing concurrency
type IndexerConfig struct {
	Workers int `yaml:"workers"`
}

// StorageConfig selects the vector index backend
type StorageConfig struct {
	Backend string        `yaml:"backend"`
	Path    string        `yaml:"path"`
	Qdrant  qdrant.Config `yaml:"qdrant"`
}

// QueryConfig controls retrieval
type QueryConfig struct {
	MaxResults int    `yaml:"max_results"`
	TimeField  string `yaml:"time_field"`
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Addr string `yaml:"addr"`
	URL  string `yaml:"url"` // Base URL the CLI uses with --remote
}

// WatchConfig controls watch mode
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Config is the root configuration
type Config struct {
	Notes    NotesConfig     `yaml:"notes"`
	Chunker  ChunkerConfig   `yaml:"chunker"`
	Indexer  IndexerConfig   `yaml:"indexer"`
	Embedder embedder.Config `yaml:"embedder"`
	LLM      llm.Config      `yaml:"llm"`
	Storage  StorageConfig   `yaml:"storage"`
	Query    QueryConfig     `yaml:"query"`
	Server   ServerConfig    `yaml:"server"`
	Watch    WatchConfig     `yaml:"watch"`
	Log      logging.Config  `yaml:"log"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Chunker: ChunkerConfig{ChunkSize: chunker.DefaultChunkSize, SplitPattern: chunker.DefaultSplitPattern},
		Indexer: IndexerConfig{Workers: runtime.NumCPU()},
		Embedder: embedder.Config{
			CacheSize: 10000,
		},
		Storage: StorageConfig{Backend: BackendSQLite, Path: defaultDBPath()},
		Query:   QueryConfig{MaxResults: storage.DefaultMaxResults, TimeField: string(types.TimeFieldCreated)},
		Server:  ServerConfig{Addr: "127.0.0.1:8000", URL: "http://127.0.0.1:8000"},
		Watch:   WatchConfig{Debounce: 500 * time.Millisecond},
		Log:     logging.Config{Level: "info", Format: "text"},
	}
}

// Load reads path, fills unset fields with defaults and applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

// LoadDefault tries ./whispernote.yaml, then ~/.config/whispernote/config.yaml.
// It returns the path used, or "" when neither exists.
func LoadDefault() (*Config, string, error) {
	candidates := []string{FileName}
	if userPath, err := UserConfigPath(); err == nil {
		candidates = append(candidates, userPath)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			cfg, err := Load(path)
			return cfg, path, err
		}
	}
	cfg := Default()
	applyEnv(cfg)
	return cfg, "", nil
}

// Save writes cfg as YAML, creating parent directories
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// UserConfigPath returns ~/.config/whispernote/config.yaml
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "whispernote", "config.yaml"), nil
}

// Validate rejects settings the components cannot run with
func (c *Config) Validate() error {
	if c.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("chunker.chunk_size must be positive, got %d", c.Chunker.ChunkSize)
	}
	if c.Chunker.Overlap < 0 {
		return fmt.Errorf("chunker.overlap must not be negative, got %d", c.Chunker.Overlap)
	}
	switch strings.ToLower(c.Storage.Backend) {
	case BackendSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the sqlite backend")
		}
	case BackendQdrant:
	default:
		return fmt.Errorf("unknown storage.backend %q (want %s or %s)", c.Storage.Backend, BackendSQLite, BackendQdrant)
	}
	switch strings.ToLower(c.Embedder.Provider) {
	case "", embedder.ProviderOpenAI, embedder.ProviderJina, embedder.ProviderOllama, embedder.ProviderLocal:
	default:
		return fmt.Errorf("unknown embedder.provider %q", c.Embedder.Provider)
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "", llm.ProviderOllama, llm.ProviderOpenRouter:
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	if _, err := types.ParseTimeField(c.Query.TimeField); err != nil {
		return fmt.Errorf("query.time_field: %w", err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// ChunkerSettings converts the chunker section for chunker.NewWithConfig
func (c *Config) ChunkerSettings() chunker.Config {
	return chunker.Config{
		ChunkSize:    c.Chunker.ChunkSize,
		Overlap:      c.Chunker.Overlap,
		SplitPattern: c.Chunker.SplitPattern,
		NoSplit:      c.Chunker.NoSplit,
	}
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = def.Chunker.ChunkSize
	}
	if cfg.Indexer.Workers <= 0 {
		cfg.Indexer.Workers = def.Indexer.Workers
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = def.Storage.Backend
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = def.Storage.Path
	}
	if cfg.Query.MaxResults <= 0 {
		cfg.Query.MaxResults = def.Query.MaxResults
	}
	if cfg.Query.TimeField == "" {
		cfg.Query.TimeField = def.Query.TimeField
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Server.URL == "" {
		cfg.Server.URL = def.Server.URL
	}
	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = def.Watch.Debounce
	}
	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	cfg.Notes.Directory = expandHome(cfg.Notes.Directory)
}

// Environment variables
const (
	EnvNotesDir   = "WHISPERNOTE_NOTES_DIR"
	EnvDBPath     = "WHISPERNOTE_DB_PATH"
	EnvStorage    = "WHISPERNOTE_STORAGE"
	EnvEmbedder   = "WHISPERNOTE_EMBEDDER"
	EnvLLM        = "WHISPERNOTE_LLM"
	EnvTimeField  = "WHISPERNOTE_TIME_FIELD"
	EnvAddr       = "WHISPERNOTE_ADDR"
	EnvServerURL  = "WHISPERNOTE_SERVER_URL"
	EnvWorkers    = "WHISPERNOTE_WORKERS"
	EnvLogLevel   = "WHISPERNOTE_LOG_LEVEL"
	EnvLogFormat  = "WHISPERNOTE_LOG_FORMAT"
	EnvQdrantHost = "WHISPERNOTE_QDRANT_HOST"
)

func applyEnv(cfg *Config) {
	setString(&cfg.Notes.Directory, EnvNotesDir)
	setString(&cfg.Storage.Path, EnvDBPath)
	setString(&cfg.Storage.Backend, EnvStorage)
	setString(&cfg.Embedder.Provider, EnvEmbedder)
	setString(&cfg.LLM.Provider, EnvLLM)
	setString(&cfg.Query.TimeField, EnvTimeField)
	setString(&cfg.Server.Addr, EnvAddr)
	setString(&cfg.Server.URL, EnvServerURL)
	setString(&cfg.Log.Level, EnvLogLevel)
	setString(&cfg.Log.Format, EnvLogFormat)
	setString(&cfg.Storage.Qdrant.Host, EnvQdrantHost)
	if v, err := strconv.Atoi(os.Getenv(EnvWorkers)); err == nil && v > 0 {
		cfg.Indexer.Workers = v
	}

	// Provider credentials fill in only what the file left empty
	llmProvider := strings.ToLower(cfg.LLM.Provider)
	if cfg.LLM.APIKey == "" && llmProvider != llm.ProviderOllama {
		cfg.LLM.APIKey = os.Getenv(llm.EnvOpenRouterAPIKey)
	}
	if llmProvider == llm.ProviderOllama || (llmProvider == "" && cfg.LLM.APIKey == "") {
		fillString(&cfg.LLM.BaseURL, llm.EnvOllamaURL)
		fillString(&cfg.LLM.Model, llm.EnvOllamaModel)
	}
	if strings.ToLower(cfg.Embedder.Provider) == embedder.ProviderOpenAI {
		fillString(&cfg.Embedder.APIKey, embedder.EnvOpenAIAPIKey)
	}
	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	cfg.Notes.Directory = expandHome(cfg.Notes.Directory)
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func fillString(dst *string, key string) {
	if *dst == "" {
		setString(dst, key)
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".whispernote", "index.db")
	}
	return filepath.Join(home, ".whispernote", "index.db")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
