package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvNotesDir, EnvDBPath, EnvStorage, EnvEmbedder, EnvLLM, EnvTimeField,
		EnvAddr, EnvServerURL, EnvWorkers, EnvLogLevel, EnvLogFormat, EnvQdrantHost,
		"OPENROUTER_API_KEY", "OLLAMA_URL", "OLLAMA_MODEL", "OPENAI_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 512, cfg.Chunker.ChunkSize)
	assert.Equal(t, `\n\n`, cfg.Chunker.SplitPattern)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, 10, cfg.Query.MaxResults)
	assert.Equal(t, "created_at", cfg.Query.TimeField)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
	assert.True(t, filepath.IsAbs(cfg.Storage.Path))
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "whispernote.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
notes:
  directory: /notes
  extensions: [".md", ".txt"]
chunker:
  chunk_size: 256
  overlap: 32
  annotate: true
embedder:
  provider: ollama
  model: nomic-embed-text
llm:
  provider: openrouter
  model: anthropic/claude-3-haiku
storage:
  backend: qdrant
  qdrant:
    host: qdrant.local
    collection: journal
query:
  time_field: modified_at
watch:
  debounce: 2s
log:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/notes", cfg.Notes.Directory)
	assert.Equal(t, []string{".md", ".txt"}, cfg.Notes.Extensions)
	assert.Equal(t, 256, cfg.Chunker.ChunkSize)
	assert.Equal(t, 32, cfg.Chunker.Overlap)
	assert.True(t, cfg.Chunker.Annotate)
	assert.Equal(t, `\n\n`, cfg.Chunker.SplitPattern, "unset fields keep defaults")
	assert.Equal(t, "ollama", cfg.Embedder.Provider)
	assert.Equal(t, "openrouter", cfg.LLM.Provider)
	assert.Equal(t, BackendQdrant, cfg.Storage.Backend)
	assert.Equal(t, "qdrant.local", cfg.Storage.Qdrant.Host)
	assert.Equal(t, "journal", cfg.Storage.Qdrant.Collection)
	assert.Equal(t, "modified_at", cfg.Query.TimeField)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.Equal(t, "json", cfg.Log.Format)

	settings := cfg.ChunkerSettings()
	assert.Equal(t, 256, settings.ChunkSize)
	assert.Equal(t, 32, settings.Overlap)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvNotesDir, "/env/notes")
	t.Setenv(EnvDBPath, "/env/index.db")
	t.Setenv(EnvWorkers, "3")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv("OLLAMA_URL", "http://gpu-box:11434")
	t.Setenv("OLLAMA_MODEL", "mistral")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/env/notes", cfg.Notes.Directory)
	assert.Equal(t, "/env/index.db", cfg.Storage.Path)
	assert.Equal(t, 3, cfg.Indexer.Workers)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "http://gpu-box:11434", cfg.LLM.BaseURL)
	assert.Equal(t, "mistral", cfg.LLM.Model)
}

func TestLoad_OpenRouterKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("OLLAMA_URL", "http://ignored:11434")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "or-key", cfg.LLM.APIKey)
	assert.Empty(t, cfg.LLM.BaseURL, "ollama settings do not leak into openrouter")
}

func TestLoadDefault_WorkingDirectory(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.WriteFile(FileName, []byte("query:\n  max_results: 4\n"), 0o644))

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, FileName, path)
	assert.Equal(t, 4, cfg.Query.MaxResults)
}

func TestLoadDefault_NoFiles(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, 10, cfg.Query.MaxResults)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Notes.Directory = "/saved"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/saved", loaded.Notes.Directory)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Chunker.ChunkSize = 0 }},
		{"negative overlap", func(c *Config) { c.Chunker.Overlap = -1 }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "chroma" }},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }},
		{"unknown embedder", func(c *Config) { c.Embedder.Provider = "cohere" }},
		{"unknown llm", func(c *Config) { c.LLM.Provider = "bard" }},
		{"unknown time field", func(c *Config) { c.Query.TimeField = "accessed_at" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "trace" }},
	}

	assert.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	assert.Equal(t, "/home/tester/.whispernote/index.db", expandHome("~/.whispernote/index.db"))
	assert.Equal(t, "/abs/path", expandHome("/abs/path"))
}
