package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/whispernote/internal/config"
	"github.com/dshills/whispernote/internal/llm"
	"github.com/dshills/whispernote/internal/storage"
)

type echoModel struct{}

func (echoModel) Generate(ctx context.Context, prompt string) (string, error) {
	return `{"start":null,"end":null}`, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "data", "index.db")
	cfg.Embedder.Provider = "local"
	return cfg
}

func TestNew_SQLiteAndLocalEmbedder(t *testing.T) {
	cfg := testConfig(t)
	a, err := NewWithComponents(cfg, nil, Components{Model: echoModel{}})
	require.NoError(t, err)
	defer a.Close()

	_, err = os.Stat(cfg.Storage.Path)
	assert.NoError(t, err, "database directory is created")
	assert.IsType(t, &storage.SQLiteIndex{}, a.Index)
	assert.Equal(t, "local", a.Embedder.Provider())

	notes := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(notes, "a.md"), []byte("Wrote the design doc"), 0o644))
	metrics, err := a.Indexer.IndexDirectory(context.Background(), notes, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.FileCount)

	engine, err := a.Engine()
	require.NoError(t, err)
	result, err := engine.Query(context.Background(), "design doc", 3)
	require.NoError(t, err)
	require.Len(t, result.Context, 1)
}

func TestApp_ServiceMethods(t *testing.T) {
	cfg := testConfig(t)
	cfg.Query.MaxResults = 1
	a, err := NewWithComponents(cfg, nil, Components{Model: echoModel{}})
	require.NoError(t, err)
	defer a.Close()

	notes := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(notes, "a.md"), []byte("first note"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(notes, "b.txt"), []byte("second note"), 0o644))

	ctx := context.Background()
	metrics, err := a.IndexDirectory(ctx, notes, []string{".md"})
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.FileCount)
	assert.Equal(t, []string{".md"}, metrics.ExtensionsIndexed)

	_, err = a.IndexDirectory(ctx, notes, nil)
	require.NoError(t, err)

	status, err := a.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.FileCount)
	assert.Equal(t, 2, status.ChunkCount)

	result, err := a.Query(ctx, "note", 0)
	require.NoError(t, err)
	assert.Len(t, result.Context, 1, "configured max results applies")
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Chunker.ChunkSize = 0
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestEngine_MissingCredentials(t *testing.T) {
	t.Setenv(llm.EnvOpenRouterAPIKey, "")
	cfg := testConfig(t)
	cfg.LLM.Provider = "openrouter"

	a, err := New(cfg, nil)
	require.NoError(t, err, "indexing works without llm credentials")
	defer a.Close()

	_, err = a.Engine()
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)
	_, again := a.Engine()
	assert.Equal(t, err, again)
}

func TestOpenIndex_UnknownBackend(t *testing.T) {
	_, err := OpenIndex(config.StorageConfig{Backend: "pinecone"})
	assert.Error(t, err)
}

func TestNewWatcher(t *testing.T) {
	a, err := NewWithComponents(testConfig(t), nil, Components{Model: echoModel{}})
	require.NoError(t, err)
	defer a.Close()

	w, err := a.NewWatcher(nil)
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}
