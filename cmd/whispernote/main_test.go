package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/whispernote/internal/api"
	"github.com/dshills/whispernote/internal/app"
	"github.com/dshills/whispernote/internal/config"
)

const cannedAnswer = "You wrote about the garden."

type cannedModel struct{}

func (cannedModel) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "time-sensitive component") {
		return `{"start": null, "end": null}`, nil
	}
	return cannedAnswer, nil
}

// testCLI returns a cli whose apps share one SQLite file, use the local
// embedder and answer with cannedModel.
func testCLI(t *testing.T, stdin string) *cli {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "index.db")
	return &cli{
		stdin: strings.NewReader(stdin),
		openApp: func(cfg *config.Config, logger *slog.Logger) (*app.App, error) {
			cfg.Storage.Path = dbPath
			cfg.Embedder.Provider = "local"
			return app.NewWithComponents(cfg, logger, app.Components{Model: cannedModel{}})
		},
	}
}

func run(t *testing.T, c *cli, args ...string) (string, error) {
	t.Helper()
	base := []string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "--env-file", ""}
	root := newRootCmdWith(c)
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append(base, args...))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeNotes(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garden.md"), []byte("Planted tomatoes in the garden"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "todo.txt"), []byte("Buy more soil"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "photo.jpg"), []byte("not a note"), 0o644))
	return dir
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, testCLI(t, ""), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "whispernote dev")
	assert.Contains(t, out, "Build Mode:")
	assert.Contains(t, out, "SQLite Driver:")
}

func TestIndexAndStatus(t *testing.T) {
	c := testCLI(t, "")
	notes := writeNotes(t)

	out, err := run(t, c, "index", notes, "--json")
	require.NoError(t, err)
	var metrics api.MetricsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &metrics))
	assert.Equal(t, 2, metrics.FileCount, "default extensions are .txt and .md")
	assert.Equal(t, []string{".md", ".txt"}, metrics.ExtensionsIndexed)

	out, err = run(t, c, "index", notes, "--ext", ".md", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &metrics))
	assert.Equal(t, 0, metrics.FileCount)
	assert.Equal(t, 1, metrics.FilesSkipped)

	out, err = run(t, c, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed files")
	assert.Contains(t, out, "Indexed chunks")
}

func TestIndexCmd_Errors(t *testing.T) {
	_, err := run(t, testCLI(t, ""), "index")
	assert.ErrorContains(t, err, "no directory given")

	_, err = run(t, testCLI(t, ""), "index", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "indexing failed")

	_, err = run(t, testCLI(t, ""), "index", "a", "b")
	assert.Error(t, err)
}

func TestQueryCmd(t *testing.T) {
	c := testCLI(t, "")
	_, err := run(t, c, "index", writeNotes(t))
	require.NoError(t, err)

	out, err := run(t, c, "query", "what", "did", "I", "plant?")
	require.NoError(t, err)
	assert.Contains(t, out, cannedAnswer)
	assert.NotContains(t, out, "Context 1")

	out, err = run(t, c, "--debug", "query", "what did I plant?", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Context 1")
	assert.NotContains(t, out, "Context 2")
}

func TestQueryCmd_JSON(t *testing.T) {
	c := testCLI(t, "")
	_, err := run(t, c, "index", writeNotes(t))
	require.NoError(t, err)

	out, err := run(t, c, "query", "garden", "--json")
	require.NoError(t, err)

	var result struct {
		Answer  string            `json:"answer"`
		Context []json.RawMessage `json:"context"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, cannedAnswer, result.Answer)
	assert.Len(t, result.Context, 2)
}

func TestChatCmd(t *testing.T) {
	c := testCLI(t, "\n   \nwhat is in the garden?\nQuit\nnever asked\n")
	out, err := run(t, c, "chat")
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out, cannedAnswer), "blank lines are ignored and quit ends the session")
	assert.Contains(t, out, "Exiting chat.")
}

func TestChatCmd_EOF(t *testing.T) {
	out, err := run(t, testCLI(t, "hello\n"), "chat")
	require.NoError(t, err)
	assert.Contains(t, out, cannedAnswer)
	assert.Contains(t, out, "Exiting chat.")
}

func TestCheckCmd(t *testing.T) {
	out, err := run(t, testCLI(t, ""), "check", "--llm")
	require.NoError(t, err)
	assert.Contains(t, out, "Index (sqlite): 0 files, 0 chunks")
	assert.Contains(t, out, "Embedder: local/")
	assert.Contains(t, out, cannedAnswer)
}

func TestRemoteMode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "server.db")
	cfg.Embedder.Provider = "local"
	a, err := app.NewWithComponents(cfg, nil, app.Components{Model: cannedModel{}})
	require.NoError(t, err)
	defer a.Close()

	ts := httptest.NewServer(api.NewServer(a, "", nil).Handler())
	defer ts.Close()

	c := testCLI(t, "")
	c.openApp = func(*config.Config, *slog.Logger) (*app.App, error) {
		t.Fatal("remote mode must not open a local index")
		return nil, nil
	}

	out, err := run(t, c, "--remote", "--server-url", ts.URL, "index", writeNotes(t), "--json")
	require.NoError(t, err)
	var metrics api.MetricsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &metrics))
	assert.Equal(t, 2, metrics.FileCount)

	out, err = run(t, c, "--remote", "--server-url", ts.URL, "query", "garden")
	require.NoError(t, err)
	assert.Contains(t, out, cannedAnswer)

	_, err = run(t, c, "--remote", "mcp")
	assert.ErrorContains(t, err, "--remote is not supported")
}

func TestRenderMetrics_ListsFailures(t *testing.T) {
	c := testCLI(t, "")
	notes := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(notes, "bad.txt"), []byte{0xff, 0xfe}, 0o644))

	out, err := run(t, c, "index", notes)
	require.NoError(t, err)
	assert.Contains(t, out, "bad.txt")
}
