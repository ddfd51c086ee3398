// Package app wires configuration into the concrete components shared by
// the CLI, the HTTP API and the MCP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dshills/whispernote/internal/chunker"
	"github.com/dshills/whispernote/internal/config"
	"github.com/dshills/whispernote/internal/embedder"
	"github.com/dshills/whispernote/internal/indexer"
	"github.com/dshills/whispernote/internal/llm"
	"github.com/dshills/whispernote/internal/logging"
	"github.com/dshills/whispernote/internal/query"
	"github.com/dshills/whispernote/internal/storage"
	"github.com/dshills/whispernote/internal/storage/qdrant"
	"github.com/dshills/whispernote/internal/watcher"
	"github.com/dshills/whispernote/pkg/types"
)

// App holds the long-lived components
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Index    storage.VectorIndex
	Embedder embedder.Embedder
	Indexer  *indexer.Indexer

	timeField types.TimeField

	engineOnce sync.Once
	model      llm.LanguageModel
	engine     *query.Engine
	engineErr  error
}

// Components overrides collaborators New would otherwise build from config
type Components struct {
	Index    storage.VectorIndex
	Embedder embedder.Embedder
	Model    llm.LanguageModel
}

// New validates cfg and builds the index, embedder and indexer. The
// language model is created on the first call to Engine so commands that
// only index do not need LLM credentials.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	return NewWithComponents(cfg, logger, Components{})
}

// NewWithComponents is New with some collaborators supplied by the caller
func NewWithComponents(cfg *config.Config, logger *slog.Logger, c Components) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}
	timeField, err := types.ParseTimeField(cfg.Query.TimeField)
	if err != nil {
		return nil, err
	}

	ch, err := chunker.NewWithConfig(cfg.ChunkerSettings())
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, timeField: timeField, model: c.Model}

	a.Index = c.Index
	if a.Index == nil {
		if a.Index, err = OpenIndex(cfg.Storage); err != nil {
			return nil, err
		}
	}

	a.Embedder = c.Embedder
	if a.Embedder == nil {
		if a.Embedder, err = embedder.New(cfg.Embedder); err != nil {
			_ = a.Index.Close()
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	}

	a.Indexer = indexer.New(ch, a.Embedder, a.Index, logger, indexer.Config{
		Workers:       cfg.Indexer.Workers,
		Annotate:      cfg.Chunker.Annotate,
		ExcludeHidden: cfg.Notes.ExcludeHidden,
	})

	logger.Debug("components ready",
		"storage", cfg.Storage.Backend,
		"embedder", a.Embedder.Provider(),
		"embedding_model", a.Embedder.Model())
	return a, nil
}

// Model returns the language model, creating it on first use
func (a *App) Model() (llm.LanguageModel, error) {
	if _, err := a.Engine(); err != nil {
		return nil, err
	}
	return a.model, nil
}

// Engine returns the query engine, creating the language model on first use
func (a *App) Engine() (*query.Engine, error) {
	a.engineOnce.Do(func() {
		if a.model == nil {
			a.model, a.engineErr = llm.New(a.Config.LLM)
			if a.engineErr != nil {
				a.engineErr = fmt.Errorf("failed to create language model: %w", a.engineErr)
				return
			}
		}
		a.engine = query.New(a.Embedder, a.Index, a.model, a.Logger, query.WithTimeField(a.timeField))
	})
	return a.engine, a.engineErr
}

// IndexDirectory indexes dir with the app's indexer. Empty extensions
// select every file.
func (a *App) IndexDirectory(ctx context.Context, dir string, extensions []string) (indexer.Metrics, error) {
	return a.Indexer.IndexDirectory(ctx, dir, extensions)
}

// Status summarizes what the index currently holds
func (a *App) Status(ctx context.Context) (indexer.Metrics, error) {
	return a.Indexer.Status(ctx)
}

// Query answers question from the indexed notes. maxResults <= 0 uses the
// configured default.
func (a *App) Query(ctx context.Context, question string, maxResults int) (*types.QueryResult, error) {
	engine, err := a.Engine()
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		maxResults = a.Config.Query.MaxResults
	}
	return engine.Query(ctx, question, maxResults)
}

// NewWatcher creates a watcher that re-indexes through the app's indexer
func (a *App) NewWatcher(onEvent func(watcher.Event)) (*watcher.Watcher, error) {
	return watcher.New(a.Indexer, a.Logger, watcher.Config{
		Extensions:    a.Config.Notes.Extensions,
		DebounceDelay: a.Config.Watch.Debounce,
		ExcludeHidden: a.Config.Notes.ExcludeHidden,
		OnEvent:       onEvent,
	})
}

// Close releases the embedder and the index
func (a *App) Close() error {
	return errors.Join(a.Embedder.Close(), a.Index.Close())
}

// OpenIndex opens the configured vector index backend
func OpenIndex(cfg config.StorageConfig) (storage.VectorIndex, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", config.BackendSQLite:
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		index, err := storage.NewSQLiteIndex(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open index: %w", err)
		}
		return index, nil
	case config.BackendQdrant:
		index, err := qdrant.New(cfg.Qdrant)
		if err != nil {
			return nil, err
		}
		return index, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
