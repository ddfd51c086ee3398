// Package watcher re-indexes notes as files under a directory change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/whispernote/internal/indexer"
)

// DefaultDebounceDelay is how long a path must stay quiet before it is processed
const DefaultDebounceDelay = 500 * time.Millisecond

// FileIndexer is the subset of *indexer.Indexer the watcher drives
type FileIndexer interface {
	IndexFile(ctx context.Context, path string) (indexer.Metrics, error)
	RemoveFile(ctx context.Context, path string) error
	RemoveTree(ctx context.Context, dir string) (int, error)
}

// Event describes one processed path
type Event struct {
	Path    string
	Removed bool
	Dir     bool // Path was a watched directory; Files counts the files removed under it
	Files   int
	Metrics indexer.Metrics
	Err     error
}

// Config configures a Watcher
type Config struct {
	Extensions    []string      // Only files matching these suffixes are processed; empty means all
	DebounceDelay time.Duration // Default: DefaultDebounceDelay
	ExcludeHidden bool          // Ignore dot files and dot directories
	OnEvent       func(Event)   // Called after each path is processed
}

// Watcher forwards file system changes to a FileIndexer. Bursts of events
// for one path are collapsed into a single index or remove call.
type Watcher struct {
	fsw    *fsnotify.Watcher
	target FileIndexer
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	timers map[string]*pending
	dirs   map[string]struct{}
	closed bool
	wg     sync.WaitGroup
}

// New creates a Watcher
func New(target FileIndexer, logger *slog.Logger, cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = DefaultDebounceDelay
	}
	return &Watcher{
		fsw:    fsw,
		target: target,
		cfg:    cfg,
		logger: logger.With("component", "watcher"),
		timers: make(map[string]*pending),
		dirs:   make(map[string]struct{}),
	}, nil
}

// Run watches dir and its subdirectories until ctx is cancelled.
// Pending work is abandoned on return.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if err := w.addRecursive(root); err != nil {
		return err
	}
	w.logger.Info("watching directory", "path", root, "extensions", w.cfg.Extensions)

	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// Close stops watching and waits for in-flight callbacks
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.stopTimers()
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if w.ignored(path) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			// Files may land in a new directory before it is watched
			if err := w.addRecursive(path); err != nil {
				w.logger.Warn("failed to watch new directory", "path", path, "error", err)
			}
			w.scheduleTree(ctx, path)
			return
		}
	}

	// A directory moved or deleted as a whole reports only its own path
	if (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) && w.forgetDir(path) {
		w.schedule(ctx, path, true)
		return
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if !indexer.Matches(path, w.cfg.Extensions) {
		return
	}
	w.schedule(ctx, path, false)
}

// pending is a path waiting out its quiet period
type pending struct {
	timer *time.Timer
	dir   bool
}

// schedule (re)starts the quiet period for path. A pending directory
// removal is not downgraded by later events for the same path.
func (w *Watcher) schedule(ctx context.Context, path string, dir bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.timers[path]; ok {
		p.timer.Stop()
		dir = dir || p.dir
	}
	timer := time.AfterFunc(w.cfg.DebounceDelay, func() {
		w.mu.Lock()
		delete(w.timers, path)
		if w.closed {
			w.mu.Unlock()
			return
		}
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()

		if ctx.Err() != nil {
			return
		}
		if dir {
			w.processDir(ctx, path)
			return
		}
		w.process(ctx, path)
	})
	w.timers[path] = &pending{timer: timer, dir: dir}
}

// process indexes path if it still exists and removes it otherwise
func (w *Watcher) process(ctx context.Context, path string) {
	event := Event{Path: path}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		event.Removed = true
		event.Err = w.target.RemoveFile(ctx, path)
	case err != nil:
		event.Err = err
	case info.IsDir():
		return
	default:
		event.Metrics, event.Err = w.target.IndexFile(ctx, path)
	}

	if event.Err != nil {
		w.logger.Warn("failed to process change", "path", path, "error", event.Err)
	} else {
		w.logger.Info("processed change",
			"path", path,
			"removed", event.Removed,
			"chunks", event.Metrics.ChunkCount,
			"failed", event.Metrics.Failed())
	}
	w.emit(event)
}

// processDir removes the stored files of a directory that left the tree.
// A directory that is back in place by then is left to its create event.
func (w *Watcher) processDir(ctx context.Context, path string) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return
	}

	event := Event{Path: path, Removed: true, Dir: true}
	event.Files, event.Err = w.target.RemoveTree(ctx, path)
	if event.Err != nil {
		w.logger.Warn("failed to remove directory", "path", path, "error", event.Err)
	} else {
		w.logger.Info("removed directory", "path", path, "files", event.Files)
	}
	w.emit(event)
}

func (w *Watcher) emit(event Event) {
	if w.cfg.OnEvent != nil {
		w.cfg.OnEvent(event)
	}
}

func (w *Watcher) scheduleTree(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if w.ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && indexer.Matches(path, w.cfg.Extensions) {
			w.schedule(ctx, path, false)
		}
		return nil
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		w.mu.Lock()
		w.dirs[path] = struct{}{}
		w.mu.Unlock()
		return nil
	})
}

// forgetDir drops dir and its subdirectories from the watch set and reports
// whether dir was being watched
func (w *Watcher) forgetDir(dir string) bool {
	w.mu.Lock()
	if _, ok := w.dirs[dir]; !ok {
		w.mu.Unlock()
		return false
	}
	var gone []string
	prefix := dir + string(filepath.Separator)
	for path := range w.dirs {
		if path == dir || strings.HasPrefix(path, prefix) {
			delete(w.dirs, path)
			gone = append(gone, path)
		}
	}
	w.mu.Unlock()

	for _, path := range gone {
		// The watch may already be gone with the directory
		_ = w.fsw.Remove(path)
	}
	return true
}

func (w *Watcher) ignored(path string) bool {
	return w.cfg.ExcludeHidden && strings.HasPrefix(filepath.Base(path), ".")
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, p := range w.timers {
		p.timer.Stop()
		delete(w.timers, path)
	}
}
