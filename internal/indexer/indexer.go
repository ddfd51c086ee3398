package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/whispernote/internal/chunker"
	"github.com/dshills/whispernote/internal/embedder"
	"github.com/dshills/whispernote/internal/storage"
	"github.com/dshills/whispernote/pkg/types"
)

var (
	// ErrIndexingInProgress is returned when a directory run is already active
	ErrIndexingInProgress = errors.New("indexing already in progress")
	// ErrNotDirectory is returned when the indexed root is a regular file
	ErrNotDirectory = errors.New("not a directory")
)

// Config contains configuration for the indexer
type Config struct {
	Workers       int  // Number of files indexed concurrently (default: runtime.NumCPU())
	Annotate      bool // Prefix chunks with a provenance line naming the file and its dates
	ExcludeHidden bool // Skip files and directories whose name starts with a dot
}

// Indexer keeps a vector index in sync with the files of a directory
type Indexer struct {
	chunker  *chunker.Chunker
	embedder embedder.Embedder
	index    storage.VectorIndex
	logger   *slog.Logger

	workers       int
	annotate      bool
	excludeHidden bool

	running runLock
	paths   *pathLocks
}

// New creates a new Indexer instance
func New(ch *chunker.Chunker, emb embedder.Embedder, index storage.VectorIndex, logger *slog.Logger, cfg Config) *Indexer {
	if ch == nil {
		ch = chunker.New()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Indexer{
		chunker:       ch,
		embedder:      emb,
		index:         index,
		logger:        logger.With("component", "indexer"),
		workers:       workers,
		annotate:      cfg.Annotate,
		excludeHidden: cfg.ExcludeHidden,
		paths:         newPathLocks(),
	}
}

// IndexDirectory indexes every file under dir whose name ends with one of
// extensions (case-insensitive), or every file when extensions is empty.
//
// Failures of individual files are recorded in the returned metrics and
// never abort the run. An error is returned only when dir cannot be read,
// another run is active or ctx is cancelled.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, extensions []string) (Metrics, error) {
	if !idx.running.tryAcquire() {
		return Metrics{}, ErrIndexingInProgress
	}
	defer idx.running.release()

	root, err := absPath(dir)
	if err != nil {
		return Metrics{}, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to access directory: %w", err)
	}
	if !info.IsDir() {
		return Metrics{}, fmt.Errorf("%s: %w", root, ErrNotDirectory)
	}

	start := time.Now()
	files, walkMetrics := idx.discoverFiles(root, normalizeExtensions(extensions))
	idx.logger.Info("indexing directory", "path", root, "files", len(files), "workers", idx.workers)

	var (
		mu      sync.Mutex
		metrics = walkMetrics
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for _, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			m := idx.indexFile(gctx, path)
			mu.Lock()
			metrics = metrics.Merge(m)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	idx.logger.Info("indexing complete",
		"path", root,
		"indexed", metrics.FileCount,
		"skipped", metrics.FilesSkipped,
		"failed", metrics.Failed(),
		"chunks", metrics.ChunkCount,
		"duration", time.Since(start))

	if err := ctx.Err(); err != nil {
		return metrics, err
	}
	return metrics, nil
}

// IndexFile indexes a single file, replacing any older generation of it.
// A failure is recorded in the returned metrics, not returned as an error.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (Metrics, error) {
	abs, err := absPath(path)
	if err != nil {
		return Metrics{}, err
	}
	m := idx.indexFile(ctx, abs)
	return m, ctx.Err()
}

// RemoveFile deletes every passage of path
func (idx *Indexer) RemoveFile(ctx context.Context, path string) error {
	abs, err := absPath(path)
	if err != nil {
		return err
	}
	unlock := idx.paths.lock(abs)
	defer unlock()
	if err := idx.index.DeleteByFilePath(ctx, abs); err != nil {
		return fmt.Errorf("failed to delete passages of %s: %w", abs, err)
	}
	idx.logger.Debug("removed file", "path", abs)
	return nil
}

// RemoveTree deletes the passages of every stored file under dir and
// returns how many files were removed
func (idx *Indexer) RemoveTree(ctx context.Context, dir string) (int, error) {
	root, err := absPath(dir)
	if err != nil {
		return 0, err
	}
	metas, err := idx.index.GetAllMetadata(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read index metadata: %w", err)
	}

	prefix := root + string(filepath.Separator)
	seen := make(map[string]struct{})
	for i := range metas {
		file := metas[i].File
		if _, ok := seen[file]; ok || !strings.HasPrefix(file, prefix) {
			continue
		}
		seen[file] = struct{}{}
		if err := idx.RemoveFile(ctx, file); err != nil {
			return len(seen) - 1, err
		}
	}
	idx.logger.Debug("removed tree", "path", root, "files", len(seen))
	return len(seen), nil
}

// Status summarizes the files and passages currently stored in the index
func (idx *Indexer) Status(ctx context.Context) (Metrics, error) {
	metas, err := idx.index.GetAllMetadata(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to read index metadata: %w", err)
	}
	return MetricsFromMetadata(metas), nil
}

// Matches reports whether path passes the extension filter
func Matches(path string, extensions []string) bool {
	return matches(filepath.Base(path), normalizeExtensions(extensions))
}

// discoverFiles walks root and returns the files to index. Unreadable
// entries are reported as failures.
func (idx *Indexer) discoverFiles(root string, extensions []string) ([]string, Metrics) {
	var (
		files   []string
		metrics Metrics
	)

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			idx.logger.Warn("failed to read path", "path", path, "error", err)
			metrics = metrics.Merge(failureMetrics(path, err))
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		hidden := path != root && strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if idx.excludeHidden && hidden {
				return filepath.SkipDir
			}
			return nil
		}
		if idx.excludeHidden && hidden {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !matches(d.Name(), extensions) {
			return nil
		}

		files = append(files, path)
		return nil
	})

	return files, metrics
}

// indexFile runs hash check, delete, chunk, embed and add for one file
func (idx *Indexer) indexFile(ctx context.Context, path string) Metrics {
	unlock := idx.paths.lock(path)
	defer unlock()

	chunks, err := idx.writeGeneration(ctx, path)
	if errors.Is(err, errAlreadyIndexed) {
		idx.logger.Debug("file unchanged, skipping", "path", path)
		return Metrics{FilesSkipped: 1}
	}
	if err != nil {
		idx.logger.Warn("failed to index file", "path", path, "error", err)
		return failureMetrics(path, err)
	}

	idx.logger.Debug("indexed file", "path", path, "chunks", chunks)
	return fileMetrics(path, chunks)
}

var errAlreadyIndexed = errors.New("file already indexed")

// writeGeneration replaces the passages of path with ones derived from its
// current content and returns how many were written
func (idx *Indexer) writeGeneration(ctx context.Context, path string) (int, error) {
	data, info, err := readFile(path)
	if err != nil {
		return 0, err
	}
	hash := HashContent(data)

	indexed, err := idx.index.IsFileHashIndexed(ctx, path, hash)
	if err != nil {
		return 0, fmt.Errorf("failed to check file hash: %w", err)
	}
	if indexed {
		return 0, errAlreadyIndexed
	}

	// Clear the previous generation before writing the new one
	if err := idx.index.DeleteByFilePath(ctx, path); err != nil {
		return 0, fmt.Errorf("failed to delete old passages: %w", err)
	}

	created, modified := createdAt(info), info.ModTime()
	var provenance *chunker.FileInfo
	if idx.annotate {
		provenance = &chunker.FileInfo{Name: path, CreatedAt: created, ModifiedAt: modified}
	}
	chunks, err := idx.chunker.ChunkBytes(path, data, provenance)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors, err := idx.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}

	ids := make([]string, len(chunks))
	metas := make([]types.Metadata, len(chunks))
	for i, chunk := range chunks {
		ids[i] = types.PassageID(hash, i)
		metas[i] = types.Metadata{
			File:       path,
			FileHash:   hash,
			ChunkIndex: i,
			Text:       chunk,
			ModifiedAt: modified,
			CreatedAt:  created,
		}
	}
	if err := idx.index.Add(ctx, ids, vectors, chunks, metas); err != nil {
		return 0, fmt.Errorf("failed to store passages: %w", err)
	}
	return len(chunks), nil
}

// HashContent returns the hex SHA-256 of data
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func readFile(path string) ([]byte, fs.FileInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, nil, err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, err
	}
	return data, info, nil
}

func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

func normalizeExtensions(extensions []string) []string {
	out := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

func matches(name string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	name = strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
