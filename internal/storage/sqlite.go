package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/whispernote/pkg/types"
)

// ErrNotFound is returned when a requested entity doesn't exist
var ErrNotFound = errors.New("not found")

// SQLiteIndex implements VectorIndex on a single SQLite database file
type SQLiteIndex struct {
	db *sql.DB
}

var _ VectorIndex = (*SQLiteIndex)(nil)

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// A single connection serializes writers and keeps :memory: databases alive
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteIndex opens (or creates) the index at dbPath and applies migrations.
// Use ":memory:" for a throwaway index.
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteIndex{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// Add inserts passages in one transaction. Rows are keyed on (id, file path);
// an existing row is left untouched.
func (s *SQLiteIndex) Add(ctx context.Context, ids []string, embeddings [][]float32, documents []string, metadatas []types.Metadata) error {
	if err := ValidateBatch(ids, embeddings, documents, metadatas); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO passages
			(id, file_path, file_hash, chunk_index, document, text, modified_at, created_at, vector, dimension)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, id := range ids {
		meta := metadatas[i]
		if _, err := stmt.ExecContext(ctx,
			id, meta.File, meta.FileHash, meta.ChunkIndex, documents[i], meta.Text,
			toUnix(meta.ModifiedAt), toUnix(meta.CreatedAt),
			serializeVector(embeddings[i]), len(embeddings[i]),
		); err != nil {
			return fmt.Errorf("failed to insert passage %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Query returns the nearest passages by cosine distance
func (s *SQLiteIndex) Query(ctx context.Context, embedding []float32, opts QueryOptions) ([]types.ContextChunk, error) {
	if err := ValidateVector(embedding); err != nil {
		return nil, err
	}
	if opts.MaxResults <= 0 {
		return []types.ContextChunk{}, nil
	}
	return searchVector(ctx, s.db, embedding, opts)
}

// IsFileHashIndexed reports whether a passage exists for path at hash
func (s *SQLiteIndex) IsFileHashIndexed(ctx context.Context, filePath, fileHash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM passages WHERE file_path = ? AND file_hash = ? LIMIT 1",
		filePath, fileHash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check file hash: %w", err)
	}
	return true, nil
}

// DeleteByFilePath removes every passage recorded for filePath
func (s *SQLiteIndex) DeleteByFilePath(ctx context.Context, filePath string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM passages WHERE file_path = ?", filePath); err != nil {
		return fmt.Errorf("failed to delete passages for %s: %w", filePath, err)
	}
	return nil
}

// GetAllMetadata returns every passage's metadata ordered by file and chunk index
func (s *SQLiteIndex) GetAllMetadata(ctx context.Context) ([]types.Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path, file_hash, chunk_index, text, modified_at, created_at
		FROM passages
		ORDER BY file_path, chunk_index
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	metas := make([]types.Metadata, 0)
	for rows.Next() {
		var (
			meta              types.Metadata
			modified, created int64
		)
		if err := rows.Scan(&meta.File, &meta.FileHash, &meta.ChunkIndex, &meta.Text, &modified, &created); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		meta.ModifiedAt = fromUnix(modified)
		meta.CreatedAt = fromUnix(created)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// GetPassage returns a single passage by ID. When byte-identical files share
// the ID, the passage of the first file path is returned.
func (s *SQLiteIndex) GetPassage(ctx context.Context, id string) (*types.ContextChunk, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+passageColumns+" FROM passages WHERE id = ? ORDER BY file_path LIMIT 1", id)
	chunk, _, err := scanPassage(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// Count returns the number of stored passages
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM passages").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count passages: %w", err)
	}
	return n, nil
}

// passageColumns is the column list read by scanPassage
const passageColumns = "id, file_path, file_hash, chunk_index, document, text, modified_at, created_at, vector"

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPassage reads one passageColumns row and returns it with its vector
func scanPassage(row rowScanner) (types.ContextChunk, []float32, error) {
	var (
		chunk             types.ContextChunk
		meta              types.Metadata
		modified, created int64
		blob              []byte
	)
	if err := row.Scan(&chunk.ID, &meta.File, &meta.FileHash, &meta.ChunkIndex,
		&chunk.Text, &meta.Text, &modified, &created, &blob); err != nil {
		return chunk, nil, err
	}
	meta.ModifiedAt = fromUnix(modified)
	meta.CreatedAt = fromUnix(created)
	chunk.Metadata = &meta
	return chunk, deserializeVector(blob), nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
