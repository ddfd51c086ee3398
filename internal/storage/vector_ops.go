package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/dshills/whispernote/pkg/types"
)

// searchVector performs vector similarity search using cosine distance
func searchVector(ctx context.Context, db *sql.DB, queryVector []float32, opts QueryOptions) ([]types.ContextChunk, error) {
	// Use SQL-side distance when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchVectorOptimized(ctx, db, queryVector, opts)
	}
	return searchVectorFallback(ctx, db, queryVector, opts)
}

// searchVectorOptimized lets sqlite-vec rank and limit candidates
func searchVectorOptimized(ctx context.Context, db *sql.DB, queryVector []float32, opts QueryOptions) ([]types.ContextChunk, error) {
	query := "SELECT " + passageColumns + ", vec_distance_cosine(vector, ?) AS distance FROM passages WHERE dimension = ?"
	args := []any{serializeVector(queryVector), len(queryVector)}

	query, args = applyTimeFilter(query, args, opts)
	query += " ORDER BY distance ASC, id ASC, file_path ASC LIMIT ?"
	args = append(args, opts.MaxResults)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.ContextChunk, 0, opts.MaxResults)
	for rows.Next() {
		var distance float64
		chunk, _, err := scanPassage(scanWithTail(rows, &distance))
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		chunk.Distance = &distance
		results = append(results, chunk)
	}
	return results, rows.Err()
}

// searchVectorFallback loads candidate vectors and ranks them in Go
func searchVectorFallback(ctx context.Context, db *sql.DB, queryVector []float32, opts QueryOptions) ([]types.ContextChunk, error) {
	query := "SELECT " + passageColumns + " FROM passages WHERE dimension = ?"
	args := []any{len(queryVector)}
	query, args = applyTimeFilter(query, args, opts)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]candidate, 0)
	for rows.Next() {
		chunk, vector, err := scanPassage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		if len(vector) != len(queryVector) {
			continue
		}
		candidates = append(candidates, candidate{chunk: chunk, distance: cosineDistance(queryVector, vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildResults(candidates, opts.MaxResults), nil
}

// applyTimeFilter adds inclusive bounds on the selected time column
func applyTimeFilter(query string, args []any, opts QueryOptions) (string, []any) {
	column := "created_at"
	if opts.Field() == types.TimeFieldModified {
		column = "modified_at"
	}
	if opts.Start != nil {
		query += " AND " + column + " >= ?"
		args = append(args, opts.Start.UnixNano())
	}
	if opts.End != nil {
		query += " AND " + column + " <= ?"
		args = append(args, opts.End.UnixNano())
	}
	return query, args
}

// tailScanner appends extra destinations after the passage columns
type tailScanner struct {
	rows *sql.Rows
	tail []any
}

func (t tailScanner) Scan(dest ...any) error {
	return t.rows.Scan(append(dest, t.tail...)...)
}

func scanWithTail(rows *sql.Rows, tail ...any) rowScanner {
	return tailScanner{rows: rows, tail: tail}
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// cosineDistance is 1 - cosine similarity, in [0, 2]
func cosineDistance(a, b []float32) float64 {
	d := 1 - cosineSimilarity(a, b)
	if d < 0 {
		// rounding on identical vectors
		return 0
	}
	return d
}

// candidate is a passage with its distance to the query
type candidate struct {
	chunk    types.ContextChunk
	distance float64
}

// sortCandidates orders by ascending distance, then ID and file for stable output
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		if a.chunk.ID != b.chunk.ID {
			return a.chunk.ID < b.chunk.ID
		}
		return fileOf(a.chunk) < fileOf(b.chunk)
	})
}

func fileOf(chunk types.ContextChunk) string {
	if chunk.Metadata == nil {
		return ""
	}
	return chunk.Metadata.File
}

// buildResults keeps the first limit candidates and attaches distances
func buildResults(candidates []candidate, limit int) []types.ContextChunk {
	limit = min(limit, len(candidates))
	results := make([]types.ContextChunk, limit)
	for i := 0; i < limit; i++ {
		distance := candidates[i].distance
		results[i] = candidates[i].chunk
		results[i].Distance = &distance
	}
	return results
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineDistance is an exported helper for adapters that rank in Go
func CosineDistance(a, b []float32) float64 {
	return cosineDistance(a, b)
}
