package storage

import (
	"context"
	"math"
	"time"

	"github.com/dshills/whispernote/pkg/types"
)

// DefaultMaxResults is the result count used when a caller does not choose one
const DefaultMaxResults = 10

// VectorIndex stores passage vectors keyed by passage ID with attached metadata
type VectorIndex interface {
	// Add appends passages. All slices must have the same non-zero length.
	// Re-adding an existing ID for the same file is a no-op.
	Add(ctx context.Context, ids []string, embeddings [][]float32, documents []string, metadatas []types.Metadata) error

	// Query returns up to opts.MaxResults passages ordered by ascending distance
	Query(ctx context.Context, embedding []float32, opts QueryOptions) ([]types.ContextChunk, error)

	// IsFileHashIndexed reports whether any passage exists for this file generation
	IsFileHashIndexed(ctx context.Context, filePath, fileHash string) (bool, error)

	// DeleteByFilePath removes every passage of a file regardless of hash
	DeleteByFilePath(ctx context.Context, filePath string) error

	// GetAllMetadata returns the metadata of every stored passage
	GetAllMetadata(ctx context.Context) ([]types.Metadata, error)

	// Close releases the underlying connection
	Close() error
}

// QueryOptions narrows a similarity query
type QueryOptions struct {
	MaxResults int
	Start      *time.Time      // Inclusive lower bound on TimeField
	End        *time.Time      // Inclusive upper bound on TimeField
	TimeField  types.TimeField // Defaults to created_at
}

// Range returns the time bounds as a TimeRange
func (o QueryOptions) Range() types.TimeRange {
	return types.TimeRange{Start: o.Start, End: o.End}
}

// Field returns the configured time field or created_at
func (o QueryOptions) Field() types.TimeField {
	if o.TimeField == "" {
		return types.TimeFieldCreated
	}
	return o.TimeField
}

// ValidateBatch checks the arguments of VectorIndex.Add. Every adapter calls
// it before touching storage so they reject the same inputs.
func ValidateBatch(ids []string, embeddings [][]float32, documents []string, metadatas []types.Metadata) error {
	if len(ids) == 0 {
		return types.NewValidationError("ids", "empty batch")
	}
	if len(embeddings) != len(ids) || len(documents) != len(ids) || len(metadatas) != len(ids) {
		return types.NewValidationError("batch",
			"mismatched lengths: %d ids, %d embeddings, %d documents, %d metadatas",
			len(ids), len(embeddings), len(documents), len(metadatas))
	}

	dimension := len(embeddings[0])
	for i := range ids {
		if ids[i] == "" {
			return types.NewValidationError("ids", "id at index %d is empty", i)
		}
		if err := ValidateVector(embeddings[i]); err != nil {
			return types.NewValidationError("embeddings", "embedding at index %d: %v", i, err)
		}
		if len(embeddings[i]) != dimension {
			return types.NewValidationError("embeddings",
				"embedding at index %d has dimension %d, want %d", i, len(embeddings[i]), dimension)
		}
		if err := metadatas[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateVector rejects empty vectors and non-finite elements
func ValidateVector(v []float32) error {
	if len(v) == 0 {
		return types.NewValidationError("embedding", "vector is empty")
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return types.NewValidationError("embedding", "element %d is not a finite number", i)
		}
	}
	return nil
}
