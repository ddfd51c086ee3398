package indexer

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/dshills/whispernote/pkg/types"
)

// Failure records a file that could not be indexed
type Failure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// Metrics accumulates the outcome of indexing a set of files.
//
// The zero value is the identity for Merge, and Merge is associative and
// commutative for metrics of disjoint file sets, so per-file metrics can be
// folded in any order.
type Metrics struct {
	FileCount         int       `json:"file_count"`         // Files whose content was (re)indexed
	ChunkCount        int       `json:"chunk_count"`        // Passages written
	FilesSkipped      int       `json:"files_skipped"`      // Files already indexed with the same hash
	FailedFiles       []Failure `json:"failed_files"`       // Sorted by file
	ExtensionsIndexed []string  `json:"extensions_indexed"` // Sorted, lowercase, without duplicates
}

// Merge combines two metrics
func (m Metrics) Merge(other Metrics) Metrics {
	return Metrics{
		FileCount:         m.FileCount + other.FileCount,
		ChunkCount:        m.ChunkCount + other.ChunkCount,
		FilesSkipped:      m.FilesSkipped + other.FilesSkipped,
		FailedFiles:       mergeFailures(m.FailedFiles, other.FailedFiles),
		ExtensionsIndexed: mergeExtensions(m.ExtensionsIndexed, other.ExtensionsIndexed),
	}
}

// Failed returns the number of failed files
func (m Metrics) Failed() int {
	return len(m.FailedFiles)
}

func mergeFailures(a, b []Failure) []Failure {
	if len(a)+len(b) == 0 {
		return nil
	}
	out := make([]Failure, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.SortStableFunc(out, func(x, y Failure) int {
		if c := strings.Compare(x.File, y.File); c != 0 {
			return c
		}
		return strings.Compare(x.Error, y.Error)
	})
	return out
}

func mergeExtensions(a, b []string) []string {
	if len(a)+len(b) == 0 {
		return nil
	}
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.Sort(out)
	return slices.Compact(out)
}

// fileMetrics is the contribution of one successfully indexed file
func fileMetrics(path string, chunks int) Metrics {
	m := Metrics{FileCount: 1, ChunkCount: chunks}
	if ext := extensionOf(path); ext != "" {
		m.ExtensionsIndexed = []string{ext}
	}
	return m
}

func failureMetrics(path string, err error) Metrics {
	return Metrics{FailedFiles: []Failure{{File: path, Error: err.Error()}}}
}

func extensionOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// MetricsFromMetadata summarizes what is stored in an index: the number of
// distinct files, the number of passages and the extensions present.
func MetricsFromMetadata(metas []types.Metadata) Metrics {
	files := make(map[string]struct{}, len(metas))
	var exts []string
	for i := range metas {
		if _, ok := files[metas[i].File]; ok {
			continue
		}
		files[metas[i].File] = struct{}{}
		if ext := extensionOf(metas[i].File); ext != "" {
			exts = append(exts, ext)
		}
	}
	return Metrics{
		FileCount:         len(files),
		ChunkCount:        len(metas),
		ExtensionsIndexed: mergeExtensions(exts, nil),
	}
}
