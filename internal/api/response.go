package api

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/dshills/whispernote/internal/indexer"
	"github.com/dshills/whispernote/pkg/types"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

// IndexRequest is the body of POST /api/v1/index
type IndexRequest struct {
	Directory      string   `json:"directory" binding:"required"`
	FileExtensions []string `json:"file_extensions,omitempty"` // Example: [".txt", ".md"]
}

// QueryRequest is the body of POST /api/v1/query
type QueryRequest struct {
	Query      string `json:"query" binding:"required"`
	MaxResults int    `json:"max_results,omitempty"`
}

// MetricsResponse mirrors indexer.Metrics with empty lists instead of null
type MetricsResponse struct {
	FileCount         int               `json:"file_count"`
	ChunkCount        int               `json:"chunk_count"`
	FilesSkipped      int               `json:"files_skipped"`
	FailedFiles       []indexer.Failure `json:"failed_files"`
	ExtensionsIndexed []string          `json:"extensions_indexed"`
}

// QueryResponse is the body returned by POST /api/v1/query
type QueryResponse struct {
	Answer  string               `json:"answer"`
	Context []types.ContextChunk `json:"context"`
}

// NewMetricsResponse converts metrics, replacing nil lists with empty ones
func NewMetricsResponse(m indexer.Metrics) MetricsResponse {
	resp := MetricsResponse{
		FileCount:         m.FileCount,
		ChunkCount:        m.ChunkCount,
		FilesSkipped:      m.FilesSkipped,
		FailedFiles:       m.FailedFiles,
		ExtensionsIndexed: m.ExtensionsIndexed,
	}
	if resp.FailedFiles == nil {
		resp.FailedFiles = []indexer.Failure{}
	}
	if resp.ExtensionsIndexed == nil {
		resp.ExtensionsIndexed = []string{}
	}
	return resp
}

// Metrics converts the response back into indexer metrics
func (r MetricsResponse) Metrics() indexer.Metrics {
	m := indexer.Metrics{
		FileCount:    r.FileCount,
		ChunkCount:   r.ChunkCount,
		FilesSkipped: r.FilesSkipped,
	}
	if len(r.FailedFiles) > 0 {
		m.FailedFiles = r.FailedFiles
	}
	if len(r.ExtensionsIndexed) > 0 {
		m.ExtensionsIndexed = r.ExtensionsIndexed
	}
	return m
}

// statusFor maps a service error to an HTTP status code
func statusFor(err error) int {
	switch {
	case errors.Is(err, indexer.ErrIndexingInProgress):
		return http.StatusConflict
	case errors.Is(err, os.ErrNotExist), errors.Is(err, indexer.ErrNotDirectory), types.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}
