package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/whispernote/internal/indexer"
	"github.com/dshills/whispernote/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeEmptyQuery         = -32004 // Question parameter is empty
	ErrorCodeUpstream           = -32005 // Embedding or language model provider failed
)

// maxResultsLimit caps max_results
const maxResultsLimit = 100

// handleIndexNotes handles the index_notes tool invocation
func (s *Server) handleIndexNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	extensions, err := getStringSlice(args, "file_extensions")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid file_extensions", map[string]interface{}{
			"param":  "file_extensions",
			"reason": err.Error(),
		})
	}

	metrics, err := s.service.IndexDirectory(ctx, path, extensions)
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		s.logger.Error("indexing failed", "path", path, "error", err)
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := metricsMap(metrics)
	if failed := metrics.FailedFiles; len(failed) > 0 {
		// Include first few failures
		if len(failed) > 5 {
			response["failed_files"] = failed[:5]
			response["failed_count"] = len(failed)
		} else {
			response["failed_files"] = failed
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleQueryNotes handles the query_notes tool invocation
func (s *Server) handleQueryNotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	question := getStringDefault(args, "question", "")
	if question == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "question parameter is required and cannot be empty", map[string]interface{}{
			"param":  "question",
			"reason": "missing or empty",
		})
	}

	maxResults := getIntDefault(args, "max_results", 0)
	if maxResults < 0 || maxResults > maxResultsLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_results must be between 1 and 100", map[string]interface{}{
			"param": "max_results",
			"value": maxResults,
		})
	}

	result, err := s.service.Query(ctx, question, maxResults)
	if err != nil {
		s.logger.Error("query failed", "error", err)
		code := ErrorCodeInternalError
		if errors.Is(err, types.ErrUpstream) {
			code = ErrorCodeUpstream
		}
		return nil, newMCPError(code, "query failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	sources := make([]map[string]interface{}, 0, len(result.Context))
	for _, chunk := range result.Context {
		source := map[string]interface{}{
			"id":   chunk.ID,
			"text": chunk.Text,
		}
		if chunk.Metadata != nil {
			source["file"] = chunk.Metadata.File
			source["created_at"] = chunk.Metadata.CreatedAt
			source["modified_at"] = chunk.Metadata.ModifiedAt
		}
		if chunk.Distance != nil {
			source["distance"] = *chunk.Distance
		}
		sources = append(sources, source)
	}

	response := map[string]interface{}{
		"answer":  result.Answer,
		"sources": sources,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metrics, err := s.service.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := metricsMap(metrics)
	response["indexed"] = metrics.ChunkCount > 0
	if metrics.ChunkCount == 0 {
		response["message"] = "No notes indexed. Use the index_notes tool to index a directory."
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

func metricsMap(m indexer.Metrics) map[string]interface{} {
	extensions := m.ExtensionsIndexed
	if extensions == nil {
		extensions = []string{}
	}
	return map[string]interface{}{
		"file_count":         m.FileCount,
		"chunk_count":        m.ChunkCount,
		"files_skipped":      m.FilesSkipped,
		"extensions_indexed": extensions,
	}
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks if a path exists and is a readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional array of strings
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is not a string", i)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected an array of strings")
	}
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
