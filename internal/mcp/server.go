package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/whispernote/internal/indexer"
	"github.com/dshills/whispernote/internal/logging"
	"github.com/dshills/whispernote/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "whispernote"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Service is what the tools call into
type Service interface {
	IndexDirectory(ctx context.Context, dir string, extensions []string) (indexer.Metrics, error)
	Status(ctx context.Context) (indexer.Metrics, error)
	Query(ctx context.Context, question string, maxResults int) (*types.QueryResult, error)
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	service Service
	logger  *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(service Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp:     mcpServer,
		service: service,
		logger:  logger.With("component", "mcp"),
	}
	s.registerTools()
	return s
}

// Serve runs the server on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("MCP server listening on stdio")
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// HTTPHandler serves the same tools over streamable HTTP
func (s *Server) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexNotesTool(), s.handleIndexNotes)
	s.mcp.AddTool(queryNotesTool(), s.handleQueryNotes)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
