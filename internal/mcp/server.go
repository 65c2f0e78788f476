package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/docindex-mcp/internal/indexer"
	"github.com/dshills/docindex-mcp/internal/logger"
	"github.com/dshills/docindex-mcp/internal/searcher"
	"github.com/dshills/docindex-mcp/internal/storage"
	"github.com/dshills/docindex-mcp/internal/tracker"
)

const (
	// ServerName is the MCP server name
	ServerName = "docindex-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies. The store is
// owned by the caller and is not closed here.
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	tracker  *tracker.Tracker
	logger   *slog.Logger

	defaultExtensions []string
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server's logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDefaultExtensions sets the allow-list used when index_directory is
// called without one
func WithDefaultExtensions(exts []string) Option {
	return func(s *Server) {
		s.defaultExtensions = exts
	}
}

// NewServer creates an MCP server over already constructed components
func NewServer(store storage.Storage, idx *indexer.Indexer, srch *searcher.Searcher, trk *tracker.Tracker, opts ...Option) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		storage:  store,
		indexer:  idx,
		searcher: srch,
		tracker:  trk,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	return s
}

// Serve speaks MCP on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexDirectoryTool(), s.withRequestID(ToolIndexDirectory, s.handleIndexDirectory))
	s.mcp.AddTool(searchDocumentsTool(), s.withRequestID(ToolSearchDocuments, s.handleSearchDocuments))
	s.mcp.AddTool(getDocumentTool(), s.withRequestID(ToolGetDocument, s.handleGetDocument))
	s.mcp.AddTool(indexStatusTool(), s.withRequestID(ToolIndexStatus, s.handleIndexStatus))
}

// withRequestID tags each call with a fresh request id and logs its outcome
func (s *Server) withRequestID(tool string, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		requestID := uuid.NewString()
		ctx = logger.WithRequestID(ctx, requestID)
		log := s.logger.With("request_id", requestID, "tool", tool)

		log.Debug("tool call started")
		result, err := next(ctx, request)
		if err != nil {
			log.Warn("tool call failed", "error", err)
		} else {
			log.Debug("tool call complete")
		}
		return result, err
	}
}
