package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/docindex-mcp/internal/indexer"
	"github.com/dshills/docindex-mcp/internal/logger"
	"github.com/dshills/docindex-mcp/internal/searcher"
	"github.com/dshills/docindex-mcp/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeRootUnavailable    = -32001 // Directory cannot be opened
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotFound           = -32003 // Document not indexed
	ErrorCodeEmptyQuery         = -32004 // No query, content or file_name given
	ErrorCodeMalformedQuery     = -32005 // Search engine rejected the query
)

const (
	defaultSearchLimit = 50
	maxSearchLimit     = 500
	maxReportedErrors  = 20
)

// handleIndexDirectory handles the index_directory tool invocation
func (s *Server) handleIndexDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
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
	if !filepath.IsAbs(path) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": ErrPathNotAbsolute.Error(),
		})
	}

	exts := s.defaultExtensions
	if raw, present := args["extensions"]; present {
		list, err := getStringSlice(raw)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid extensions", map[string]interface{}{
				"param":  "extensions",
				"reason": err.Error(),
			})
		}
		exts = list
	}

	root, err := indexer.OpenRoot(path)
	if err != nil {
		return nil, newMCPError(ErrorCodeRootUnavailable, "directory unavailable", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}

	logger.FromContext(ctx).Info("indexing directory", "path", root.Path, "extensions", exts)
	stats, err := s.indexer.Run(ctx, root, exts, nil)
	switch {
	case errors.Is(err, indexer.ErrIndexingInProgress):
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	case errors.Is(err, indexer.ErrRootUnavailable):
		return nil, newMCPError(ErrorCodeRootUnavailable, "directory unavailable", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":          true,
		"path":             stats.RunPath,
		"extensions":       indexer.NormalizeExtensions(exts),
		"total_files":      stats.TotalFiles,
		"files_indexed":    stats.Succeeded,
		"files_failed":     stats.Failed,
		"index_size_bytes": stats.IndexSizeBytes,
		"duration_ms":      stats.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchDocuments handles the search_documents tool invocation
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query := getStringDefault(args, "query", "")
	if query == "" {
		query = searcher.BuildQuery(getStringDefault(args, "file_name", ""), getStringDefault(args, "content", ""))
	}
	if query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query, content or file_name is required", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", defaultSearchLimit)
	if limit < 1 || limit > maxSearchLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	resp, err := s.searcher.Search(ctx, query)
	if errors.Is(err, searcher.ErrMalformedQuery) {
		return nil, newMCPError(ErrorCodeMalformedQuery, "malformed query", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	hits := resp.Hits
	if len(hits) > limit {
		hits = hits[:limit]
	}
	response := map[string]interface{}{
		"query":       query,
		"mode":        resp.Mode,
		"total_hits":  len(resp.Hits),
		"hits":        hits,
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetDocument handles the get_document tool invocation
func (s *Server) handleGetDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or empty",
		})
	}
	page := getIntDefault(args, "page", 0)

	p, err := s.searcher.Preview(ctx, id, page)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, newMCPError(ErrorCodeNotFound, "document not indexed", map[string]interface{}{
			"id": id,
		})
	case errors.Is(err, searcher.ErrPageOutOfRange):
		return nil, newMCPError(ErrorCodeInvalidParams, "page out of range", map[string]interface{}{
			"param":  "page",
			"value":  page,
			"reason": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "failed to read document", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"id":          p.ID,
		"page":        p.Index,
		"total_pages": p.Total,
		"text":        p.Text,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexStatus handles the index_status tool invocation
func (s *Server) handleIndexStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})

	if path := getStringDefault(args, "path", ""); path != "" {
		return s.runStatus(ctx, path)
	}

	ov, err := s.tracker.Overview(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	runs := make([]map[string]interface{}, 0, len(ov.Runs))
	for _, run := range ov.Runs {
		runs = append(runs, formatRun(run))
	}
	errs := ov.Errors
	if len(errs) > maxReportedErrors {
		errs = errs[:maxReportedErrors]
	}
	recent := make([]map[string]interface{}, 0, len(errs))
	for _, e := range errs {
		recent = append(recent, map[string]interface{}{
			"file_name":      e.FileName,
			"dir_label":      e.DirLabel,
			"classification": e.Classification,
			"message":        e.Message,
		})
	}

	response := map[string]interface{}{
		"indexing":         s.indexer.Running(),
		"runs":             runs,
		"error_count":      len(ov.Errors),
		"recent_errors":    recent,
		"index_size_bytes": ov.SizeBytes,
		"health": map[string]interface{}{
			"in_sync":        ov.Sync.InSync(),
			"content_rows":   ov.Sync.ContentRows,
			"index_rows":     ov.Sync.IndexRows,
			"missing_index":  ov.Sync.MissingIndex,
			"orphaned_index": ov.Sync.OrphanedIndex,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// runStatus reports the run row for one directory
func (s *Server) runStatus(ctx context.Context, path string) (*mcp.CallToolResult, error) {
	if !filepath.IsAbs(path) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": ErrPathNotAbsolute.Error(),
		})
	}

	runPath := indexer.Root{Path: path}.RunPath()
	run, err := s.tracker.Run(ctx, runPath)
	if errors.Is(err, storage.ErrNotFound) {
		response := map[string]interface{}{
			"indexed": false,
			"path":    runPath,
			"exists":  pathExists(path),
			"message": "Directory not indexed. Use the index_directory tool to index it.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get run status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := formatRun(run)
	response["indexed"] = run.Status == storage.RunComplete
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func formatRun(run *storage.IndexRun) map[string]interface{} {
	return map[string]interface{}{
		"path":             run.Path,
		"status":           run.Status.String(),
		"total_files":      run.TotalFiles,
		"success_count":    run.SuccessCount,
		"error_count":      run.ErrorCount,
		"index_size_bytes": run.IndexSizeBytes,
		"created_at":       run.CreatedAt.Format(time.RFC3339),
		"updated_at":       run.UpdatedAt.Format(time.RFC3339),
	}
}

// Helper functions

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

// getStringSlice accepts a JSON array of strings
func getStringSlice(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d is %T, not a string", i, item)
			}
			out = append(out, str)
		}
		return out, nil
	case nil:
		return []string{}, nil
	default:
		return nil, fmt.Errorf("expected an array of strings, got %T", raw)
	}
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
)

// pathExists reports whether path names an existing directory
func pathExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
