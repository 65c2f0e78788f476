package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	ToolIndexDirectory  = "index_directory"
	ToolSearchDocuments = "search_documents"
	ToolGetDocument     = "get_document"
	ToolIndexStatus     = "index_status"
)

// indexDirectoryTool returns the tool definition for index_directory
func indexDirectoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolIndexDirectory,
		Description: "Index every matching document under a directory so its text becomes searchable",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the directory to index",
				},
				"extensions": map[string]interface{}{
					"type":        "array",
					"description": "File extensions to include (e.g. [\"txt\", \"pdf\"]). Omit to use the configured defaults; pass [] to include every file",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchDocumentsTool returns the tool definition for search_documents
func searchDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolSearchDocuments,
		Description: "Search indexed documents by content and file name. Chinese, Japanese and Korean keywords are matched as substrings",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Raw query, e.g. content:\"timeout\" AND file_name:\"server\"*. Takes precedence over content and file_name",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Keyword to find in document text",
				},
				"file_name": map[string]interface{}{
					"type":        "string",
					"description": "File name prefix to match",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of hits to return (1-500)",
					"default":     defaultSearchLimit,
					"minimum":     1,
					"maximum":     maxSearchLimit,
				},
			},
		},
	}
}

// getDocumentTool returns the tool definition for get_document
func getDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolGetDocument,
		Description: "Read one page of an indexed document's extracted text",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Document id as returned by search_documents",
				},
				"page": map[string]interface{}{
					"type":        "integer",
					"description": "Zero-based page number",
					"default":     0,
					"minimum":     0,
				},
			},
			Required: []string{"id"},
		},
	}
}

// indexStatusTool returns the tool definition for index_status
func indexStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolIndexStatus,
		Description: "Report indexing runs, recent extraction errors and index health",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of an indexed directory. Omit for an overview of every run",
				},
			},
		},
	}
}
