// Package mcp implements the Model Context Protocol (MCP) server for docindex.
//
// The server exposes four tools to MCP clients:
//   - index_directory: Index the documents under a directory
//   - search_documents: Search indexed text by content and file name
//   - get_document: Read a page of a document's extracted text
//   - index_status: Report runs, extraction errors and index health
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout carries protocol traffic only; logs go to stderr.
//
// # Basic Usage
//
// Components are built by the caller, who also owns the store:
//
//	srv := mcp.NewServer(store, idx, srch, trk, mcp.WithLogger(logger))
//	if err := srv.Serve(ctx); err != nil {
//	    return err
//	}
//
// # Tool: index_directory
//
//	Request:
//	{
//	  "name": "index_directory",
//	  "arguments": {
//	    "path": "/home/me/Documents",
//	    "extensions": ["txt", "pdf", "docx"]
//	  }
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "path": "Documents",
//	  "total_files": 120,
//	  "files_indexed": 118,
//	  "files_failed": 2,
//	  "index_size_bytes": 4096000,
//	  "duration_ms": 5310
//	}
//
// Omitting extensions uses the configured defaults. An empty list indexes
// every file.
//
// # Tool: search_documents
//
//	Request:
//	{
//	  "name": "search_documents",
//	  "arguments": {"content": "timeout", "file_name": "server", "limit": 20}
//	}
//
//	Response:
//	{
//	  "query": "content:\"timeout\" AND file_name:\"server\"*",
//	  "mode": "match",
//	  "total_hits": 1,
//	  "hits": [
//	    {"id": "/home/me/Documents/logs/server.txt", "file_name": "server.txt",
//	     "dir_label": "logs", "ext": "txt"}
//	  ]
//	}
//
// A raw "query" argument is passed through unchanged and takes precedence
// over content and file_name.
//
// # Error Handling
//
// Handlers return *MCPError values, which the framework encodes as
// JSON-RPC errors. Error codes:
//   - -32602: Invalid params (missing/invalid arguments, page out of range)
//   - -32603: Internal error (database failures)
//   - -32001: Directory unavailable
//   - -32002: Indexing in progress
//   - -32003: Document not indexed
//   - -32004: Empty query
//   - -32005: Malformed query
//
// # Logging
//
// Every tool call gets a request id (a random UUID) that tags its log lines
// and is stored in the call context for logger.FromContext.
package mcp
