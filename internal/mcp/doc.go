// Package mcp implements the Model Context Protocol (MCP) server surface.
//
// The server exposes five tools over JSON-RPC 2.0 on stdio:
//   - analyze_project: scan a Go project through the batch engine
//   - search_symbols: full-text search over extracted symbols
//   - get_status: analysis status and statistics for a project
//   - cache_stats: per-tier cache statistics and health
//   - resource_metrics: the engine's current resource snapshot
//
// stdout is reserved for protocol traffic; all logging goes to stderr.
// Errors are returned as JSON-RPC errors with structured data:
//
//	{
//	  "error": {
//	    "code": -32602,
//	    "message": "invalid path",
//	    "data": {"param": "path", "reason": "path does not exist"}
//	  }
//	}
package mcp
