package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// analyzeProjectTool returns the tool definition for analyze_project
func analyzeProjectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "analyze_project",
		Description: "Analyze a Go codebase and store its symbols and imports",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to Go project root (must contain .go files)",
				},
				"include_tests": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, analyze *_test.go files",
					"default":     true,
				},
				"include_vendor": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, analyze vendor/ directory",
					"default":     false,
				},
				"strategy": map[string]interface{}{
					"type":        "string",
					"description": "Failure strategy: best_effort (abort on sustained error rate), fail_fast (abort on first error), or collect_all (run everything)",
					"enum":        []string{"best_effort", "fail_fast", "collect_all"},
					"default":     "best_effort",
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchSymbolsTool returns the tool definition for search_symbols
func searchSymbolsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_symbols",
		Description: "Search analyzed symbols by name, signature, or doc comment",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Full-text query against symbol names, signatures, and doc comments",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query analysis status and statistics for a Go project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to Go project",
				},
			},
			Required: []string{"path"},
		},
	}
}

// cacheStatsTool returns the tool definition for cache_stats
func cacheStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cache_stats",
		Description: "Report per-tier cache statistics and health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// resourceMetricsTool returns the tool definition for resource_metrics
func resourceMetricsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "resource_metrics",
		Description: "Report the batch engine's current resource snapshot",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
