package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/depscan/depscan/internal/engine"
	"github.com/depscan/depscan/internal/scanner"
	"github.com/depscan/depscan/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams  = -32602 // Invalid method parameters
	ErrorCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrorCodeNotAnalyzed    = -32001 // Project not analyzed yet
	ErrorCodeEmptyQuery     = -32002 // Query parameter is empty
	ErrorCodeResourceLimits = -32003 // Run aborted by resource limits
)

// handleAnalyzeProject handles the analyze_project tool invocation
func (s *Server) handleAnalyzeProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
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

	includeTests := getBoolDefault(args, "include_tests", true)
	includeVendor := getBoolDefault(args, "include_vendor", false)

	strategy, err := parseStrategy(getStringDefault(args, "strategy", "best_effort"))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), map[string]interface{}{
			"param": "strategy",
		})
	}

	config := &scanner.Config{
		IncludeTests:  includeTests,
		IncludeVendor: includeVendor,
		Strategy:      strategy,
	}

	stats, err := s.scanner.ScanProject(ctx, path, config)
	if err != nil && stats == nil {
		return nil, newMCPError(ErrorCodeInternalError, "analysis failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"analyzed":          err == nil,
		"files_scanned":     stats.FilesScanned,
		"files_skipped":     stats.FilesSkipped,
		"files_failed":      stats.FilesFailed,
		"symbols_extracted": stats.SymbolsExtracted,
		"imports_recorded":  stats.ImportsRecorded,
		"cache_hits":        stats.CacheHits,
		"waves":             stats.Waves,
		"duration_ms":       stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}
	if err != nil {
		response["aborted"] = err.Error()
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchSymbols handles the search_symbols tool invocation
func (s *Server) handleSearchSymbols(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	symbols, err := s.storage.SearchSymbols(ctx, query, limit)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(symbols))
	for _, sym := range symbols {
		results = append(results, map[string]interface{}{
			"name":       sym.Name,
			"kind":       sym.Kind,
			"package":    sym.PackageName,
			"signature":  sym.Signature,
			"receiver":   sym.Receiver,
			"scope":      sym.Scope,
			"start_line": sym.StartLine,
			"end_line":   sym.EndLine,
		})
	}

	response := map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": results,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
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

	project, err := s.storage.GetProject(ctx, path)
	if err == storage.ErrNotFound {
		response := map[string]interface{}{
			"analyzed": false,
			"path":     path,
			"message":  "Project not analyzed. Use the analyze_project tool first.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get project status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	status, err := s.storage.GetStatus(ctx, project.ID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"analyzed": true,
		"project": map[string]interface{}{
			"path":            project.RootPath,
			"module_name":     project.ModuleName,
			"go_version":      project.GoVersion,
			"last_scanned_at": project.LastScannedAt.Format("2006-01-02T15:04:05Z07:00"),
		},
		"statistics": map[string]interface{}{
			"files_count":   status.FilesCount,
			"symbols_count": status.SymbolsCount,
			"imports_count": status.ImportsCount,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCacheStats handles the cache_stats tool invocation
func (s *Server) handleCacheStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	detailed := s.cache.GetDetailedStats()
	health := s.cache.GetCacheHealth()

	response := map[string]interface{}{
		"combined": detailed.Combined,
		"health":   health,
	}
	if detailed.Memory != nil {
		response["memory"] = *detailed.Memory
	}
	if detailed.File != nil {
		response["file"] = *detailed.File
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleResourceMetrics handles the resource_metrics tool invocation
func (s *Server) handleResourceMetrics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshot := s.engine.ResourceMetrics()

	response := map[string]interface{}{
		"memory_used_mb":    snapshot.MemoryUsedMB,
		"cpu_usage_percent": snapshot.CPUUsagePercent,
		"active_workers":    snapshot.ActiveWorkers,
		"queued_items":      snapshot.QueuedItems,
		"completed_items":   snapshot.CompletedItems,
		"failed_items":      snapshot.FailedItems,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// parseStrategy maps a tool argument to an engine strategy
func parseStrategy(name string) (engine.Strategy, error) {
	switch name {
	case "best_effort":
		return engine.StrategyBestEffort, nil
	case "fail_fast":
		return engine.StrategyFailFast, nil
	case "collect_all":
		return engine.StrategyCollectAll, nil
	default:
		return 0, fmt.Errorf("invalid strategy: %s (must be best_effort, fail_fast, or collect_all)", name)
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

// validatePath checks if a path exists and is accessible
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

	// Check for Go files
	hasGoFiles := false
	_ = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && strings.HasSuffix(p, ".go") {
			hasGoFiles = true
		}
		return nil
	})

	if !hasGoFiles {
		return ErrNoGoFiles
	}

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

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
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

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrNoGoFiles       = errors.New("directory does not contain Go files")
)
