package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depscan/depscan/internal/cache"
	"github.com/depscan/depscan/internal/config"
	"github.com/depscan/depscan/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := config.NewDefault()
	cfg.Storage.DatabasePath = filepath.Join(tmpDir, "depscan.db")
	cfg.Cache.Directory = filepath.Join(tmpDir, "cache")
	cfg.Engine.MaxConcurrency = 2

	srv, err := NewServer(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.close() })
	return srv
}

// setupTestProject writes a small Go project to scan
func setupTestProject(t *testing.T) string {
	t.Helper()
	rootPath := t.TempDir()

	files := map[string]string{
		"go.mod": "module example.com/demo\n\ngo 1.25\n",
		"main.go": `package main

import "fmt"

// Run prints the banner
func Run() {
	fmt.Println("demo")
}

func main() { Run() }
`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(rootPath, name), []byte(content), 0o644))
	}
	return rootPath
}

func toolRequest(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultJSON decodes the text payload of a tool result
func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "tool results are text content")

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

func TestNewServer(t *testing.T) {
	srv := setupTestServer(t)

	assert.NotNil(t, srv.mcp)
	assert.NotNil(t, srv.storage)
	assert.NotNil(t, srv.scanner)
	assert.NotNil(t, srv.engine)
	assert.NotNil(t, srv.cache)
	assert.NotNil(t, srv.metrics)
}

func TestServer_CloseIdempotent(t *testing.T) {
	srv := setupTestServer(t)

	require.NoError(t, srv.close())
	require.NoError(t, srv.close())
}

func TestServer_SweepsExpiredFileCacheEntriesOnStartup(t *testing.T) {
	tmpDir := t.TempDir()
	cacheDir := filepath.Join(tmpDir, "cache")

	// Leave a stale entry behind, as a previous process would
	seed, err := cache.NewFileCache(cache.FileConfig{Directory: cacheDir, Logger: testLogger()})
	require.NoError(t, err)
	seed.SetTTL("stale", []byte("v"), time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	cfg := config.NewDefault()
	cfg.Storage.DatabasePath = filepath.Join(tmpDir, "depscan.db")
	cfg.Cache.Directory = cacheDir

	srv, err := NewServer(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.close() })

	require.Eventually(t, func() bool {
		entries, globErr := filepath.Glob(filepath.Join(cacheDir, "*.cache"))
		return globErr == nil && len(entries) == 0
	}, 2*time.Second, 10*time.Millisecond, "startup maintenance should reap the expired entry")
}

func TestHandleAnalyzeProject(t *testing.T) {
	srv := setupTestServer(t)
	rootPath := setupTestProject(t)

	result, err := srv.handleAnalyzeProject(context.Background(), toolRequest(map[string]interface{}{
		"path": rootPath,
	}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, true, payload["analyzed"])
	assert.Equal(t, float64(1), payload["files_scanned"])
	assert.Greater(t, payload["symbols_extracted"], float64(0))
	assert.NotContains(t, payload, "aborted")
}

func TestHandleAnalyzeProject_SecondRunSkips(t *testing.T) {
	srv := setupTestServer(t)
	rootPath := setupTestProject(t)
	ctx := context.Background()

	_, err := srv.handleAnalyzeProject(ctx, toolRequest(map[string]interface{}{"path": rootPath}))
	require.NoError(t, err)

	result, err := srv.handleAnalyzeProject(ctx, toolRequest(map[string]interface{}{"path": rootPath}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, float64(0), payload["files_scanned"])
	assert.Equal(t, float64(1), payload["files_skipped"])
}

func TestHandleAnalyzeProject_InvalidParams(t *testing.T) {
	srv := setupTestServer(t)

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{
			name: "missing path",
			args: map[string]interface{}{},
			code: ErrorCodeInvalidParams,
		},
		{
			name: "relative path",
			args: map[string]interface{}{"path": "relative/dir"},
			code: ErrorCodeInvalidParams,
		},
		{
			name: "nonexistent path",
			args: map[string]interface{}{"path": "/nonexistent/project"},
			code: ErrorCodeInvalidParams,
		},
		{
			name: "unknown strategy",
			args: map[string]interface{}{"path": setupTestProject(t), "strategy": "yolo"},
			code: ErrorCodeInvalidParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.handleAnalyzeProject(context.Background(), toolRequest(tt.args))
			require.Error(t, err)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, tt.code, mcpErr.Code)
		})
	}
}

func TestHandleSearchSymbols(t *testing.T) {
	srv := setupTestServer(t)
	rootPath := setupTestProject(t)
	ctx := context.Background()

	_, err := srv.handleAnalyzeProject(ctx, toolRequest(map[string]interface{}{"path": rootPath}))
	require.NoError(t, err)

	result, err := srv.handleSearchSymbols(ctx, toolRequest(map[string]interface{}{
		"query": "Run",
	}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, "Run", payload["query"])
	assert.Equal(t, float64(1), payload["count"])

	results := payload["results"].([]interface{})
	first := results[0].(map[string]interface{})
	assert.Equal(t, "Run", first["name"])
	assert.Equal(t, "function", first["kind"])
}

func TestHandleSearchSymbols_EmptyQuery(t *testing.T) {
	srv := setupTestServer(t)

	_, err := srv.handleSearchSymbols(context.Background(), toolRequest(map[string]interface{}{
		"query": "",
	}))
	require.Error(t, err)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeEmptyQuery, mcpErr.Code)
}

func TestHandleSearchSymbols_LimitBounds(t *testing.T) {
	srv := setupTestServer(t)

	for _, limit := range []float64{0, 101} {
		_, err := srv.handleSearchSymbols(context.Background(), toolRequest(map[string]interface{}{
			"query": "anything",
			"limit": limit,
		}))
		require.Error(t, err)

		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
	}
}

func TestHandleGetStatus_NotAnalyzed(t *testing.T) {
	srv := setupTestServer(t)
	rootPath := setupTestProject(t)

	result, err := srv.handleGetStatus(context.Background(), toolRequest(map[string]interface{}{
		"path": rootPath,
	}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, false, payload["analyzed"])
	assert.Contains(t, payload["message"], "analyze_project")
}

func TestHandleGetStatus_Analyzed(t *testing.T) {
	srv := setupTestServer(t)
	rootPath := setupTestProject(t)
	ctx := context.Background()

	_, err := srv.handleAnalyzeProject(ctx, toolRequest(map[string]interface{}{"path": rootPath}))
	require.NoError(t, err)

	result, err := srv.handleGetStatus(ctx, toolRequest(map[string]interface{}{"path": rootPath}))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Equal(t, true, payload["analyzed"])

	project := payload["project"].(map[string]interface{})
	assert.Equal(t, "example.com/demo", project["module_name"])

	statistics := payload["statistics"].(map[string]interface{})
	assert.Equal(t, float64(1), statistics["files_count"])
	assert.Greater(t, statistics["symbols_count"], float64(0))
}

func TestHandleCacheStats(t *testing.T) {
	srv := setupTestServer(t)
	rootPath := setupTestProject(t)
	ctx := context.Background()

	_, err := srv.handleAnalyzeProject(ctx, toolRequest(map[string]interface{}{"path": rootPath}))
	require.NoError(t, err)

	result, err := srv.handleCacheStats(ctx, toolRequest(nil))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Contains(t, payload, "combined")
	assert.Contains(t, payload, "health")
	assert.Contains(t, payload, "memory")
	assert.Contains(t, payload, "file")
}

func TestHandleResourceMetrics(t *testing.T) {
	srv := setupTestServer(t)

	result, err := srv.handleResourceMetrics(context.Background(), toolRequest(nil))
	require.NoError(t, err)

	payload := resultJSON(t, result)
	assert.Contains(t, payload, "memory_used_mb")
	assert.Contains(t, payload, "cpu_usage_percent")
	assert.Contains(t, payload, "active_workers")
	assert.Contains(t, payload, "queued_items")
	assert.Contains(t, payload, "completed_items")
	assert.Contains(t, payload, "failed_items")
}

func TestParseStrategy(t *testing.T) {
	strategy, err := parseStrategy("best_effort")
	require.NoError(t, err)
	assert.Equal(t, engine.StrategyBestEffort, strategy)

	strategy, err = parseStrategy("fail_fast")
	require.NoError(t, err)
	assert.Equal(t, engine.StrategyFailFast, strategy)

	strategy, err = parseStrategy("collect_all")
	require.NoError(t, err)
	assert.Equal(t, engine.StrategyCollectAll, strategy)

	_, err = parseStrategy("bogus")
	assert.Error(t, err)
}

func TestValidatePath(t *testing.T) {
	goDir := setupTestProject(t)

	emptyDir := t.TempDir()

	noGoDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(noGoDir, "readme.md"), []byte("# hi"), 0o644))

	filePath := filepath.Join(t.TempDir(), "file.go")
	require.NoError(t, os.WriteFile(filePath, []byte("package p\n"), 0o644))

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"valid project", goDir, nil},
		{"empty path", "", ErrPathRequired},
		{"relative path", "some/dir", ErrPathNotAbsolute},
		{"missing path", "/definitely/not/here", ErrPathNotFound},
		{"plain file", filePath, ErrNotDirectory},
		{"empty directory", emptyDir, ErrNoGoFiles},
		{"no go files", noGoDir, ErrNoGoFiles},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestArgumentHelpers(t *testing.T) {
	args := map[string]interface{}{
		"flag":   true,
		"number": float64(7),
		"text":   "value",
	}

	assert.True(t, getBoolDefault(args, "flag", false))
	assert.True(t, getBoolDefault(args, "missing", true))
	assert.Equal(t, 7, getIntDefault(args, "number", 1))
	assert.Equal(t, 1, getIntDefault(args, "missing", 1))
	assert.Equal(t, "value", getStringDefault(args, "text", "d"))
	assert.Equal(t, "d", getStringDefault(args, "missing", "d"))
}
