package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/depscan/depscan/internal/cache"
	"github.com/depscan/depscan/internal/config"
	"github.com/depscan/depscan/internal/engine"
	"github.com/depscan/depscan/internal/metrics"
	"github.com/depscan/depscan/internal/scanner"
	"github.com/depscan/depscan/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "depscan"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"

	// maintenanceTick is how often the file tier is offered a maintenance
	// sweep; the cache rate-limits actual sweeps itself
	maintenanceTick = time.Hour
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp       *server.MCPServer
	storage   storage.Storage
	scanner   *scanner.Scanner
	engine    *engine.Engine
	cache     *cache.Tiered
	fileCache *cache.FileCache
	metrics   *metrics.Collector
	logger    *slog.Logger

	stopMaintenance chan struct{}
	closeOnce       sync.Once
}

// NewServer creates a new MCP server instance from configuration
func NewServer(cfg *config.Configuration, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	memTier := cache.NewMemoryCache(&cache.MemoryConfig{
		MaxEntries: cfg.Cache.MemoryMaxEntries,
		DefaultTTL: cfg.Cache.DefaultTTL,
	})
	fileTier, err := cache.NewFileCache(cache.FileConfig{
		Directory:  cfg.Cache.Directory,
		MaxEntries: cfg.Cache.FileMaxEntries,
		DefaultTTL: cfg.Cache.DefaultTTL,
		Logger:     logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize file cache: %w", err)
	}
	tiered, err := cache.NewTiered(cache.TieredConfig{
		Memory:    memTier,
		File:      fileTier,
		FileFirst: !cfg.Cache.MemoryFirst,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize tiered cache: %w", err)
	}

	collector, err := metrics.NewCollector(cfg.Metrics)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	eng := engine.New(scanner.NewAnalyzerFunc(), tiered, &engine.Config{
		MaxConcurrency:     cfg.Engine.MaxConcurrency,
		MemoryLimitMB:      cfg.Engine.MemoryLimitMB,
		DisableAdaptive:    cfg.Engine.DisableAdaptive,
		SampleInterval:     cfg.Engine.SampleInterval,
		ErrorRateThreshold: cfg.Engine.ErrorRateThreshold,
		MinAttempts:        cfg.Engine.MinAttempts,
		Logger:             logger,
		Metrics:            collector,
	})

	sc := scanner.New(eng, store, logger)

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:       mcpServer,
		storage:   store,
		scanner:   sc,
		engine:    eng,
		cache:     tiered,
		fileCache: fileTier,
		metrics:   collector,
		logger:    logger,
	}

	if err := s.registerTools(); err != nil {
		_ = s.close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	s.stopMaintenance = make(chan struct{})
	go s.maintenanceLoop()

	return s, nil
}

// maintenanceLoop sweeps expired file-tier entries at startup and then
// periodically until the server closes
func (s *Server) maintenanceLoop() {
	s.fileCache.Maintenance()

	ticker := time.NewTicker(maintenanceTick)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopMaintenance:
			return
		case <-ticker.C:
			s.fileCache.Maintenance()
		}
	}
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.close() }()
	return server.ServeStdio(s.mcp)
}

func (s *Server) close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stopMaintenance != nil {
			close(s.stopMaintenance)
		}
		_ = s.engine.Close()
		_ = s.metrics.Close()
		err = s.storage.Close()
	})
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(analyzeProjectTool(), s.handleAnalyzeProject)
	s.mcp.AddTool(searchSymbolsTool(), s.handleSearchSymbols)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(cacheStatsTool(), s.handleCacheStats)
	s.mcp.AddTool(resourceMetricsTool(), s.handleResourceMetrics)
	return nil
}
