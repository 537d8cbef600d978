package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/depscan/depscan/internal/analyzer"
	"github.com/depscan/depscan/internal/engine"
	"github.com/depscan/depscan/internal/storage"
	"github.com/depscan/depscan/pkg/types"
)

// Scanner coordinates the scan pipeline: discover -> analyze -> store.
// Analysis runs through the batch engine so concurrency, caching, and
// failure strategies are shared with every other caller.
type Scanner struct {
	engine  *engine.Engine
	storage storage.Storage
	logger  *slog.Logger
}

// Config contains configuration for a project scan
type Config struct {
	BatchSize     int             // Number of files to commit per transaction (default: 20)
	IncludeTests  bool            // Whether to scan test files (default: true)
	IncludeVendor bool            // Whether to scan vendor directory (default: false)
	Strategy      engine.Strategy // Failure strategy for the batch run
	Progress      engine.ProgressFunc
}

// Statistics contains statistics about a scan operation
type Statistics struct {
	FilesScanned     int
	FilesSkipped     int
	FilesFailed      int
	SymbolsExtracted int
	ImportsRecorded  int
	CacheHits        int
	Waves            int
	Duration         time.Duration
	ErrorMessages    []string
}

// New creates a Scanner that analyzes files through eng and persists
// results to store
func New(eng *engine.Engine, store storage.Storage, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		engine:  eng,
		storage: store,
		logger:  logger,
	}
}

// NewAnalyzerFunc returns the per-file analysis function the engine runs.
// The item identifier is the absolute file path; the result is the
// JSON-encoded analysis.
func NewAnalyzerFunc() engine.Analyzer {
	return analyzer.New().Func()
}

// ScanProject scans an entire Go project
func (sc *Scanner) ScanProject(ctx context.Context, rootPath string, config *Config) (*Statistics, error) {
	if config == nil {
		config = &Config{
			BatchSize:     20,
			IncludeTests:  true,
			IncludeVendor: false,
		}
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 20
	}

	startTime := time.Now()
	stats := &Statistics{
		ErrorMessages: make([]string, 0),
	}

	project, err := sc.getOrCreateProject(ctx, rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create project: %w", err)
	}

	files, err := sc.discoverFiles(rootPath, config)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	// Hash up front so unchanged files never reach the engine and the
	// cache key reflects content, not just path.
	hashes := make(map[string]string, len(files))
	changed := make([]string, 0, len(files))
	for _, filePath := range files {
		hash, _, err := computeFileHash(filePath)
		if err != nil {
			stats.FilesFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", filePath, err))
			continue
		}
		hashes[filePath] = hash

		relPath, err := filepath.Rel(rootPath, filePath)
		if err != nil {
			return nil, err
		}
		skip, err := sc.fileUnchanged(ctx, project.ID, relPath, hash)
		if err != nil {
			return nil, err
		}
		if skip {
			stats.FilesSkipped++
			continue
		}
		changed = append(changed, filePath)
	}

	if len(changed) > 0 {
		report, runErr := sc.engine.ProcessBatch(ctx, changed, engine.Options{
			Strategy: config.Strategy,
			Progress: config.Progress,
			CacheKeyFn: func(itemID string) string {
				return itemID + "@" + hashes[itemID]
			},
		})

		results, itemErrs := collectOutcome(report, runErr)
		for _, ierr := range itemErrs {
			stats.FilesFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %s", ierr.ItemID, ierr.Message))
		}
		if report != nil {
			stats.CacheHits = report.Summary.CacheHits
			stats.Waves = report.Summary.Waves
		}

		if err := sc.persistResults(ctx, project, results, config.BatchSize, stats); err != nil {
			return nil, fmt.Errorf("failed to persist results: %w", err)
		}

		if runErr != nil && !isBatchError(runErr) {
			return nil, runErr
		}
		if runErr != nil {
			// Partial persistence already happened; report the failure
			// with whatever statistics were gathered.
			stats.Duration = time.Since(startTime)
			return stats, runErr
		}
	}

	if err := sc.updateProjectStats(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to update project stats: %w", err)
	}

	stats.Duration = time.Since(startTime)
	return stats, nil
}

// getOrCreateProject retrieves an existing project or creates a new one
func (sc *Scanner) getOrCreateProject(ctx context.Context, rootPath string) (*storage.Project, error) {
	project, err := sc.storage.GetProject(ctx, rootPath)
	if err == nil {
		return project, nil
	}

	if err != storage.ErrNotFound {
		return nil, err
	}

	project = &storage.Project{
		RootPath:     rootPath,
		IndexVersion: storage.CurrentSchemaVersion,
	}

	// Try to extract module info from go.mod
	goModPath := filepath.Join(rootPath, "go.mod")
	if modInfo, err := parseGoMod(goModPath); err == nil {
		project.ModuleName = modInfo.Module
		project.GoVersion = modInfo.GoVersion
	}

	if err := sc.storage.CreateProject(ctx, project); err != nil {
		return nil, err
	}

	return project, nil
}

// discoverFiles finds all Go files in the project
func (sc *Scanner) discoverFiles(rootPath string, config *Config) ([]string, error) {
	var files []string

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			// Skip vendor unless explicitly included
			if !config.IncludeVendor && info.Name() == "vendor" {
				return filepath.SkipDir
			}
			// Skip hidden directories
			if strings.HasPrefix(info.Name(), ".") && path != rootPath {
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.HasSuffix(path, ".go") {
			return nil
		}

		if !config.IncludeTests && strings.HasSuffix(path, "_test.go") {
			return nil
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// fileUnchanged reports whether a stored file record already matches hash
func (sc *Scanner) fileUnchanged(ctx context.Context, projectID int64, relPath, hash string) (bool, error) {
	existing, err := sc.storage.GetFile(ctx, projectID, relPath)
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return existing.ContentHash == hash, nil
}

// persistResults stores analysis results in transaction batches
func (sc *Scanner) persistResults(ctx context.Context, project *storage.Project,
	results []types.BatchItemResult, batchSize int, stats *Statistics) error {

	for i := 0; i < len(results); i += batchSize {
		end := i + batchSize
		if end > len(results) {
			end = len(results)
		}
		if err := sc.persistBatch(ctx, project, results[i:end], stats); err != nil {
			return err
		}
	}
	return nil
}

// persistBatch stores one transaction's worth of results
func (sc *Scanner) persistBatch(ctx context.Context, project *storage.Project,
	results []types.BatchItemResult, stats *Statistics) error {

	tx, err := sc.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, result := range results {
		if err := sc.persistFile(ctx, tx, project, result, stats); err != nil {
			stats.FilesFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", result.ItemID, err))
			continue
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// persistFile stores a single file's analysis
func (sc *Scanner) persistFile(ctx context.Context, store storage.Storage,
	project *storage.Project, result types.BatchItemResult, stats *Statistics) error {

	var analysis types.FileAnalysis
	if err := json.Unmarshal(result.Value, &analysis); err != nil {
		return fmt.Errorf("failed to decode analysis: %w", err)
	}

	relPath, err := filepath.Rel(project.RootPath, analysis.FilePath)
	if err != nil {
		return err
	}

	file := &storage.File{
		ProjectID:   project.ID,
		FilePath:    relPath,
		PackageName: analysis.PackageName,
		ContentHash: analysis.ContentHash,
		SizeBytes:   analysis.SizeBytes,
	}
	if analysis.HasErrors() {
		errMsg := analysis.Errors[0].Message
		file.ParseError = &errMsg
	}

	if err := store.UpsertFile(ctx, file); err != nil {
		return err
	}

	// Re-scan replaces the file's symbols and imports wholesale
	if err := store.DeleteSymbolsByFile(ctx, file.ID); err != nil {
		return err
	}
	if err := store.DeleteImportsByFile(ctx, file.ID); err != nil {
		return err
	}

	for _, imp := range analysis.Imports {
		impRecord := &storage.Import{
			FileID:     file.ID,
			ImportPath: imp.Path,
			Alias:      imp.Alias,
		}
		if err := store.UpsertImport(ctx, impRecord); err != nil {
			return fmt.Errorf("failed to store import: %w", err)
		}
		stats.ImportsRecorded++
	}

	for i := range analysis.Symbols {
		sym := fromTypesSymbol(&analysis.Symbols[i], file.ID, analysis.PackageName)
		if err := store.UpsertSymbol(ctx, sym); err != nil {
			return fmt.Errorf("failed to store symbol: %w", err)
		}
		stats.SymbolsExtracted++
	}

	stats.FilesScanned++
	return nil
}

// updateProjectStats updates the project's file and symbol counts
func (sc *Scanner) updateProjectStats(ctx context.Context, project *storage.Project) error {
	status, err := sc.storage.GetStatus(ctx, project.ID)
	if err != nil {
		return err
	}

	project.TotalFiles = status.FilesCount
	project.TotalSymbols = status.SymbolsCount
	project.LastScannedAt = time.Now()

	return sc.storage.UpdateProject(ctx, project)
}

// fromTypesSymbol converts an analysis symbol to its storage record
func fromTypesSymbol(sym *types.Symbol, fileID int64, packageName string) *storage.Symbol {
	return &storage.Symbol{
		FileID:      fileID,
		Name:        sym.Name,
		Kind:        string(sym.Kind),
		PackageName: packageName,
		Signature:   sym.Signature,
		DocComment:  sym.DocComment,
		Scope:       string(sym.Scope),
		Receiver:    sym.Receiver,
		StartLine:   sym.Start.Line,
		StartCol:    sym.Start.Column,
		EndLine:     sym.End.Line,
		EndCol:      sym.End.Column,
	}
}

// collectOutcome merges results and per-item errors from either the report
// or a batch error carrying partials
func collectOutcome(report *types.BatchReport, runErr error) ([]types.BatchItemResult, []types.BatchItemError) {
	if report != nil {
		return report.Results, report.Errors
	}
	var be *types.BatchError
	if errors.As(runErr, &be) {
		return be.Results, be.ItemErrors
	}
	return nil, nil
}

func isBatchError(err error) bool {
	var be *types.BatchError
	return errors.As(err, &be)
}

// computeFileHash computes the SHA-256 hex digest of a file
func computeFileHash(filePath string) (string, int64, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return "", 0, err
	}

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", 0, err
	}

	return hex.EncodeToString(hash.Sum(nil)), info.Size(), nil
}

// goModInfo contains parsed go.mod information
type goModInfo struct {
	Module    string
	GoVersion string
}

// parseGoMod extracts basic info from go.mod file
func parseGoMod(goModPath string) (*goModInfo, error) {
	content, err := os.ReadFile(goModPath)
	if err != nil {
		return nil, err
	}

	info := &goModInfo{}
	lines := strings.Split(string(content), "\n")

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "module ") {
			info.Module = strings.TrimSpace(strings.TrimPrefix(line, "module"))
		} else if strings.HasPrefix(line, "go ") {
			info.GoVersion = strings.TrimSpace(strings.TrimPrefix(line, "go"))
		}
	}

	return info, nil
}
