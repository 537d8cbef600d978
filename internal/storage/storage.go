package storage

import (
	"context"
	"time"
)

// Storage defines the interface for persisting and querying analysis results
type Storage interface {
	// Project operations
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, rootPath string) (*Project, error)
	UpdateProject(ctx context.Context, project *Project) error

	// File operations
	UpsertFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, projectID int64, filePath string) (*File, error)
	DeleteFile(ctx context.Context, fileID int64) error
	ListFiles(ctx context.Context, projectID int64) ([]*File, error)

	// Symbol operations
	UpsertSymbol(ctx context.Context, symbol *Symbol) error
	ListSymbolsByFile(ctx context.Context, fileID int64) ([]*Symbol, error)
	DeleteSymbolsByFile(ctx context.Context, fileID int64) error
	SearchSymbols(ctx context.Context, query string, limit int) ([]*Symbol, error)

	// Import operations
	UpsertImport(ctx context.Context, imp *Import) error
	ListImportsByFile(ctx context.Context, fileID int64) ([]*Import, error)
	DeleteImportsByFile(ctx context.Context, fileID int64) error

	// Status operations
	GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Project represents a scanned codebase
type Project struct {
	ID            int64
	RootPath      string
	ModuleName    string
	GoVersion     string
	TotalFiles    int
	TotalSymbols  int
	IndexVersion  string
	LastScannedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// File represents a tracked source file
type File struct {
	ID            int64
	ProjectID     int64
	FilePath      string // Relative to project root
	PackageName   string
	ContentHash   string // SHA-256 hex digest
	SizeBytes     int64
	ParseError    *string // Nullable
	LastScannedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Symbol represents a code symbol extracted from AST analysis
type Symbol struct {
	ID          int64
	FileID      int64
	Name        string
	Kind        string
	PackageName string
	Signature   string
	DocComment  string
	Scope       string
	Receiver    string
	StartLine   int
	StartCol    int
	EndLine     int
	EndCol      int
	CreatedAt   time.Time
}

// Import represents an import statement in a source file
type Import struct {
	ID         int64
	FileID     int64
	ImportPath string
	Alias      string
	CreatedAt  time.Time
}

// ProjectStatus contains statistics about a scanned project
type ProjectStatus struct {
	Project       *Project
	FilesCount    int
	SymbolsCount  int
	ImportsCount  int
	LastScannedAt time.Time
}
