package types

import (
	"errors"
	"go/token"
)

// SymbolKind represents the type of Go language symbol
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindStruct    SymbolKind = "struct"
	KindInterface SymbolKind = "interface"
	KindType      SymbolKind = "type"
	KindConst     SymbolKind = "const"
	KindVar       SymbolKind = "var"
	KindField     SymbolKind = "field"
)

// SymbolScope represents the visibility scope of a symbol
type SymbolScope string

const (
	ScopeExported   SymbolScope = "exported"
	ScopeUnexported SymbolScope = "unexported"
)

// Position represents a location in source code
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Symbol represents a code symbol extracted from Go source via AST parsing
type Symbol struct {
	// Identification
	Name    string     `json:"name"`
	Kind    SymbolKind `json:"kind"`
	Package string     `json:"package"`

	// Content
	Signature  string `json:"signature"`
	DocComment string `json:"doc_comment,omitempty"`

	// Scope
	Scope    SymbolScope `json:"scope"`
	Receiver string      `json:"receiver,omitempty"` // For methods: receiver type name

	// Location
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Import represents an import statement in a source file
type Import struct {
	Path  string `json:"path"`            // Import path (e.g., "github.com/pkg/errors")
	Alias string `json:"alias,omitempty"` // Import alias if present (e.g., ".")
}

// ValidateKind checks if the symbol kind is valid
func (s *Symbol) ValidateKind() error {
	switch s.Kind {
	case KindFunction, KindMethod, KindStruct, KindInterface, KindType, KindConst, KindVar, KindField:
		return nil
	default:
		return errors.New("invalid symbol kind")
	}
}

// IsExported returns true if the symbol is exported (visible outside package)
func (s *Symbol) IsExported() bool {
	return s.Scope == ScopeExported && token.IsExported(s.Name)
}

// Validate performs comprehensive validation of the symbol
func (s *Symbol) Validate() error {
	if s.Name == "" {
		return errors.New("symbol name is required")
	}

	if err := s.ValidateKind(); err != nil {
		return err
	}

	if s.Package == "" {
		return errors.New("package name is required")
	}

	// Methods must have a receiver
	if s.Kind == KindMethod && s.Receiver == "" {
		return errors.New("methods must have a receiver type")
	}

	if s.Start.Line <= 0 || s.End.Line <= 0 {
		return errors.New("invalid position: line numbers must be positive")
	}

	if s.Start.Line > s.End.Line {
		return errors.New("invalid position: start line must be before or equal to end line")
	}

	return nil
}
