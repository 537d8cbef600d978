package types

// FileAnalysis represents the output of analyzing one source file
type FileAnalysis struct {
	// Identification
	FilePath    string `json:"file_path"`
	PackageName string `json:"package_name"`
	ContentHash string `json:"content_hash"` // SHA-256 hex digest of the file content
	SizeBytes   int64  `json:"size_bytes"`

	// Extracted data
	Symbols []Symbol `json:"symbols"`
	Imports []Import `json:"imports"`

	// Errors encountered during parsing
	Errors []ParseError `json:"errors,omitempty"`
}

// ParseError represents an error that occurred during parsing
type ParseError struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	return pe.Message
}

// HasErrors returns true if any parsing errors occurred
func (fa *FileAnalysis) HasErrors() bool {
	return len(fa.Errors) > 0
}

// AddError adds a parsing error to the analysis
func (fa *FileAnalysis) AddError(file string, line, col int, msg string) {
	fa.Errors = append(fa.Errors, ParseError{
		File:    file,
		Line:    line,
		Column:  col,
		Message: msg,
	})
}

// ExportedSymbols returns only the symbols visible outside their package
func (fa *FileAnalysis) ExportedSymbols() []Symbol {
	exported := make([]Symbol, 0, len(fa.Symbols))
	for _, sym := range fa.Symbols {
		if sym.Scope == ScopeExported {
			exported = append(exported, sym)
		}
	}
	return exported
}
