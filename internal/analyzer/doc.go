// Package analyzer extracts package names, imports, and symbols from Go
// source files via AST parsing.
//
// It is the bundled implementation of the per-item analysis function the
// batch engine treats as opaque. Func adapts it into the engine's shape:
//
//	a := analyzer.New()
//	eng := engine.New(a.Func(), tieredCache, nil)
//
// Syntax errors are non-fatal: the returned FileAnalysis records them and
// carries whatever the partial AST yields.
package analyzer
