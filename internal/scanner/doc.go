// Package scanner walks a Go project, analyzes changed files through the
// batch engine, and persists the resulting symbols and imports to storage.
package scanner
