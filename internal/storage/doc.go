// Package storage provides SQLite-backed persistence for projects, files,
// symbols, and imports produced by batch analysis runs.
//
// Two SQLite drivers are supported via build tags: mattn/go-sqlite3 (CGO,
// tag cgo_sqlite) and modernc.org/sqlite (pure Go, default). Symbol search
// uses an FTS5 index kept in sync by triggers.
package storage
