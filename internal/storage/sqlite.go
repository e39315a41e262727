// Package storage implements the two embedded SQLite databases (code.db and
// learning.db) behind codegraph's indexer, graph, session and learning
// subsystems (spec.md §4.1), grounded on codenerd's internal/store/local.go
// NewLocalStore idiom: ensure the directory, open with the mattn/go-sqlite3
// driver, run idempotent schema creation, then linear numbered migrations.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/standardbeagle/codegraph/internal/logging"
)

// openDB opens path with the pragmas codegraph needs: foreign keys enforced
// (the cascade-delete invariant in spec.md §4.1 depends on it) and WAL mode
// so the single writer goroutine never blocks concurrent readers.
func openDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	// A single writer goroutine owns all mutating statements; the pool only
	// needs to support concurrent readers plus that one writer connection.
	db.SetMaxOpenConns(8)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	logging.Get(logging.CategoryStorage).Info("opened database", zap.String("path", path))
	return db, nil
}
