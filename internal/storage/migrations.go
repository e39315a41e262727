package storage

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/standardbeagle/codegraph/internal/logging"
)

// Migration is one linear, numbered schema change, applied in its own
// transaction (spec.md §4.1 "Migrations are linear, numbered, and applied
// within one atomic transaction each").
type Migration struct {
	Version int
	SQL     string
}

const metaSchemaKey = "schema_version"

// runMigrations ensures the meta table exists, then applies every migration
// whose Version exceeds the currently recorded schema_version, in order.
func runMigrations(db *sql.DB, migrations []Migration) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}

	current, err := schemaVersion(db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	log := logging.Get(logging.CategoryStorage)
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			`INSERT INTO meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			metaSchemaKey, fmt.Sprint(m.Version),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		log.Info("applied migration", zap.Int("version", m.Version))
		current = m.Version
	}

	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaSchemaKey).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v int
	if _, err := fmt.Sscanf(value, "%d", &v); err != nil {
		return 0, err
	}
	return v, nil
}
