package database

import (
	"fmt"
	"log/slog"
)

// schemaVersion reads the applied migration version. SQLite keeps it in
// PRAGMA user_version; Postgres in a single-row schema_version table.
func (db *DB) schemaVersion() (int, error) {
	var version int
	if db.dialect == SQLite {
		if err := db.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
			return 0, fmt.Errorf("reading schema version: %w", err)
		}
		return version, nil
	}

	if _, err := db.conn.Exec("CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)"); err != nil {
		return 0, fmt.Errorf("creating schema_version table: %w", err)
	}
	err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

func (db *DB) setSchemaVersion(t *tx, version int) error {
	if db.dialect == SQLite {
		return nil
	}
	if _, err := t.exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := t.exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// migrate brings the database schema up to the latest version.
func (db *DB) migrate() error {
	current, err := db.schemaVersion()
	if err != nil {
		return err
	}

	latest := latestVersion()
	if current >= latest {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		slog.Info("applying migration", "version", m.Version, "description", m.Description, "dialect", db.dialect)

		err := db.withTx(func(t *tx) error {
			for _, stmt := range m.Statements {
				if _, err := t.Exec(ddl(db.dialect, stmt)); err != nil {
					return err
				}
			}
			return db.setSchemaVersion(t, m.Version)
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		// Set user_version outside the transaction (modernc/sqlite requirement).
		// Safe: if we crash here, the idempotent DDL lets the migration re-run.
		if db.dialect == SQLite {
			if _, err := db.conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
				return fmt.Errorf("setting version %d: %w", m.Version, err)
			}
		}
	}

	return nil
}
