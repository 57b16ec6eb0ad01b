package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "scan run ledger",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS scan_runs (
    id TEXT PRIMARY KEY,
    scan_date TEXT NOT NULL,
    scan_file TEXT,
    status TEXT NOT NULL DEFAULT 'running' CHECK(status IN ('running', 'succeeded', 'failed')),
    incoming INTEGER DEFAULT 0,
    added INTEGER DEFAULT 0,
    duplicates INTEGER DEFAULT 0,
    invalid INTEGER DEFAULT 0,
    total_signals INTEGER DEFAULT 0,
    error TEXT,
    started_at TEXT DEFAULT (datetime('now')),
    finished_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_scan_runs_date ON scan_runs(scan_date);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "compaction results and per-step outcomes",
		Up: func(tx *sql.Tx) error {
			// ALTER TABLE ADD COLUMN has no IF NOT EXISTS, so check first to
			// keep the migration re-runnable.
			for _, col := range []string{"unique_embeddings", "influence_nnz", "snapshot_path"} {
				exists, err := columnExists(tx, "scan_runs", col)
				if err != nil {
					return err
				}
				if exists {
					continue
				}
				typ := "INTEGER DEFAULT 0"
				if col == "snapshot_path" {
					typ = "TEXT"
				}
				if _, err := tx.Exec("ALTER TABLE scan_runs ADD COLUMN " + col + " " + typ); err != nil {
					return err
				}
			}

			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS run_steps (
    run_id TEXT NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    summary TEXT,
    error TEXT,
    PRIMARY KEY (run_id, position)
);
`)
			return err
		},
	},
}

func columnExists(tx *sql.Tx, table, column string) (bool, error) {
	var count int
	err := tx.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('"+table+"') WHERE name = ?", column,
	).Scan(&count)
	return count > 0, err
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
