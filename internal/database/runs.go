package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// StartRun records a new running run and returns its id.
func (db *DB) StartRun(scanDate, scanFile string) (string, error) {
	id := uuid.NewString()
	var file *string
	if scanFile != "" {
		file = &scanFile
	}
	_, err := db.conn.Exec(
		`INSERT INTO scan_runs (id, scan_date, scan_file, status) VALUES (?, ?, ?, ?)`,
		id, scanDate, file, StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("starting run: %w", err)
	}
	return id, nil
}

// FinishRun writes the outcome of a run. A non-nil runErr marks it failed.
func (db *DB) FinishRun(id string, out RunOutcome, runErr error) error {
	status := StatusSucceeded
	var errText, snapshot *string
	if runErr != nil {
		status = StatusFailed
		s := runErr.Error()
		errText = &s
	}
	if out.SnapshotPath != "" {
		snapshot = &out.SnapshotPath
	}

	result, err := db.conn.Exec(
		`UPDATE scan_runs SET status = ?, incoming = ?, added = ?, duplicates = ?, invalid = ?,
		total_signals = ?, unique_embeddings = ?, influence_nnz = ?, snapshot_path = ?, error = ?,
		finished_at = datetime('now')
		WHERE id = ?`,
		status, out.Incoming, out.Added, out.Duplicates, out.Invalid,
		out.TotalSignals, out.UniqueEmbeddings, out.InfluenceNNZ, snapshot, errText, id,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing run: unknown run %s", id)
	}
	return nil
}

// RecordStep stores the outcome of one step of a run.
func (db *DB) RecordStep(runID string, position int, name, summary string, stepErr error) error {
	var errText *string
	if stepErr != nil {
		s := stepErr.Error()
		errText = &s
	}
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO run_steps (run_id, position, name, summary, error) VALUES (?, ?, ?, ?, ?)`,
		runID, position, name, summary, errText,
	)
	return err
}

const runColumns = `id, scan_date, scan_file, status, incoming, added, duplicates, invalid,
	total_signals, unique_embeddings, influence_nnz, snapshot_path, error, started_at, finished_at`

// GetRun returns a run by id, or nil if it does not exist.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.conn.QueryRow("SELECT "+runColumns+" FROM scan_runs WHERE id = ?", id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM scan_runs ORDER BY started_at DESC, rowid DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// RunSteps returns the recorded steps of a run in order.
func (db *DB) RunSteps(runID string) ([]Step, error) {
	rows, err := db.conn.Query(
		"SELECT position, name, summary, error FROM run_steps WHERE run_id = ? ORDER BY position", runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var s Step
		var summary sql.NullString
		if err := rows.Scan(&s.Position, &s.Name, &summary, &s.Error); err != nil {
			return nil, err
		}
		s.Summary = summary.String
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// GetStats returns aggregate ledger statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	err := db.conn.QueryRow(
		`SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'succeeded' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(added), 0),
		COALESCE(SUM(duplicates), 0)
		FROM scan_runs`,
	).Scan(&s.TotalRuns, &s.SucceededRuns, &s.FailedRuns, &s.TotalAdded, &s.TotalDuplicates)
	if err != nil {
		return nil, err
	}

	var last sql.NullString
	err = db.conn.QueryRow(
		"SELECT MAX(scan_date) FROM scan_runs WHERE status = 'succeeded'",
	).Scan(&last)
	if err != nil {
		return nil, err
	}
	if last.Valid {
		s.LastScanDate = &last.String
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	err := row.Scan(
		&r.ID, &r.ScanDate, &r.ScanFile, &r.Status,
		&r.Incoming, &r.Added, &r.Duplicates, &r.Invalid,
		&r.TotalSignals, &r.UniqueEmbeddings, &r.InfluenceNNZ,
		&r.SnapshotPath, &r.Error, &r.StartedAt, &r.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
