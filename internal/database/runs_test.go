package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStartAndFinishRun(t *testing.T) {
	db := openTestDB(t)

	id, err := db.StartRun("2026-01-30", "raw/daily-scan-2026-01-30.json")
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)

	run, err := db.GetRun(id)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Nil(t, run.FinishedAt)

	require.NoError(t, db.FinishRun(id, RunOutcome{
		Incoming:         5,
		Added:            3,
		Duplicates:       2,
		TotalSignals:     42,
		UniqueEmbeddings: 30,
		InfluenceNNZ:     77,
		SnapshotPath:     "signals/snapshots/database-2026-01-30.json",
	}, nil))

	run, err = db.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Equal(t, 3, run.Added)
	assert.Equal(t, 2, run.Duplicates)
	assert.Equal(t, 42, run.TotalSignals)
	assert.Equal(t, 30, run.UniqueEmbeddings)
	assert.Equal(t, 77, run.InfluenceNNZ)
	require.NotNil(t, run.SnapshotPath)
	assert.Nil(t, run.Error)
	assert.NotNil(t, run.FinishedAt)
}

func TestFinishRunFailed(t *testing.T) {
	db := openTestDB(t)
	id, err := db.StartRun("2026-01-30", "")
	require.NoError(t, err)

	require.NoError(t, db.FinishRun(id, RunOutcome{Incoming: 5}, errors.New("corpus file is corrupt")))

	run, err := db.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	require.NotNil(t, run.Error)
	assert.Equal(t, "corpus file is corrupt", *run.Error)
	assert.Nil(t, run.ScanFile)
	assert.Nil(t, run.SnapshotPath)
}

func TestFinishUnknownRun(t *testing.T) {
	db := openTestDB(t)
	assert.Error(t, db.FinishRun("nope", RunOutcome{}, nil))
}

func TestGetRunMissing(t *testing.T) {
	db := openTestDB(t)
	run, err := db.GetRun("nope")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestRunSteps(t *testing.T) {
	db := openTestDB(t)
	id, err := db.StartRun("2026-01-30", "")
	require.NoError(t, err)

	require.NoError(t, db.RecordStep(id, 2, "Merge", "3 added", nil))
	require.NoError(t, db.RecordStep(id, 1, "Load", "40 signals", nil))
	require.NoError(t, db.RecordStep(id, 3, "Save", "", errors.New("disk full")))

	steps, err := db.RunSteps(id)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "Load", steps[0].Name)
	assert.Equal(t, "3 added", steps[1].Summary)
	assert.Nil(t, steps[1].Error)
	require.NotNil(t, steps[2].Error)
	assert.Equal(t, "disk full", *steps[2].Error)
}

func TestListRunsAndStats(t *testing.T) {
	db := openTestDB(t)

	for i, date := range []string{"2026-01-28", "2026-01-29", "2026-01-30"} {
		id, err := db.StartRun(date, "")
		require.NoError(t, err)
		var runErr error
		if i == 2 {
			runErr = errors.New("boom")
		}
		require.NoError(t, db.FinishRun(id, RunOutcome{Added: i + 1, Duplicates: 1}, runErr))
	}

	runs, err := db.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "2026-01-30", runs[0].ScanDate)

	limited, err := db.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRuns)
	assert.Equal(t, 2, stats.SucceededRuns)
	assert.Equal(t, 1, stats.FailedRuns)
	assert.Equal(t, 6, stats.TotalAdded)
	assert.Equal(t, 3, stats.TotalDuplicates)
	require.NotNil(t, stats.LastScanDate)
	assert.Equal(t, "2026-01-29", *stats.LastScanDate)
}

func TestStatsEmpty(t *testing.T) {
	db := openTestDB(t)
	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalRuns)
	assert.Nil(t, stats.LastScanDate)
}

func TestNormalizeScanDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-01-30", "2026-01-30"},
		{"2026-01-30T08:15:00Z", "2026-01-30"},
		{"January 30, 2026", "2026-01-30"},
		{"01/30/2026", "2026-01-30"},
	}
	for _, tt := range tests {
		got, err := NormalizeScanDate(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	today, err := NormalizeScanDate("")
	require.NoError(t, err)
	assert.Equal(t, time.Now().Format("2006-01-02"), today)

	_, err = NormalizeScanDate("not a date")
	assert.Error(t, err)
}

func TestFormatDateDisplay(t *testing.T) {
	assert.Equal(t, "Feb 06, 2026", FormatDateDisplay("2026-02-06"))
	assert.Equal(t, "garbage", FormatDateDisplay("garbage"))
}
