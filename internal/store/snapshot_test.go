package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/envscan/internal/signal"
)

func TestTakeSnapshotWithoutCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	dst, err := TakeSnapshot(path, "2026-01-30")
	require.NoError(t, err)
	assert.Empty(t, dst)

	snaps, err := ListSnapshots(path)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestSnapshotAndRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")

	c := testCorpus()
	c.Merge(batch(), "2026-01-30")
	require.NoError(t, c.Save(path))

	dst, err := TakeSnapshot(path, "2026-01-31")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "snapshots", "database-2026-01-31.json"), dst)

	// A bad merge after the snapshot.
	c.Merge([]signal.Signal{sig("junk", "x", "y")}, "2026-01-31")
	require.NoError(t, c.Save(path))

	restored, err := Restore(path, "2026-01-31")
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Len())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.Len())
	_, ok := reloaded.Signal("junk")
	assert.False(t, ok)
}

func TestListSnapshotsNewestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	c := testCorpus()
	require.NoError(t, c.Save(path))

	for _, d := range []string{"2026-01-28", "2026-01-30", "2026-01-29"} {
		_, err := TakeSnapshot(path, d)
		require.NoError(t, err)
	}

	snaps, err := ListSnapshots(path)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, "2026-01-30", snaps[0].Date)
	assert.Equal(t, "2026-01-28", snaps[2].Date)
	assert.Positive(t, snaps[0].Size)
}

func TestRestoreErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")

	_, err := Restore(path, "2026-01-30")
	assert.True(t, errors.Is(err, ErrSnapshotNotFound))

	_, _, err = RestoreLatest(path)
	assert.True(t, errors.Is(err, ErrSnapshotNotFound))

	// A corrupt snapshot is refused and the live file is untouched.
	c := testCorpus()
	c.Merge(batch(), "2026-01-30")
	require.NoError(t, c.Save(path))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	snap := SnapshotPath(path, "2026-01-29")
	require.NoError(t, os.MkdirAll(filepath.Dir(snap), 0o755))
	require.NoError(t, os.WriteFile(snap, []byte(`{"signals": [`), 0o644))

	_, err = Restore(path, "2026-01-29")
	assert.True(t, errors.Is(err, ErrCorrupt))
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRestoreLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	c := testCorpus()
	c.Merge(batch()[:1], "2026-01-29")
	require.NoError(t, c.Save(path))
	_, err := TakeSnapshot(path, "2026-01-29")
	require.NoError(t, err)

	c.Merge(batch()[1:], "2026-01-30")
	require.NoError(t, c.Save(path))
	_, err = TakeSnapshot(path, "2026-01-30")
	require.NoError(t, err)

	restored, date, err := RestoreLatest(path)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-30", date)
	assert.Equal(t, 3, restored.Len())
}

func TestRecentWindow(t *testing.T) {
	c := testCorpus()
	old := sig("old", "x", "y")
	old.CollectedAt = "2026-01-01T10:00:00Z"
	fresh := sig("fresh", "x", "y")
	fresh.CollectedAt = "2026-01-28T10:00:00Z"
	undated := sig("undated", "x", "y")
	c.Signals = append(c.Signals, old, fresh, undated)
	c.reindex()

	w := c.RecentWindow(7, fixedNow)

	require.Len(t, w.Signals, 1)
	assert.Equal(t, "fresh", w.Signals[0].ID)
	assert.Equal(t, 3, w.TotalStored)
	assert.InDelta(t, 1.0/3.0, w.FilterRatio, 1e-9)
	assert.Equal(t, fixedNow.AddDate(0, 0, -7), w.Cutoff)
	assert.Equal(t, "fresh", w.Indexes.ByURL["example.com/fresh"])
	assert.NotContains(t, w.Indexes.ByURL, "example.com/old")
}

func TestRecentFallsBackToScanDate(t *testing.T) {
	c := testCorpus()
	c.Merge(batch(), "2026-01-29")

	recent := c.Recent(time.Date(2026, 1, 29, 0, 0, 0, 0, time.UTC))
	assert.Len(t, recent, 3)
	assert.Empty(t, c.Recent(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))
}
