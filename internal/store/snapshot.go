package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TobiSchelling/envscan/internal/fsutil"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a date.
var ErrSnapshotNotFound = errors.New("snapshot not found")

const (
	snapshotDir    = "snapshots"
	snapshotPrefix = "database-"
	snapshotExt    = ".json"
)

// Snapshot is one pre-update copy of the corpus file.
type Snapshot struct {
	Date    string
	Path    string
	Size    int64
	ModTime time.Time
}

// SnapshotPath returns <dir of path>/snapshots/database-<date>.json.
func SnapshotPath(path, date string) string {
	return filepath.Join(filepath.Dir(path), snapshotDir, snapshotPrefix+date+snapshotExt)
}

// TakeSnapshot copies the persisted corpus to its dated snapshot before a
// merge. It returns "" without error when there is no corpus file yet. A
// second snapshot for the same date replaces the first.
func TakeSnapshot(path, date string) (string, error) {
	if !fsutil.Exists(path) {
		return "", nil
	}
	dst := SnapshotPath(path, date)
	if err := fsutil.CopyFile(path, dst); err != nil {
		return "", fmt.Errorf("snapshot %s: %w", date, err)
	}
	return dst, nil
}

// ListSnapshots returns the available snapshots, newest date first.
func ListSnapshots(path string) ([]Snapshot, error) {
	pattern := filepath.Join(filepath.Dir(path), snapshotDir, snapshotPrefix+"*"+snapshotExt)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))

	snaps := make([]Snapshot, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		date := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), snapshotPrefix), snapshotExt)
		snaps = append(snaps, Snapshot{Date: date, Path: m, Size: info.Size(), ModTime: info.ModTime()})
	}
	return snaps, nil
}

// Restore replaces the corpus at path with the snapshot for date. The
// snapshot must decode as a valid corpus; the copy is atomic.
func Restore(path, date string) (*Corpus, error) {
	src := SnapshotPath(path, date)
	data, err := os.ReadFile(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, date)
		}
		return nil, fmt.Errorf("reading snapshot %s: %w", date, err)
	}

	c, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", date, err)
	}
	if err := fsutil.CopyFile(src, path); err != nil {
		return nil, fmt.Errorf("restoring snapshot %s: %w", date, err)
	}
	return c, nil
}

// RestoreLatest restores the newest snapshot and returns its date.
func RestoreLatest(path string) (*Corpus, string, error) {
	snaps, err := ListSnapshots(path)
	if err != nil {
		return nil, "", err
	}
	if len(snaps) == 0 {
		return nil, "", fmt.Errorf("%w: no snapshots in %s", ErrSnapshotNotFound, filepath.Join(filepath.Dir(path), snapshotDir))
	}
	date := snaps[0].Date
	c, err := Restore(path, date)
	return c, date, err
}
