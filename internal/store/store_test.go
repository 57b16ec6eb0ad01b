package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/envscan/internal/fsutil"
	"github.com/TobiSchelling/envscan/internal/signal"
)

var fixedNow = time.Date(2026, 1, 30, 9, 0, 0, 0, time.UTC)

func testCorpus() *Corpus {
	return newCorpus(func() time.Time { return fixedNow })
}

func sig(id, source, category string) signal.Signal {
	return signal.Signal{
		ID:                  id,
		Title:               "Signal " + id,
		Source:              signal.Source{Name: source, URL: "https://example.com/" + id},
		PreliminaryCategory: category,
	}
}

func batch() []signal.Signal {
	return []signal.Signal{
		sig("s1", "arXiv", "Technological"),
		sig("s2", "arXiv", "Economic"),
		sig("s3", "Reuters", "Technological"),
	}
}

func TestLoadMissingReturnsFreshCorpus(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "database.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, Version, c.Version)
	assert.Nil(t, c.FirstScanDate)
	assert.NotNil(t, c.Statistics.Sources)
}

func TestLoadCorruptFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "database.json")

	c := testCorpus()
	c.Merge(batch(), "2026-01-30")
	require.NoError(t, c.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)/2], 0o644))

	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestLoadRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not an object", `[1, 2]`},
		{"missing version", `{"signals": []}`},
		{"missing signals", `{"version": "1.0"}`},
		{"duplicate ids", `{"version": "1.0", "signals": [{"id": "a"}, {"id": "a"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "database.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.doc), 0o644))
			_, err := Load(path)
			assert.True(t, errors.Is(err, ErrCorrupt), "got %v", err)
		})
	}
}

func TestMerge(t *testing.T) {
	c := testCorpus()
	res := c.Merge(append(batch(), signal.Signal{Title: "no id"}), "2026-01-30")

	assert.Len(t, res.Added, 3)
	assert.Empty(t, res.Duplicates)
	assert.Equal(t, 1, res.Invalid)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, map[string]int{"arXiv": 2, "Reuters": 1}, c.Statistics.Sources)
	assert.Equal(t, map[string]int{"Technological": 2, "Economic": 1}, c.Statistics.Categories)

	got, ok := c.Signal("s1")
	require.True(t, ok)
	assert.Equal(t, "2026-01-30", got.ScanDate)
	assert.Equal(t, fixedNow.Format(time.RFC3339), got.AddedToDBAt)
}

func TestMergeKeepsURLVariants(t *testing.T) {
	c := testCorpus()
	variants := []signal.Signal{
		{ID: "v1", Title: "A", Source: signal.Source{URL: "http://ex.com/a"}},
		{ID: "v2", Title: "A", Source: signal.Source{URL: "https://www.ex.com/a/"}},
		{ID: "v3", Title: "A", Source: signal.Source{URL: "http://ex.com/a?x=1"}},
	}

	res := c.Merge(variants, "2026-01-30")
	assert.Len(t, res.Added, 3)
	assert.Equal(t, 3, c.Len())
}

func TestMergeIsIdempotent(t *testing.T) {
	c := testCorpus()
	c.Merge(batch(), "2026-01-30")
	res := c.Merge(batch(), "2026-01-31")

	assert.Empty(t, res.Added)
	assert.Equal(t, []string{"s1", "s2", "s3"}, res.Duplicates)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 3, c.Statistics.TotalDuplicatesPrevented)
	assert.Equal(t, 2, c.Statistics.Sources["arXiv"])
}

func TestMergeDeduplicatesWithinBatch(t *testing.T) {
	c := testCorpus()
	res := c.Merge([]signal.Signal{sig("a", "x", "y"), sig("a", "x", "y")}, "2026-01-30")
	assert.Len(t, res.Added, 1)
	assert.Equal(t, []string{"a"}, res.Duplicates)
}

func TestMergeDoesNotAliasInput(t *testing.T) {
	in := []signal.Signal{sig("a", "x", "y")}
	in[0].Entities = []string{"e1"}

	c := testCorpus()
	c.Merge(in, "2026-01-30")
	in[0].Entities[0] = "mutated"
	in[0].Title = "mutated"

	got, _ := c.Signal("a")
	assert.Equal(t, []string{"e1"}, got.Entities)
	assert.Equal(t, "Signal a", got.Title)
	assert.Empty(t, in[0].ScanDate)
}

func TestSaveUpdatesMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals", "database.json")
	c := testCorpus()

	c.Merge(batch(), "2026-01-30")
	require.NoError(t, c.Save(path))
	require.NotNil(t, c.FirstScanDate)
	assert.Equal(t, "2026-01-30", *c.FirstScanDate)
	assert.Equal(t, "2026-01-30", *c.LatestScanDate)
	assert.Equal(t, 1, c.Statistics.TotalScans)
	assert.Equal(t, 3, c.TotalSignals)

	c.Merge([]signal.Signal{sig("s4", "arXiv", "Social")}, "2026-01-31")
	require.NoError(t, c.Save(path))
	assert.Equal(t, "2026-01-30", *c.FirstScanDate)
	assert.Equal(t, "2026-01-31", *c.LatestScanDate)
	assert.Equal(t, 2, c.Statistics.TotalScans)

	// A save with no merge in between is not a scan.
	require.NoError(t, c.Save(path))
	assert.Equal(t, 2, c.Statistics.TotalScans)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.TotalSignals)
	assert.Equal(t, loaded.Len(), loaded.TotalSignals)
	assert.Equal(t, "2026-01-30", *loaded.FirstScanDate)
	assert.Equal(t, 2, loaded.Statistics.TotalScans)
}

func TestSaveIsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	c := testCorpus()
	c.Merge(batch(), "2026-01-30")
	require.NoError(t, c.Save(path))

	temps, err := fsutil.TempFiles(path)
	require.NoError(t, err)
	assert.Empty(t, temps)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	// An unencodable signal fails the save and leaves the old file intact.
	bad := sig("bad", "x", "y")
	bad.Extra = map[string]json.RawMessage{"broken": json.RawMessage(`{`)}
	c.Merge([]signal.Signal{bad}, "2026-01-31")
	require.Error(t, c.Save(path))

	temps, err = fsutil.TempFiles(path)
	require.NoError(t, err)
	assert.Empty(t, temps)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, after)
	assert.Equal(t, 1, c.Statistics.TotalScans)
}

func TestSaveFailureAfterTempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "occupied"), 0o755))

	c := testCorpus()
	c.Merge(batch(), "2026-01-30")
	require.Error(t, c.Save(path))

	assert.Zero(t, c.Statistics.TotalScans)
	assert.Nil(t, c.LatestScanDate)
	temps, err := fsutil.TempFiles(path)
	require.NoError(t, err)
	assert.Empty(t, temps)
}

func TestPersistedShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	c := testCorpus()
	c.Merge(batch(), "2026-01-30")
	require.NoError(t, c.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"version", "created_at", "last_updated", "total_signals", "first_scan_date", "latest_scan_date", "statistics", "signals"} {
		assert.Contains(t, raw, key)
	}

	var stats map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["statistics"], &stats))
	for _, key := range []string{"total_scans", "total_duplicates_prevented", "sources", "categories"} {
		assert.Contains(t, stats, key)
	}
}

func TestFreshCorpusPersistsNullScanDates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	require.NoError(t, testCorpus().Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Nil(t, raw["first_scan_date"])
	assert.Equal(t, []any{}, raw["signals"])
}

func TestPreservesUnknownSignalFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	doc := `{"version": "1.0", "signals": [{
		"id": "a",
		"source": {"name": "Yonhap", "rss_feed": "https://yna.co.kr/rss", "press": "Yonhap", "section": "IT"},
		"content": {"abstract": "x", "original_language": "ko", "translation_confidence": 0.92},
		"classification": {"category": "T", "confidence": 0.8, "reasoning": "chip export rules"},
		"embedding": [0.123456789012345, 0.987654321098765],
		"pSST": {"score": 72}
	}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Save(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	got, ok := reloaded.Signal("a")
	require.True(t, ok)
	assert.JSONEq(t, `{"score": 72}`, string(got.Extra["pSST"]))
	assert.JSONEq(t, `"https://yna.co.kr/rss"`, string(got.Source.Extra["rss_feed"]))
	assert.JSONEq(t, `"IT"`, string(got.Source.Extra["section"]))
	assert.JSONEq(t, `"ko"`, string(got.Content.Extra["original_language"]))
	assert.JSONEq(t, `0.92`, string(got.Content.Extra["translation_confidence"]))
	require.NotNil(t, got.Classification)
	assert.JSONEq(t, `"chip export rules"`, string(got.Classification.Extra["reasoning"]))
	assert.Equal(t, []float64{0.123456789012345, 0.987654321098765}, got.Embedding)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "0.123456789012345")
	assert.Contains(t, string(data), `"press": "Yonhap"`)
}

func TestRemove(t *testing.T) {
	c := testCorpus()
	c.Merge(batch(), "2026-01-30")

	removed, ok := c.Remove("s1")
	require.True(t, ok)
	assert.Equal(t, "s1", removed.ID)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, map[string]int{"arXiv": 1, "Reuters": 1}, c.Statistics.Sources)
	assert.Equal(t, map[string]int{"Technological": 1, "Economic": 1}, c.Statistics.Categories)

	_, ok = c.Signal("s1")
	assert.False(t, ok)
	got, ok := c.Signal("s3")
	require.True(t, ok)
	assert.Equal(t, "Reuters", got.Source.Name)

	_, ok = c.Remove("s1")
	assert.False(t, ok)

	res := c.Merge([]signal.Signal{sig("s1", "arXiv", "Technological")}, "2026-02-01")
	assert.Len(t, res.Added, 1)
}
