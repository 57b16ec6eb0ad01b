package indexcache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/envscan/internal/fsutil"
	"github.com/TobiSchelling/envscan/internal/signal"
)

func sig(id, url, title string, entities ...string) signal.Signal {
	return signal.Signal{
		ID:       id,
		Title:    title,
		Source:   signal.Source{URL: url},
		Entities: entities,
	}
}

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	return Open(filepath.Join(t.TempDir(), "context", "index-cache.json"), nil)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://ex.com/a", "ex.com/a"},
		{"https://www.ex.com/a/", "ex.com/a"},
		{"http://ex.com/a?x=1", "ex.com/a"},
		{"https://WWW.Example.COM/Page//", "example.com/Page"},
		{"https://example.com", "example.com"},
		{"https://ko.wikipedia.org/wiki/양자_컴퓨터/", "ko.wikipedia.org/wiki/양자_컴퓨터"},
		{"https://ko.wikipedia.org/wiki/%EC%96%91%EC%9E%90", "ko.wikipedia.org/wiki/%EC%96%91%EC%9E%90"},
		{"https://news.example.kr/기사/1?page=2#top", "news.example.kr/기사/1"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeURL(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "openai releases gpt5", NormalizeTitle("OpenAI Releases GPT-5!"))
	assert.Equal(t, "a b c", NormalizeTitle("  A,\tb...  C  "))
	assert.Equal(t, "양자 컴퓨팅", NormalizeTitle("양자 컴퓨팅!"))
	assert.Equal(t, "", NormalizeTitle("?!"))
}

func TestAddSignalsScenarioA(t *testing.T) {
	c := openTestCache(t)
	batch := []signal.Signal{
		sig("s1", "http://ex.com/a", "First"),
		sig("s2", "https://www.ex.com/a/", "Second"),
		sig("s3", "http://ex.com/a?x=1", "Third"),
	}

	added, err := c.AddSignals(batch)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	idx := c.Indexes()
	require.Len(t, idx.ByURL, 1)
	assert.Equal(t, "s1", idx.ByURL["ex.com/a"])
	assert.Len(t, idx.ByTitle, 3)
}

func TestAddSignalsIdempotent(t *testing.T) {
	c := openTestCache(t)
	batch := []signal.Signal{
		sig("s1", "https://a.com/1", "One", "OpenAI"),
		sig("s2", "https://a.com/2", "Two", "OpenAI", "EU"),
	}

	_, err := c.AddSignals(batch)
	require.NoError(t, err)
	first := c.Metadata().TotalSignals

	added, err := c.AddSignals(batch)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, first, c.Metadata().TotalSignals)
	assert.Equal(t, []string{"s1", "s2"}, c.Indexes().ByEntities["OpenAI"])
}

func TestFirstWriterWins(t *testing.T) {
	c := openTestCache(t)
	_, err := c.AddSignals([]signal.Signal{sig("old", "https://a.com/x", "Same Title")})
	require.NoError(t, err)
	_, err = c.AddSignals([]signal.Signal{sig("new", "https://a.com/x", "same title!")})
	require.NoError(t, err)

	idx := c.Indexes()
	assert.Equal(t, "old", idx.ByURL["a.com/x"])
	assert.Equal(t, "old", idx.ByTitle["same title"])
}

func TestSkipsSignalsWithoutID(t *testing.T) {
	c := openTestCache(t)
	added, err := c.AddSignals([]signal.Signal{sig("", "https://a.com/x", "T", "E")})
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Empty(t, c.Indexes().ByEntities)
}

func TestIndexesIsDefensiveCopy(t *testing.T) {
	c := openTestCache(t)
	_, err := c.AddSignals([]signal.Signal{sig("s1", "https://a.com/x", "T", "E")})
	require.NoError(t, err)

	idx := c.Indexes()
	idx.ByURL["a.com/x"] = "hijacked"
	idx.ByEntities["E"][0] = "hijacked"
	delete(idx.ByTitle, "t")

	live := c.Indexes()
	assert.Equal(t, "s1", live.ByURL["a.com/x"])
	assert.Equal(t, "s1", live.ByEntities["E"][0])
	assert.Equal(t, "s1", live.ByTitle["t"])
}

func TestPersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index-cache.json")
	c := Open(path, nil)
	_, err := c.AddSignals([]signal.Signal{sig("s1", "https://a.com/x", "T", "E")})
	require.NoError(t, err)

	leftovers, err := fsutil.TempFiles(path)
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw["indexes"], "by_url")
	assert.Contains(t, raw["indexes"], "by_title")
	assert.Contains(t, raw["indexes"], "by_entities")
	assert.Equal(t, "1.0", raw["metadata"]["cache_version"])
	assert.NotEmpty(t, raw["metadata"]["last_updated"])

	reloaded := Open(path, nil)
	assert.Equal(t, 1, reloaded.Metadata().TotalSignals)
	assert.Equal(t, "s1", reloaded.Indexes().ByURL["a.com/x"])

	added, err := reloaded.AddSignals([]signal.Signal{sig("s1", "https://a.com/x", "T", "E")})
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, []string{"s1"}, reloaded.Indexes().ByEntities["E"])
}

func TestCorruptCacheFallsBackToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index-cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"indexes": {"by_url": `), 0o644))

	c := Open(path, nil)
	assert.Equal(t, 0, c.Metadata().TotalSignals)
	assert.Empty(t, c.Indexes().ByURL)
}

func TestRebuild(t *testing.T) {
	c := openTestCache(t)
	_, err := c.AddSignals([]signal.Signal{sig("stale", "https://stale.com", "Stale")})
	require.NoError(t, err)

	all := []signal.Signal{
		sig("s1", "https://a.com/1", "One"),
		sig("s2", "https://a.com/2", "Two"),
	}
	require.NoError(t, c.Rebuild(all))

	idx := c.Indexes()
	assert.NotContains(t, idx.ByURL, "stale.com")
	assert.Len(t, idx.ByURL, 2)
	assert.Equal(t, 2, c.Metadata().TotalSignals)
}

func TestRemoveSignal(t *testing.T) {
	c := openTestCache(t)
	s1 := sig("s1", "https://a.com/1", "One", "OpenAI", "EU")
	s2 := sig("s2", "https://a.com/2", "Two", "OpenAI")
	_, err := c.AddSignals([]signal.Signal{s1, s2})
	require.NoError(t, err)

	require.NoError(t, c.RemoveSignal("s1", s1))

	idx := c.Indexes()
	assert.NotContains(t, idx.ByURL, "a.com/1")
	assert.NotContains(t, idx.ByTitle, "one")
	assert.Equal(t, []string{"s2"}, idx.ByEntities["OpenAI"])
	assert.NotContains(t, idx.ByEntities, "EU")
	assert.Equal(t, 1, c.Metadata().TotalSignals)
}

func TestRemoveSignalLeavesOtherOwners(t *testing.T) {
	c := openTestCache(t)
	owner := sig("owner", "https://a.com/1", "Shared")
	_, err := c.AddSignals([]signal.Signal{owner})
	require.NoError(t, err)

	// "other" never owned the keys, so removing it must not drop them.
	require.NoError(t, c.RemoveSignal("other", sig("other", "https://a.com/1", "Shared")))
	assert.Equal(t, "owner", c.Indexes().ByURL["a.com/1"])
}

func TestClearAndSize(t *testing.T) {
	c := openTestCache(t)
	assert.Equal(t, int64(0), c.Size())

	_, err := c.AddSignals([]signal.Signal{sig("s1", "https://a.com/1", "One")})
	require.NoError(t, err)
	assert.Greater(t, c.Size(), int64(0))

	require.NoError(t, c.Clear())
	assert.Equal(t, int64(0), c.Size())
	assert.Empty(t, c.Indexes().ByURL)
}

func TestBuildIsPure(t *testing.T) {
	idx := Build([]signal.Signal{
		sig("s1", "https://a.com/1", "One", "E"),
		sig("s2", "https://a.com/1", "Two", "E"),
	})
	assert.Equal(t, "s1", idx.ByURL["a.com/1"])
	assert.Equal(t, []string{"s1", "s2"}, idx.ByEntities["E"])
}

func TestCheck(t *testing.T) {
	c := openTestCache(t)
	_, err := c.AddSignals([]signal.Signal{sig("old", "https://a.com/1", "Known Title")})
	require.NoError(t, err)

	verdicts := c.Check([]signal.Signal{
		sig("n1", "https://www.a.com/1/", "Different"),
		sig("n2", "https://b.com/2", "known title"),
		sig("n3", "https://c.com/3", "Fresh"),
		sig("n4", "https://c.com/3?utm=x", "Fresh again"),
		sig("", "https://d.com", "No id"),
	})
	require.Len(t, verdicts, 5)

	assert.Equal(t, VerdictDuplicateURL, verdicts[0].Kind)
	assert.Equal(t, "old", verdicts[0].MatchedID)
	assert.Equal(t, VerdictDuplicateTitle, verdicts[1].Kind)
	assert.Equal(t, VerdictNew, verdicts[2].Kind)
	assert.False(t, verdicts[2].Duplicate())
	assert.Equal(t, VerdictDuplicateURL, verdicts[3].Kind)
	assert.Equal(t, "n3", verdicts[3].MatchedID)
	assert.Equal(t, VerdictInvalid, verdicts[4].Kind)

	// Check is read-only.
	assert.Len(t, c.Indexes().ByURL, 1)
}
