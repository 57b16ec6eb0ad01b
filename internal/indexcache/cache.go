package indexcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/TobiSchelling/envscan/internal/fsutil"
	"github.com/TobiSchelling/envscan/internal/logging"
	"github.com/TobiSchelling/envscan/internal/signal"
)

// CacheVersion is written to metadata.cache_version.
const CacheVersion = "1.0"

// Metadata describes the cache file.
type Metadata struct {
	TotalSignals int    `json:"total_signals"`
	LastUpdated  string `json:"last_updated"`
	CacheVersion string `json:"cache_version"`
}

type cacheFile struct {
	Indexes  IndexSet `json:"indexes"`
	Metadata Metadata `json:"metadata"`
}

// Cache is the persistent multi-index duplicate cache.
type Cache struct {
	path   string
	logger *log.Logger
	idx    *builder
	meta   Metadata
	now    func() time.Time
}

// Open loads the cache at path. Missing, unreadable or corrupt files are
// logged and replaced by empty indexes; Open never fails.
func Open(path string, logger *log.Logger) *Cache {
	c := &Cache{
		path:   path,
		logger: logging.OrDiscard(logger),
		now:    time.Now,
	}
	c.reset()
	c.load()
	return c
}

func (c *Cache) reset() {
	c.idx = newBuilder()
	c.meta = Metadata{CacheVersion: CacheVersion}
}

func (c *Cache) load() {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		c.logger.Warn("failed to read index cache, starting fresh", "path", c.path, "err", err)
		return
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Warn("failed to parse index cache, starting fresh", "path", c.path, "err", err)
		return
	}
	if f.Metadata.CacheVersion != "" && f.Metadata.CacheVersion != CacheVersion {
		c.logger.Warn("index cache version mismatch, starting fresh",
			"path", c.path, "got", f.Metadata.CacheVersion, "want", CacheVersion)
		return
	}

	c.idx = fromIndexSet(f.Indexes)
	c.meta = f.Metadata
	c.meta.CacheVersion = CacheVersion
	c.logger.Info("index cache loaded", "signals", c.meta.TotalSignals)
}

func (c *Cache) save() error {
	c.meta.LastUpdated = c.now().Format(time.RFC3339)
	f := cacheFile{Indexes: c.idx.set, Metadata: c.meta}
	if err := fsutil.WriteJSON(c.path, f); err != nil {
		c.logger.Error("failed to save index cache", "path", c.path, "err", err)
		return fmt.Errorf("saving index cache: %w", err)
	}
	c.logger.Debug("index cache saved", "signals", c.meta.TotalSignals)
	return nil
}

// Path returns the cache file path.
func (c *Cache) Path() string {
	return c.path
}

// AddSignals indexes a batch incrementally and persists the result.
// Signals without an id are skipped. It returns the number of URL keys that
// were new to the index; that count is added to metadata.total_signals.
// Calling it twice with the same batch adds nothing the second time.
// The returned error only reports a failed save; the in-memory indexes are
// updated either way.
func (c *Cache) AddSignals(batch []signal.Signal) (int, error) {
	added := 0
	for i := range batch {
		if c.idx.add(&batch[i]) {
			added++
		}
	}
	c.meta.TotalSignals += added
	return added, c.save()
}

// Indexes returns a deep copy of the live indexes.
func (c *Cache) Indexes() IndexSet {
	return c.idx.set.Clone()
}

// Metadata returns a copy of the cache metadata.
func (c *Cache) Metadata() Metadata {
	return c.meta
}

// Rebuild clears the indexes and re-adds all signals. Use it to repair drift
// between the cache and the store.
func (c *Cache) Rebuild(all []signal.Signal) error {
	c.idx = newBuilder()
	c.meta.TotalSignals = 0
	if _, err := c.AddSignals(all); err != nil {
		return err
	}
	c.logger.Info("index cache rebuilt", "signals", len(all))
	return nil
}

// RemoveSignal reverses the URL, title and entity entries owned by id.
// original must be the record as it was indexed, since the keys are derived
// from it.
func (c *Cache) RemoveSignal(id string, original signal.Signal) error {
	c.idx.remove(id, &original)
	if c.meta.TotalSignals > 0 {
		c.meta.TotalSignals--
	}
	return c.save()
}

// Size returns the cache file size in bytes, or 0 when it does not exist.
func (c *Cache) Size() int64 {
	info, err := os.Stat(c.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Clear drops all indexes and deletes the cache file.
func (c *Cache) Clear() error {
	c.reset()
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting index cache: %w", err)
	}
	c.logger.Info("index cache cleared", "path", c.path)
	return nil
}
