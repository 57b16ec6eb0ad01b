// Package store owns the signal corpus, the durable system of record. The
// corpus only grows through Merge, is deduplicated by id, and is always
// written with temp file + rename so readers never see a partial file.
//
// Load is deliberately asymmetric: a missing file is the first-run case and
// yields an empty corpus, while a present file that does not parse is an
// error. The corpus is never silently reset.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/TobiSchelling/envscan/internal/fsutil"
	"github.com/TobiSchelling/envscan/internal/signal"
)

const Version = "1.0"

// ErrCorrupt marks a corpus file that exists but cannot be used.
var ErrCorrupt = errors.New("corpus file is corrupt")

// Statistics are running counters maintained by Merge and Remove.
type Statistics struct {
	TotalScans               int            `json:"total_scans"`
	TotalDuplicatesPrevented int            `json:"total_duplicates_prevented"`
	Sources                  map[string]int `json:"sources"`
	Categories               map[string]int `json:"categories"`
}

// Corpus is the persisted store document plus an id index.
type Corpus struct {
	Version        string          `json:"version"`
	CreatedAt      string          `json:"created_at"`
	LastUpdated    string          `json:"last_updated"`
	TotalSignals   int             `json:"total_signals"`
	FirstScanDate  *string         `json:"first_scan_date"`
	LatestScanDate *string         `json:"latest_scan_date"`
	Statistics     Statistics      `json:"statistics"`
	Signals        []signal.Signal `json:"signals"`

	ids         map[string]int
	pendingScan string
	now         func() time.Time
}

// MergeResult reports what one Merge did.
type MergeResult struct {
	Added      []signal.Signal
	Duplicates []string
	Invalid    int
}

// New returns an empty corpus.
func New() *Corpus {
	return newCorpus(time.Now)
}

func newCorpus(now func() time.Time) *Corpus {
	ts := now().Format(time.RFC3339)
	c := &Corpus{
		Version:     Version,
		CreatedAt:   ts,
		LastUpdated: ts,
		Signals:     []signal.Signal{},
		now:         now,
	}
	c.init()
	return c
}

func (c *Corpus) init() {
	if c.Statistics.Sources == nil {
		c.Statistics.Sources = make(map[string]int)
	}
	if c.Statistics.Categories == nil {
		c.Statistics.Categories = make(map[string]int)
	}
	if c.Signals == nil {
		c.Signals = []signal.Signal{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.reindex()
}

func (c *Corpus) reindex() {
	c.ids = make(map[string]int, len(c.Signals))
	for i := range c.Signals {
		c.ids[c.Signals[i].ID] = i
	}
}

// Load reads the corpus at path. A missing file returns a fresh corpus; any
// other read or parse failure returns an error wrapping ErrCorrupt.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCorrupt, path, err)
	}
	c, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// decode parses and checks a corpus document. Snapshots go through the same
// checks before they are restored.
func decode(data []byte) (*Corpus, error) {
	var c Corpus
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if c.Version == "" {
		return nil, fmt.Errorf("%w: missing version", ErrCorrupt)
	}
	if c.Signals == nil {
		return nil, fmt.Errorf("%w: missing signals", ErrCorrupt)
	}
	seen := make(map[string]struct{}, len(c.Signals))
	for i := range c.Signals {
		id := c.Signals[i].ID
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate signal id %q", ErrCorrupt, id)
		}
		seen[id] = struct{}{}
	}
	c.init()
	return &c, nil
}

// Len returns the number of stored signals.
func (c *Corpus) Len() int {
	return len(c.Signals)
}

// Merge appends every incoming signal whose id is not stored yet, stamping
// added_to_db_at and scan_date. Signals without an id are counted as
// invalid. Source and category counts are updated in the same pass. The
// stored signals are copies, so callers keep ownership of incoming.
func (c *Corpus) Merge(incoming []signal.Signal, scanDate string) MergeResult {
	var res MergeResult
	stamp := c.now().Format(time.RFC3339)

	for i := range incoming {
		s := incoming[i].Clone()
		if s.ID == "" {
			res.Invalid++
			continue
		}
		if _, dup := c.ids[s.ID]; dup {
			res.Duplicates = append(res.Duplicates, s.ID)
			continue
		}

		s.AddedToDBAt = stamp
		s.ScanDate = scanDate

		c.ids[s.ID] = len(c.Signals)
		c.Signals = append(c.Signals, s)
		c.Statistics.Sources[s.SourceName()]++
		c.Statistics.Categories[s.Category()]++
		res.Added = append(res.Added, s)
	}

	c.Statistics.TotalDuplicatesPrevented += len(res.Duplicates)
	c.pendingScan = scanDate
	return res
}

// Save writes the whole corpus to path atomically. When a Merge happened
// since the last save its scan date becomes latest_scan_date, total_scans
// is incremented and first_scan_date is set if it never was. The in-memory
// metadata only changes when the write succeeds.
func (c *Corpus) Save(path string) error {
	out := *c
	out.LastUpdated = c.now().Format(time.RFC3339)
	out.TotalSignals = len(c.Signals)
	if c.pendingScan != "" {
		scan := c.pendingScan
		out.LatestScanDate = &scan
		out.Statistics.TotalScans++
		if out.FirstScanDate == nil {
			first := scan
			out.FirstScanDate = &first
		}
		out.pendingScan = ""
	}

	if err := fsutil.WriteJSON(path, &out); err != nil {
		return fmt.Errorf("saving corpus: %w", err)
	}
	*c = out
	return nil
}

// Signal returns a copy of the stored signal with the given id.
func (c *Corpus) Signal(id string) (signal.Signal, bool) {
	i, ok := c.ids[id]
	if !ok {
		return signal.Signal{}, false
	}
	return c.Signals[i].Clone(), true
}

// Remove deletes a signal administratively and returns it so the caller can
// reverse its index entries. Source and category counts are decremented.
func (c *Corpus) Remove(id string) (signal.Signal, bool) {
	i, ok := c.ids[id]
	if !ok {
		return signal.Signal{}, false
	}
	s := c.Signals[i]
	c.Signals = append(c.Signals[:i], c.Signals[i+1:]...)
	c.reindex()

	decrement(c.Statistics.Sources, s.SourceName())
	decrement(c.Statistics.Categories, s.Category())
	return s, true
}

func decrement(counts map[string]int, key string) {
	n, ok := counts[key]
	if !ok {
		return
	}
	if n <= 1 {
		delete(counts, key)
		return
	}
	counts[key] = n - 1
}
