package store

import (
	"time"

	"github.com/TobiSchelling/envscan/internal/indexcache"
	"github.com/TobiSchelling/envscan/internal/signal"
)

// Window is the time-bounded working set used for duplicate checks, so
// memory follows the active window instead of the whole history.
type Window struct {
	Signals     []signal.Signal
	Indexes     indexcache.IndexSet
	Cutoff      time.Time
	Days        int
	TotalStored int
	FilterRatio float64
}

// Recent returns copies of the signals dated at or after cutoff. A signal
// without a parseable date is left out.
func (c *Corpus) Recent(cutoff time.Time) []signal.Signal {
	var out []signal.Signal
	for i := range c.Signals {
		s := &c.Signals[i]
		t, ok := s.Date()
		if !ok || t.Before(cutoff) {
			continue
		}
		out = append(out, s.Clone())
	}
	return out
}

// RecentWindow builds the window of the last days days ending at now.
func (c *Corpus) RecentWindow(days int, now time.Time) Window {
	cutoff := now.AddDate(0, 0, -days)
	recent := c.Recent(cutoff)

	total := len(c.Signals)
	denom := total
	if denom < 1 {
		denom = 1
	}
	return Window{
		Signals:     recent,
		Indexes:     indexcache.Build(recent),
		Cutoff:      cutoff,
		Days:        days,
		TotalStored: total,
		FilterRatio: float64(len(recent)) / float64(denom),
	}
}
