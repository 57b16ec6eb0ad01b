package pipeline

import (
	"errors"
	"fmt"

	"github.com/TobiSchelling/envscan/internal/database"
	"github.com/TobiSchelling/envscan/internal/indexcache"
	"github.com/TobiSchelling/envscan/internal/signal"
	"github.com/TobiSchelling/envscan/internal/store"
)

// ErrUnknownSignal is returned when removing an id the corpus does not hold.
var ErrUnknownSignal = errors.New("signal not in corpus")

// RemoveResult describes one administrative removal.
type RemoveResult struct {
	Removed  signal.Signal
	Snapshot string
}

// Remove deletes one signal from the corpus and reverses its index cache
// entries. The corpus is snapshotted first unless snapshots are off. The
// embedding and impact caches are left for the next update or an explicit
// rebuild.
func (p *Pipeline) Remove(id string, snapshot bool) (*RemoveResult, error) {
	path := p.cfg.CorpusPath()
	corpus, err := store.Load(path)
	if err != nil {
		return nil, err
	}
	if _, ok := corpus.Signal(id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSignal, id)
	}

	res := &RemoveResult{}
	if snapshot && p.cfg.Snapshots.Enabled {
		res.Snapshot, err = store.TakeSnapshot(path, database.GetToday())
		if err != nil {
			return nil, err
		}
	}

	removed, _ := corpus.Remove(id)
	if err := corpus.Save(path); err != nil {
		return nil, err
	}
	res.Removed = removed
	p.logger.Info("signal removed", "id", id, "remaining", corpus.Len())

	cache := indexcache.Open(p.cfg.IndexCachePath(), p.logger)
	if cache.Metadata().TotalSignals == 0 {
		err = cache.Rebuild(corpus.Signals)
	} else {
		err = cache.RemoveSignal(id, removed)
	}
	if err != nil {
		return res, fmt.Errorf("updating index cache: %w", err)
	}
	return res, nil
}
