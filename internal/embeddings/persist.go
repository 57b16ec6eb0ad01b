package embeddings

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/charmbracelet/log"

	"github.com/TobiSchelling/envscan/internal/fsutil"
	"github.com/TobiSchelling/envscan/internal/logging"
	"github.com/TobiSchelling/envscan/internal/signal"
)

// ErrInvalid marks a document that breaks the representative/reference partition.
var ErrInvalid = errors.New("invalid deduplicated embeddings")

// FromSignals collects the embedding of every signal that has one, in
// corpus order.
func FromSignals(signals []signal.Signal) (map[string]Embedding, []string) {
	out := make(map[string]Embedding)
	var order []string
	for i := range signals {
		s := &signals[i]
		if s.ID == "" || len(s.Embedding) == 0 {
			continue
		}
		if _, dup := out[s.ID]; dup {
			continue
		}
		out[s.ID] = Embedding{
			Vector:     s.Embedding,
			Model:      s.EmbeddingModel,
			ComputedAt: s.AddedToDBAt,
		}
		order = append(order, s.ID)
	}
	return out, order
}

// Save writes the document atomically.
func (d *Deduplicated) Save(path string) error {
	return fsutil.WriteJSON(path, d)
}

// Load reads a deduplicated document. It is a cache, so any read, parse or
// validation failure is logged and an empty result is returned instead.
func Load(path string, threshold float64, logger *log.Logger) *Deduplicated {
	logger = logging.OrDiscard(logger)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to read embedding cache, starting fresh", "path", path, "err", err)
		}
		return Empty(threshold)
	}

	var d Deduplicated
	if err := json.Unmarshal(data, &d); err != nil {
		logger.Warn("failed to parse embedding cache, starting fresh", "path", path, "err", err)
		return Empty(threshold)
	}
	if d.Unique == nil {
		d.Unique = make(map[string]Embedding)
	}
	if d.References == nil {
		d.References = make(map[string]string)
	}
	if err := d.Validate(); err != nil {
		logger.Warn("embedding cache failed validation, starting fresh", "path", path, "err", err)
		return Empty(threshold)
	}
	return &d
}
