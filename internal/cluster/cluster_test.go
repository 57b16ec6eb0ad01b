package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/envscan/internal/embeddings"
	"github.com/TobiSchelling/envscan/internal/signal"
)

func sig(id, title string, vec ...float64) signal.Signal {
	return signal.Signal{ID: id, Title: title, Embedding: vec}
}

func TestGroup(t *testing.T) {
	signals := []signal.Signal{
		sig("a", "Battery recycling plant opens", 1, 0, 0),
		sig("b", "Lithium battery recycling scales", 0.95, 0.05, 0),
		sig("c", "Sodium battery chemistry", 0.9, 0.1, 0),
		sig("d", "Heat pumps for apartments", 0, 0, 1),
		sig("e", "No embedding yet"),
	}

	res := Group(signals, nil, DefaultDistanceThreshold)
	require.Len(t, res.Themes, 1)
	assert.Equal(t, []string{"a", "b", "c"}, res.Themes[0].Signals)
	assert.Equal(t, "Battery Recycling Chemistry", res.Themes[0].Label)
	assert.Equal(t, []string{"d"}, res.Singletons)
	assert.Equal(t, 1, res.Skipped)
}

func TestGroupUsesRepresentatives(t *testing.T) {
	signals := []signal.Signal{
		sig("a", "Carbon border tax", 1, 0),
		sig("b", "Carbon border tax adopted", 1, 0.001),
		sig("c", "Ocean heatwaves", 0, 1),
	}
	embs, order := embeddings.FromSignals(signals)
	d := embeddings.Deduplicate(embs, order, 0.95)

	// b carries no vector of its own in the window; its representative does.
	signals[1].Embedding = nil

	res := Group(signals, d, 0.5)
	require.Len(t, res.Themes, 1)
	assert.Equal(t, []string{"a", "b"}, res.Themes[0].Signals)
	assert.Equal(t, []string{"c"}, res.Singletons)
	assert.Zero(t, res.Skipped)
}

func TestGroupSkipsMismatchedDimensions(t *testing.T) {
	signals := []signal.Signal{
		sig("a", "Grid storage tender", 1, 0, 0),
		sig("b", "Older model vector", 1, 0),
		sig("c", "Grid storage auction", 0.99, 0.05, 0),
	}

	res := Group(signals, nil, DefaultDistanceThreshold)
	require.Len(t, res.Themes, 1)
	assert.Equal(t, []string{"a", "c"}, res.Themes[0].Signals)
	assert.Empty(t, res.Singletons)
	assert.Equal(t, 1, res.Skipped)
}

func TestGroupEmpty(t *testing.T) {
	res := Group(nil, nil, 0)
	assert.Empty(t, res.Themes)
	assert.Empty(t, res.Singletons)

	res = Group([]signal.Signal{sig("a", "Alone", 1, 0)}, nil, 0)
	assert.Empty(t, res.Themes)
	assert.Equal(t, []string{"a"}, res.Singletons)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Grid Storage Alpha", Label([]string{"The grid storage", "Grid storage for alpha"}))
	assert.Equal(t, "Of to", Label([]string{"Of to"}))
	assert.Equal(t, "", Label(nil))
}
