// Package embeddings bounds the memory used by per-signal embedding vectors
// by collapsing near-identical vectors into one representative plus
// references.
//
// Clustering is single-pass greedy leader clustering, not transitive
// clustering. Ids are visited in input order; the first unassigned id becomes
// a representative and absorbs every still-unassigned id whose cosine
// similarity to it reaches the threshold. Members are only compared with the
// representative that found them, so two members of one cluster can be less
// similar to each other than the threshold.
//
// Cost is O(n²·d) in the worst case (no duplicates at all). The remaining set
// shrinks as clusters are carved out, which keeps typical corpora fast, but
// beyond roughly 10⁴–10⁵ vectors an approximate nearest-neighbour index
// should replace the pairwise scan.
package embeddings

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

const (
	Version          = "1.0"
	Method           = "clustering"
	DefaultThreshold = 0.95

	// epsilon keeps zero vectors from dividing by zero during normalization.
	epsilon = 1e-8
)

// Embedding is one stored vector.
type Embedding struct {
	Vector     []float64 `json:"vector"`
	Model      string    `json:"model,omitempty"`
	ComputedAt string    `json:"computed_at,omitempty"`
}

// Stats summarizes one deduplication run.
type Stats struct {
	TotalEmbeddings     int     `json:"total_embeddings"`
	UniqueEmbeddings    int     `json:"unique_embeddings"`
	DuplicateEmbeddings int     `json:"duplicate_embeddings"`
	DeduplicationRate   float64 `json:"deduplication_rate"`
	MemoryReduction     string  `json:"memory_reduction"`
	ClustersFound       int     `json:"clusters_found"`
}

// Deduplicated partitions signal ids into representatives (Unique) and
// references. A reference always points at a representative, and a
// representative is never itself a reference.
type Deduplicated struct {
	Version    string               `json:"version"`
	Method     string               `json:"method"`
	Threshold  float64              `json:"threshold"`
	Unique     map[string]Embedding `json:"unique_embeddings"`
	References map[string]string    `json:"references"`
	Stats      Stats                `json:"deduplication_stats"`
}

// Empty returns a well-formed result with no embeddings.
func Empty(threshold float64) *Deduplicated {
	d := &Deduplicated{
		Version:    Version,
		Method:     Method,
		Threshold:  effectiveThreshold(threshold),
		Unique:     make(map[string]Embedding),
		References: make(map[string]string),
	}
	d.Stats = computeStats(0, 0, 0)
	return d
}

func effectiveThreshold(t float64) float64 {
	if t <= 0 || t > 1 {
		return DefaultThreshold
	}
	return t
}

// Deduplicate clusters embeddings. order fixes the visiting order; ids in
// embeddings but missing from order are visited afterwards in sorted order,
// and a nil order means fully sorted. A threshold outside (0, 1] falls back
// to DefaultThreshold.
func Deduplicate(embeddings map[string]Embedding, order []string, threshold float64) *Deduplicated {
	threshold = effectiveThreshold(threshold)
	result := Empty(threshold)
	if len(embeddings) == 0 {
		return result
	}

	ids := visitOrder(embeddings, order)
	unit := make([][]float64, len(ids))
	for i, id := range ids {
		unit[i] = normalize(embeddings[id].Vector)
	}

	remaining := make([]int, len(ids))
	for i := range remaining {
		remaining[i] = i
	}

	clusters := 0
	for len(remaining) > 0 {
		leader := remaining[0]
		leaderID := ids[leader]
		result.Unique[leaderID] = embeddings[leaderID]

		kept := remaining[:0]
		members := 0
		for _, j := range remaining[1:] {
			if cosine(unit[leader], unit[j]) >= threshold {
				result.References[ids[j]] = leaderID
				members++
				continue
			}
			kept = append(kept, j)
		}
		if members > 0 {
			clusters++
		}
		remaining = kept
	}

	result.Stats = computeStats(len(ids), len(result.Unique), clusters)
	return result
}

func visitOrder(embeddings map[string]Embedding, order []string) []string {
	ids := make([]string, 0, len(embeddings))
	seen := make(map[string]struct{}, len(embeddings))
	for _, id := range order {
		if _, ok := embeddings[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	var rest []string
	for id := range embeddings {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

func normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum) + epsilon

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// cosine is the dot product of two unit vectors. Vectors of different
// dimension are never similar.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(-1)
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

func computeStats(total, unique, clusters int) Stats {
	duplicates := total - unique
	rate := 0.0
	if total > 0 {
		rate = float64(duplicates) / float64(total)
	}
	reduction := 1.0
	if unique > 0 {
		reduction = float64(total) / float64(unique)
	}
	return Stats{
		TotalEmbeddings:     total,
		UniqueEmbeddings:    unique,
		DuplicateEmbeddings: duplicates,
		DeduplicationRate:   rate,
		MemoryReduction:     fmt.Sprintf("%.2fx", reduction),
		ClustersFound:       clusters,
	}
}

// Get resolves the vector for id directly or through its one reference hop.
func (d *Deduplicated) Get(id string) ([]float64, bool) {
	if e, ok := d.Unique[id]; ok {
		return e.Vector, true
	}
	if rep, ok := d.References[id]; ok {
		if e, ok := d.Unique[rep]; ok {
			return e.Vector, true
		}
	}
	return nil, false
}

// Representative returns the representative id for id, which is id itself
// for a representative.
func (d *Deduplicated) Representative(id string) (string, bool) {
	if _, ok := d.Unique[id]; ok {
		return id, true
	}
	rep, ok := d.References[id]
	return rep, ok
}

// Len returns the number of ids covered.
func (d *Deduplicated) Len() int {
	return len(d.Unique) + len(d.References)
}

// ReconstructFull expands back to one entry per id. Referenced ids share the
// representative's vector slice, so callers must not mutate it.
func (d *Deduplicated) ReconstructFull() map[string]Embedding {
	full := make(map[string]Embedding, d.Len())
	for id, e := range d.Unique {
		full[id] = e
	}
	for id, rep := range d.References {
		full[id] = d.Unique[rep]
	}
	return full
}

// Members returns the ids of one cluster, representative first, the rest sorted.
func (d *Deduplicated) Members(rep string) []string {
	if _, ok := d.Unique[rep]; !ok {
		return nil
	}
	var refs []string
	for id, r := range d.References {
		if r == rep {
			refs = append(refs, id)
		}
	}
	slices.Sort(refs)
	return append([]string{rep}, refs...)
}

// Validate checks the partition: no id is both representative and reference,
// and every reference points at a present representative.
func (d *Deduplicated) Validate() error {
	for id, rep := range d.References {
		if _, both := d.Unique[id]; both {
			return fmt.Errorf("%w: %s is both representative and reference", ErrInvalid, id)
		}
		if _, ok := d.Unique[rep]; !ok {
			return fmt.Errorf("%w: %s references missing representative %s", ErrInvalid, id, rep)
		}
	}
	return nil
}
