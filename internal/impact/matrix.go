package impact

import (
	"fmt"
	"math"
	"sort"

	"github.com/TobiSchelling/envscan/internal/signal"
)

const (
	Version = "1.0"
	Format  = "triplet"

	// DeadBand is the smallest |score| kept. Weaker edges are dropped at
	// compression time and do not come back on decompression.
	DeadBand = 0.01

	neutralType = "neutral"
)

// Record is the per-signal influence shape exchanged with collaborators.
type Record struct {
	ImpactScore float64            `json:"impact_score"`
	Influences  []signal.Influence `json:"influences"`
}

// Entry is one non-zero cell with its qualitative influence type.
type Entry struct {
	Row   int
	Col   int
	Value float64
	Type  string
}

// Stats describes how much the sparse form saves.
type Stats struct {
	TotalCells       int     `json:"total_cells"`
	NonZeroCells     int     `json:"non_zero_cells"`
	Sparsity         float64 `json:"sparsity"`
	CompressionRatio float64 `json:"compression_ratio"`
	MemoryReduction  string  `json:"memory_reduction"`
}

// Matrix is a compressed influence relation. Entries are grouped by row and
// rowPtr[i]..rowPtr[i+1] spans the entries of row i, so a row lookup costs
// O(row degree) instead of a scan over every entry.
type Matrix struct {
	signalIDs    []string
	index        map[string]int
	impactScores map[string]float64
	entries      []Entry
	rowPtr       []int
}

// Compress builds the sparse matrix. Influences whose target is not one of
// the keys of data, or whose |score| does not exceed DeadBand, are skipped.
// A missing influence type is stored as "neutral".
func Compress(data map[string]Record) *Matrix {
	return CompressWith(data, DeadBand)
}

// CompressWith is Compress with a caller-chosen dead-band.
func CompressWith(data map[string]Record, deadBand float64) *Matrix {
	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	m := &Matrix{
		signalIDs:    ids,
		index:        indexOf(ids),
		impactScores: make(map[string]float64, len(ids)),
	}

	for row, id := range ids {
		rec := data[id]
		m.impactScores[id] = rec.ImpactScore
		for _, inf := range rec.Influences {
			col, ok := m.index[inf.TargetSignal]
			if !ok {
				continue
			}
			if math.Abs(inf.InfluenceScore) <= deadBand {
				continue
			}
			typ := inf.InfluenceType
			if typ == "" {
				typ = neutralType
			}
			m.entries = append(m.entries, Entry{Row: row, Col: col, Value: inf.InfluenceScore, Type: typ})
		}
	}

	m.buildRowPtr()
	return m
}

func indexOf(ids []string) map[string]int {
	idx := make(map[string]int, len(ids))
	for i, id := range ids {
		idx[id] = i
	}
	return idx
}

// buildRowPtr requires entries to be sorted by row.
func (m *Matrix) buildRowPtr() {
	n := len(m.signalIDs)
	m.rowPtr = make([]int, n+1)
	for _, e := range m.entries {
		m.rowPtr[e.Row+1]++
	}
	for i := 0; i < n; i++ {
		m.rowPtr[i+1] += m.rowPtr[i]
	}
}

func (m *Matrix) row(i int) []Entry {
	return m.entries[m.rowPtr[i]:m.rowPtr[i+1]]
}

// SignalIDs returns a copy of the id ordering.
func (m *Matrix) SignalIDs() []string {
	return append([]string(nil), m.signalIDs...)
}

// NNZ returns the number of stored entries.
func (m *Matrix) NNZ() int {
	return len(m.entries)
}

// Entries returns a copy of the stored entries in row order.
func (m *Matrix) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

// ImpactScore returns the signal-level score, which is not compressed.
func (m *Matrix) ImpactScore(id string) (float64, bool) {
	v, ok := m.impactScores[id]
	return v, ok
}

// Decompress rebuilds the per-signal influence lists. Every id gets a
// record, with an empty (not nil) influence list when it has no edges.
func (m *Matrix) Decompress() map[string]Record {
	out := make(map[string]Record, len(m.signalIDs))
	for i, id := range m.signalIDs {
		row := m.row(i)
		infs := make([]signal.Influence, 0, len(row))
		for _, e := range row {
			infs = append(infs, m.influence(e))
		}
		out[id] = Record{ImpactScore: m.impactScores[id], Influences: infs}
	}
	return out
}

// QueryInfluences returns the outgoing influences of id with
// |score| >= threshold without decompressing the matrix.
func (m *Matrix) QueryInfluences(id string, threshold float64) []signal.Influence {
	i, ok := m.index[id]
	if !ok {
		return nil
	}
	var out []signal.Influence
	for _, e := range m.row(i) {
		if math.Abs(e.Value) >= threshold {
			out = append(out, m.influence(e))
		}
	}
	return out
}

// InfluencedBy returns the ids with an edge into id. This scans every entry.
func (m *Matrix) InfluencedBy(id string) []string {
	col, ok := m.index[id]
	if !ok {
		return nil
	}
	var out []string
	for _, e := range m.entries {
		if e.Col == col {
			out = append(out, m.signalIDs[e.Row])
		}
	}
	return out
}

func (m *Matrix) influence(e Entry) signal.Influence {
	return signal.Influence{
		TargetSignal:   m.signalIDs[e.Col],
		InfluenceScore: e.Value,
		InfluenceType:  e.Type,
	}
}

// Stats reports sparsity = 1 − nnz/N² and compression ratio = N²/max(nnz, 1).
// An empty matrix has sparsity 1 and ratio 0.
func (m *Matrix) Stats() Stats {
	n := len(m.signalIDs)
	total := n * n
	nnz := len(m.entries)

	sparsity := 1.0
	if total > 0 {
		sparsity = 1.0 - float64(nnz)/float64(total)
	}
	nz := nnz
	if nz < 1 {
		nz = 1
	}
	ratio := float64(total) / float64(nz)

	return Stats{
		TotalCells:       total,
		NonZeroCells:     nnz,
		Sparsity:         sparsity,
		CompressionRatio: ratio,
		MemoryReduction:  fmt.Sprintf("%.1fx", ratio),
	}
}

// FromSignals turns the influence lists carried by signals into Compress input.
func FromSignals(signals []signal.Signal) map[string]Record {
	out := make(map[string]Record, len(signals))
	for i := range signals {
		s := &signals[i]
		if s.ID == "" {
			continue
		}
		rec := Record{Influences: s.Influences}
		if s.ImpactScore != nil {
			rec.ImpactScore = *s.ImpactScore
		}
		out[s.ID] = rec
	}
	return out
}
