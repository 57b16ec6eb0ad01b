package impact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/TobiSchelling/envscan/internal/fsutil"
)

// ErrInvalid marks a compressed document whose indices do not fit its id list.
var ErrInvalid = errors.New("invalid compressed impact matrix")

type document struct {
	Version          string             `json:"version"`
	SignalIDs        []string           `json:"signal_ids"`
	ImpactScores     map[string]float64 `json:"impact_scores"`
	InfluenceMatrix  tripletJSON        `json:"influence_matrix"`
	InfluenceTypes   map[string]string  `json:"influence_types"`
	CompressionStats Stats              `json:"compression_stats"`
}

type tripletJSON struct {
	RowIndices []int     `json:"row_indices"`
	ColIndices []int     `json:"col_indices"`
	Values     []float64 `json:"values"`
	Shape      [2]int    `json:"shape"`
	NNZ        int       `json:"nnz"`
	Format     string    `json:"format"`
}

// cellKey is the "row,col" key of the influence_types side map. It only
// exists at the JSON boundary; in memory the type lives on the Entry.
func cellKey(row, col int) string {
	return fmt.Sprintf("%d,%d", row, col)
}

// MarshalJSON writes the triplet document consumed outside this package.
func (m *Matrix) MarshalJSON() ([]byte, error) {
	n := len(m.signalIDs)
	doc := document{
		Version:      Version,
		SignalIDs:    m.signalIDs,
		ImpactScores: m.impactScores,
		InfluenceMatrix: tripletJSON{
			RowIndices: make([]int, 0, len(m.entries)),
			ColIndices: make([]int, 0, len(m.entries)),
			Values:     make([]float64, 0, len(m.entries)),
			Shape:      [2]int{n, n},
			NNZ:        len(m.entries),
			Format:     Format,
		},
		InfluenceTypes:   make(map[string]string, len(m.entries)),
		CompressionStats: m.Stats(),
	}
	if doc.SignalIDs == nil {
		doc.SignalIDs = []string{}
	}
	if doc.ImpactScores == nil {
		doc.ImpactScores = map[string]float64{}
	}
	for _, e := range m.entries {
		doc.InfluenceMatrix.RowIndices = append(doc.InfluenceMatrix.RowIndices, e.Row)
		doc.InfluenceMatrix.ColIndices = append(doc.InfluenceMatrix.ColIndices, e.Col)
		doc.InfluenceMatrix.Values = append(doc.InfluenceMatrix.Values, e.Value)
		doc.InfluenceTypes[cellKey(e.Row, e.Col)] = e.Type
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads a triplet document, validates every index against the
// id list and rebuilds the row index. Entries from writers that did not emit
// them in row order are regrouped, keeping their relative order per row.
func (m *Matrix) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	t := doc.InfluenceMatrix
	if len(t.RowIndices) != len(t.ColIndices) || len(t.RowIndices) != len(t.Values) {
		return fmt.Errorf("%w: triplet arrays differ in length (%d, %d, %d)",
			ErrInvalid, len(t.RowIndices), len(t.ColIndices), len(t.Values))
	}

	n := len(doc.SignalIDs)
	entries := make([]Entry, len(t.Values))
	for i := range t.Values {
		r, c := t.RowIndices[i], t.ColIndices[i]
		if r < 0 || r >= n || c < 0 || c >= n {
			return fmt.Errorf("%w: entry %d (%d,%d) outside %d ids", ErrInvalid, i, r, c, n)
		}
		typ, ok := doc.InfluenceTypes[cellKey(r, c)]
		if !ok || typ == "" {
			typ = neutralType
		}
		entries[i] = Entry{Row: r, Col: c, Value: t.Values[i], Type: typ}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Row < entries[j].Row })

	scores := doc.ImpactScores
	if scores == nil {
		scores = make(map[string]float64)
	}

	*m = Matrix{
		signalIDs:    doc.SignalIDs,
		index:        indexOf(doc.SignalIDs),
		impactScores: scores,
		entries:      entries,
	}
	m.buildRowPtr()
	return nil
}

// Save writes the compressed document atomically.
func (m *Matrix) Save(path string) error {
	return fsutil.WriteJSON(path, m)
}

// Load reads a compressed document.
func Load(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading impact matrix: %w", err)
	}
	var m Matrix
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing impact matrix: %w", err)
	}
	return &m, nil
}
