package cluster

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/TobiSchelling/envscan/internal/embeddings"
	"github.com/TobiSchelling/envscan/internal/signal"
)

const (
	DefaultDistanceThreshold = 1.2

	// MaxPoints bounds the distance matrix; points beyond it are left unthemed.
	MaxPoints = 1000

	labelWords = 3
)

// Theme is a group of at least two signals whose embeddings sit close
// together.
type Theme struct {
	Label   string
	Signals []string
}

// Result holds the themes, largest first, and the ids of signals that ended
// up alone.
type Result struct {
	Themes     []Theme
	Singletons []string
	// Skipped counts window signals with no embedding or with an embedding
	// whose dimension differs from the first clustered one.
	Skipped int
}

// point is one representative embedding and the window signals it stands for.
type point struct {
	vector  []float64
	members []int
}

// Group clusters signals. Signals that share a representative in d are one
// point; a signal missing from d falls back to its own embedding.
func Group(signals []signal.Signal, d *embeddings.Deduplicated, threshold float64) Result {
	if threshold <= 0 {
		threshold = DefaultDistanceThreshold
	}

	var res Result
	var points []*point
	byRep := make(map[string]*point)
	for i := range signals {
		s := &signals[i]
		key, vec := s.ID, s.Embedding
		if d != nil {
			if rep, ok := d.Representative(s.ID); ok {
				key = rep
				vec, _ = d.Get(rep)
			}
		}
		if len(vec) == 0 {
			res.Skipped++
			continue
		}
		// Ward distances need one dimension; the first point fixes it.
		if len(points) > 0 && len(vec) != len(points[0].vector) {
			res.Skipped++
			continue
		}
		if p, ok := byRep[key]; ok {
			p.members = append(p.members, i)
			continue
		}
		if len(points) == MaxPoints {
			res.Singletons = append(res.Singletons, s.ID)
			continue
		}
		p := &point{vector: unit(vec), members: []int{i}}
		byRep[key] = p
		points = append(points, p)
	}

	var labels []int
	switch len(points) {
	case 0:
		return res
	case 1:
		labels = []int{0}
	default:
		vecs := make([][]float64, len(points))
		for i, p := range points {
			vecs[i] = p.vector
		}
		labels = cut(wardLinkage(vecs), len(points), threshold)
	}

	groups := make(map[int][]int)
	var order []int
	for i, label := range labels {
		if _, ok := groups[label]; !ok {
			order = append(order, label)
		}
		groups[label] = append(groups[label], points[i].members...)
	}

	for _, label := range order {
		members := groups[label]
		sort.Ints(members)
		if len(members) < 2 {
			res.Singletons = append(res.Singletons, signals[members[0]].ID)
			continue
		}
		theme := Theme{Signals: make([]string, len(members))}
		titles := make([]string, len(members))
		for i, m := range members {
			theme.Signals[i] = signals[m].ID
			titles[i] = signals[m].Title
		}
		theme.Label = Label(titles)
		res.Themes = append(res.Themes, theme)
	}

	sort.SliceStable(res.Themes, func(i, j int) bool {
		return len(res.Themes[i].Signals) > len(res.Themes[j].Signals)
	})
	return res
}

func unit(v []float64) []float64 {
	var norm float64
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i := range out {
		out[i] /= norm
	}
	return out
}

var stopWords = func() map[string]struct{} {
	words := strings.Fields(`the a an is are was were be been being have has had do does did will
		would could should may might can shall to of in for on with at by from as into through
		during before after above below and but or nor not so yet both either neither each every
		all any few more most other some such no only own same than too very just how what which
		who whom this that these those it its new about up out one two also like get use via
		over under amid why`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// Label names a theme after the most frequent title words. Ties are broken
// alphabetically; with no usable word the first title is used.
func Label(titles []string) string {
	counts := make(map[string]int)
	for _, t := range titles {
		for _, w := range strings.Fields(strings.ToLower(t)) {
			w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
			if len([]rune(w)) <= 2 {
				continue
			}
			if _, stop := stopWords[w]; stop {
				continue
			}
			counts[w]++
		}
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > labelWords {
		words = words[:labelWords]
	}
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	if len(words) > 0 {
		return strings.Join(words, " ")
	}

	if len(titles) == 0 {
		return ""
	}
	title := []rune(titles[0])
	if len(title) > 50 {
		title = title[:50]
	}
	return string(title)
}
