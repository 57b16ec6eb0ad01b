package indexcache

import (
	"strings"
	"unicode/utf8"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/TobiSchelling/envscan/internal/signal"
)

const (
	VerdictNearDuplicate VerdictKind = "near_duplicate"
	VerdictUncertain     VerdictKind = "uncertain"
)

// Near-duplicate stages, in the order they run.
const (
	StageTopic  = "topic"
	StageTitle  = "title"
	StageEntity = "entity"
)

// Thresholds holds the definite and uncertain cut-offs of each near-duplicate
// stage. A score at or above the definite value ends the cascade.
type Thresholds struct {
	TopicDefinite   float64
	TopicUncertain  float64
	TitleDefinite   float64
	TitleUncertain  float64
	EntityDefinite  float64
	EntityUncertain float64
}

// DefaultThresholds are tuned for short news titles.
var DefaultThresholds = Thresholds{
	TopicDefinite:   0.60,
	TopicUncertain:  0.30,
	TitleDefinite:   0.90,
	TitleUncertain:  0.80,
	EntityDefinite:  0.85,
	EntityUncertain: 0.70,
}

var fingerprintStopWords = func() map[string]struct{} {
	words := strings.Fields(`the and for with from that this will has have are was were been being
		their into over about between through after before during without under within
		against along could would should also more most than 2024 2025 2026 2027 first
		last says show shows finds report reports study year years according among based
		global world major`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// Fingerprint is the topic word set of a signal: title words and keyword
// words longer than three characters, minus common words.
func Fingerprint(sig *signal.Signal) map[string]struct{} {
	words := make(map[string]struct{})
	add := func(w string) {
		if utf8.RuneCountInString(w) <= 3 {
			return
		}
		if _, stop := fingerprintStopWords[w]; stop {
			return
		}
		words[w] = struct{}{}
	}
	for _, w := range strings.Fields(NormalizeTitle(sig.Title)) {
		add(w)
	}
	for _, kw := range sig.Content.Keywords {
		for _, w := range strings.Fields(strings.ToLower(kw)) {
			add(w)
		}
	}
	return words
}

// Overlap is |a∩b| / min(|a|, |b|), or 0 when either set is empty.
func Overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	return float64(intersect(small, large)) / float64(len(small))
}

// Jaccard is |a∩b| / |a∪b|, or 0 when either set is empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := intersect(a, b)
	return float64(n) / float64(len(a)+len(b)-n)
}

func intersect(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

var jaroWinkler = metrics.NewJaroWinkler()

// TitleSimilarity is the Jaro-Winkler similarity of two trimmed,
// lower-cased titles; 0 when either is empty.
func TitleSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	return strutil.Similarity(a, b, jaroWinkler)
}

func entitySet(sig *signal.Signal) map[string]struct{} {
	set := make(map[string]struct{}, len(sig.Entities))
	for _, e := range sig.Entities {
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}

// recent is the near-duplicate view of a window of stored signals.
type recent struct {
	signals      []signal.Signal
	pos          map[string]int
	fingerprints []map[string]struct{}
	entities     []map[string]struct{}
	byEntity     map[string][]string
}

func newRecent(signals []signal.Signal, idx IndexSet) *recent {
	r := &recent{
		signals:      signals,
		pos:          make(map[string]int, len(signals)),
		fingerprints: make([]map[string]struct{}, len(signals)),
		entities:     make([]map[string]struct{}, len(signals)),
		byEntity:     idx.ByEntities,
	}
	for i := range signals {
		r.pos[signals[i].ID] = i
		r.fingerprints[i] = Fingerprint(&signals[i])
		r.entities[i] = entitySet(&signals[i])
	}
	return r
}

type match struct {
	stage string
	score float64
	id    string
}

// cascade runs the topic, title and entity stages for one incoming signal.
// A definite score in any stage wins at once; otherwise the best uncertain
// score across the stages decides.
func (r *recent) cascade(sig *signal.Signal, th Thresholds) (VerdictKind, match) {
	var uncertain match

	stage := func(m match, definite, floor float64) bool {
		if m.score >= definite {
			return true
		}
		if m.score >= floor && m.score > uncertain.score {
			uncertain = m
		}
		return false
	}

	fp := Fingerprint(sig)
	best := match{stage: StageTopic}
	for i := range r.signals {
		if r.signals[i].ID == sig.ID {
			continue
		}
		if s := Overlap(fp, r.fingerprints[i]); s > best.score {
			best.score, best.id = s, r.signals[i].ID
		}
	}
	if stage(best, th.TopicDefinite, th.TopicUncertain) {
		return VerdictNearDuplicate, best
	}

	best = match{stage: StageTitle}
	if sig.Title != "" {
		for i := range r.signals {
			if r.signals[i].ID == sig.ID || r.signals[i].Title == "" {
				continue
			}
			if s := TitleSimilarity(sig.Title, r.signals[i].Title); s > best.score {
				best.score, best.id = s, r.signals[i].ID
			}
		}
	}
	if stage(best, th.TitleDefinite, th.TitleUncertain) {
		return VerdictNearDuplicate, best
	}

	// Only window signals sharing an entity can score above zero, so the
	// entity index supplies the candidates.
	best = match{stage: StageEntity}
	ents := entitySet(sig)
	checked := make(map[string]struct{})
	for e := range ents {
		for _, id := range r.byEntity[e] {
			if _, done := checked[id]; done || id == sig.ID {
				continue
			}
			checked[id] = struct{}{}
			i, ok := r.pos[id]
			if !ok {
				continue
			}
			if s := Jaccard(ents, r.entities[i]); s > best.score || (s == best.score && id < best.id) {
				best.score, best.id = s, id
			}
		}
	}
	if stage(best, th.EntityDefinite, th.EntityUncertain) {
		return VerdictNearDuplicate, best
	}

	if uncertain.score > 0 {
		return VerdictUncertain, uncertain
	}
	return VerdictNew, match{}
}

// CheckRecent is Check followed by near-duplicate stages for every signal
// Check found new. Those stages compare against the recent window only:
// recentSignals and the IndexSet built from them.
func (c *Cache) CheckRecent(batch, recentSignals []signal.Signal, recentIdx IndexSet, th Thresholds) []Verdict {
	verdicts := c.Check(batch)
	if len(recentSignals) == 0 {
		return verdicts
	}

	r := newRecent(recentSignals, recentIdx)
	for i := range verdicts {
		if verdicts[i].Kind != VerdictNew {
			continue
		}
		kind, m := r.cascade(&batch[i], th)
		if kind == VerdictNew {
			continue
		}
		verdicts[i].Kind = kind
		verdicts[i].MatchedID = m.id
		verdicts[i].Stage = m.stage
		verdicts[i].Score = m.score
	}
	return verdicts
}
