package indexcache

import "github.com/TobiSchelling/envscan/internal/signal"

// VerdictKind classifies one incoming signal against the index.
type VerdictKind string

const (
	VerdictNew            VerdictKind = "new"
	VerdictDuplicateURL   VerdictKind = "duplicate_url"
	VerdictDuplicateTitle VerdictKind = "duplicate_title"
	VerdictInvalid        VerdictKind = "invalid"
)

// Verdict is the duplicate decision for one signal. MatchedID names the
// signal that owns the colliding key; it can be the signal itself when the
// batch was already indexed. Stage and Score are set by the near-duplicate
// stages only.
type Verdict struct {
	SignalID  string      `json:"signal_id"`
	Kind      VerdictKind `json:"kind"`
	MatchedID string      `json:"matched_id,omitempty"`
	Stage     string      `json:"stage,omitempty"`
	Score     float64     `json:"score,omitempty"`
}

// Duplicate reports whether the verdict marks an exact duplicate.
func (v Verdict) Duplicate() bool {
	return v.Kind == VerdictDuplicateURL || v.Kind == VerdictDuplicateTitle
}

// Flagged reports whether the verdict names any match, exact or near.
func (v Verdict) Flagged() bool {
	return v.MatchedID != "" && v.Kind != VerdictNew
}

// Check classifies a batch against the cached indexes without modifying
// them. URL collisions win over title collisions. Keys repeated inside the
// batch are caught too: the first occurrence is new, later ones point at it.
func (c *Cache) Check(batch []signal.Signal) []Verdict {
	seenURL := make(map[string]string)
	seenTitle := make(map[string]string)

	verdicts := make([]Verdict, 0, len(batch))
	for i := range batch {
		sig := &batch[i]
		if sig.ID == "" {
			verdicts = append(verdicts, Verdict{Kind: VerdictInvalid})
			continue
		}

		urlKey := ""
		if sig.Source.URL != "" {
			urlKey = NormalizeURL(sig.Source.URL)
		}
		titleKey := ""
		if sig.Title != "" {
			titleKey = NormalizeTitle(sig.Title)
		}

		v := Verdict{SignalID: sig.ID, Kind: VerdictNew}
		if id, ok := lookup(urlKey, c.idx.set.ByURL, seenURL); ok {
			v.Kind, v.MatchedID = VerdictDuplicateURL, id
		} else if id, ok := lookup(titleKey, c.idx.set.ByTitle, seenTitle); ok {
			v.Kind, v.MatchedID = VerdictDuplicateTitle, id
		}

		if urlKey != "" {
			if _, ok := seenURL[urlKey]; !ok {
				seenURL[urlKey] = sig.ID
			}
		}
		if titleKey != "" {
			if _, ok := seenTitle[titleKey]; !ok {
				seenTitle[titleKey] = sig.ID
			}
		}
		verdicts = append(verdicts, v)
	}
	return verdicts
}

func lookup(key string, index, seen map[string]string) (string, bool) {
	if key == "" {
		return "", false
	}
	if id, ok := index[key]; ok {
		return id, true
	}
	id, ok := seen[key]
	return id, ok
}
