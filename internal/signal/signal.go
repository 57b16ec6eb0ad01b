package signal

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const unknown = "Unknown"

// Source describes where a signal was found.
type Source struct {
	Name          string `json:"name,omitempty"`
	Type          string `json:"type,omitempty"`
	URL           string `json:"url,omitempty"`
	PublishedDate string `json:"published_date,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Content holds the scanned text metadata.
type Content struct {
	Abstract string   `json:"abstract,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Language string   `json:"language,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Classification is assigned by an upstream classifier.
type Classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Influence is one directed cross-influence edge to another signal.
type Influence struct {
	TargetSignal   string  `json:"target_signal"`
	InfluenceScore float64 `json:"influence_score"`
	InfluenceType  string  `json:"influence_type,omitempty"`
}

// Signal is one scanned document record. The ID is assigned once by the
// scanner and never changes. JSON keys this type does not model are kept in
// Extra and written back on marshal; Source, Content and Classification do
// the same for their own keys.
type Signal struct {
	ID                  string          `json:"id"`
	Title               string          `json:"title,omitempty"`
	Source              Source          `json:"source"`
	Content             Content         `json:"content"`
	Entities            []string        `json:"entities,omitempty"`
	Embedding           []float64       `json:"embedding,omitempty"`
	EmbeddingModel      string          `json:"embedding_model,omitempty"`
	Classification      *Classification `json:"classification,omitempty"`
	PreliminaryCategory string          `json:"preliminary_category,omitempty"`
	ImpactScore         *float64        `json:"impact_score,omitempty"`
	Influences          []Influence     `json:"influences,omitempty"`
	CollectedAt         string          `json:"collected_at,omitempty"`
	AddedToDBAt         string          `json:"added_to_db_at,omitempty"`
	ScanDate            string          `json:"scan_date,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type (
	plain               Signal
	plainSource         Source
	plainContent        Content
	plainClassification Classification
)

var (
	signalFields         = jsonFieldNames(reflect.TypeOf(plain{}))
	sourceFields         = jsonFieldNames(reflect.TypeOf(plainSource{}))
	contentFields        = jsonFieldNames(reflect.TypeOf(plainContent{}))
	classificationFields = jsonFieldNames(reflect.TypeOf(plainClassification{}))
)

func jsonFieldNames(t reflect.Type) []string {
	var names []string
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		names = append(names, name)
	}
	return names
}

// unknownFields returns the object keys of data that are not in known, or
// nil when there are none.
func unknownFields(data []byte, known []string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for _, name := range known {
		delete(fields, name)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// withExtra encodes v and adds the extra keys it does not already carry.
func withExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := fields[k]; !ok {
			fields[k] = raw
		}
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes the modelled fields and keeps the rest in Extra.
func (s *Signal) UnmarshalJSON(data []byte) error {
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownFields(data, signalFields)
	if err != nil {
		return err
	}
	p.Extra = extra
	*s = Signal(p)
	return nil
}

// MarshalJSON encodes the modelled fields plus any preserved extras.
func (s Signal) MarshalJSON() ([]byte, error) {
	return withExtra(plain(s), s.Extra)
}

func (s *Source) UnmarshalJSON(data []byte) error {
	var p plainSource
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownFields(data, sourceFields)
	if err != nil {
		return err
	}
	p.Extra = extra
	*s = Source(p)
	return nil
}

func (s Source) MarshalJSON() ([]byte, error) {
	return withExtra(plainSource(s), s.Extra)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var p plainContent
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownFields(data, contentFields)
	if err != nil {
		return err
	}
	p.Extra = extra
	*c = Content(p)
	return nil
}

func (c Content) MarshalJSON() ([]byte, error) {
	return withExtra(plainContent(c), c.Extra)
}

func (c *Classification) UnmarshalJSON(data []byte) error {
	var p plainClassification
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := unknownFields(data, classificationFields)
	if err != nil {
		return err
	}
	p.Extra = extra
	*c = Classification(p)
	return nil
}

func (c Classification) MarshalJSON() ([]byte, error) {
	return withExtra(plainClassification(c), c.Extra)
}

// Category resolves the classifier category, then the legacy preliminary
// category, then "Unknown".
func (s *Signal) Category() string {
	if s.Classification != nil && s.Classification.Category != "" {
		return s.Classification.Category
	}
	if s.PreliminaryCategory != "" {
		return s.PreliminaryCategory
	}
	return unknown
}

// SourceName returns the source name or "Unknown".
func (s *Signal) SourceName() string {
	if s.Source.Name != "" {
		return s.Source.Name
	}
	return unknown
}

// Date returns the first parseable date of the signal, checking legacy
// fields first, then collected_at, scan_date, added_to_db_at and the
// source published date.
func (s *Signal) Date() (time.Time, bool) {
	candidates := []string{
		s.extraString("first_detected"),
		s.extraString("date"),
		s.CollectedAt,
		s.ScanDate,
		s.AddedToDBAt,
		s.Source.PublishedDate,
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		// The first present field decides, even when it does not parse.
		t, err := dateparse.ParseAny(c)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

func (s *Signal) extraString(key string) string {
	raw, ok := s.Extra[key]
	if !ok {
		return ""
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v
}

// Clone returns a deep copy of the signal.
func (s *Signal) Clone() Signal {
	c := *s
	c.Source.Extra = cloneExtra(s.Source.Extra)
	c.Content.Keywords = append([]string(nil), s.Content.Keywords...)
	c.Content.Extra = cloneExtra(s.Content.Extra)
	c.Entities = append([]string(nil), s.Entities...)
	c.Embedding = append([]float64(nil), s.Embedding...)
	c.Influences = append([]Influence(nil), s.Influences...)
	if s.Classification != nil {
		cl := *s.Classification
		cl.Extra = cloneExtra(s.Classification.Extra)
		c.Classification = &cl
	}
	if s.ImpactScore != nil {
		v := *s.ImpactScore
		c.ImpactScore = &v
	}
	c.Extra = cloneExtra(s.Extra)
	return c
}

func cloneExtra(extra map[string]json.RawMessage) map[string]json.RawMessage {
	if extra == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(extra))
	for k, v := range extra {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
