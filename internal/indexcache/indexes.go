package indexcache

import (
	"slices"

	"github.com/TobiSchelling/envscan/internal/signal"
)

// IndexSet holds the three duplicate-lookup indexes.
//
//	by_url:      normalized url   -> signal id
//	by_title:    normalized title -> signal id
//	by_entities: entity           -> ordered, distinct signal ids
type IndexSet struct {
	ByURL      map[string]string   `json:"by_url"`
	ByTitle    map[string]string   `json:"by_title"`
	ByEntities map[string][]string `json:"by_entities"`
}

// NewIndexSet returns an empty, non-nil IndexSet.
func NewIndexSet() IndexSet {
	return IndexSet{
		ByURL:      make(map[string]string),
		ByTitle:    make(map[string]string),
		ByEntities: make(map[string][]string),
	}
}

// Clone returns a deep copy. Mutating the copy never touches the receiver.
func (s IndexSet) Clone() IndexSet {
	c := IndexSet{
		ByURL:      make(map[string]string, len(s.ByURL)),
		ByTitle:    make(map[string]string, len(s.ByTitle)),
		ByEntities: make(map[string][]string, len(s.ByEntities)),
	}
	for k, v := range s.ByURL {
		c.ByURL[k] = v
	}
	for k, v := range s.ByTitle {
		c.ByTitle[k] = v
	}
	for k, ids := range s.ByEntities {
		c.ByEntities[k] = slices.Clone(ids)
	}
	return c
}

// Build indexes signals from scratch without touching any cache file.
func Build(signals []signal.Signal) IndexSet {
	b := newBuilder()
	for i := range signals {
		b.add(&signals[i])
	}
	return b.set
}

// claimFirstWriter implements the first-writer-wins policy: a key already
// owned by a signal is never reassigned, even to a newer signal. Duplicates
// resolve to the earliest signal ever indexed under that key.
func claimFirstWriter(index map[string]string, key, id string) bool {
	if key == "" {
		return false
	}
	if _, taken := index[key]; taken {
		return false
	}
	index[key] = id
	return true
}

// builder keeps a membership set next to each entity list so appends stay O(1).
type builder struct {
	set     IndexSet
	members map[string]map[string]struct{}
}

func newBuilder() *builder {
	return &builder{
		set:     NewIndexSet(),
		members: make(map[string]map[string]struct{}),
	}
}

// fromIndexSet adopts a loaded IndexSet, dropping repeated ids per entity.
func fromIndexSet(s IndexSet) *builder {
	b := newBuilder()
	for k, v := range s.ByURL {
		b.set.ByURL[k] = v
	}
	for k, v := range s.ByTitle {
		b.set.ByTitle[k] = v
	}
	for entity, ids := range s.ByEntities {
		for _, id := range ids {
			b.addEntity(entity, id)
		}
	}
	return b
}

// add indexes one signal and reports whether it claimed a new URL key.
func (b *builder) add(sig *signal.Signal) bool {
	if sig.ID == "" {
		return false
	}

	added := false
	if sig.Source.URL != "" {
		added = claimFirstWriter(b.set.ByURL, NormalizeURL(sig.Source.URL), sig.ID)
	}
	if sig.Title != "" {
		claimFirstWriter(b.set.ByTitle, NormalizeTitle(sig.Title), sig.ID)
	}
	for _, entity := range sig.Entities {
		b.addEntity(entity, sig.ID)
	}
	return added
}

func (b *builder) addEntity(entity, id string) {
	if entity == "" {
		return
	}
	m, ok := b.members[entity]
	if !ok {
		m = make(map[string]struct{})
		b.members[entity] = m
	}
	if _, dup := m[id]; dup {
		return
	}
	m[id] = struct{}{}
	b.set.ByEntities[entity] = append(b.set.ByEntities[entity], id)
}

// remove reverses every index entry owned by id for the given record.
func (b *builder) remove(id string, original *signal.Signal) {
	if original.Source.URL != "" {
		key := NormalizeURL(original.Source.URL)
		if b.set.ByURL[key] == id {
			delete(b.set.ByURL, key)
		}
	}
	if original.Title != "" {
		key := NormalizeTitle(original.Title)
		if b.set.ByTitle[key] == id {
			delete(b.set.ByTitle, key)
		}
	}
	for _, entity := range original.Entities {
		m, ok := b.members[entity]
		if !ok {
			continue
		}
		if _, present := m[id]; present {
			delete(m, id)
			ids := b.set.ByEntities[entity]
			if i := slices.Index(ids, id); i >= 0 {
				b.set.ByEntities[entity] = slices.Delete(ids, i, i+1)
			}
		}
		if len(m) == 0 {
			delete(b.members, entity)
			delete(b.set.ByEntities, entity)
		}
	}
}
