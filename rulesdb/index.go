package rulesdb

import (
	"sort"
	"strings"
	"sync/atomic"

	"rulebase/core"
)

type idSet map[string]struct{}

func (s idSet) add(id string) { s[id] = struct{}{} }

func (s idSet) has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s idSet) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// indexGeneration is an immutable snapshot of the inverted indices.
type indexGeneration struct {
	generation uint64
	active     idSet
	rules      map[string]*core.Rule
	languages  map[string]idSet
	domains    map[string]idSet
	types      map[string]idSet
	tags       map[string]idSet
}

// Index holds the current generation of inverted indices.
// Readers load the pointer without locking; writers build a new generation and swap it in.
type Index struct {
	current atomic.Pointer[indexGeneration]
	counter atomic.Uint64
}

// NewIndex creates an index with an empty generation
func NewIndex() *Index {
	idx := &Index{}
	idx.current.Store(buildGeneration(0, nil))
	return idx
}

// Rebuild replaces the current generation with one built from rules.
// Only active rules participate. Returns the new generation number.
func (idx *Index) Rebuild(rules []*core.Rule) uint64 {
	gen := idx.counter.Add(1)
	idx.current.Store(buildGeneration(gen, rules))
	return gen
}

func buildGeneration(gen uint64, rules []*core.Rule) *indexGeneration {
	g := &indexGeneration{
		generation: gen,
		active:     make(idSet),
		rules:      make(map[string]*core.Rule),
		languages:  make(map[string]idSet),
		domains:    make(map[string]idSet),
		types:      make(map[string]idSet),
		tags:       make(map[string]idSet),
	}
	for _, r := range rules {
		if r == nil || !r.Active || r.Version == "" {
			continue
		}
		g.active.add(r.RuleID)
		g.rules[r.RuleID] = r
		for _, l := range r.Languages {
			bucket(g.languages, l).add(r.RuleID)
		}
		for _, d := range r.Domains {
			bucket(g.domains, d).add(r.RuleID)
		}
		bucket(g.types, string(r.RuleType)).add(r.RuleID)
		for _, t := range r.Tags {
			bucket(g.tags, t).add(r.RuleID)
		}
	}
	return g
}

func bucket(m map[string]idSet, key string) idSet {
	key = strings.ToLower(strings.TrimSpace(key))
	s, ok := m[key]
	if !ok {
		s = make(idSet)
		m[key] = s
	}
	return s
}

func (idx *Index) snapshot() *indexGeneration {
	return idx.current.Load()
}

// ActiveIDs returns the sorted identifiers of indexed rules.
func (idx *Index) ActiveIDs() []string {
	return idx.snapshot().active.sorted()
}

// ActiveRules returns indexed rules sorted by identifier.
func (idx *Index) ActiveRules() []*core.Rule {
	g := idx.snapshot()
	ids := g.active.sorted()
	out := make([]*core.Rule, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.rules[id])
	}
	return out
}

// IsActive reports whether id is indexed.
func (idx *Index) IsActive(id string) bool {
	return idx.snapshot().active.has(id)
}

// Keys returns the sorted bucket keys per dimension.
func (idx *Index) Keys() (languages, domains, types, tags []string) {
	g := idx.snapshot()
	return keys(g.languages), keys(g.domains), keys(g.types), keys(g.tags)
}

func keys(m map[string]idSet) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// unionOf collects the ids of every bucket named in values.
func unionOf(m map[string]idSet, values []string) idSet {
	out := make(idSet)
	for _, v := range values {
		for id := range m[strings.ToLower(v)] {
			out.add(id)
		}
	}
	return out
}

// intersect keeps only ids of s also present in other.
func (s idSet) intersect(other idSet) idSet {
	out := make(idSet)
	for id := range s {
		if other.has(id) {
			out.add(id)
		}
	}
	return out
}
