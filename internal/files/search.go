package files

import (
	"path/filepath"
	"sort"
	"strings"
)

// Score tiers. A higher tier always outranks any number of lower matches.
const (
	scoreExactID   = 1000
	scoreExactName = 100
	scoreTagToken  = 10
)

type scored struct {
	entry *Entry
	score int
	order int
}

// Search ranks the entries visible to the identity against query.
// An empty query lists every visible entry in registry order.
// A limit <= 0 returns all matches.
func Search(entries []*Entry, query string, id Identity, d Defaults, limit int) []*Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	tokens := strings.Fields(q)

	var hits []scored
	for i, e := range entries {
		if !IsAllowed(e, id, d) {
			continue
		}
		if len(tokens) == 0 {
			hits = append(hits, scored{entry: e, order: i})
			continue
		}
		if s := score(e, q, tokens); s > 0 {
			hits = append(hits, scored{entry: e, score: s, order: i})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].order < hits[b].order
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]*Entry, len(hits))
	for i, h := range hits {
		out[i] = h.entry
	}
	return out
}

// FindBest returns the top ranked visible entry for a non-empty query
func FindBest(entries []*Entry, query string, id Identity, d Defaults) (*Entry, int, bool) {
	if strings.TrimSpace(query) == "" {
		return nil, 0, false
	}
	hits := Search(entries, query, id, d, 0)
	if len(hits) == 0 {
		return nil, 0, false
	}
	return hits[0], len(hits) - 1, true
}

func score(e *Entry, q string, tokens []string) int {
	id := strings.ToLower(e.ID)
	name := strings.ToLower(e.Name)
	base := strings.ToLower(filepath.Base(e.Path))
	desc := strings.ToLower(e.Description)
	tags := make([]string, len(e.Tags))
	for i, t := range e.Tags {
		tags[i] = strings.ToLower(t)
	}

	s := 0
	if q == id {
		s += scoreExactID
	}
	if q == name || (e.Path != "" && q == base) {
		s += scoreExactName
	}
	for _, tok := range tokens {
		if containsExact(tags, tok) {
			s += scoreTagToken
			break
		}
	}

	// One point per distinct field that contains the query or a token.
	for _, field := range []string{id, name + "\x00" + base, desc, strings.Join(tags, "\x00")} {
		if field != "" && matchesAny(field, q, tokens) {
			s++
		}
	}
	return s
}

func containsExact(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func matchesAny(field, q string, tokens []string) bool {
	if strings.Contains(field, q) {
		return true
	}
	for _, tok := range tokens {
		if strings.Contains(field, tok) {
			return true
		}
	}
	return false
}
