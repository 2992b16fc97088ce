// Package history tracks what each person has recently visited and which
// visits have already been used to train the predictor.
package history

import (
	list "github.com/bahlo/generic-list-go"
)

// MinLimit is the smallest history bound Limit will return.
const MinLimit = 10

// Limit derives the per-person history bound from the document capacity:
// max(docs/10, MinLimit).
func Limit(docs int) int {
	return max(docs/10, MinLimit)
}

type visit struct {
	doc     string
	learned bool
}

// Person is the bounded, most-recent-first visit history of one person plus
// the set of documents last recommended to them.
//
// Person is not safe for concurrent use.
type Person struct {
	id    string
	limit int

	visits *list.List[visit] // Front is newest
	recs   map[string]struct{}
}

// New creates an empty record for id with room for limit visits.
// limit < 1 is clamped to 1.
func New(id string, limit int) *Person {
	if limit < 1 {
		limit = 1
	}
	return &Person{
		id:     id,
		limit:  limit,
		visits: list.New[visit](),
		recs:   map[string]struct{}{},
	}
}

// ID returns the person id.
func (p *Person) ID() string { return p.id }

// Limit returns the history bound L.
func (p *Person) Limit() int { return p.limit }

// Len returns the number of tracked visits.
func (p *Person) Len() int { return p.visits.Len() }

// Append records a visit to doc. When the history is full the oldest visit
// is dropped first. A visit equal to the newest one is ignored, so page
// reloads never produce two consecutive equal entries.
func (p *Person) Append(doc string) {
	if p.visits.Len() >= p.limit {
		p.visits.Remove(p.visits.Back())
	}
	if front := p.visits.Front(); front != nil && front.Value.doc == doc {
		return
	}
	p.visits.PushFront(visit{doc: doc})
}

// UnlearnedPrefix returns the newest-first run of visits that have not been
// used for training yet, stopping at the first learned visit.
func (p *Person) UnlearnedPrefix() []string {
	var docs []string
	for e := p.visits.Front(); e != nil && !e.Value.learned; e = e.Next() {
		docs = append(docs, e.Value.doc)
	}
	return docs
}

// MarkLearned flags every visit whose doc is in ids[1:] as learned.
// ids is expected newest-first (as returned by UnlearnedPrefix); the newest
// id stays unlearned because it is the context of the next transition.
func (p *Person) MarkLearned(ids []string) {
	if len(ids) < 2 {
		return
	}
	set := make(map[string]struct{}, len(ids)-1)
	for _, id := range ids[1:] {
		set[id] = struct{}{}
	}
	for e := p.visits.Front(); e != nil; e = e.Next() {
		if _, ok := set[e.Value.doc]; ok {
			e.Value.learned = true
		}
	}
}

// SetLastRecommendations replaces the set of documents last recommended.
func (p *Person) SetLastRecommendations(ids []string) {
	clear(p.recs)
	for _, id := range ids {
		p.recs[id] = struct{}{}
	}
}

// WasRecommended reports whether doc was in the last recommendation.
func (p *Person) WasRecommended(doc string) bool {
	_, ok := p.recs[doc]
	return ok
}

// Contains reports whether doc is anywhere in the tracked history.
func (p *Person) Contains(doc string) bool {
	for e := p.visits.Front(); e != nil; e = e.Next() {
		if e.Value.doc == doc {
			return true
		}
	}
	return false
}

// Docs returns the tracked history, newest first.
func (p *Person) Docs() []string {
	docs := make([]string, 0, p.visits.Len())
	for e := p.visits.Front(); e != nil; e = e.Next() {
		docs = append(docs, e.Value.doc)
	}
	return docs
}
