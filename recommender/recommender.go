// Package recommender binds the identity caches, the per-person histories
// and the predictor into the record / recommend / history operations.
package recommender

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/IvanBrykalov/recomlive/cache"
	"github.com/IvanBrykalov/recomlive/history"
	"github.com/IvanBrykalov/recomlive/predictor"
	"github.com/IvanBrykalov/recomlive/telemetry"
)

// Config bounds the recommender. Zero values are replaced by defaults in New.
type Config struct {
	// DocsLimit is the document cache capacity, hence the predictor vocabulary.
	DocsLimit int
	// PersonsLimit is the person cache capacity.
	PersonsLimit int
	// RecsLimit bounds the length of every recommendation.
	RecsLimit int
}

// Defaults.
const (
	DefaultDocsLimit    = 2000
	DefaultPersonsLimit = 2000
	DefaultRecsLimit    = 5
)

// Options carries optional collaborators.
type Options struct {
	// Sink receives observability signals. Nil => telemetry.Noop.
	Sink telemetry.Sink
	// Logger is used for debug traces. Zero value => zerolog.Nop().
	Logger *zerolog.Logger
	// DocsMetrics and PersonsMetrics observe the two caches. Nil => no-op.
	DocsMetrics    cache.Metrics
	PersonsMetrics cache.Metrics
}

// Stats is a point-in-time view of both caches.
type Stats struct {
	Docs    cache.Stats
	Persons cache.Stats
}

// Recommender owns all mutable state of the service. It is not safe for
// concurrent use: every call must come from one goroutine (see internal/server).
type Recommender struct {
	cfg   Config
	docs  *cache.ARC[string, struct{}]
	users *cache.ARC[string, *history.Person]
	model predictor.Predictor
	sink  telemetry.Sink
	log   zerolog.Logger

	histLimit int
}

// New builds a Recommender around model. The model's vocabulary must match
// cfg.DocsLimit.
func New(cfg Config, model predictor.Predictor, opt Options) *Recommender {
	if cfg.DocsLimit <= 0 {
		cfg.DocsLimit = DefaultDocsLimit
	}
	if cfg.PersonsLimit <= 0 {
		cfg.PersonsLimit = DefaultPersonsLimit
	}
	if cfg.RecsLimit <= 0 {
		cfg.RecsLimit = DefaultRecsLimit
	}
	if opt.Sink == nil {
		opt.Sink = telemetry.Noop{}
	}
	log := zerolog.Nop()
	if opt.Logger != nil {
		log = *opt.Logger
	}

	return &Recommender{
		cfg: cfg,
		docs: cache.New(cache.Options[string, struct{}]{
			Capacity: cfg.DocsLimit,
			Metrics:  opt.DocsMetrics,
		}),
		users: cache.New(cache.Options[string, *history.Person]{
			Capacity: cfg.PersonsLimit,
			Metrics:  opt.PersonsMetrics,
		}),
		model:     model,
		sink:      opt.Sink,
		log:       log,
		histLimit: history.Limit(cfg.DocsLimit),
	}
}

// Config returns the effective configuration.
func (r *Recommender) Config() Config { return r.cfg }

// Record registers that person visited doc and, when this visit completes
// a new transition, trains the model on it.
//
// Training fires only when the person's unlearned prefix is exactly two
// visits long and both documents are still resident. An error is returned
// only if the predictor fails; the visit itself is recorded regardless.
func (r *Recommender) Record(doc, person string) error {
	r.sink.Count(telemetry.RecordCall, 1)

	if _, hit := r.docs.GetOrInsert(doc, nil); hit {
		r.sink.Count(telemetry.DocumentsCacheHit, 1)
	}
	pe, hit := r.users.GetOrInsert(person, func() *history.Person {
		return history.New(person, r.histLimit)
	})
	if hit {
		r.sink.Count(telemetry.PersonsCacheHit, 1)
	}
	p := pe.Value

	if p.WasRecommended(doc) {
		r.sink.Count(telemetry.RecommendationHit, 1)
	}
	p.Append(doc)

	unlearned := p.UnlearnedPrefix()
	if len(unlearned) != 2 {
		return nil
	}
	// unlearned is newest-first; the model wants oldest-to-newest.
	prev, ok1 := r.docs.Lookup(unlearned[1])
	next, ok2 := r.docs.Lookup(unlearned[0])
	if !ok1 || !ok2 {
		r.log.Debug().Str("person", person).Strs("docs", unlearned).
			Msg("context evicted, skipping training step")
		return nil
	}

	loss, err := r.model.Fit([]int{prev.Index, next.Index})
	if err != nil {
		return fmt.Errorf("recommender: fit %s->%s: %w", unlearned[1], unlearned[0], err)
	}
	r.sink.Count(telemetry.TrainStep, 1)
	r.sink.Gauge(telemetry.TrainLoss, loss)
	p.MarkLearned(unlearned)
	return nil
}

// Recommend returns up to RecsLimit documents likely to follow doc, leaving
// out doc itself and anything already in person's history. person may be
// empty for anonymous requests. Unknown ids yield an empty result.
func (r *Recommender) Recommend(doc, person string) []string {
	r.sink.Count(telemetry.RecommendCall, 1)

	de, ok := r.docs.Lookup(doc)
	if !ok {
		r.sink.Count(telemetry.NoRecommendations, 1)
		return []string{}
	}

	var p *history.Person
	if person != "" {
		if pe, ok := r.users.Lookup(person); ok {
			p = pe.Value
		}
	}

	recs := make([]string, 0, r.cfg.RecsLimit)
	for _, idx := range r.model.Predict(de.Index) {
		if len(recs) == r.cfg.RecsLimit {
			break
		}
		if idx == de.Index || idx < 0 || idx >= r.docs.Cap() {
			continue
		}
		cand, ok := r.docs.LookupIndex(idx)
		if !ok {
			continue
		}
		if p != nil && p.Contains(cand.Key) {
			continue
		}
		recs = append(recs, cand.Key)
	}

	if len(recs) == 0 {
		r.sink.Count(telemetry.NoRecommendations, 1)
	}
	if p != nil {
		p.SetLastRecommendations(recs)
	}
	return recs
}

// PersonHistory returns person's visits, newest first, or an empty slice.
func (r *Recommender) PersonHistory(person string) []string {
	pe, ok := r.users.Lookup(person)
	if !ok {
		return []string{}
	}
	return pe.Value.Docs()
}

// Stats reports list sizes and targets of both caches.
func (r *Recommender) Stats() Stats {
	return Stats{Docs: r.docs.Stats(), Persons: r.users.Stats()}
}
