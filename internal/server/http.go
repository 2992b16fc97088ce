package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/recomlive/cache"
)

// statsTimeout bounds how long /stats waits for the worker.
const statsTimeout = 5 * time.Second

// CacheSnapshot describes one identity cache.
type CacheSnapshot struct {
	Resident       int `json:"resident"`
	Recent         int `json:"recent"`
	Frequent       int `json:"frequent"`
	RecentGhosts   int `json:"recent_ghosts"`
	FrequentGhosts int `json:"frequent_ghosts"`
	Target         int `json:"target"`
}

func cacheSnapshot(st cache.Stats) CacheSnapshot {
	return CacheSnapshot{
		Resident:       st.Recent + st.Frequent,
		Recent:         st.Recent,
		Frequent:       st.Frequent,
		RecentGhosts:   st.RecentGhosts,
		FrequentGhosts: st.FrequentGhosts,
		Target:         st.Target,
	}
}

// Snapshot is the body of GET /stats.
type Snapshot struct {
	Documents  CacheSnapshot `json:"documents"`
	Persons    CacheSnapshot `json:"persons"`
	QueueDepth int           `json:"queue_depth"`
	Dropped    uint64        `json:"dropped_requests"`
}

// snapshot must run on the worker.
func (s *Server) snapshot() Snapshot {
	st := s.backend.Stats()
	return Snapshot{
		Documents:  cacheSnapshot(st.Docs),
		Persons:    cacheSnapshot(st.Persons),
		QueueDepth: s.q.depth(),
		Dropped:    s.q.dropped.Load(),
	}
}

// Router serves /healthz, /metrics and /stats.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.opt.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/stats", s.handleStats)
	return r
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
	defer cancel()

	ch := make(chan Snapshot, 1)
	if !s.q.submit(job{run: func() { ch <- s.snapshot() }}) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
		return
	}

	select {
	case snap := <-ch:
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			s.log.Debug().Err(err).Msg("write /stats")
		}
	case <-ctx.Done():
		http.Error(w, "worker busy", http.StatusServiceUnavailable)
	}
}
