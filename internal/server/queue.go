package server

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/IvanBrykalov/recomlive/telemetry"
)

// DefaultQueueLimit bounds the request FIFO.
const DefaultQueueLimit = 10000

// job is one unit of work for the worker. Exactly one of data, run or
// stop is set.
type job struct {
	data []byte
	addr net.Addr
	run  func()
	stop bool
}

// queue is the bounded FIFO in front of the single worker. Producers never
// block: when the channel is full the job is dropped.
type queue struct {
	ch      chan job
	sink    telemetry.Sink
	log     zerolog.Logger
	limit   *rate.Limiter
	dropped atomic.Uint64
}

//nolint:gocritic // zerolog.Logger is designed to be passed by value
func newQueue(n int, sink telemetry.Sink, log zerolog.Logger) *queue {
	if n <= 0 {
		n = DefaultQueueLimit
	}
	return &queue{
		ch:    make(chan job, n),
		sink:  sink,
		log:   log,
		limit: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// submit enqueues j without blocking and reports whether it was accepted.
func (q *queue) submit(j job) bool {
	select {
	case q.ch <- j:
		return true
	default:
	}

	n := q.dropped.Add(1)
	q.sink.Count(telemetry.DroppedRequests, 1)
	if q.limit.Allow() {
		q.log.Warn().Uint64("dropped_total", n).Int("limit", cap(q.ch)).Msg("queue full, dropping request")
	}
	return false
}

// stop enqueues the sentinel, waiting for room if necessary.
func (q *queue) stop() { q.ch <- job{stop: true} }

func (q *queue) depth() int { return len(q.ch) }
