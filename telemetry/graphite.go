package telemetry

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPrefix is prepended to every Graphite metric path.
const DefaultPrefix = "recomlive"

type sample struct {
	name  string
	value float64
	gauge bool
	at    time.Time
}

// Graphite ships samples to a carbon daemon using the plaintext protocol over
// UDP, one datagram per sample:
//
//	<prefix>.<name>.sum <value> <unix-ts>   (counters)
//	<prefix>.<name>.avg <value> <unix-ts>   (gauges)
//
// Count and Gauge only enqueue into a bounded buffer; Serve does the I/O.
// When the buffer is full the sample is dropped and counted.
type Graphite struct {
	addr   string
	prefix string
	buf    chan sample
	log    zerolog.Logger
	now    func() time.Time

	dropped atomic.Uint64
}

// GraphiteOption customizes a Graphite sink.
type GraphiteOption func(*Graphite)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(p string) GraphiteOption { return func(g *Graphite) { g.prefix = p } }

// WithBuffer sets the number of samples held while Serve catches up.
func WithBuffer(n int) GraphiteOption {
	return func(g *Graphite) {
		if n > 0 {
			g.buf = make(chan sample, n)
		}
	}
}

// WithLogger sets the logger used for delivery errors.
func WithLogger(l zerolog.Logger) GraphiteOption { return func(g *Graphite) { g.log = l } }

// WithClock overrides time.Now for timestamps (tests).
func WithClock(now func() time.Time) GraphiteOption { return func(g *Graphite) { g.now = now } }

// NewGraphite creates a sink for the carbon daemon at addr ("host:port").
// Nothing is sent until Serve runs.
func NewGraphite(addr string, opts ...GraphiteOption) *Graphite {
	g := &Graphite{
		addr:   addr,
		prefix: DefaultPrefix,
		buf:    make(chan sample, 4096),
		log:    zerolog.Nop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Count enqueues a counter sample.
func (g *Graphite) Count(name string, v float64) { g.offer(sample{name: name, value: v}) }

// Gauge enqueues a gauge sample.
func (g *Graphite) Gauge(name string, v float64) {
	g.offer(sample{name: name, value: v, gauge: true})
}

// Dropped returns how many samples were discarded because the buffer was full.
func (g *Graphite) Dropped() uint64 { return g.dropped.Load() }

func (g *Graphite) offer(s sample) {
	s.at = g.now()
	select {
	case g.buf <- s:
	default:
		g.dropped.Add(1)
	}
}

// Serve dials the carbon daemon and drains the buffer until ctx is done.
// It implements suture.Service; a dial failure is returned so the
// supervisor retries with backoff.
func (g *Graphite) Serve(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", g.addr)
	if err != nil {
		return fmt.Errorf("graphite: dial %s: %w", g.addr, err)
	}
	defer conn.Close()

	line := make([]byte, 0, 128)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-g.buf:
			line = g.appendLine(line[:0], s)
			if _, err := conn.Write(line); err != nil {
				g.log.Debug().Err(err).Str("metric", s.name).Msg("graphite write failed")
			}
		}
	}
}

func (g *Graphite) String() string { return "graphite(" + g.addr + ")" }

func (g *Graphite) appendLine(b []byte, s sample) []byte {
	suffix := ".sum "
	if s.gauge {
		suffix = ".avg "
	}
	b = append(b, g.prefix...)
	b = append(b, '.')
	b = append(b, s.name...)
	b = append(b, suffix...)
	b = strconv.AppendFloat(b, s.value, 'f', -1, 64)
	b = append(b, ' ')
	b = strconv.AppendInt(b, s.at.Unix(), 10)
	return append(b, '\n')
}

var _ Sink = (*Graphite)(nil)
