// Package server runs the recommender behind a UDP socket.
//
// Datagrams are read by a listener service and pushed, without blocking,
// onto a bounded FIFO. A single worker goroutine drains the FIFO and is the
// only goroutine that ever touches the Backend; the periodic stats task and
// the /stats endpoint submit closures through the same FIFO.
//
// Shutdown stops the listener first, then enqueues a sentinel and waits for
// the worker to reach it, so every request accepted before shutdown is
// answered. The remaining services (stats ticker, HTTP, telemetry
// flushers) are stopped last.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/IvanBrykalov/recomlive/telemetry"
)

// Options configures a Server. Zero values select defaults.
type Options struct {
	// Addr is the UDP listen address. Default: 0.0.0.0:25000
	Addr string
	// QueueLimit bounds the FIFO. Default: DefaultQueueLimit
	QueueLimit int
	// StatsInterval enables the periodic stats task when positive.
	StatsInterval time.Duration
	// MetricsAddr enables the HTTP endpoint when non-empty.
	MetricsAddr string
	// Gatherer backs /metrics. Default: prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer
	// Sink receives server-side signals. Default: telemetry.Noop
	Sink telemetry.Sink
	// Logger defaults to zerolog.Nop().
	Logger *zerolog.Logger
	// Services are run under the same supervisor (telemetry flushers).
	Services []suture.Service
	// ShutdownTimeout bounds each service stop. Default: 10s
	ShutdownTimeout time.Duration
}

// DefaultAddr is used when Options.Addr is empty.
const DefaultAddr = "0.0.0.0:25000"

// Server owns the socket, the FIFO and the worker.
type Server struct {
	opt      Options
	backend  Backend
	dispatch *Dispatcher
	q        *queue
	sink     telemetry.Sink
	log      zerolog.Logger
	conn     net.PacketConn
}

// New wires a Server around b. Call Listen (optional) and then Serve.
func New(b Backend, opt Options) *Server {
	if opt.Addr == "" {
		opt.Addr = DefaultAddr
	}
	if opt.Gatherer == nil {
		opt.Gatherer = prometheus.DefaultGatherer
	}
	if opt.Sink == nil {
		opt.Sink = telemetry.Noop{}
	}
	if opt.ShutdownTimeout <= 0 {
		opt.ShutdownTimeout = 10 * time.Second
	}
	log := zerolog.Nop()
	if opt.Logger != nil {
		log = *opt.Logger
	}

	return &Server{
		opt:      opt,
		backend:  b,
		dispatch: NewDispatcher(b, log),
		q:        newQueue(opt.QueueLimit, opt.Sink, log),
		sink:     opt.Sink,
		log:      log,
	}
}

// Listen binds the UDP socket. Serve calls it if needed; calling it first
// lets the caller learn the bound address (useful with port 0).
func (s *Server) Listen() error {
	if s.conn != nil {
		return nil
	}
	conn, err := net.ListenPacket("udp", s.opt.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.opt.Addr, err)
	}
	s.conn = conn
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Serve runs until ctx is canceled, then drains and returns.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	defer s.conn.Close()

	done := make(chan struct{})
	go s.work(done)

	sup := newSupervisor(s.log, s.opt.ShutdownTimeout)
	lt := sup.Add(&listener{conn: s.conn, submit: s.q.submit, log: s.log})
	if s.opt.StatsInterval > 0 {
		sup.Add(&statsTask{every: s.opt.StatsInterval, submit: s.q.submit, report: s.reportStats})
	}
	if s.opt.MetricsAddr != "" {
		sup.Add(newHTTPService(&http.Server{
			Addr:              s.opt.MetricsAddr,
			Handler:           s.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}, s.opt.ShutdownTimeout))
	}
	for _, svc := range s.opt.Services {
		sup.Add(svc)
	}

	supCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	errc := sup.ServeBackground(supCtx)

	s.log.Info().
		Str("addr", s.conn.LocalAddr().String()).
		Int("queue_limit", cap(s.q.ch)).
		Msg("listening")

	<-ctx.Done()
	s.log.Info().Msg("shutting down")

	if err := sup.RemoveAndWait(lt, s.opt.ShutdownTimeout); err != nil {
		s.log.Warn().Err(err).Msg("listener did not stop in time")
	}
	s.q.stop()
	<-done

	cancel()
	err := <-errc
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	s.log.Info().Uint64("dropped_total", s.q.dropped.Load()).Msg("stopped")
	return err
}

// Submit enqueues a datagram as if it had arrived from addr. It never
// blocks and reports whether the request was accepted.
func (s *Server) Submit(data []byte, addr net.Addr) bool {
	return s.q.submit(job{data: data, addr: addr})
}

func (s *Server) work(done chan<- struct{}) {
	defer close(done)
	for j := range s.q.ch {
		if j.stop {
			return
		}
		s.process(j)
	}
}

func (s *Server) process(j job) {
	if j.run != nil {
		s.runJob(j.run)
		return
	}
	reply, send := s.dispatch.Handle(j.data)
	if !send || j.addr == nil || s.conn == nil {
		return
	}
	if _, err := s.conn.WriteTo(reply, j.addr); err != nil {
		s.log.Debug().Err(err).Stringer("to", j.addr).Msg("reply failed")
	}
}

func (s *Server) runJob(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("background job panicked")
		}
	}()
	fn()
}

// reportStats runs on the worker.
func (s *Server) reportStats() {
	snap := s.snapshot()
	s.sink.Gauge(telemetry.DocumentsResident, float64(snap.Documents.Resident))
	s.sink.Gauge(telemetry.DocumentsTarget, float64(snap.Documents.Target))
	s.sink.Gauge(telemetry.PersonsResident, float64(snap.Persons.Resident))
	s.sink.Gauge(telemetry.PersonsTarget, float64(snap.Persons.Target))
	s.sink.Gauge(telemetry.QueueDepth, float64(snap.QueueDepth))
	s.log.Debug().
		Int("documents", snap.Documents.Resident).
		Int("persons", snap.Persons.Resident).
		Int("queue_depth", snap.QueueDepth).
		Msg("stats")
}
