package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/IvanBrykalov/recomlive/internal/logging"
	"github.com/IvanBrykalov/recomlive/internal/protocol"
)

//nolint:gocritic // zerolog.Logger is designed to be passed by value
func newSupervisor(log zerolog.Logger, timeout time.Duration) *suture.Supervisor {
	h := &sutureslog.Handler{Logger: logging.NewSlogLogger(log)}
	return suture.New("recomlive", suture.Spec{
		EventHook:        h.MustHook(),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          timeout,
	})
}

// listener reads datagrams and hands them to the FIFO.
type listener struct {
	conn   net.PacketConn
	submit func(job) bool
	log    zerolog.Logger
}

func (l *listener) Serve(ctx context.Context) error {
	if err := l.conn.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("udp listener: %w", err)
	}
	// Unblock ReadFrom on cancellation.
	stop := context.AfterFunc(ctx, func() { _ = l.conn.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, protocol.MaxDatagram)
	for {
		n, addr, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return suture.ErrDoNotRestart
			}
			return fmt.Errorf("udp listener: %w", err)
		}
		l.submit(job{data: append([]byte(nil), buf[:n]...), addr: addr})
	}
}

func (l *listener) String() string { return "udp-listener" }

// statsTask periodically asks the worker to report cache statistics.
type statsTask struct {
	every  time.Duration
	submit func(job) bool
	report func()
}

func (t *statsTask) Serve(ctx context.Context) error {
	tick := time.NewTicker(t.every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			t.submit(job{run: t.report})
		}
	}
}

func (t *statsTask) String() string { return "stats-reporter" }

// httpServer matches the *http.Server lifecycle methods.
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// httpService runs an HTTP server under the supervisor.
type httpService struct {
	server          httpServer
	shutdownTimeout time.Duration
}

func newHTTPService(server httpServer, shutdownTimeout time.Duration) *httpService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &httpService{server: server, shutdownTimeout: shutdownTimeout}
}

func (h *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *httpService) String() string { return "http-server" }
