package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/IvanBrykalov/recomlive/internal/protocol"
	"github.com/IvanBrykalov/recomlive/recommender"
)

// Backend is the state the worker drives. *recommender.Recommender
// satisfies it.
type Backend interface {
	Record(doc, person string) error
	Recommend(doc, person string) []string
	PersonHistory(person string) []string
	Stats() recommender.Stats
}

// ErrPanic wraps a recovered panic from a backend call.
var ErrPanic = errors.New("server: backend panic")

type handlerFunc func(protocol.Request) ([]string, error)

// Dispatcher turns a datagram into backend calls and a reply.
type Dispatcher struct {
	backend Backend
	table   map[protocol.Method]handlerFunc
	log     zerolog.Logger
	// errLimit keeps a flood of bad datagrams from flooding the log.
	errLimit *rate.Limiter
}

// NewDispatcher builds the method table around b.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewDispatcher(b Backend, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		backend:  b,
		log:      log,
		errLimit: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	d.table = map[protocol.Method]handlerFunc{
		protocol.Record:          d.record,
		protocol.Recommend:       d.recommend,
		protocol.RecordRecommend: d.recordRecommend,
		protocol.PersonHistory:   d.personHistory,
	}
	return d
}

func (d *Dispatcher) record(r protocol.Request) ([]string, error) {
	return nil, d.backend.Record(r.DocID, r.PersonID)
}

func (d *Dispatcher) recommend(r protocol.Request) ([]string, error) {
	return d.backend.Recommend(r.DocID, r.PersonID), nil
}

func (d *Dispatcher) recordRecommend(r protocol.Request) ([]string, error) {
	if err := d.backend.Record(r.DocID, r.PersonID); err != nil {
		return nil, err
	}
	return d.backend.Recommend(r.DocID, r.PersonID), nil
}

func (d *Dispatcher) personHistory(r protocol.Request) ([]string, error) {
	return d.backend.PersonHistory(r.PersonID), nil
}

// Handle processes one datagram. send is false when no reply must be
// written (RECR, successful or not).
func (d *Dispatcher) Handle(b []byte) (reply []byte, send bool) {
	req, err := protocol.Parse(b)
	if err != nil {
		d.logErr(err, "bad request")
		return protocol.AppendReply(nil, protocol.StatusBadMsg, nil), true
	}

	items, err := d.call(req)
	if err != nil {
		d.logErr(err, "request failed")
		if !req.Method.ExpectsReply() {
			return nil, false
		}
		return protocol.AppendReply(nil, protocol.StatusBadMsg, nil), true
	}
	if !req.Method.ExpectsReply() {
		return nil, false
	}
	return protocol.AppendReply(nil, protocol.StatusOK, items), true
}

func (d *Dispatcher) call(req protocol.Request) (items []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrPanic, req, r)
		}
	}()

	h, ok := d.table[req.Method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", protocol.ErrUnknownMethod, req.Method)
	}
	return h(req)
}

func (d *Dispatcher) logErr(err error, msg string) {
	if d.errLimit.Allow() {
		d.log.Warn().Err(err).Msg(msg)
		return
	}
	d.log.Debug().Err(err).Msg(msg)
}
