// Package protocol parses request datagrams and encodes replies.
//
// A request is the ASCII text "method,doc_id,person_id". A reply is
// "status[,item...]" where status is OK or BADMSG.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// MaxDatagram is the largest request the transport accepts.
const MaxDatagram = 65535

// Method is one of the supported request kinds.
type Method uint8

const (
	// Record stores a visit. It never produces a reply.
	Record Method = iota + 1
	// Recommend returns suggestions for a document.
	Recommend
	// RecordRecommend stores a visit, then returns suggestions.
	RecordRecommend
	// PersonHistory returns the visits tracked for a person.
	PersonHistory
)

var methods = map[string]Method{
	"RECR": Record,
	"RECM": Recommend,
	"RR":   RecordRecommend,
	"PH":   PersonHistory,
}

var names = map[Method]string{
	Record:          "RECR",
	Recommend:       "RECM",
	RecordRecommend: "RR",
	PersonHistory:   "PH",
}

// ParseMethod resolves a method token through the method table.
func ParseMethod(tok string) (Method, bool) {
	m, ok := methods[tok]
	return m, ok
}

func (m Method) String() string {
	if s, ok := names[m]; ok {
		return s
	}
	return fmt.Sprintf("Method(%d)", uint8(m))
}

// ExpectsReply reports whether the sender waits for a reply datagram.
func (m Method) ExpectsReply() bool { return m != Record }

// AllowsAnonymous reports whether person_id may be empty.
func (m Method) AllowsAnonymous() bool { return m == Recommend }

// Status is the first field of a reply.
type Status string

const (
	StatusOK     Status = "OK"
	StatusBadMsg Status = "BADMSG"
)

var (
	// ErrMalformed: wrong field count, empty ids or oversized datagram.
	ErrMalformed = errors.New("protocol: malformed request")
	// ErrUnknownMethod: the method token is not in the method table.
	ErrUnknownMethod = errors.New("protocol: unknown method")
	// ErrNonASCII: the datagram contains bytes outside 7-bit ASCII.
	ErrNonASCII = errors.New("protocol: non-ASCII request")
)

// Request is a parsed datagram.
type Request struct {
	Method   Method
	DocID    string
	PersonID string
}

func (r Request) String() string {
	return r.Method.String() + "," + r.DocID + "," + r.PersonID
}

// Parse decodes one datagram. Errors wrap ErrMalformed, ErrUnknownMethod or
// ErrNonASCII.
func Parse(b []byte) (Request, error) {
	if len(b) > MaxDatagram {
		return Request{}, fmt.Errorf("%w: %d bytes", ErrMalformed, len(b))
	}
	for i, c := range b {
		if c > 0x7f {
			return Request{}, fmt.Errorf("%w: byte 0x%02x at %d", ErrNonASCII, c, i)
		}
	}

	fields := strings.Split(strings.TrimRight(string(b), "\r\n"), ",")
	if len(fields) != 3 {
		return Request{}, fmt.Errorf("%w: want 3 fields, got %d", ErrMalformed, len(fields))
	}
	m, ok := ParseMethod(fields[0])
	if !ok {
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownMethod, fields[0])
	}
	req := Request{Method: m, DocID: fields[1], PersonID: fields[2]}
	if req.DocID == "" && m != PersonHistory {
		return Request{}, fmt.Errorf("%w: empty doc_id", ErrMalformed)
	}
	if req.PersonID == "" && !m.AllowsAnonymous() {
		return Request{}, fmt.Errorf("%w: empty person_id", ErrMalformed)
	}
	return req, nil
}

// Encode renders a request datagram.
func Encode(r Request) []byte { return []byte(r.String()) }

// AppendReply appends "status[,item...]" to b.
func AppendReply(b []byte, st Status, items []string) []byte {
	b = append(b, st...)
	for _, it := range items {
		b = append(b, ',')
		b = append(b, it...)
	}
	return b
}

// Reply is a decoded reply datagram.
type Reply struct {
	Status Status
	Items  []string
}

// ParseReply decodes a reply datagram.
func ParseReply(b []byte) (Reply, error) {
	fields := strings.Split(string(b), ",")
	st := Status(fields[0])
	if st != StatusOK && st != StatusBadMsg {
		return Reply{}, fmt.Errorf("%w: status %q", ErrMalformed, fields[0])
	}
	return Reply{Status: st, Items: fields[1:]}, nil
}
