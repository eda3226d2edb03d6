package miniredis

import (
	"strconv"
	"strings"
	"sync"
)

// Kind is the wire type of a reply.
type Kind int

const (
	// KindStatus is a simple string such as "OK" or "PONG" (+).
	KindStatus Kind = iota
	// KindBulk is a binary-safe length-prefixed string ($).
	KindBulk
	// KindInteger is a signed 64-bit integer (:).
	KindInteger
	// KindArray is an ordered sequence of child replies (*).
	KindArray
	// KindNil is an absent value ($-1 or *-1).
	KindNil
	// KindError is an error reply sent by the server (-).
	KindError
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindBulk:
		return "bulk"
	case KindInteger:
		return "integer"
	case KindArray:
		return "array"
	case KindNil:
		return "nil"
	case KindError:
		return "error"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Reply is a raw protocol reply.
//
// Replies read from a connection are taken from a pool. The receiver of a
// reply owns it and must call Release exactly once when done; the Decode
// helpers do this on every path. A reply must not be used after Release.
type Reply struct {
	Kind  Kind
	Str   []byte   // KindStatus, KindBulk, KindError
	Int   int64    // KindInteger
	Elems []*Reply // KindArray

	released bool
}

var replyPool = sync.Pool{
	New: func() any { return new(Reply) },
}

func acquireReply(kind Kind) *Reply {
	r := replyPool.Get().(*Reply)
	r.Kind = kind
	r.released = false
	return r
}

// Release returns the reply and all of its children to the pool. It must
// be called once per reply: after Release the pool may hand the same
// object to another owner, so neither the reply nor a second Release may
// follow. Release on nil does nothing.
func (r *Reply) Release() {
	if r == nil || r.released {
		return
	}
	for _, e := range r.Elems {
		e.Release()
	}
	r.released = true
	r.Str = nil
	r.Int = 0
	r.Elems = nil
	replyPool.Put(r)
}

// Released reports whether Release has been called and the reply has not
// been reused since.
func (r *Reply) Released() bool {
	return r != nil && r.released
}

// NewStatusReply creates a status reply.
func NewStatusReply(s string) *Reply {
	r := acquireReply(KindStatus)
	r.Str = []byte(s)
	return r
}

// NewBulkReply creates a bulk string reply.
func NewBulkReply(b []byte) *Reply {
	r := acquireReply(KindBulk)
	r.Str = append([]byte(nil), b...)
	return r
}

// NewBulkStringReply creates a bulk string reply from a string.
func NewBulkStringReply(s string) *Reply {
	r := acquireReply(KindBulk)
	r.Str = []byte(s)
	return r
}

// NewIntegerReply creates an integer reply.
func NewIntegerReply(n int64) *Reply {
	r := acquireReply(KindInteger)
	r.Int = n
	return r
}

// NewNilReply creates a nil reply.
func NewNilReply() *Reply {
	return acquireReply(KindNil)
}

// NewErrorReply creates an error reply.
func NewErrorReply(msg string) *Reply {
	r := acquireReply(KindError)
	r.Str = []byte(msg)
	return r
}

// NewArrayReply creates an array reply that takes ownership of elems.
func NewArrayReply(elems ...*Reply) *Reply {
	r := acquireReply(KindArray)
	r.Elems = elems
	return r
}

// NewStringsReply creates an array of bulk strings.
func NewStringsReply(items ...string) *Reply {
	elems := make([]*Reply, len(items))
	for i, s := range items {
		elems[i] = NewBulkStringReply(s)
	}
	return NewArrayReply(elems...)
}

// IsOK reports whether the reply is the "OK" status.
func (r *Reply) IsOK() bool {
	return r != nil && r.Kind == KindStatus && string(r.Str) == "OK"
}

// Err returns the reply as a *ServerError when it is an error reply.
func (r *Reply) Err() error {
	if r == nil || r.Kind != KindError {
		return nil
	}
	return &ServerError{Message: string(r.Str)}
}

// Format returns a single-line representation of the reply for logs.
func (r *Reply) Format() string {
	if r == nil {
		return "<no reply>"
	}
	var sb strings.Builder
	r.format(&sb)
	return sb.String()
}

func (r *Reply) format(sb *strings.Builder) {
	switch r.Kind {
	case KindStatus:
		sb.Write(r.Str)
	case KindBulk:
		sb.WriteString(strconv.Quote(string(r.Str)))
	case KindInteger:
		sb.WriteString(strconv.FormatInt(r.Int, 10))
	case KindNil:
		sb.WriteString("(nil)")
	case KindError:
		sb.WriteString("(error) ")
		sb.Write(r.Str)
	case KindArray:
		sb.WriteByte('[')
		for i, e := range r.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.format(sb)
		}
		sb.WriteByte(']')
	}
}
