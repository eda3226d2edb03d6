// RESP2 wire format:
//
//	Command (client -> server):  *<argc>\r\n  then  $<len>\r\n<arg>\r\n  per argument
//	Status reply:                +OK\r\n
//	Error reply:                 -ERR message\r\n
//	Integer reply:               :1000\r\n
//	Bulk reply:                  $5\r\nhello\r\n      ($-1\r\n is nil)
//	Array reply:                 *2\r\n<reply><reply>  (*-1\r\n is nil)
//
// Example Session:
//
//	C: *1\r\n$4\r\nPING\r\n
//	S: +PONG\r\n
//	C: *2\r\n$3\r\nGET\r\n$1\r\nk\r\n
//	S: $1\r\nv\r\n

package miniredis

import (
	"bufio"
	"strconv"
	"time"
)

// Protocol constants.
const (
	// DefaultHost is the host used when none is configured.
	DefaultHost = "127.0.0.1"

	// DefaultPort is the standard Redis port.
	DefaultPort uint16 = 6379

	// DefaultTimeout bounds connect and each synchronous round trip.
	DefaultTimeout = 3 * time.Second

	// MaxBulkLen is the largest bulk string accepted from the server (512 MiB,
	// the server's own proto-max-bulk-len default).
	MaxBulkLen = 512 * 1024 * 1024

	// MaxArrayLen is the largest array accepted from the server.
	MaxArrayLen = 1024 * 1024

	// MaxLineLength is the longest header or simple-string line accepted.
	MaxLineLength = 64 * 1024
)

// Pub/sub frame types, the first element of every frame pushed on a
// subscribed connection.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameMessage     = "message"
)

var crlf = []byte("\r\n")

// WriteCommand encodes args as a RESP array of bulk strings.
// args[0] is the command verb. The writer is not flushed.
func WriteCommand(w *bufio.Writer, args []string) error {
	if err := writeHeader(w, '*', int64(len(args))); err != nil {
		return err
	}
	for _, a := range args {
		if err := writeHeader(w, '$', int64(len(a))); err != nil {
			return err
		}
		if _, err := w.WriteString(a); err != nil {
			return err
		}
		if _, err := w.Write(crlf); err != nil {
			return err
		}
	}
	return nil
}

// WriteReply encodes r. It is used by servers and test doubles.
func WriteReply(w *bufio.Writer, r *Reply) error {
	switch r.Kind {
	case KindStatus:
		return writeLine(w, '+', r.Str)
	case KindError:
		return writeLine(w, '-', r.Str)
	case KindInteger:
		return writeHeader(w, ':', r.Int)
	case KindNil:
		return writeHeader(w, '$', -1)
	case KindBulk:
		if err := writeHeader(w, '$', int64(len(r.Str))); err != nil {
			return err
		}
		if _, err := w.Write(r.Str); err != nil {
			return err
		}
		_, err := w.Write(crlf)
		return err
	case KindArray:
		if err := writeHeader(w, '*', int64(len(r.Elems))); err != nil {
			return err
		}
		for _, e := range r.Elems {
			if err := WriteReply(w, e); err != nil {
				return err
			}
		}
		return nil
	default:
		return newInvalidReplyError(r.Kind.String(), "unknown reply kind")
	}
}

func writeHeader(w *bufio.Writer, prefix byte, n int64) error {
	var buf [24]byte
	b := append(buf[:0], prefix)
	b = strconv.AppendInt(b, n, 10)
	b = append(b, '\r', '\n')
	_, err := w.Write(b)
	return err
}

func writeLine(w *bufio.Writer, prefix byte, s []byte) error {
	if err := w.WriteByte(prefix); err != nil {
		return err
	}
	if _, err := w.Write(s); err != nil {
		return err
	}
	_, err := w.Write(crlf)
	return err
}
