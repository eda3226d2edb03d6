// =============================================================================
// render.go - Reply Rendering
// =============================================================================
//
// Replies are printed the way redis-cli prints them on a terminal:
//
//   OK                    status
//   (integer) 42          integer
//   "hello"               bulk string, escaped
//   (nil)                 nil bulk or nil array
//   (error) ERR ...       error
//   1) "a"                array, one numbered line per element,
//   2) 1) "nested"        nested arrays indented under their number
//
// With --raw every scalar is printed bare, one per line, which is easier
// to consume from scripts.
//
// =============================================================================

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yuchuanwang/RedisClient/miniredis"
)

// renderReply formats r for display. The result always ends in a newline.
func renderReply(r *miniredis.Reply, raw bool) string {
	var b strings.Builder
	if raw {
		writeRaw(&b, r)
	} else {
		writeReply(&b, r, "")
	}
	return b.String()
}

func writeReply(b *strings.Builder, r *miniredis.Reply, indent string) {
	if r.Kind != miniredis.KindArray {
		b.WriteString(formatScalar(r))
		b.WriteByte('\n')
		return
	}
	if len(r.Elems) == 0 {
		b.WriteString("(empty array)\n")
		return
	}

	width := len(strconv.Itoa(len(r.Elems)))
	for i, e := range r.Elems {
		label := fmt.Sprintf("%*d) ", width, i+1)
		if i > 0 {
			b.WriteString(indent)
		}
		b.WriteString(label)
		writeReply(b, e, indent+strings.Repeat(" ", len(label)))
	}
}

func formatScalar(r *miniredis.Reply) string {
	switch r.Kind {
	case miniredis.KindStatus:
		return string(r.Str)
	case miniredis.KindError:
		return "(error) " + string(r.Str)
	case miniredis.KindInteger:
		return "(integer) " + strconv.FormatInt(r.Int, 10)
	case miniredis.KindNil:
		return "(nil)"
	default:
		return strconv.Quote(string(r.Str))
	}
}

func writeRaw(b *strings.Builder, r *miniredis.Reply) {
	switch r.Kind {
	case miniredis.KindArray:
		for _, e := range r.Elems {
			writeRaw(b, e)
		}
		return
	case miniredis.KindInteger:
		b.WriteString(strconv.FormatInt(r.Int, 10))
	case miniredis.KindNil:
		// redis-cli prints an empty line for nil in raw mode
	default:
		b.Write(r.Str)
	}
	b.WriteByte('\n')
}
