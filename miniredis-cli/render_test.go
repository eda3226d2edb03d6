package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yuchuanwang/RedisClient/miniredis"
)

func TestRenderReply(t *testing.T) {
	tests := []struct {
		name  string
		reply func() *miniredis.Reply
		tty   string
		raw   string
	}{
		{"status", func() *miniredis.Reply { return miniredis.NewStatusReply("OK") }, "OK\n", "OK\n"},
		{"error", func() *miniredis.Reply { return miniredis.NewErrorReply("ERR boom") }, "(error) ERR boom\n", "ERR boom\n"},
		{"integer", func() *miniredis.Reply { return miniredis.NewIntegerReply(-7) }, "(integer) -7\n", "-7\n"},
		{"bulk", func() *miniredis.Reply { return miniredis.NewBulkStringReply("a \"b\"\n") }, "\"a \\\"b\\\"\\n\"\n", "a \"b\"\n\n"},
		{"empty bulk", func() *miniredis.Reply { return miniredis.NewBulkStringReply("") }, "\"\"\n", "\n"},
		{"nil", func() *miniredis.Reply { return miniredis.NewNilReply() }, "(nil)\n", "\n"},
		{"empty array", func() *miniredis.Reply { return miniredis.NewArrayReply() }, "(empty array)\n", ""},
		{"flat array", func() *miniredis.Reply { return miniredis.NewStringsReply("a", "b") }, "1) \"a\"\n2) \"b\"\n", "a\nb\n"},
		{
			"nested array",
			func() *miniredis.Reply {
				return miniredis.NewArrayReply(
					miniredis.NewStringsReply("x", "y"),
					miniredis.NewIntegerReply(3),
					miniredis.NewNilReply(),
				)
			},
			"1) 1) \"x\"\n   2) \"y\"\n2) (integer) 3\n3) (nil)\n",
			"x\ny\n3\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.reply()
			defer r.Release()
			assert.Equal(t, tt.tty, renderReply(r, false))
			assert.Equal(t, tt.raw, renderReply(r, true))
		})
	}
}

func TestRenderReplyAlignsTenOrMoreElements(t *testing.T) {
	elems := make([]string, 10)
	for i := range elems {
		elems[i] = "v"
	}
	r := miniredis.NewStringsReply(elems...)
	defer r.Release()

	got := renderReply(r, false)
	assert.Contains(t, got, " 1) \"v\"\n")
	assert.Contains(t, got, "10) \"v\"\n")
}
