package miniredis

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readOne(t *testing.T, wire string) (*Reply, error) {
	t.Helper()
	return NewReplyReader(strings.NewReader(wire)).ReadReply()
}

func TestReadReply(t *testing.T) {
	tests := []struct {
		name   string
		wire   string
		kind   Kind
		format string
	}{
		{"status", "+OK\r\n", KindStatus, "OK"},
		{"error", "-ERR unknown command\r\n", KindError, "(error) ERR unknown command"},
		{"integer", ":-42\r\n", KindInteger, "-42"},
		{"bulk", "$5\r\nhello\r\n", KindBulk, `"hello"`},
		{"empty bulk", "$0\r\n\r\n", KindBulk, `""`},
		{"bulk with CRLF inside", "$4\r\na\r\nb\r\n", KindBulk, `"a\r\nb"`},
		{"nil bulk", "$-1\r\n", KindNil, "(nil)"},
		{"nil array", "*-1\r\n", KindNil, "(nil)"},
		{"empty array", "*0\r\n", KindArray, "[]"},
		{"nested array", "*2\r\n$1\r\na\r\n*2\r\n:1\r\n$-1\r\n", KindArray, `["a", [1, (nil)]]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := readOne(t, tt.wire)
			require.NoError(t, err)
			defer r.Release()
			assert.Equal(t, tt.kind, r.Kind)
			assert.Equal(t, tt.format, r.Format())
		})
	}
}

func TestReadReplySequence(t *testing.T) {
	rd := NewReplyReader(bufio.NewReader(strings.NewReader("+OK\r\n:1\r\n$3\r\nfoo\r\n")))

	for _, want := range []string{"OK", "1", `"foo"`} {
		r, err := rd.ReadReply()
		require.NoError(t, err)
		assert.Equal(t, want, r.Format())
		r.Release()
	}
	_, err := rd.ReadReply()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadReplyErrors(t *testing.T) {
	tests := []struct {
		name  string
		wire  string
		kind  ProtocolErrorKind
		ioErr error
	}{
		{"unknown type", "?what\r\n", ProtoInvalidReply, nil},
		{"missing CR", "+OK\n", ProtoInvalidReply, nil},
		{"bad integer", ":12a\r\n", ProtoInvalidReply, nil},
		{"bad length", "$-2\r\n", ProtoInvalidReply, nil},
		{"bad terminator", "$3\r\nfooXY", ProtoInvalidReply, nil},
		{"bulk too large", "$999999999999\r\n", ProtoLimitExceeded, nil},
		{"array too large", "*2000000\r\n", ProtoLimitExceeded, nil},
		{"truncated bulk", "$10\r\nabc", 0, io.ErrUnexpectedEOF},
		{"truncated array", "*2\r\n:1\r\n", 0, io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := readOne(t, tt.wire)
			assert.Nil(t, r)
			if tt.ioErr != nil {
				assert.True(t, errors.Is(err, tt.ioErr), "got %v", err)
				return
			}
			var perr *ProtocolError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.kind, perr.Kind)
		})
	}
}

func TestReadReplyLineLimit(t *testing.T) {
	wire := "+" + strings.Repeat("x", MaxLineLength+10) + "\r\n"
	_, err := readOne(t, wire)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ProtoLimitExceeded, perr.Kind)
}

func TestWriteCommand(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteCommand(w, []string{"SET", "key 1", "v\r\n"}))
	require.NoError(t, w.Flush())

	assert.Equal(t, "*3\r\n$3\r\nSET\r\n$5\r\nkey 1\r\n$3\r\nv\r\n\r\n", buf.String())
}

func TestWriteReplyReadBack(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	r := NewArrayReply(NewStatusReply("OK"), NewNilReply(), NewIntegerReply(9), NewStringsReply("x"))
	require.NoError(t, WriteReply(w, r))
	require.NoError(t, w.Flush())
	r.Release()

	assert.Equal(t, "*4\r\n+OK\r\n$-1\r\n:9\r\n*1\r\n$1\r\nx\r\n", buf.String())

	back, err := NewReplyReader(&buf).ReadReply()
	require.NoError(t, err)
	defer back.Release()
	assert.Equal(t, `[OK, (nil), 9, ["x"]]`, back.Format())
}

func TestCommandParserSplit(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"simple", "GET foo", []string{"GET", "foo"}},
		{"extra spaces", "  SET   a  b  ", []string{"SET", "a", "b"}},
		{"double quotes", `SET "key 1" "value 1"`, []string{"SET", "key 1", "value 1"}},
		{"escapes", `SET k "a\tb\n\x41"`, []string{"SET", "k", "a\tb\nA"}},
		{"single quotes are literal", `SET k 'a\n b'`, []string{"SET", "k", `a\n b`}},
		{"adjacent quoted parts", `SET k pre"fix"'ed'`, []string{"SET", "k", "prefixed"}},
		{"empty quoted", `SET k ""`, []string{"SET", "k", ""}},
		{"blank", "   ", nil},
	}

	p := NewCommandParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Split(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandParserErrors(t *testing.T) {
	p := NewCommandParser()

	_, err := p.Parse("")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrKindEmptyCommand, perr.Kind)

	_, err = p.Parse(`SET "unterminated`)
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrKindUnbalancedQuotes, perr.Kind)

	_, err = p.Parse(`SET 'unterminated`)
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrKindUnbalancedQuotes, perr.Kind)

	_, err = p.Parse(`SET k "\q"`)
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrKindInvalidEscape, perr.Kind)

	_, err = p.Parse(strings.Repeat("a", MaxLineLength+1))
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestCommandParserParse(t *testing.T) {
	cmd, err := NewCommandParser().Parse(`hset domains example "example.com"`)
	require.NoError(t, err)
	assert.Equal(t, "hset", cmd.Name)
	assert.Equal(t, "HSET", cmd.Verb())
	assert.Equal(t, []string{"domains", "example", "example.com"}, cmd.Args)
}
