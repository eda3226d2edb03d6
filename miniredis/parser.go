package miniredis

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReplyReader reads RESP2 replies from a byte stream.
type ReplyReader struct {
	rd *bufio.Reader
}

// NewReplyReader creates a reader. A *bufio.Reader is used as is.
func NewReplyReader(r io.Reader) *ReplyReader {
	if br, ok := r.(*bufio.Reader); ok {
		return &ReplyReader{rd: br}
	}
	return &ReplyReader{rd: bufio.NewReader(r)}
}

// ReadReply reads one complete reply, including all nested elements.
// I/O errors are returned as is; malformed input yields a *ProtocolError.
// The caller owns the returned reply and must Release it.
func (p *ReplyReader) ReadReply() (*Reply, error) {
	line, err := p.readLine()
	if err != nil {
		return nil, err
	}
	if len(line) == 0 {
		return nil, newInvalidReplyError("", "empty line")
	}

	switch line[0] {
	case '+':
		r := acquireReply(KindStatus)
		r.Str = line[1:]
		return r, nil
	case '-':
		r := acquireReply(KindError)
		r.Str = line[1:]
		return r, nil
	case ':':
		n, err := strconv.ParseInt(string(line[1:]), 10, 64)
		if err != nil {
			return nil, newInvalidReplyError(string(line), "invalid integer")
		}
		return NewIntegerReply(n), nil
	case '$':
		return p.readBulk(line)
	case '*':
		return p.readArray(line)
	default:
		return nil, newInvalidReplyError(string(line), "unknown reply type")
	}
}

func (p *ReplyReader) readBulk(line []byte) (*Reply, error) {
	n, err := parseLength(line)
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return NewNilReply(), nil
	}
	if n > MaxBulkLen {
		return nil, newLimitExceededError(fmt.Sprintf("bulk length %d exceeds limit %d", n, MaxBulkLen))
	}

	buf := make([]byte, n+2)
	if _, err := io.ReadFull(p.rd, buf); err != nil {
		return nil, err
	}
	if !bytes.HasSuffix(buf, crlf) {
		return nil, newInvalidReplyError(string(line), "invalid bulk terminator")
	}
	r := acquireReply(KindBulk)
	r.Str = buf[:n]
	return r, nil
}

func (p *ReplyReader) readArray(line []byte) (*Reply, error) {
	n, err := parseLength(line)
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return NewNilReply(), nil
	}
	if n > MaxArrayLen {
		return nil, newLimitExceededError(fmt.Sprintf("array length %d exceeds limit %d", n, MaxArrayLen))
	}

	r := acquireReply(KindArray)
	r.Elems = make([]*Reply, 0, n)
	for i := 0; i < n; i++ {
		elem, err := p.ReadReply()
		if err != nil {
			r.Release()
			return nil, err
		}
		r.Elems = append(r.Elems, elem)
	}
	return r, nil
}

func parseLength(line []byte) (int, error) {
	n, err := strconv.Atoi(string(line[1:]))
	if err != nil || n < -1 {
		return 0, newInvalidReplyError(string(line), "invalid length")
	}
	return n, nil
}

// readLine returns one CRLF-terminated line without the terminator.
// The returned slice is owned by the caller.
func (p *ReplyReader) readLine() ([]byte, error) {
	var buf []byte
	for {
		frag, err := p.rd.ReadSlice('\n')
		if err == nil {
			buf = append(buf, frag...)
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			buf = append(buf, frag...)
			if len(buf) > MaxLineLength {
				return nil, newLimitExceededError(fmt.Sprintf("line length exceeds limit %d", MaxLineLength))
			}
			continue
		}
		return nil, err
	}

	if len(buf) > MaxLineLength {
		return nil, newLimitExceededError(fmt.Sprintf("line length exceeds limit %d", MaxLineLength))
	}
	if len(buf) < 2 || !bytes.HasSuffix(buf, crlf) {
		return nil, newInvalidReplyError(string(buf), "missing CRLF")
	}
	return buf[:len(buf)-2], nil
}

// CommandParser parses command lines typed by a user, such as
//
//	SET "key 1" "value with \"quotes\"\n"
//	HSET domains example 'example.com'
//
// Arguments are separated by whitespace. Double-quoted arguments accept
// Go-style escapes (\n, \t, \xHH, \"); single-quoted arguments are literal.
type CommandParser struct{}

// NewCommandParser creates a new command parser.
func NewCommandParser() *CommandParser {
	return &CommandParser{}
}

// Parse parses a command line into a Command.
func (p *CommandParser) Parse(line string) (Command, error) {
	if len(line) > MaxLineLength {
		return Command{}, ErrLineTooLong
	}

	args, err := p.Split(line)
	if err != nil {
		return Command{}, err
	}
	if len(args) == 0 || args[0] == "" {
		return Command{}, &ParseError{Kind: ErrKindEmptyCommand}
	}
	return NewCommand(args[0], args[1:]...), nil
}

// Split splits a line into arguments honouring quotes.
func (p *CommandParser) Split(line string) ([]string, error) {
	var (
		args []string
		cur  strings.Builder
		i    = 0
	)

	for {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		if i >= len(line) {
			return args, nil
		}

		cur.Reset()
		for i < len(line) && !isSpace(line[i]) {
			switch line[i] {
			case '"':
				end, err := closingDoubleQuote(line, i)
				if err != nil {
					return nil, err
				}
				s, err := strconv.Unquote(line[i : end+1])
				if err != nil {
					return nil, &ParseError{Kind: ErrKindInvalidEscape, Value: line[i : end+1], Message: err.Error()}
				}
				cur.WriteString(s)
				i = end + 1
			case '\'':
				end := strings.IndexByte(line[i+1:], '\'')
				if end < 0 {
					return nil, &ParseError{Kind: ErrKindUnbalancedQuotes, Value: line[i:]}
				}
				cur.WriteString(line[i+1 : i+1+end])
				i += end + 2
			default:
				cur.WriteByte(line[i])
				i++
			}
		}
		args = append(args, cur.String())
	}
}

func closingDoubleQuote(line string, start int) (int, error) {
	for j := start + 1; j < len(line); j++ {
		switch line[j] {
		case '\\':
			j++
		case '"':
			return j, nil
		}
	}
	return 0, &ParseError{Kind: ErrKindUnbalancedQuotes, Value: line[start:]}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}
