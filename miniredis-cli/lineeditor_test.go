package main

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuchuanwang/RedisClient/miniredis"
)

func TestNewLineEditorNonInteractive(t *testing.T) {
	editor := NewLineEditor(strings.NewReader(""), io.Discard)
	defer editor.Close()
	assert.False(t, editor.IsInteractive())
}

func TestNewLineEditorPipeIsNotInteractive(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	editor := NewLineEditor(r, io.Discard)
	defer editor.Close()
	assert.False(t, editor.IsInteractive())
}

func TestGetLineReadsLines(t *testing.T) {
	var out bytes.Buffer
	editor := NewLineEditor(strings.NewReader("GET a\n\n  spaced  \nlast"), &out)
	defer editor.Close()

	for _, want := range []string{"GET a", "", "  spaced  ", "last"} {
		line, err := editor.GetLine("> ")
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}

	_, err := editor.GetLine("> ")
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, strings.Repeat("> ", 5), out.String(), "prompt is written for every read")
}

func TestGetLinePreservesSpecialCharacters(t *testing.T) {
	input := `SET k "tab\there" 'single' ünïcödé` + "\n"
	editor := NewLineEditor(strings.NewReader(input), io.Discard)
	defer editor.Close()

	line, err := editor.GetLine("")
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSuffix(input, "\n"), line)
}

func TestGetLineTooLong(t *testing.T) {
	input := strings.Repeat("x", miniredis.MaxLineLength+2) + "\n"
	editor := NewLineEditor(strings.NewReader(input), io.Discard)
	defer editor.Close()

	_, err := editor.GetLine("")
	assert.ErrorIs(t, err, miniredis.ErrLineTooLong)
}

func TestGetLineAcceptsLongLineBelowLimit(t *testing.T) {
	long := strings.Repeat("y", 10000)
	editor := NewLineEditor(strings.NewReader(long+"\n"), io.Discard)
	defer editor.Close()

	line, err := editor.GetLine("")
	require.NoError(t, err)
	assert.Equal(t, long, line)
}

func TestLineEditorCloseIsIdempotent(t *testing.T) {
	editor := NewLineEditor(strings.NewReader(""), io.Discard)
	editor.Close()
	editor.Close()
}

func TestHistorySettings(t *testing.T) {
	assert.Equal(t, ".miniredis_history", historyFileName)
	assert.Positive(t, historySize)
}
