// =============================================================================
// lineeditor.go - Line Input for the REPL
// =============================================================================
//
// On a terminal the REPL reads through ergochat/readline, which gives
// cursor movement and a persistent history in ~/.miniredis_history. When
// stdin is a pipe, a dumb terminal or an Emacs comint buffer, input falls
// back to a bufio.Scanner and the prompt is written to the output stream.
//
// =============================================================================

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"golang.org/x/term"

	"github.com/yuchuanwang/RedisClient/miniredis"
)

const (
	historyFileName = ".miniredis_history"
	historySize     = 500
)

// lineReader is the input side of the REPL.
type lineReader interface {
	GetLine(prompt string) (string, error)
	Close()
}

// LineEditor reads one line at a time, interactively when possible.
type LineEditor struct {
	interactive bool
	rl          *readline.Instance
	scanner     *bufio.Scanner
	out         io.Writer
}

// NewLineEditor creates an editor over in. Only a terminal stdin gets the
// readline front end; anything else is read line by line.
func NewLineEditor(in io.Reader, out io.Writer) *LineEditor {
	if !isTerminal(in) {
		return newScannerEditor(in, out)
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:            filepath.Join(homeDir(), historyFileName),
		HistoryLimit:           historySize,
		DisableAutoSaveHistory: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: readline init failed (%v), using basic input\n", err)
		return newScannerEditor(in, out)
	}
	return &LineEditor{interactive: true, rl: rl, out: out}
}

func newScannerEditor(in io.Reader, out io.Writer) *LineEditor {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 4096), miniredis.MaxLineLength+1)
	return &LineEditor{scanner: scanner, out: out}
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false
	}
	return os.Getenv("INSIDE_EMACS") == "" && os.Getenv("TERM") != "dumb"
}

// GetLine shows prompt and returns the next line without its newline.
// io.EOF means the input is exhausted or the user pressed Ctrl-D/Ctrl-C.
func (le *LineEditor) GetLine(prompt string) (string, error) {
	if le.interactive {
		return le.getInteractiveLine(prompt)
	}
	return le.getScannedLine(prompt)
}

func (le *LineEditor) getInteractiveLine(prompt string) (string, error) {
	le.rl.SetPrompt(prompt)
	line, err := le.rl.Readline()
	if err != nil {
		if errors.Is(err, readline.ErrInterrupt) {
			return "", io.EOF
		}
		return "", err
	}
	if trimmed := strings.TrimSpace(line); trimmed != "" {
		le.rl.SaveToHistory(trimmed)
	}
	return line, nil
}

func (le *LineEditor) getScannedLine(prompt string) (string, error) {
	fmt.Fprint(le.out, prompt)
	if !le.scanner.Scan() {
		if err := le.scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return "", miniredis.ErrLineTooLong
			}
			return "", err
		}
		return "", io.EOF
	}
	return le.scanner.Text(), nil
}

// Close releases the terminal. It may be called more than once.
func (le *LineEditor) Close() {
	if le.rl != nil {
		le.rl.Close()
		le.rl = nil
	}
}

// IsInteractive reports whether readline is in use.
func (le *LineEditor) IsInteractive() bool {
	return le.interactive
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}
