// =============================================================================
// repl.go - Interactive Command Loop
// =============================================================================
//
// Each input line is either a dot-command handled locally or a server
// command. Server commands are tokenized with miniredis.CommandParser, sent
// with the synchronous client and printed with renderReply. A lost
// connection is re-established on the next command.
//
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/yuchuanwang/RedisClient/miniredis"
)

type repl struct {
	client *miniredis.Client
	editor lineReader
	parser *miniredis.CommandParser
	out    io.Writer
	errOut io.Writer
	raw    bool
	db     int
}

func newREPL(client *miniredis.Client, editor lineReader, out, errOut io.Writer, raw bool) *repl {
	return &repl{
		client: client,
		editor: editor,
		parser: miniredis.NewCommandParser(),
		out:    out,
		errOut: errOut,
		raw:    raw,
		db:     client.Config().DB,
	}
}

// prompt mirrors redis-cli: "host:port> ", with the database index when it
// is not 0.
func (r *repl) prompt() string {
	if !r.client.IsConnected() {
		return "not connected> "
	}
	addr := r.client.Config().Addr()
	if r.db != 0 {
		return fmt.Sprintf("%s[%d]> ", addr, r.db)
	}
	return addr + "> "
}

// run reads and executes lines until EOF, a quit command or cancellation.
func (r *repl) run(ctx context.Context) error {
	for ctx.Err() == nil {
		line, err := r.editor.GetLine(r.prompt())
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ".") {
			if quit := r.dotCommand(ctx, line); quit {
				return nil
			}
			continue
		}
		switch strings.ToLower(line) {
		case "quit", "exit":
			return nil
		}
		r.execute(ctx, line)
	}
	return nil
}

// dotCommand handles a local command and reports whether to quit.
func (r *repl) dotCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case ".quit", ".exit":
		return true
	case ".help":
		printHelp(r.out, strings.Join(args, " "))
	case ".raw":
		r.raw = !r.raw
		if r.raw {
			fmt.Fprintln(r.out, "Raw output on")
		} else {
			fmt.Fprintln(r.out, "Raw output off")
		}
	case ".info":
		cfg := r.client.Config()
		fmt.Fprintf(r.out, "server:    %s\n", cfg.Addr())
		fmt.Fprintf(r.out, "connected: %t\n", r.client.IsConnected())
		fmt.Fprintf(r.out, "db:        %d\n", r.db)
		fmt.Fprintf(r.out, "name:      %s\n", cfg.ClientName)
		fmt.Fprintf(r.out, "timeout:   %s\n", cfg.Timeout)
	case ".connect":
		r.connect(ctx, args)
	default:
		fmt.Fprintf(r.errOut, "Error: unknown command %s. Type .help for help.\n", fields[0])
	}
	return false
}

func (r *repl) connect(ctx context.Context, args []string) {
	if len(args) > 1 {
		port, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil || port == 0 {
			fmt.Fprintf(r.errOut, "Error: invalid port %q\n", args[1])
			return
		}
		r.client.SetPort(uint16(port))
	}
	if len(args) > 0 {
		r.client.SetHost(args[0])
	}
	if err := r.client.Connect(ctx); err != nil {
		fmt.Fprintf(r.errOut, "Error: %v\n", err)
		return
	}
	r.db = r.client.Config().DB
	fmt.Fprintf(r.out, "Connected to %s\n", r.client.Config().Addr())
}

func (r *repl) execute(ctx context.Context, line string) {
	cmd, err := r.parser.Parse(line)
	if err != nil {
		fmt.Fprintf(r.errOut, "Error: %v\n", err)
		return
	}
	switch cmd.Verb() {
	case "SUBSCRIBE", "UNSUBSCRIBE":
		fmt.Fprintf(r.errOut, "Error: %s is not available in the REPL; run `%s subscribe` instead\n", cmd.Verb(), appName)
		return
	}

	if !r.client.IsConnected() {
		if err := r.client.Connect(ctx); err != nil {
			fmt.Fprintf(r.errOut, "Error: %v\n", err)
			return
		}
		r.db = r.client.Config().DB
	}

	reply, err := r.client.Send(ctx, cmd)
	if err != nil {
		fmt.Fprintf(r.errOut, "Error: %v\n", err)
		return
	}
	defer reply.Release()

	if cmd.Verb() == "SELECT" && reply.IsOK() && len(cmd.Args) == 1 {
		if n, err := strconv.Atoi(cmd.Args[0]); err == nil {
			r.db = n
		}
	}
	fmt.Fprint(r.out, renderReply(reply, r.raw))
}
