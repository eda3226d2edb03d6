// =============================================================================
// commands.go - Command and Flag Definitions
// =============================================================================
//
//   miniredis [global flags]                         interactive REPL
//   miniredis exec <command> [arg ...]               one command, then exit
//   miniredis subscribe [--count n] <channel ...>    print pub/sub messages
//   miniredis publish [--count n] <channel> <msg>    post a message
//   miniredis selftest [--publish] [--subscribe]     exercise the client API
//
// Global flags override the config file and MINIREDIS_* variables; see
// config.go.
//
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/urfave/cli/v2"

	"github.com/yuchuanwang/RedisClient/miniredis"
)

// newApp builds the application around the given streams.
func newApp(in io.Reader, out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:      appName,
		Usage:     "Redis command-line client",
		Version:   version,
		Flags:     globalFlags(),
		Reader:    in,
		Writer:    out,
		ErrWriter: errOut,
		Action:    replAction,
		Commands: []*cli.Command{
			{
				Name:   "repl",
				Usage:  "Start the interactive REPL (default)",
				Action: replAction,
			},
			{
				Name:      "exec",
				Usage:     "Send one command and print the reply",
				ArgsUsage: "<command> [arg ...]",
				Action:    execAction,
			},
			{
				Name:      "subscribe",
				Usage:     "Subscribe to channels and print messages",
				ArgsUsage: "<channel> [channel ...]",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "count", Usage: "exit after this many messages (0: run until interrupted)"},
					&cli.DurationFlag{Name: "duration", Usage: "exit after this long (0: run until interrupted)"},
				},
				Action: subscribeAction,
			},
			{
				Name:      "publish",
				Usage:     "Publish a message to a channel",
				ArgsUsage: "<channel> <message>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "count", Value: 1, Usage: "number of times to publish (0: until interrupted)"},
					&cli.DurationFlag{Name: "interval", Value: time.Second, Usage: "pause between repeated publishes"},
				},
				Action: publishAction,
			},
			{
				Name:  "selftest",
				Usage: "Run every client command against the server",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "publish", Usage: "then publish to channelFromGo once a second"},
					&cli.BoolFlag{Name: "subscribe", Usage: "then print messages on testChannel1 and testChannel2"},
					&cli.DurationFlag{Name: "duration", Value: time.Minute, Usage: "length of the publish and subscribe phases"},
				},
				Action: selftestAction,
			},
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Aliases: []string{"H"}, Usage: "server host", Value: miniredis.DefaultHost},
		&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "server port", Value: int(miniredis.DefaultPort)},
		&cli.DurationFlag{Name: "timeout", Aliases: []string{"t"}, Usage: "connect and command timeout", Value: miniredis.DefaultTimeout},
		&cli.StringFlag{Name: "user", Usage: "ACL user name for AUTH"},
		&cli.StringFlag{Name: "password", Aliases: []string{"a"}, Usage: "password for AUTH"},
		&cli.IntFlag{Name: "db", Aliases: []string{"n"}, Usage: "database number"},
		&cli.StringFlag{Name: "name", Usage: "client name (default: miniredis-<ulid>)"},
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file", EnvVars: []string{envPrefix + "CONFIG"}},
		&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn or error", Value: "warn"},
		&cli.BoolFlag{Name: "raw", Usage: "print bare reply values"},
		&cli.BoolFlag{Name: "launch", Usage: "start a local redis-server if none is listening"},
	}
}

// session holds what every action needs.
type session struct {
	cfg    cliConfig
	logger hclog.Logger
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func newSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return &session{
		cfg:    cfg,
		logger: cfg.logger(c.App.ErrWriter),
		in:     c.App.Reader,
		out:    c.App.Writer,
		errOut: c.App.ErrWriter,
	}, nil
}

func (s *session) newClient() *miniredis.Client {
	return miniredis.NewClient(
		miniredis.WithConfig(s.cfg.clientConfig()),
		miniredis.WithLogger(s.logger),
	)
}

// connect connects client. With --launch and nothing listening on a local
// address, it starts redis-server first; the returned server is nil
// otherwise.
func (s *session) connect(ctx context.Context, client *miniredis.Client) (*launchedServer, error) {
	err := client.Connect(ctx)
	if err == nil || !s.cfg.Launch || !isLocalHost(s.cfg.Host) {
		return nil, err
	}
	var serr *miniredis.ServerError
	if errors.As(err, &serr) {
		// the server is there but rejected the handshake
		return nil, err
	}

	fmt.Fprintf(s.out, "No server at %s. Launching %s...\n", s.cfg.addr(), serverExecutableName)
	srv, lerr := launchServer(ctx, s.cfg.Port, s.logger)
	if lerr != nil {
		return nil, lerr
	}
	fmt.Fprintf(s.out, "%s started (PID: %d)\n", serverExecutableName, srv.Pid())

	if err := client.Connect(ctx); err != nil {
		srv.Stop()
		return nil, err
	}
	return srv, nil
}

func isLocalHost(host string) bool {
	switch strings.ToLower(host) {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func replAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	ctx := c.Context

	client := s.newClient()
	defer client.Close()

	fmt.Fprint(s.out, welcomeBanner())
	srv, err := s.connect(ctx, client)
	if err != nil {
		var cerr *miniredis.ConnectionError
		if !errors.As(err, &cerr) {
			return err
		}
		fmt.Fprintf(s.errOut, "Could not connect to %s: %v\n", s.cfg.addr(), err)
	} else {
		fmt.Fprintf(s.out, "Connected to %s\n", s.cfg.addr())
	}
	defer srv.Stop()
	fmt.Fprintln(s.out)

	editor := NewLineEditor(s.in, s.out)
	defer editor.Close()
	return newREPL(client, editor, s.out, s.errOut, s.cfg.Raw).run(ctx)
}

func execAction(c *cli.Context) error {
	args := c.Args().Slice()
	if len(args) == 0 {
		return errors.New("exec needs a command, e.g. `miniredis exec GET key`")
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}

	client := s.newClient()
	defer client.Close()
	srv, err := s.connect(c.Context, client)
	if err != nil {
		return err
	}
	defer srv.Stop()

	reply, err := client.Execute(c.Context, args[0], args[1:]...)
	if err != nil {
		return err
	}
	defer reply.Release()
	fmt.Fprint(s.out, renderReply(reply, s.cfg.Raw))
	return nil
}

func publishAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return errors.New("publish needs a channel and a message")
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}

	client := s.newClient()
	defer client.Close()
	srv, err := s.connect(c.Context, client)
	if err != nil {
		return err
	}
	defer srv.Stop()

	return publishLoop(c.Context, client, c.Args().Get(0), c.Args().Get(1), c.Int("count"), c.Duration("interval"), s.out)
}

func subscribeAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("subscribe needs at least one channel")
	}
	s, err := newSession(c)
	if err != nil {
		return err
	}
	return s.subscribe(c.Context, c.Args().Slice(), c.Int("count"), c.Duration("duration"))
}

// subscribe prints messages on channels until count messages arrived, d
// elapsed, ctx ended or the connection was lost.
func (s *session) subscribe(ctx context.Context, channels []string, count int, d time.Duration) error {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	connected := make(chan error, 1)
	lost := make(chan error, 1)
	done := make(chan struct{})
	var once sync.Once
	received := 0

	sink := miniredis.SinkFunc(func(channel, payload string) {
		if count > 0 && received >= count {
			return
		}
		received++
		fmt.Fprintf(s.out, "%s: %s\n", channel, payload)
		if count > 0 && received == count {
			once.Do(func() { close(done) })
		}
	})

	conn := miniredis.NewAsyncConn(
		miniredis.WithConfig(s.cfg.clientConfig()),
		miniredis.WithLogger(s.logger),
		miniredis.WithSink(sink),
		miniredis.OnConnect(func(err error) { notifyOnce(connected, err) }),
		miniredis.OnDisconnect(func(err error) { notifyOnce(lost, err) }),
	)
	if err := conn.Connect(ctx); err != nil {
		return err
	}
	defer conn.Disconnect()

	select {
	case err := <-connected:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return nil
	}

	fmt.Fprintf(s.out, "Subscribing to %s. Press Ctrl-C to stop.\n", strings.Join(channels, ", "))
	if err := conn.Subscribe(channels...); err != nil {
		return err
	}

	select {
	case <-done:
	case <-ctx.Done():
	case err := <-lost:
		if err != nil {
			return fmt.Errorf("subscription ended: %w", err)
		}
	}
	return nil
}

// notifyOnce delivers err unless an earlier value is still unread.
func notifyOnce(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func selftestAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	ctx := c.Context

	client := s.newClient()
	defer client.Close()
	srv, err := s.connect(ctx, client)
	if err != nil {
		return err
	}
	defer srv.Stop()

	if err := runSelfTest(ctx, client, s.out); err != nil {
		return err
	}

	d := c.Duration("duration")
	if c.Bool("publish") {
		pctx, cancel := context.WithTimeout(ctx, d)
		err := publishLoop(pctx, client, "channelFromGo", "Content from Go client", 0, time.Second, s.out)
		cancel()
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, "Publishing done")
	}
	if c.Bool("subscribe") {
		if err := s.subscribe(ctx, []string{"testChannel1", "testChannel2"}, 0, d); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "Subscribing done")
	}
	return nil
}
