package miniredis

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// aLongTimeAgo is a deadline in the past, used to interrupt blocked I/O.
var aLongTimeAgo = time.Unix(1, 0)

// Client is a blocking connection to a Redis server.
//
// Each call writes one command (or one pipeline), waits for the reply and
// returns it. Interpretation of the reply is left to the Decode helpers,
// which the typed command methods in commands.go use.
//
// Thread Safety:
// The client owns one transport and has at most one request in flight.
// Calls from multiple goroutines are serialized by a mutex.
type Client struct {
	mu sync.Mutex

	cfg     Config
	dialer  Dialer
	logger  hclog.Logger
	metrics *Metrics

	conn    net.Conn
	writer  *bufio.Writer
	replies *ReplyReader
}

// NewClient creates a client. It does not connect.
func NewClient(opts ...Option) *Client {
	o := buildOptions(opts)
	return &Client{
		cfg:     o.config,
		dialer:  o.dialer,
		logger:  o.logger.Named("client"),
		metrics: o.metrics,
	}
}

// SetHost sets the server host used by the next Connect.
func (c *Client) SetHost(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Host = host
}

// Host returns the configured server host.
func (c *Client) Host() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Host
}

// SetPort sets the server port used by the next Connect.
func (c *Client) SetPort(port uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Port = port
}

// Port returns the configured server port.
func (c *Client) Port() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Port
}

// SetTimeout sets the dial and round-trip timeout. Zero disables it.
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Timeout = d
}

// Timeout returns the configured timeout.
func (c *Client) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Timeout
}

// Config returns a copy of the configuration.
func (c *Client) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetConfig replaces the configuration used by the next Connect.
func (c *Client) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

// IsConnected returns true if the client currently holds a transport.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// ConnectTo sets host, port and timeout, then connects.
func (c *Client) ConnectTo(ctx context.Context, host string, port uint16, timeout time.Duration) error {
	c.mu.Lock()
	c.cfg.Host = host
	c.cfg.Port = port
	c.cfg.Timeout = timeout
	c.mu.Unlock()
	return c.Connect(ctx)
}

// Connect dials the configured server and runs the handshake (AUTH,
// SELECT, CLIENT SETNAME) for the settings that are present. Any existing
// connection is closed first. On failure nothing is left open and Connect
// may simply be called again.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()

	cfg := c.cfg
	dialCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	conn, err := c.dialer.DialContext(dialCtx, "tcp", cfg.Addr())
	c.metrics.connectAttempt("sync", err)
	if err != nil {
		c.logger.Error("failed to connect", "addr", cfg.Addr(), "error", err)
		return NewConnectionError("failed to connect to "+cfg.Addr(), err)
	}

	c.conn = conn
	c.writer = bufio.NewWriter(conn)
	c.replies = NewReplyReader(bufio.NewReader(conn))

	if hs := cfg.handshake(); len(hs) > 0 {
		replies, err := c.roundTripLocked(ctx, hs)
		if err != nil {
			c.closeLocked()
			return NewConnectionError("handshake failed", err)
		}
		for i, r := range replies {
			if rerr := r.Err(); rerr != nil {
				releaseAll(replies)
				c.closeLocked()
				return NewConnectionError(hs[i].Verb()+" rejected", rerr)
			}
		}
		releaseAll(replies)
	}

	c.logger.Debug("connected", "addr", cfg.Addr())
	return nil
}

// Close closes the connection. It is safe to call when not connected.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.writer = nil
	c.replies = nil
	return err
}

// Execute sends one command and blocks until its reply arrives or the
// timeout expires. name is the command verb. The reply is returned
// uninterpreted, including server error replies; the caller owns it.
func (c *Client) Execute(ctx context.Context, name string, args ...string) (*Reply, error) {
	return c.Send(ctx, NewCommand(name, args...))
}

// Send is Execute for a prepared Command.
func (c *Client) Send(ctx context.Context, cmd Command) (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	replies, err := c.roundTripLocked(ctx, []Command{cmd})
	if err != nil {
		return nil, err
	}
	return replies[0], nil
}

// Pipeline writes all commands before reading any reply and returns the
// replies in command order. On error no replies are returned.
func (c *Client) Pipeline(ctx context.Context, cmds ...Command) ([]*Reply, error) {
	if len(cmds) == 0 {
		return nil, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTripLocked(ctx, cmds)
}

// roundTripLocked writes cmds and reads one reply per command. A transport
// or protocol failure closes the connection, since the reply stream can no
// longer be matched to requests.
func (c *Client) roundTripLocked(ctx context.Context, cmds []Command) ([]*Reply, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn := c.conn
	var deadline time.Time
	if c.cfg.Timeout > 0 {
		deadline = time.Now().Add(c.cfg.Timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		c.closeLocked()
		return nil, NewConnectionError("failed to set deadline", err)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(aLongTimeAgo)
	})
	defer stop()

	start := time.Now()
	for _, cmd := range cmds {
		if err := WriteCommand(c.writer, cmd.Argv()); err != nil {
			return nil, c.failLocked(ctx, cmds, err)
		}
	}
	if err := c.writer.Flush(); err != nil {
		return nil, c.failLocked(ctx, cmds, err)
	}

	replies := make([]*Reply, 0, len(cmds))
	for range cmds {
		r, err := c.replies.ReadReply()
		if err != nil {
			releaseAll(replies)
			return nil, c.failLocked(ctx, cmds, err)
		}
		replies = append(replies, r)
	}

	elapsed := time.Since(start)
	for i, cmd := range cmds {
		c.metrics.observeCommand(cmd.Verb(), replies[i], nil, elapsed)
	}
	return replies, nil
}

// failLocked tears the transport down and maps err onto the error taxonomy.
func (c *Client) failLocked(ctx context.Context, cmds []Command, err error) error {
	c.closeLocked()
	for _, cmd := range cmds {
		c.metrics.observeCommand(cmd.Verb(), nil, err, 0)
	}

	var perr *ProtocolError
	var nerr net.Error
	switch {
	case errors.As(err, &perr):
		c.metrics.protocolError("sync")
		c.logger.Warn("protocol error, connection closed", "error", err)
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.As(err, &nerr) && nerr.Timeout():
		c.logger.Warn("command timed out, connection closed", "command", cmds[0].Verb())
		return ErrTimeout
	default:
		c.logger.Warn("connection lost", "error", err)
		return NewConnectionError("connection lost", err)
	}
}

func releaseAll(replies []*Reply) {
	for _, r := range replies {
		r.Release()
	}
}
