// Package miniredistest provides an in-process fake Redis server for tests.
//
// The server speaks RESP2 over TCP on a loopback port and implements the
// string, hash, list, set and pub/sub commands used by package miniredis.
// Tests can intercept commands to inject error replies, delays or raw
// malformed bytes.
package miniredistest

import (
	"bufio"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/yuchuanwang/RedisClient/miniredis"
)

// Interceptor sees every command before the built-in handler. Returning a
// non-nil reply answers the command with it; returning nil falls through.
type Interceptor func(c *Conn, args []string) *miniredis.Reply

// Server is a fake Redis server.
type Server struct {
	listener net.Listener
	logger   hclog.Logger

	mu          sync.Mutex
	store       *store
	conns       map[*Conn]struct{}
	commands    [][]string
	intercept   Interceptor
	requirePass string

	wg sync.WaitGroup
}

// Start starts a server on 127.0.0.1 with a random port. It is stopped
// when the test finishes.
func Start(t testing.TB) *Server {
	t.Helper()
	s, err := NewServer()
	if err != nil {
		t.Fatalf("failed to start fake server: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

// NewServer starts a server on 127.0.0.1 with a random port.
func NewServer() (*Server, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: l,
		logger:   hclog.NewNullLogger(),
		store:    newStore(),
		conns:    make(map[*Conn]struct{}),
	}
	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Host returns the listening host.
func (s *Server) Host() string {
	return s.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listening port.
func (s *Server) Port() uint16 {
	return uint16(s.listener.Addr().(*net.TCPAddr).Port)
}

// SetLogger logs every command received.
func (s *Server) SetLogger(l hclog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = l
}

// Intercept installs fn in front of the built-in commands. nil removes it.
func (s *Server) Intercept(fn Interceptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intercept = fn
}

// RequirePass makes every command other than AUTH fail with NOAUTH until
// the connection authenticates with password.
func (s *Server) RequirePass(password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requirePass = password
}

// Commands returns a copy of every command received, in arrival order.
func (s *Server) Commands() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// Connections returns the number of open client connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Subscribers returns the number of connections subscribed to channel.
func (s *Server) Subscribers(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for c := range s.conns {
		if c.subscribedTo(channel) {
			n++
		}
	}
	return n
}

// WaitForSubscribers blocks until channel has at least n subscribers or
// the timeout expires.
func (s *Server) WaitForSubscribers(channel string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Subscribers(channel) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

// Publish delivers payload to every subscriber of channel and returns how
// many received it.
func (s *Server) Publish(channel, payload string) int {
	s.mu.Lock()
	var targets []*Conn
	for c := range s.conns {
		if c.subscribedTo(channel) {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		c.Write(miniredis.NewStringsReply(miniredis.FrameMessage, channel, payload))
	}
	return len(targets)
}

// Inject writes raw bytes to every open connection.
func (s *Server) Inject(raw []byte) {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.WriteRaw(raw)
	}
}

// Set stores a string value directly, bypassing the protocol.
func (s *Server) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.setString(key, value, 0)
}

// Get reads a string value directly. ok is false for missing keys.
func (s *Server) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.getString(key)
}

// CloseConnections drops every client connection but keeps listening.
func (s *Server) CloseConnections() {
	s.mu.Lock()
	for c := range s.conns {
		c.conn.Close()
	}
	s.mu.Unlock()
}

// Close stops the server and waits for its goroutines.
func (s *Server) Close() {
	s.listener.Close()
	s.CloseConnections()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		nc, err := s.listener.Accept()
		if err != nil {
			return
		}
		c := &Conn{server: s, conn: nc, w: bufio.NewWriter(nc)}

		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(c)
	}
}

func (s *Server) serve(c *Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		c.conn.Close()
	}()

	rd := miniredis.NewReplyReader(bufio.NewReader(c.conn))
	for {
		req, err := rd.ReadReply()
		if err != nil {
			var perr *miniredis.ProtocolError
			if errors.As(err, &perr) {
				c.Write(miniredis.NewErrorReply("ERR Protocol error: " + perr.Message))
			}
			return
		}
		args, ok := commandArgs(req)
		req.Release()
		if !ok {
			c.Write(miniredis.NewErrorReply("ERR Protocol error: expected array of bulk strings"))
			return
		}
		if quit := s.handle(c, args); quit {
			return
		}
	}
}

func commandArgs(r *miniredis.Reply) ([]string, bool) {
	if r.Kind != miniredis.KindArray || len(r.Elems) == 0 {
		return nil, false
	}
	args := make([]string, len(r.Elems))
	for i, e := range r.Elems {
		if e.Kind != miniredis.KindBulk {
			return nil, false
		}
		args[i] = string(e.Str)
	}
	return args, true
}

// handle answers one command. It returns true when the connection should close.
func (s *Server) handle(c *Conn, args []string) bool {
	s.mu.Lock()
	s.commands = append(s.commands, args)
	intercept := s.intercept
	logger := s.logger
	s.mu.Unlock()

	logger.Debug("command", "args", args)

	if intercept != nil {
		if r := intercept(c, args); r != nil {
			c.Write(r)
			return false
		}
	}

	verb := strings.ToUpper(args[0])
	switch verb {
	case "QUIT":
		c.Write(miniredis.NewStatusReply("OK"))
		return true
	case "SUBSCRIBE":
		s.subscribe(c, args[1:])
		return false
	case "UNSUBSCRIBE":
		s.unsubscribe(c, args[1:])
		return false
	case "PUBLISH":
		if len(args) != 3 {
			c.Write(wrongArgs(args[0]))
			return false
		}
		c.Write(miniredis.NewIntegerReply(int64(s.Publish(args[1], args[2]))))
		return false
	}

	if c.inSubscribedMode() && verb != "PING" {
		c.Write(miniredis.NewErrorReply("ERR Can't execute '" + strings.ToLower(args[0]) +
			"': only (P|S)SUBSCRIBE / (P|S)UNSUBSCRIBE / PING / QUIT / RESET are allowed in this context"))
		return false
	}

	s.mu.Lock()
	pass := s.requirePass
	s.mu.Unlock()
	if pass != "" && !c.authed && verb != "AUTH" {
		c.Write(miniredis.NewErrorReply("NOAUTH Authentication required."))
		return false
	}

	c.Write(s.exec(c, verb, args))
	return false
}

func (s *Server) subscribe(c *Conn, channels []string) {
	if len(channels) == 0 {
		c.Write(wrongArgs("subscribe"))
		return
	}
	for _, ch := range channels {
		n := c.addSubscription(ch)
		c.Write(ackReply(miniredis.FrameSubscribe, ch, n))
	}
}

func (s *Server) unsubscribe(c *Conn, channels []string) {
	if len(channels) == 0 {
		channels = c.subscriptionList()
		if len(channels) == 0 {
			c.Write(miniredis.NewArrayReply(
				miniredis.NewBulkStringReply(miniredis.FrameUnsubscribe),
				miniredis.NewNilReply(),
				miniredis.NewIntegerReply(0),
			))
			return
		}
	}
	for _, ch := range channels {
		n := c.removeSubscription(ch)
		c.Write(ackReply(miniredis.FrameUnsubscribe, ch, n))
	}
}

func ackReply(typ, channel string, n int) *miniredis.Reply {
	return miniredis.NewArrayReply(
		miniredis.NewBulkStringReply(typ),
		miniredis.NewBulkStringReply(channel),
		miniredis.NewIntegerReply(int64(n)),
	)
}

func wrongArgs(verb string) *miniredis.Reply {
	return miniredis.NewErrorReply("ERR wrong number of arguments for '" + strings.ToLower(verb) + "' command")
}

// Conn is one client connection to the fake server.
type Conn struct {
	server *Server
	conn   net.Conn

	wmu sync.Mutex
	w   *bufio.Writer

	mu     sync.Mutex
	name   string
	authed bool
	subs   map[string]struct{}
}

// Write sends a reply and releases it.
func (c *Conn) Write(r *miniredis.Reply) {
	defer r.Release()
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := miniredis.WriteReply(c.w, r); err != nil {
		return
	}
	c.w.Flush()
}

// WriteRaw sends bytes verbatim.
func (c *Conn) WriteRaw(b []byte) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.w.Write(b)
	c.w.Flush()
}

// Name returns the name set with CLIENT SETNAME.
func (c *Conn) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

func (c *Conn) subscribedTo(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[channel]
	return ok
}

func (c *Conn) inSubscribedMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs) > 0
}

func (c *Conn) addSubscription(channel string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs == nil {
		c.subs = make(map[string]struct{})
	}
	c.subs[channel] = struct{}{}
	return len(c.subs)
}

func (c *Conn) removeSubscription(channel string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, channel)
	return len(c.subs)
}

func (c *Conn) subscriptionList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		out = append(out, ch)
	}
	return out
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
