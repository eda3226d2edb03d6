package miniredis

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edwingeng/deque/v2"
	"github.com/hashicorp/go-hclog"
)

// State is the lifecycle state of an AsyncConn.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Callback receives the reply to an asynchronous command, or the error that
// prevented one (ErrDisconnected when the connection went away first). It
// runs on the event loop goroutine. The callback owns r and must release
// it; the Decode helpers do so.
type Callback func(r *Reply, err error)

type request struct {
	cmd    Command
	cb     Callback
	reply  bool // occupies a pending slot
	queued time.Time
	gen    uint64
}

type frame struct {
	reply *Reply
	err   error
}

// AsyncConn is a non-blocking connection driven by an EventLoop.
//
// Connect returns at once; the dial result is reported to the OnConnect
// callback. Commands, publishes and subscription changes are queued by the
// caller and written by the loop goroutine, which is also the only
// goroutine that invokes callbacks and the subscription sink. Replies are
// matched to callbacks in submission order; pub/sub frames go to the Router.
//
// Thread Safety:
// All methods are safe for concurrent use. Disconnect and Connect may be
// called from inside a callback. Disconnect then returns without waiting
// for the loop to exit; a following Connect starts only after the old
// session has finished. Called from any other goroutine, Disconnect waits
// for the loop, including a callback that is still running.
type AsyncConn struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	gen      uint64 // session generation, bumped by Connect
	outbound *deque.Deque[request]

	wake chan struct{}
	loop EventLoop
	// loopID is the goroutine id of the running loop, 0 when none.
	loopID atomic.Uint64

	dialer       Dialer
	logger       hclog.Logger
	metrics      *Metrics
	router       *Router
	onConnect    func(err error)
	onDisconnect func(err error)
}

// NewAsyncConn creates a disconnected AsyncConn.
func NewAsyncConn(opts ...Option) *AsyncConn {
	o := buildOptions(opts)
	logger := o.logger.Named("async")
	return &AsyncConn{
		cfg:          o.config,
		outbound:     deque.NewDeque[request](),
		wake:         make(chan struct{}, 1),
		dialer:       o.dialer,
		logger:       logger,
		metrics:      o.metrics,
		router:       NewRouter(o.sink, logger.Named("router"), o.metrics),
		onConnect:    o.onConnect,
		onDisconnect: o.onDisconnect,
	}
}

// SetHost sets the server host used by the next Connect.
func (a *AsyncConn) SetHost(host string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.Host = host
}

// Host returns the configured server host.
func (a *AsyncConn) Host() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Host
}

// SetPort sets the server port used by the next Connect.
func (a *AsyncConn) SetPort(port uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.Port = port
}

// Port returns the configured server port.
func (a *AsyncConn) Port() uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Port
}

// SetTimeout sets the dial and write timeout. Zero disables it.
func (a *AsyncConn) SetTimeout(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.Timeout = d
}

// Timeout returns the configured timeout.
func (a *AsyncConn) Timeout() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Timeout
}

// State returns the current lifecycle state.
func (a *AsyncConn) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SetSink replaces the subscription sink. A nil sink logs messages.
func (a *AsyncConn) SetSink(sink SubscriptionSink) {
	a.router.SetSink(sink)
}

// Subscriptions returns the channels acknowledged by the server.
func (a *AsyncConn) Subscriptions() []string {
	return a.router.Subscriptions()
}

// Connect starts connecting to the configured server and returns without
// waiting for the dial. Any previous session is disconnected first. An
// error means the attempt was not started; the connection stays
// Disconnected and may be connected again.
func (a *AsyncConn) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.Disconnect()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateDisconnected {
		return ErrLoopRunning
	}

	cfg := a.cfg
	gen := a.gen + 1
	if err := a.loop.Start(func(loopCtx context.Context) {
		a.run(ctx, loopCtx, cfg, gen)
	}); err != nil {
		a.logger.Error("cannot start event loop", "error", err)
		return err
	}
	a.gen = gen
	a.state = StateConnecting
	return nil
}

// ConnectTo sets host and port, then connects.
func (a *AsyncConn) ConnectTo(ctx context.Context, host string, port uint16) error {
	a.mu.Lock()
	a.cfg.Host = host
	a.cfg.Port = port
	a.mu.Unlock()
	return a.Connect(ctx)
}

// Disconnect ends the session. Commands still queued or awaiting a reply
// fail with ErrDisconnected, the transport is closed and the event loop is
// stopped and joined. Disconnect may be called any number of times.
//
// On the loop goroutine, that is from a callback or the sink, the join is
// skipped and the loop exits once the callback returns.
func (a *AsyncConn) Disconnect() {
	a.mu.Lock()
	a.state = StateDisconnected
	a.loop.Stop()
	a.mu.Unlock()

	if id := a.loopID.Load(); id != 0 && id == goroutineID() {
		return
	}
	a.loop.Wait()
}

// Command queues cmd. cb, which may be nil, receives the reply. SUBSCRIBE
// and UNSUBSCRIBE are treated as Subscribe and Unsubscribe and never
// invoke cb.
func (a *AsyncConn) Command(cmd Command, cb Callback) error {
	switch cmd.Verb() {
	case "SUBSCRIBE":
		return a.Subscribe(cmd.Args...)
	case "UNSUBSCRIBE":
		return a.Unsubscribe(cmd.Args...)
	}
	return a.submit(request{cmd: cmd, cb: cb, reply: true})
}

// Publish queues a PUBLISH. Server errors are logged.
func (a *AsyncConn) Publish(channel, message string) error {
	if channel == "" {
		return ErrEmptyArgument
	}
	return a.submit(request{cmd: NewPublishCommand(channel, message), reply: true})
}

// Subscribe queues a SUBSCRIBE. The subscription is active once the
// server acknowledges it; messages then go to the sink.
func (a *AsyncConn) Subscribe(channels ...string) error {
	if len(channels) == 0 {
		return ErrEmptyArgument
	}
	for _, ch := range channels {
		if ch == "" {
			return ErrEmptyArgument
		}
	}
	return a.submit(request{cmd: NewSubscribeCommand(channels...)})
}

// Unsubscribe queues an UNSUBSCRIBE. With no channels every subscription
// is dropped.
func (a *AsyncConn) Unsubscribe(channels ...string) error {
	for _, ch := range channels {
		if ch == "" {
			return ErrEmptyArgument
		}
	}
	return a.submit(request{cmd: NewUnsubscribeCommand(channels...)})
}

func (a *AsyncConn) submit(req request) error {
	a.mu.Lock()
	if a.state == StateDisconnected {
		a.mu.Unlock()
		return ErrNotConnected
	}
	req.queued = time.Now()
	req.gen = a.gen
	a.outbound.PushFront(req)
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

// goroutineID parses the current goroutine's id from its stack header,
// "goroutine 18 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

func (a *AsyncConn) notify(fn func(err error), err error) {
	if fn == nil {
		return
	}
	fn(err)
}

// run is the body of the event loop goroutine.
func (a *AsyncConn) run(ctx, loopCtx context.Context, cfg Config, gen uint64) {
	id := goroutineID()
	a.loopID.Store(id)
	defer a.loopID.CompareAndSwap(id, 0)

	log := a.logger.With("addr", cfg.Addr())

	conn, err := a.dial(ctx, loopCtx, cfg)
	a.metrics.connectAttempt("async", err)
	if err != nil {
		log.Error("failed to connect", "error", err)
		a.teardown(gen, nil)
		a.notify(a.onConnect, NewConnectionError("failed to connect to "+cfg.Addr(), err))
		return
	}

	a.mu.Lock()
	if loopCtx.Err() != nil || a.gen != gen {
		a.mu.Unlock()
		conn.Close()
		a.teardown(gen, nil)
		a.notify(a.onConnect, NewConnectionError("connect aborted", context.Canceled))
		return
	}
	a.state = StateConnected
	a.mu.Unlock()

	log.Debug("connected")
	a.notify(a.onConnect, nil)

	cause := a.serve(loopCtx, conn, cfg, gen)
	if cause != nil {
		log.Warn("connection lost", "error", cause)
	} else {
		log.Debug("disconnected")
	}
	a.notify(a.onDisconnect, cause)
}

func (a *AsyncConn) dial(ctx, loopCtx context.Context, cfg Config) (net.Conn, error) {
	dialCtx, cancel := context.WithCancel(loopCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if cfg.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		dialCtx, cancelTimeout = context.WithTimeout(dialCtx, cfg.Timeout)
		defer cancelTimeout()
	}
	return a.dialer.DialContext(dialCtx, "tcp", cfg.Addr())
}

// teardown fails the requests written in session gen. Unless a newer
// session has been started, it also marks the connection Disconnected and
// fails everything still queued.
func (a *AsyncConn) teardown(gen uint64, pending []request) {
	var queued []request
	a.mu.Lock()
	current := a.gen == gen
	if current {
		a.state = StateDisconnected
		queued = make([]request, 0, a.outbound.Len())
		for a.outbound.Len() > 0 {
			queued = append(queued, a.outbound.PopBack())
		}
	}
	a.mu.Unlock()

	if current {
		a.router.reset()
	}
	for _, req := range pending {
		a.complete(req, nil, ErrDisconnected)
	}
	for _, req := range queued {
		if req.reply {
			a.complete(req, nil, ErrDisconnected)
		}
	}
}

// complete hands r or err to the request's callback, which then owns r.
// Without a callback r is released here.
func (a *AsyncConn) complete(req request, r *Reply, err error) {
	var elapsed time.Duration
	if err == nil {
		elapsed = time.Since(req.queued)
	}
	a.metrics.observeCommand(req.cmd.Verb(), r, err, elapsed)

	if req.cb == nil {
		if rerr := r.Err(); rerr != nil {
			a.logger.Warn("command failed", "command", req.cmd.Verb(), "error", rerr)
		}
		r.Release()
		return
	}
	req.cb(r, err)
}

// session is the state of one established transport. It is owned by the
// loop goroutine.
type session struct {
	a       *AsyncConn
	gen     uint64
	conn    net.Conn
	w       *bufio.Writer
	timeout time.Duration

	pending    *deque.Deque[request]
	subscribed bool
	fatal      error
}

// serve pumps the connection until loopCtx is cancelled or the transport
// fails. It returns nil for a requested stop.
func (a *AsyncConn) serve(loopCtx context.Context, conn net.Conn, cfg Config, gen uint64) error {
	s := &session{
		a:       a,
		gen:     gen,
		conn:    conn,
		w:       bufio.NewWriter(conn),
		timeout: cfg.Timeout,
		pending: deque.NewDeque[request](),
	}

	frames := make(chan frame)
	quit := make(chan struct{})
	readerDone := make(chan struct{})
	go a.readLoop(conn, frames, quit, readerDone)

	defer func() {
		close(quit)
		conn.Close()
		<-readerDone
		a.teardown(gen, s.drainPending())
	}()

	for _, cmd := range cfg.handshake() {
		s.pending.PushFront(request{cmd: cmd, cb: s.handshakeCallback(cmd), reply: true, queued: time.Now()})
		if err := WriteCommand(s.w, cmd.Argv()); err != nil {
			return NewConnectionError("write failed", err)
		}
	}
	if err := s.flushOutbound(); err != nil {
		return err
	}

	for {
		select {
		case <-loopCtx.Done():
			return nil
		case <-a.wake:
			if err := s.flushOutbound(); err != nil {
				return err
			}
		case f := <-frames:
			if f.err != nil {
				return a.readError(f.err)
			}
			s.dispatch(f.reply)
			if s.fatal != nil {
				return s.fatal
			}
		}
	}
}

// readLoop parses frames and hands them to the loop. It exits after the
// first read error or once quit is closed.
func (a *AsyncConn) readLoop(conn net.Conn, frames chan<- frame, quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	rd := NewReplyReader(bufio.NewReader(conn))
	for {
		r, err := rd.ReadReply()
		select {
		case frames <- frame{reply: r, err: err}:
		case <-quit:
			r.Release()
			return
		}
		if err != nil {
			return
		}
	}
}

func (a *AsyncConn) readError(err error) error {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		a.metrics.protocolError("async")
		return err
	}
	return NewConnectionError("connection lost", err)
}

// flushOutbound writes every queued request. Requests left over from an
// earlier session fail with ErrDisconnected instead.
func (s *session) flushOutbound() error {
	a := s.a
	a.mu.Lock()
	if a.gen != s.gen {
		a.mu.Unlock()
		return nil
	}
	batch := make([]request, 0, a.outbound.Len())
	for a.outbound.Len() > 0 {
		batch = append(batch, a.outbound.PopBack())
	}
	a.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	if s.timeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	}
	for _, req := range batch {
		if req.gen != s.gen {
			if req.reply {
				a.complete(req, nil, ErrDisconnected)
			}
			continue
		}
		if req.reply {
			s.pending.PushFront(req)
		}
		if req.cmd.Verb() == "SUBSCRIBE" {
			s.subscribed = true
		}
		if err := WriteCommand(s.w, req.cmd.Argv()); err != nil {
			return NewConnectionError("write failed", err)
		}
	}
	if err := s.w.Flush(); err != nil {
		return NewConnectionError("write failed", err)
	}
	return nil
}

// dispatch routes one inbound frame. While subscribed, pub/sub frames and
// any frame that no command is waiting for go to the router; everything
// else completes the oldest pending command.
func (s *session) dispatch(r *Reply) {
	a := s.a
	typ, count, isPubSub := pubsubFrame(r)

	if s.subscribed && (isPubSub || s.pending.Len() == 0) {
		if typ == FrameUnsubscribe && count == 0 {
			s.subscribed = false
		}
		a.router.Route(r)
		return
	}

	if s.pending.Len() == 0 {
		a.metrics.protocolError("async")
		a.logger.Warn("dropping unexpected reply", "reply", r.Format())
		r.Release()
		return
	}
	a.complete(s.pending.PopBack(), r, nil)
}

func (s *session) drainPending() []request {
	out := make([]request, 0, s.pending.Len())
	for s.pending.Len() > 0 {
		out = append(out, s.pending.PopBack())
	}
	return out
}

// handshakeCallback ends the session when the server rejects a handshake
// command.
func (s *session) handshakeCallback(cmd Command) Callback {
	return func(r *Reply, err error) {
		defer r.Release()
		if err != nil {
			return
		}
		if rerr := r.Err(); rerr != nil {
			s.fatal = NewConnectionError(cmd.Verb()+" rejected", rerr)
		}
	}
}
