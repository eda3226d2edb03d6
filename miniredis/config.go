package miniredis

import (
	"context"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Config holds connection settings shared by Client and AsyncConn.
// Fields may be changed between connects; a connect always discards the
// previous connection first.
type Config struct {
	Host string
	Port uint16

	// Timeout bounds dialing and, for Client, each round trip.
	// AsyncConn uses it for dialing and writes.
	Timeout time.Duration

	// Optional handshake performed right after dialing.
	Username   string
	Password   string
	DB         int
	ClientName string
}

// DefaultConfig returns the configuration used by NewClient and NewAsyncConn.
func DefaultConfig() Config {
	return Config{
		Host:    DefaultHost,
		Port:    DefaultPort,
		Timeout: DefaultTimeout,
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// handshake returns the commands sent after dialing, in order.
func (c Config) handshake() []Command {
	var cmds []Command
	if c.Password != "" {
		cmds = append(cmds, NewAuthCommand(c.Username, c.Password))
	}
	if c.DB != 0 {
		cmds = append(cmds, NewSelectCommand(c.DB))
	}
	if c.ClientName != "" {
		cmds = append(cmds, NewClientSetNameCommand(c.ClientName))
	}
	return cmds
}

// Dialer opens the transport. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// options collects the functional options accepted by the constructors.
type options struct {
	config       Config
	logger       hclog.Logger
	metrics      *Metrics
	dialer       Dialer
	sink         SubscriptionSink
	onConnect    func(err error)
	onDisconnect func(err error)
}

// Option configures a Client or an AsyncConn.
type Option func(*options)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithAddress sets host and port.
func WithAddress(host string, port uint16) Option {
	return func(o *options) {
		o.config.Host = host
		o.config.Port = port
	}
}

// WithTimeout sets the dial and round-trip timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.config.Timeout = d
	}
}

// WithLogger sets the logger. Components log under named sub-loggers.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithDialer overrides the transport dialer.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithSink sets the receiver of pub/sub messages for an AsyncConn.
func WithSink(s SubscriptionSink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// OnConnect registers a callback invoked on the event loop once an
// AsyncConn connect attempt completes. err is nil on success.
func OnConnect(fn func(err error)) Option {
	return func(o *options) {
		o.onConnect = fn
	}
}

// OnDisconnect registers a callback invoked on the event loop when an
// AsyncConn session ends. err is nil for a requested disconnect.
func OnDisconnect(fn func(err error)) Option {
	return func(o *options) {
		o.onDisconnect = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{config: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = hclog.New(&hclog.LoggerOptions{
			Name:   "miniredis",
			Level:  hclog.Info,
			Output: os.Stderr,
		})
	}
	if o.dialer == nil {
		o.dialer = &net.Dialer{}
	}
	return o
}
