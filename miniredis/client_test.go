package miniredis_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuchuanwang/RedisClient/miniredis"
	"github.com/yuchuanwang/RedisClient/miniredistest"
)

func newTestClient(t *testing.T, srv *miniredistest.Server, opts ...miniredis.Option) *miniredis.Client {
	t.Helper()
	base := []miniredis.Option{
		miniredis.WithAddress(srv.Host(), srv.Port()),
		miniredis.WithTimeout(time.Second),
		miniredis.WithLogger(hclog.NewNullLogger()),
	}
	c := miniredis.NewClient(append(base, opts...)...)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

// closedPort returns a loopback port with nothing listening on it.
func closedPort(t *testing.T) uint16 {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(l.Addr().(*net.TCPAddr).Port)
	l.Close()
	return port
}

func TestClientNotConnected(t *testing.T) {
	c := miniredis.NewClient(miniredis.WithLogger(hclog.NewNullLogger()))
	assert.False(t, c.IsConnected())

	_, err := c.Execute(context.Background(), "GET", "k")
	assert.ErrorIs(t, err, miniredis.ErrNotConnected)

	_, err = c.Get(context.Background(), "k")
	assert.ErrorIs(t, err, miniredis.ErrNotConnected)
}

func TestClientConnectFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	c := miniredis.NewClient(miniredis.WithLogger(hclog.NewNullLogger()))

	err := c.ConnectTo(ctx, "127.0.0.1", closedPort(t), time.Second)
	var cerr *miniredis.ConnectionError
	require.ErrorAs(t, err, &cerr)
	assert.False(t, c.IsConnected())

	srv := miniredistest.Start(t)
	require.NoError(t, c.ConnectTo(ctx, srv.Host(), srv.Port(), time.Second))
	defer c.Close()
	assert.True(t, c.IsConnected())
	assert.Equal(t, srv.Port(), c.Port())
}

func TestClientReconnectClosesPrevious(t *testing.T) {
	srv := miniredistest.Start(t)
	c := newTestClient(t, srv)

	require.NoError(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool { return srv.Connections() == 1 }, time.Second, 5*time.Millisecond)
}

func TestClientAccessors(t *testing.T) {
	c := miniredis.NewClient()
	assert.Equal(t, miniredis.DefaultHost, c.Host())
	assert.Equal(t, miniredis.DefaultPort, c.Port())
	assert.Equal(t, miniredis.DefaultTimeout, c.Timeout())

	c.SetHost("10.0.0.1")
	c.SetPort(6380)
	c.SetTimeout(5 * time.Second)
	assert.Equal(t, "10.0.0.1:6380", c.Config().Addr())
	assert.Equal(t, 5*time.Second, c.Timeout())
}

func TestClientSetGet(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, miniredistest.Start(t))

	s, err := c.Set(ctx, "a", "1", 0)
	require.NoError(t, err)
	assert.Equal(t, "OK", s)

	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	v, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, miniredis.ErrNil)
	assert.Equal(t, "", v)
}

func TestClientBinarySafeValues(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, miniredistest.Start(t))

	value := "line1\r\nline2\x00\xff"
	_, err := c.Set(ctx, "key 1", value, 0)
	require.NoError(t, err)

	v, err := c.Get(ctx, "key 1")
	require.NoError(t, err)
	assert.Equal(t, value, v)
}

func TestClientExpireMissingKey(t *testing.T) {
	c := newTestClient(t, miniredistest.Start(t))

	n, err := c.Expire(context.Background(), "k", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestClientPing(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, miniredistest.Start(t))

	s, err := c.Ping(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "PONG", s)

	s, err = c.Ping(ctx, "Hello Redis")
	require.NoError(t, err)
	assert.Equal(t, "Hello Redis", s)
}

func TestClientTypeAcceptsBothKinds(t *testing.T) {
	ctx := context.Background()
	srv := miniredistest.Start(t)
	c := newTestClient(t, srv)

	_, err := c.HSet(ctx, "domains", "example", "example.com")
	require.NoError(t, err)

	typ, err := c.Type(ctx, "domains")
	require.NoError(t, err)
	assert.Equal(t, "hash", typ)

	srv.Intercept(func(_ *miniredistest.Conn, args []string) *miniredis.Reply {
		if args[0] == "TYPE" {
			return miniredis.NewBulkStringReply("hash")
		}
		return nil
	})
	typ, err = c.Type(ctx, "domains")
	require.NoError(t, err)
	assert.Equal(t, "hash", typ)
}

func TestClientServerError(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, miniredistest.Start(t))

	_, err := c.LPush(ctx, "list", "x")
	require.NoError(t, err)

	_, err = c.Get(ctx, "list")
	var serr *miniredis.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "WRONGTYPE", serr.Prefix())
	assert.True(t, c.IsConnected(), "a server error leaves the connection usable")
}

func TestClientTimeoutTearsDownTransport(t *testing.T) {
	ctx := context.Background()
	srv := miniredistest.Start(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	srv.Intercept(func(_ *miniredistest.Conn, args []string) *miniredis.Reply {
		if args[0] == "GET" && args[1] == "slow" {
			<-release
			return miniredis.NewNilReply()
		}
		return nil
	})
	c := newTestClient(t, srv, miniredis.WithTimeout(100*time.Millisecond))

	_, err := c.Get(ctx, "slow")
	assert.ErrorIs(t, err, miniredis.ErrTimeout)
	assert.False(t, c.IsConnected())

	_, err = c.Get(ctx, "fast")
	assert.ErrorIs(t, err, miniredis.ErrNotConnected)

	require.NoError(t, c.Connect(ctx))
	_, err = c.Get(ctx, "fast")
	assert.ErrorIs(t, err, miniredis.ErrNil)
}

func TestClientContextCancel(t *testing.T) {
	srv := miniredistest.Start(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	srv.Intercept(func(_ *miniredistest.Conn, args []string) *miniredis.Reply {
		if args[0] == "GET" {
			<-release
		}
		return nil
	})
	c := newTestClient(t, srv, miniredis.WithTimeout(0))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.IsConnected())
}

func TestClientConnectionLost(t *testing.T) {
	ctx := context.Background()
	srv := miniredistest.Start(t)
	c := newTestClient(t, srv)

	srv.CloseConnections()
	_, err := c.Get(ctx, "k")
	var cerr *miniredis.ConnectionError
	require.ErrorAs(t, err, &cerr)
	assert.False(t, c.IsConnected())
}

func TestClientProtocolErrorClosesConnection(t *testing.T) {
	srv := miniredistest.Start(t)
	srv.Intercept(func(c *miniredistest.Conn, args []string) *miniredis.Reply {
		if args[0] == "GET" {
			c.WriteRaw([]byte("!garbage\r\n"))
			return miniredis.NewNilReply()
		}
		return nil
	})
	c := newTestClient(t, srv)

	_, err := c.Get(context.Background(), "k")
	var perr *miniredis.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, miniredis.ProtoInvalidReply, perr.Kind)
	assert.False(t, c.IsConnected())
}

func TestClientHandshake(t *testing.T) {
	srv := miniredistest.Start(t)
	srv.RequirePass("password123")

	cfg := miniredis.DefaultConfig()
	cfg.Host, cfg.Port = srv.Host(), srv.Port()
	cfg.Password = "password123"
	cfg.DB = 1
	cfg.ClientName = "MiniGoClient"

	c := newTestClient(t, srv, miniredis.WithConfig(cfg))

	name, err := c.ClientGetName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "MiniGoClient", name)

	cmds := srv.Commands()
	require.GreaterOrEqual(t, len(cmds), 3)
	assert.Equal(t, []string{"AUTH", "password123"}, cmds[0])
	assert.Equal(t, []string{"SELECT", "1"}, cmds[1])
	assert.Equal(t, []string{"CLIENT", "SETNAME", "MiniGoClient"}, cmds[2])
}

func TestClientHandshakeRejected(t *testing.T) {
	srv := miniredistest.Start(t)
	srv.RequirePass("password123")

	cfg := miniredis.DefaultConfig()
	cfg.Host, cfg.Port = srv.Host(), srv.Port()
	cfg.Password = "wrong"

	c := miniredis.NewClient(miniredis.WithConfig(cfg), miniredis.WithLogger(hclog.NewNullLogger()))
	err := c.Connect(context.Background())

	var cerr *miniredis.ConnectionError
	require.ErrorAs(t, err, &cerr)
	var serr *miniredis.ServerError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "WRONGPASS", serr.Prefix())
	assert.False(t, c.IsConnected())
}

func TestClientPipeline(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, miniredistest.Start(t))

	replies, err := c.Pipeline(ctx,
		miniredis.NewSetCommand("counter", "10", 0),
		miniredis.NewIncrCommand("counter"),
		miniredis.NewGetCommand("counter"),
		miniredis.NewGetCommand("missing"),
	)
	require.NoError(t, err)
	require.Len(t, replies, 4)

	s, err := miniredis.DecodeStatus(replies[0], nil)
	require.NoError(t, err)
	assert.Equal(t, "OK", s)

	n, err := miniredis.DecodeInt(replies[1], nil)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)

	v, err := miniredis.DecodeString(replies[2], nil)
	require.NoError(t, err)
	assert.Equal(t, "11", v)

	_, err = miniredis.DecodeString(replies[3], nil)
	assert.ErrorIs(t, err, miniredis.ErrNil)

	replies, err = c.Pipeline(ctx)
	assert.NoError(t, err)
	assert.Empty(t, replies)
}

func TestClientExecuteReturnsRawReply(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, miniredistest.Start(t))

	r, err := c.Execute(ctx, "NOSUCHCOMMAND", "x")
	require.NoError(t, err)
	defer r.Release()
	assert.Equal(t, miniredis.KindError, r.Kind)
	assert.Error(t, r.Err())

	n, err := miniredis.DecodeInt(c.Execute(ctx, "SADD", "s", "a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestClientCommands(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, miniredistest.Start(t))

	t.Run("strings", func(t *testing.T) {
		_, err := c.Set(ctx, "key 1", "value 1", time.Hour)
		require.NoError(t, err)
		_, err = c.SetInt(ctx, "key 4", 1001, 0)
		require.NoError(t, err)

		ttl, err := c.TTL(ctx, "key 1")
		require.NoError(t, err)
		assert.InDelta(t, 3600, ttl, 1)

		ttl, err = c.TTL(ctx, "key 4")
		require.NoError(t, err)
		assert.Equal(t, int64(-1), ttl)

		ttl, err = c.TTL(ctx, "invalid")
		require.NoError(t, err)
		assert.Equal(t, int64(-2), ttl)

		n, err := c.Append(ctx, "key 4", "2345678")
		require.NoError(t, err)
		assert.Equal(t, int64(11), n)

		n, err = c.Strlen(ctx, "invalid")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		n, err = c.Exists(ctx, "key 1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = c.Decr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(-1), n)
		n, err = c.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		_, err = c.Rename(ctx, "key 4", "key 5")
		require.NoError(t, err)
		_, err = c.Rename(ctx, "nothing", "key 6")
		var serr *miniredis.ServerError
		assert.ErrorAs(t, err, &serr)

		keys, err := c.Keys(ctx, "key*")
		require.NoError(t, err)
		assert.Equal(t, []string{"key 1", "key 5"}, keys)

		n, err = c.Del(ctx, "key 1", "key 5", "key 9")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		_, err = c.Del(ctx)
		assert.ErrorIs(t, err, miniredis.ErrEmptyArgument)

		typ, err := c.Type(ctx, "key 1")
		require.NoError(t, err)
		assert.Equal(t, "none", typ)
	})

	t.Run("hashes", func(t *testing.T) {
		_, err := c.HSet(ctx, "domains", "example", "example.com")
		require.NoError(t, err)
		_, err = c.HSet(ctx, "domains", "abc", "abc.com")
		require.NoError(t, err)

		v, err := c.HGet(ctx, "domains", "example")
		require.NoError(t, err)
		assert.Equal(t, "example.com", v)

		_, err = c.HGet(ctx, "domains", "you")
		assert.ErrorIs(t, err, miniredis.ErrNil)

		m, err := c.HGetAll(ctx, "domains")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"example": "example.com", "abc": "abc.com"}, m)

		keys, err := c.HKeys(ctx, "domains")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"example", "abc"}, keys)

		vals, err := c.HVals(ctx, "domains")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"example.com", "abc.com"}, vals)

		ok, err := c.HExists(ctx, "domains", "abc")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = c.HExists(ctx, "domains", "invalid")
		require.NoError(t, err)
		assert.False(t, ok)

		n, err := c.HDel(ctx, "domains", "abc")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = c.HLen(ctx, "domains")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("lists", func(t *testing.T) {
		for _, item := range []string{"item 1", "item 2", "item 3", "item 4"} {
			_, err := c.LPush(ctx, "List123", item)
			require.NoError(t, err)
		}
		n, err := c.LLen(ctx, "List123")
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)

		v, err := c.LPop(ctx, "List123")
		require.NoError(t, err)
		assert.Equal(t, "item 4", v)

		n, err = c.LInsertBefore(ctx, "List123", "item 3", "item 2+")
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
		n, err = c.LInsertAfter(ctx, "List123", "item 3", "item 3+")
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
		n, err = c.LInsertAfter(ctx, "List123", "nope", "x")
		require.NoError(t, err)
		assert.Equal(t, int64(-1), n)

		_, err = c.LSet(ctx, "List123", 2, "item set 2")
		require.NoError(t, err)

		n, err = c.LRem(ctx, "List123", 0, "item 2+")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		v, err = c.LIndex(ctx, "List123", 0)
		require.NoError(t, err)
		assert.Equal(t, "item 3", v)
		v, err = c.LIndex(ctx, "List123", -1)
		require.NoError(t, err)
		assert.Equal(t, "item 1", v)
	})

	t.Run("sets", func(t *testing.T) {
		for _, m := range []string{"ele 1", "ele 2", "ele 3", "ele 3"} {
			_, err := c.SAdd(ctx, "set123", m)
			require.NoError(t, err)
		}
		n, err := c.SCard(ctx, "set123")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		ok, err := c.SIsMember(ctx, "set123", "ele 1")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = c.SIsMember(ctx, "set123", "ele 8")
		require.NoError(t, err)
		assert.False(t, ok)

		members, err := c.SMembers(ctx, "set123")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"ele 1", "ele 2", "ele 3"}, members)

		n, err = c.SRem(ctx, "set123", "ele 8")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})

	t.Run("connection", func(t *testing.T) {
		s, err := c.Select(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "OK", s)

		_, err = c.Auth(ctx, "", "password123")
		var serr *miniredis.ServerError
		assert.ErrorAs(t, err, &serr, "auth without a configured password fails")

		_, err = c.ClientSetName(ctx, "MiniGoClient")
		require.NoError(t, err)
		name, err := c.ClientGetName(ctx)
		require.NoError(t, err)
		assert.Equal(t, "MiniGoClient", name)

		n, err := c.Publish(ctx, "channelFromGo", "content")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}

func TestClientMetrics(t *testing.T) {
	ctx := context.Background()
	m, err := miniredis.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	c := newTestClient(t, miniredistest.Start(t), miniredis.WithMetrics(m))

	_, err = c.Set(ctx, "a", "1", 0)
	require.NoError(t, err)
	_, _ = c.Get(ctx, "a")
	_, _ = c.Get(ctx, "missing")
	_, _ = c.Execute(ctx, "BOGUS")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("SET", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("GET", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("GET", "nil")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("BOGUS", "server_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectsTotal.WithLabelValues("sync", "ok")))
}

func TestNewMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := miniredis.NewMetrics(reg)
	require.NoError(t, err)
	_, err = miniredis.NewMetrics(reg)
	assert.Error(t, err)
}
