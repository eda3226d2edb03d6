//go:build integration

package miniredis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/yuchuanwang/RedisClient/miniredis"
)

func setup(t *testing.T) (context.Context, string, uint16) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp"),
	}
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := redisContainer.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatal(err)
	}
	return ctx, host, uint16(port.Int())
}

func TestRedisServer(t *testing.T) {
	ctx, host, port := setup(t)

	c := miniredis.NewClient()
	require.NoError(t, c.ConnectTo(ctx, host, port, 5*time.Second))
	defer c.Close()

	pong, err := c.Ping(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "PONG", pong)

	_, err = c.Set(ctx, "key 1", "value 1", time.Hour)
	require.NoError(t, err)
	v, err := c.Get(ctx, "key 1")
	require.NoError(t, err)
	assert.Equal(t, "value 1", v)

	ttl, err := c.TTL(ctx, "key 1")
	require.NoError(t, err)
	assert.Greater(t, ttl, int64(3500))

	typ, err := c.Type(ctx, "key 1")
	require.NoError(t, err)
	assert.Equal(t, "string", typ)

	_, err = c.Get(ctx, "no such key")
	assert.ErrorIs(t, err, miniredis.ErrNil)

	_, err = c.HSet(ctx, "domains", "example", "example.com")
	require.NoError(t, err)
	all, err := c.HGetAll(ctx, "domains")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"example": "example.com"}, all)

	_, err = c.LPush(ctx, "list", "b")
	require.NoError(t, err)
	_, err = c.LPush(ctx, "list", "a")
	require.NoError(t, err)
	first, err := c.LIndex(ctx, "list", 0)
	require.NoError(t, err)
	assert.Equal(t, "a", first)

	_, err = c.Incr(ctx, "list")
	var serr *miniredis.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "WRONGTYPE", serr.Prefix())

	n, err := c.Del(ctx, "key 1", "domains", "list")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestRedisServerPubSub(t *testing.T) {
	ctx, host, port := setup(t)

	var mu sync.Mutex
	var got []string
	connected := make(chan error, 1)
	sub := miniredis.NewAsyncConn(
		miniredis.WithAddress(host, port),
		miniredis.WithSink(miniredis.SinkFunc(func(channel, payload string) {
			mu.Lock()
			got = append(got, channel+":"+payload)
			mu.Unlock()
		})),
		miniredis.OnConnect(func(err error) { connected <- err }),
	)
	defer sub.Disconnect()
	require.NoError(t, sub.Connect(ctx))
	require.NoError(t, <-connected)

	require.NoError(t, sub.Subscribe("testChannel1", "testChannel2"))
	require.Eventually(t, func() bool { return len(sub.Subscriptions()) == 2 }, 5*time.Second, 10*time.Millisecond)

	pub := miniredis.NewClient(miniredis.WithAddress(host, port))
	require.NoError(t, pub.Connect(ctx))
	defer pub.Close()

	receivers, err := pub.Publish(ctx, "testChannel2", "Content from Go client")
	require.NoError(t, err)
	assert.Equal(t, int64(1), receivers)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"testChannel2:Content from Go client"}, got)

	require.NoError(t, sub.Unsubscribe())
	require.Eventually(t, func() bool { return len(sub.Subscriptions()) == 0 }, 5*time.Second, 10*time.Millisecond)
}
