// =============================================================================
// selftest.go - Exercise Every Client Wrapper Against a Live Server
// =============================================================================
//
// `miniredis selftest` walks through the typed client API the way a smoke
// test would: connection commands, strings, hashes, keyspace, counters,
// lists and sets, cleaning up the keys it created. Each step prints its
// result. Server error replies (for example AUTH against a server without
// a password) are shown but are not failures; transport errors abort.
//
// The optional publish and subscribe phases post to or listen on channels
// for a fixed time.
//
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/yuchuanwang/RedisClient/miniredis"
)

type selfTest struct {
	ctx   context.Context
	c     *miniredis.Client
	out   io.Writer
	steps int
	err   error
}

// outcome is the result of one wrapper call.
type outcome struct {
	v   any
	err error
}

func result[T any](v T, err error) outcome {
	return outcome{v: v, err: err}
}

// record prints one step. It keeps the first transport error; later steps
// are skipped once one has occurred.
func (st *selfTest) record(name string, o outcome) {
	if st.err != nil {
		return
	}
	st.steps++
	v, err := o.v, o.err

	var serr *miniredis.ServerError
	switch {
	case err == nil:
		fmt.Fprintf(st.out, "%-44s %s\n", name, formatValue(v))
	case errors.Is(err, miniredis.ErrNil):
		fmt.Fprintf(st.out, "%-44s (nil)\n", name)
	case errors.As(err, &serr):
		fmt.Fprintf(st.out, "%-44s (error) %s\n", name, serr.Message)
	default:
		fmt.Fprintf(st.out, "%-44s FAILED: %v\n", name, err)
		st.err = fmt.Errorf("%s: %w", name, err)
	}
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case []string:
		return fmt.Sprintf("%q", v)
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%q: %q", k, v[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(v)
	}
}

// runSelfTest runs the client section. It returns the first transport error.
func runSelfTest(ctx context.Context, c *miniredis.Client, out io.Writer) error {
	st := &selfTest{ctx: ctx, c: c, out: out}
	st.connection()
	st.stringKeys()
	st.hashes()
	st.keyspace()
	st.lists()
	st.sets()
	st.cleanup()

	if st.err != nil {
		return st.err
	}
	fmt.Fprintf(out, "\n%d steps completed\n", st.steps)
	return nil
}

func (st *selfTest) connection() {
	ctx, c := st.ctx, st.c
	st.record("CLIENT SETNAME MiniClient", result(c.ClientSetName(ctx, "MiniClient")))
	st.record("CLIENT GETNAME", result(c.ClientGetName(ctx)))
	st.record("PING", result(c.Ping(ctx, "")))
	st.record(`PING "Hello Redis"`, result(c.Ping(ctx, "Hello Redis")))
	st.record("AUTH password123", result(c.Auth(ctx, "", "password123")))
	st.record("SELECT 1", result(c.Select(ctx, 1)))
	st.record("SELECT 0", result(c.Select(ctx, 0)))
}

func (st *selfTest) stringKeys() {
	ctx, c := st.ctx, st.c
	st.record(`SET "key 1" "value 1" EX 3600`, result(c.Set(ctx, "key 1", "value 1", time.Hour)))
	st.record(`SET "key 2" "value 2"`, result(c.Set(ctx, "key 2", "value 2", 0)))
	st.record(`SET "key 3" 1234 EX 3600`, result(c.SetInt(ctx, "key 3", 1234, time.Hour)))
	st.record(`SET "key 4" 1001`, result(c.SetInt(ctx, "key 4", 1001, 0)))

	st.record(`EXPIRE "key 1" 360`, result(c.Expire(ctx, "key 1", 360*time.Second)))
	st.record(`EXPIRE "key 2" 60`, result(c.Expire(ctx, "key 2", time.Minute)))
	st.record(`TTL "key 2"`, result(c.TTL(ctx, "key 2")))
	st.record(`TTL "key 4"`, result(c.TTL(ctx, "key 4")))
	st.record("TTL invalid", result(c.TTL(ctx, "invalid")))

	st.record(`STRLEN "key 4"`, result(c.Strlen(ctx, "key 4")))
	st.record("STRLEN invalid", result(c.Strlen(ctx, "invalid")))
	st.record(`APPEND "key 4" 2345678`, result(c.Append(ctx, "key 4", "2345678")))
	st.record("APPEND invalid ACBDEDF", result(c.Append(ctx, "invalid", "ACBDEDF")))
	st.record(`STRLEN "key 4"`, result(c.Strlen(ctx, "key 4")))
	st.record("STRLEN invalid", result(c.Strlen(ctx, "invalid")))
	st.record("DEL invalid", result(c.Del(ctx, "invalid")))

	st.record(`GET "key 1"`, result(c.Get(ctx, "key 1")))
	st.record(`EXISTS "key 1"`, result(c.Exists(ctx, "key 1")))
	st.record("EXISTS invalid", result(c.Exists(ctx, "invalid")))
	for _, key := range []string{"key 2", "key 3", "key 4", "key 5"} {
		st.record(fmt.Sprintf("DEL %q", key), result(c.Del(ctx, key)))
	}
}

func (st *selfTest) hashes() {
	ctx, c := st.ctx, st.c
	st.record("HSET domains example example.com", result(c.HSet(ctx, "domains", "example", "example.com")))
	st.record("HSET domains abc abc.com", result(c.HSet(ctx, "domains", "abc", "abc.com")))
	st.record("HGET domains example", result(c.HGet(ctx, "domains", "example")))
	st.record("HSET newHash me 1234567890", result(c.HSet(ctx, "newHash", "me", "1234567890")))
	st.record("HGET newHash you", result(c.HGet(ctx, "newHash", "you")))
	st.record("HDEL newHash me", result(c.HDel(ctx, "newHash", "me")))
	st.record("HGETALL domains", result(c.HGetAll(ctx, "domains")))
	st.record("HKEYS domains", result(c.HKeys(ctx, "domains")))
	st.record("HVALS domains", result(c.HVals(ctx, "domains")))
	st.record("HEXISTS domains abc", result(c.HExists(ctx, "domains", "abc")))
	st.record("HEXISTS domains invalid", result(c.HExists(ctx, "domains", "invalid")))
	st.record("HLEN domains", result(c.HLen(ctx, "domains")))
}

func (st *selfTest) keyspace() {
	ctx, c := st.ctx, st.c
	st.record("KEYS *", result(c.Keys(ctx, "*")))
	st.record("KEYS user*", result(c.Keys(ctx, "user*")))
	st.record("RENAME users friends", result(c.Rename(ctx, "users", "friends")))
	st.record("RENAME friends users", result(c.Rename(ctx, "friends", "users")))
	for _, key := range []string{"domains", "users", "username", "Null"} {
		st.record("TYPE "+key, result(c.Type(ctx, key)))
	}
	st.record("DECR counter", result(c.Decr(ctx, "counter")))
	st.record("INCR counter", result(c.Incr(ctx, "counter")))
}

func (st *selfTest) lists() {
	ctx, c := st.ctx, st.c
	for i := 1; i <= 4; i++ {
		item := fmt.Sprintf("item %d", i)
		st.record(fmt.Sprintf("LPUSH List123 %q", item), result(c.LPush(ctx, "List123", item)))
	}
	st.record("LLEN List123", result(c.LLen(ctx, "List123")))
	st.record("LPOP List123", result(c.LPop(ctx, "List123")))
	st.record("LLEN List123", result(c.LLen(ctx, "List123")))
	st.record(`LINSERT List123 BEFORE "item 3" "item 2+"`, result(c.LInsertBefore(ctx, "List123", "item 3", "item 2+")))
	st.record(`LINSERT List123 AFTER "item 3" "item 3+"`, result(c.LInsertAfter(ctx, "List123", "item 3", "item 3+")))
	st.record(`LSET List123 2 "item set 2"`, result(c.LSet(ctx, "List123", 2, "item set 2")))
	st.record(`LREM List123 0 "item 2+"`, result(c.LRem(ctx, "List123", 0, "item 2+")))
	st.record("LINDEX List123 0", result(c.LIndex(ctx, "List123", 0)))
	st.record("LINDEX List123 -1", result(c.LIndex(ctx, "List123", -1)))
}

func (st *selfTest) sets() {
	ctx, c := st.ctx, st.c
	for _, m := range []int{1, 2, 3, 4, 5, 5, 4} {
		member := fmt.Sprintf("ele %d", m)
		st.record(fmt.Sprintf("SADD set123 %q", member), result(c.SAdd(ctx, "set123", member)))
	}
	st.record("SCARD set123", result(c.SCard(ctx, "set123")))
	st.record(`SISMEMBER set123 "ele 1"`, result(c.SIsMember(ctx, "set123", "ele 1")))
	st.record(`SISMEMBER set123 "ele 8"`, result(c.SIsMember(ctx, "set123", "ele 8")))
	st.record("SMEMBERS set123", result(c.SMembers(ctx, "set123")))
	st.record(`SREM set123 "ele 1"`, result(c.SRem(ctx, "set123", "ele 1")))
	st.record(`SREM set123 "ele 8"`, result(c.SRem(ctx, "set123", "ele 8")))
}

func (st *selfTest) cleanup() {
	ctx, c := st.ctx, st.c
	st.record(`SET "Blank space" value`, result(c.Set(ctx, "Blank space", "value", 0)))
	st.record(`DEL List123 set123 "Blank space"`, result(c.Del(ctx, "List123", "set123", "Blank space")))
}

// publishLoop publishes message to channel every interval until count
// messages have been sent, or until ctx ends when count is 0.
func publishLoop(ctx context.Context, c *miniredis.Client, channel, message string, count int, interval time.Duration, out io.Writer) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for sent := 0; count == 0 || sent < count; sent++ {
		if sent > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		n, err := c.Publish(ctx, channel, message)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("publish: %w", err)
		}
		fmt.Fprintf(out, "Published to %s, %d receivers\n", channel, n)
	}
	return nil
}
