package miniredis

import (
	"context"
	"strconv"
	"time"
)

// Typed command methods. Each builds the argument vector, sends it and
// decodes the reply with the kind the server uses for that command.

// Ping sends PING. A bare PING is answered with the status "PONG", a PING
// with a message echoes it back as a bulk string.
func (c *Client) Ping(ctx context.Context, msg string) (string, error) {
	r, err := c.Send(ctx, NewPingCommand(msg))
	if msg == "" {
		return DecodeStatus(r, err)
	}
	return DecodeString(r, err)
}

// Auth authenticates the connection. user may be empty.
func (c *Client) Auth(ctx context.Context, user, password string) (string, error) {
	return DecodeStatus(c.Send(ctx, NewAuthCommand(user, password)))
}

// Select switches the logical database.
func (c *Client) Select(ctx context.Context, db int) (string, error) {
	return DecodeStatus(c.Send(ctx, NewSelectCommand(db)))
}

// ClientSetName names the connection.
func (c *Client) ClientSetName(ctx context.Context, name string) (string, error) {
	return DecodeStatus(c.Send(ctx, NewClientSetNameCommand(name)))
}

// ClientGetName returns the connection name. An unnamed connection yields ErrNil.
func (c *Client) ClientGetName(ctx context.Context) (string, error) {
	return DecodeString(c.Send(ctx, NewClientGetNameCommand()))
}

// Append appends value to key and returns the new length.
func (c *Client) Append(ctx context.Context, key, value string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewAppendCommand(key, value)))
}

// Decr decrements key and returns the new value.
func (c *Client) Decr(ctx context.Context, key string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewDecrCommand(key)))
}

// Incr increments key and returns the new value.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewIncrCommand(key)))
}

// Del removes keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return -1, ErrEmptyArgument
	}
	return DecodeInt(c.Send(ctx, NewDelCommand(keys...)))
}

// Exists returns 1 if key exists, 0 otherwise.
func (c *Client) Exists(ctx context.Context, key string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewExistsCommand(key)))
}

// Expire sets a timeout on key. It returns 1 if the timeout was set and 0
// if the key does not exist. A zero or negative ttl deletes an existing key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return DecodeInt(c.Send(ctx, NewExpireCommand(key, ttl)))
}

// Get returns the value of key. A missing key yields ErrNil.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return DecodeString(c.Send(ctx, NewGetCommand(key)))
}

// Keys returns the keys matching pattern.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	return DecodeStrings(c.Send(ctx, NewKeysCommand(pattern)))
}

// Rename renames key to newKey.
func (c *Client) Rename(ctx context.Context, key, newKey string) (string, error) {
	return DecodeStatus(c.Send(ctx, NewRenameCommand(key, newKey)))
}

// Set stores value at key. A positive ttl sends SETEX instead of SET.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) (string, error) {
	return DecodeStatus(c.Send(ctx, NewSetCommand(key, value, ttl)))
}

// SetInt stores an integer value at key.
func (c *Client) SetInt(ctx context.Context, key string, value int64, ttl time.Duration) (string, error) {
	return c.Set(ctx, key, strconv.FormatInt(value, 10), ttl)
}

// Strlen returns the length of the value at key, 0 if missing.
func (c *Client) Strlen(ctx context.Context, key string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewStrlenCommand(key)))
}

// TTL returns the remaining time to live of key in seconds, -1 if the key
// has no expiry and -2 if it does not exist.
func (c *Client) TTL(ctx context.Context, key string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewTTLCommand(key)))
}

// Type returns the type name of the value at key ("none" when missing).
// Servers answer with a status reply; a bulk reply is accepted as well.
func (c *Client) Type(ctx context.Context, key string) (string, error) {
	return DecodeStatusOrString(c.Send(ctx, NewTypeCommand(key)))
}

// HDel removes field from the hash at key.
func (c *Client) HDel(ctx context.Context, key, field string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewHDelCommand(key, field)))
}

// HExists reports whether field exists in the hash at key.
func (c *Client) HExists(ctx context.Context, key, field string) (bool, error) {
	return DecodeBool(c.Send(ctx, NewHExistsCommand(key, field)))
}

// HGet returns a hash field. A missing field yields ErrNil.
func (c *Client) HGet(ctx context.Context, key, field string) (string, error) {
	return DecodeString(c.Send(ctx, NewHGetCommand(key, field)))
}

// HGetAll returns all fields and values of the hash at key.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return DecodeMap(c.Send(ctx, NewHGetAllCommand(key)))
}

// HKeys returns the field names of the hash at key.
func (c *Client) HKeys(ctx context.Context, key string) ([]string, error) {
	return DecodeStrings(c.Send(ctx, NewHKeysCommand(key)))
}

// HLen returns the number of fields in the hash at key.
func (c *Client) HLen(ctx context.Context, key string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewHLenCommand(key)))
}

// HSet sets a hash field and returns 1 if the field is new.
func (c *Client) HSet(ctx context.Context, key, field, value string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewHSetCommand(key, field, value)))
}

// HVals returns the values of the hash at key.
func (c *Client) HVals(ctx context.Context, key string) ([]string, error) {
	return DecodeStrings(c.Send(ctx, NewHValsCommand(key)))
}

// LIndex returns the list element at index. Negative indexes count from the tail.
func (c *Client) LIndex(ctx context.Context, key string, index int) (string, error) {
	return DecodeString(c.Send(ctx, NewLIndexCommand(key, index)))
}

// LInsertAfter inserts element after pivot and returns the new length,
// or -1 when pivot was not found.
func (c *Client) LInsertAfter(ctx context.Context, key, pivot, element string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewLInsertCommand(key, false, pivot, element)))
}

// LInsertBefore inserts element before pivot.
func (c *Client) LInsertBefore(ctx context.Context, key, pivot, element string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewLInsertCommand(key, true, pivot, element)))
}

// LLen returns the length of the list at key.
func (c *Client) LLen(ctx context.Context, key string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewLLenCommand(key)))
}

// LPop removes and returns the head of the list. An empty list yields ErrNil.
func (c *Client) LPop(ctx context.Context, key string) (string, error) {
	return DecodeString(c.Send(ctx, NewLPopCommand(key)))
}

// LPush prepends element and returns the new length.
func (c *Client) LPush(ctx context.Context, key, element string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewLPushCommand(key, element)))
}

// LRem removes count occurrences of element (all of them when count is 0).
func (c *Client) LRem(ctx context.Context, key string, count int, element string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewLRemCommand(key, count, element)))
}

// LSet replaces the element at index.
func (c *Client) LSet(ctx context.Context, key string, index int, element string) (string, error) {
	return DecodeStatus(c.Send(ctx, NewLSetCommand(key, index, element)))
}

// SAdd adds member to the set and returns 1 if it was not present.
func (c *Client) SAdd(ctx context.Context, key, member string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewSAddCommand(key, member)))
}

// SCard returns the cardinality of the set.
func (c *Client) SCard(ctx context.Context, key string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewSCardCommand(key)))
}

// SIsMember reports whether member is in the set.
func (c *Client) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return DecodeBool(c.Send(ctx, NewSIsMemberCommand(key, member)))
}

// SMembers returns all members of the set, in server order.
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	return DecodeStrings(c.Send(ctx, NewSMembersCommand(key)))
}

// SRem removes member from the set.
func (c *Client) SRem(ctx context.Context, key, member string) (int64, error) {
	return DecodeInt(c.Send(ctx, NewSRemCommand(key, member)))
}

// Publish posts message to channel and returns the number of receivers.
func (c *Client) Publish(ctx context.Context, channel, message string) (int64, error) {
	if channel == "" {
		return -1, ErrEmptyArgument
	}
	return DecodeInt(c.Send(ctx, NewPublishCommand(channel, message)))
}
