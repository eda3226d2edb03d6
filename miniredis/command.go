package miniredis

import (
	"strconv"
	"strings"
	"time"
)

// Command is a command verb and its binary-safe arguments.
// Use NewCommand or the constructor functions (NewGetCommand,
// NewSetCommand, etc.) to create Command instances.
type Command struct {
	Name string
	Args []string
}

// NewCommand creates a command from a verb and arguments.
func NewCommand(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// Argv returns the full argument vector, verb first.
func (c Command) Argv() []string {
	argv := make([]string, 0, len(c.Args)+1)
	argv = append(argv, c.Name)
	return append(argv, c.Args...)
}

// Verb returns the upper-cased command name, used as a metrics label.
func (c Command) Verb() string {
	return strings.ToUpper(c.Name)
}

// Format returns the command as a single line, quoting arguments that
// contain spaces or non-printable bytes. CommandParser.Parse accepts
// the output.
func (c Command) Format() string {
	var sb strings.Builder
	for i, a := range c.Argv() {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(quoteArg(a))
	}
	return sb.String()
}

func quoteArg(s string) string {
	if s == "" {
		return `""`
	}
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b <= ' ' || b == '"' || b == '\'' || b == '\\' || b >= 0x7f {
			return strconv.Quote(s)
		}
	}
	return s
}

// seconds converts a duration to whole seconds for EXPIRE/SETEX,
// rounding a positive sub-second duration up to one second.
func seconds(d time.Duration) string {
	s := int64(d / time.Second)
	if d > 0 && s == 0 {
		s = 1
	}
	return strconv.FormatInt(s, 10)
}

// Connection commands

// NewPingCommand creates a PING command. An empty msg sends a bare PING.
func NewPingCommand(msg string) Command {
	if msg == "" {
		return NewCommand("PING")
	}
	return NewCommand("PING", msg)
}

// NewAuthCommand creates an AUTH command. An empty user sends the
// password-only form understood by servers before 6.0.
func NewAuthCommand(user, password string) Command {
	if user == "" {
		return NewCommand("AUTH", password)
	}
	return NewCommand("AUTH", user, password)
}

// NewSelectCommand creates a SELECT command.
func NewSelectCommand(db int) Command {
	return NewCommand("SELECT", strconv.Itoa(db))
}

// NewClientSetNameCommand creates a CLIENT SETNAME command.
func NewClientSetNameCommand(name string) Command {
	return NewCommand("CLIENT", "SETNAME", name)
}

// NewClientGetNameCommand creates a CLIENT GETNAME command.
func NewClientGetNameCommand() Command {
	return NewCommand("CLIENT", "GETNAME")
}

// Key and string commands

// NewAppendCommand creates an APPEND command.
func NewAppendCommand(key, value string) Command {
	return NewCommand("APPEND", key, value)
}

// NewDecrCommand creates a DECR command.
func NewDecrCommand(key string) Command {
	return NewCommand("DECR", key)
}

// NewIncrCommand creates an INCR command.
func NewIncrCommand(key string) Command {
	return NewCommand("INCR", key)
}

// NewDelCommand creates a DEL command for one or more keys.
func NewDelCommand(keys ...string) Command {
	return NewCommand("DEL", keys...)
}

// NewExistsCommand creates an EXISTS command.
func NewExistsCommand(key string) Command {
	return NewCommand("EXISTS", key)
}

// NewExpireCommand creates an EXPIRE command.
func NewExpireCommand(key string, ttl time.Duration) Command {
	return NewCommand("EXPIRE", key, seconds(ttl))
}

// NewGetCommand creates a GET command.
func NewGetCommand(key string) Command {
	return NewCommand("GET", key)
}

// NewKeysCommand creates a KEYS command.
func NewKeysCommand(pattern string) Command {
	return NewCommand("KEYS", pattern)
}

// NewRenameCommand creates a RENAME command.
func NewRenameCommand(key, newKey string) Command {
	return NewCommand("RENAME", key, newKey)
}

// NewSetCommand creates SET, or SETEX when ttl is positive.
func NewSetCommand(key, value string, ttl time.Duration) Command {
	if ttl > 0 {
		return NewCommand("SETEX", key, seconds(ttl), value)
	}
	return NewCommand("SET", key, value)
}

// NewStrlenCommand creates a STRLEN command.
func NewStrlenCommand(key string) Command {
	return NewCommand("STRLEN", key)
}

// NewTTLCommand creates a TTL command.
func NewTTLCommand(key string) Command {
	return NewCommand("TTL", key)
}

// NewTypeCommand creates a TYPE command.
func NewTypeCommand(key string) Command {
	return NewCommand("TYPE", key)
}

// Hash commands

// NewHDelCommand creates an HDEL command.
func NewHDelCommand(key, field string) Command {
	return NewCommand("HDEL", key, field)
}

// NewHExistsCommand creates an HEXISTS command.
func NewHExistsCommand(key, field string) Command {
	return NewCommand("HEXISTS", key, field)
}

// NewHGetCommand creates an HGET command.
func NewHGetCommand(key, field string) Command {
	return NewCommand("HGET", key, field)
}

// NewHGetAllCommand creates an HGETALL command.
func NewHGetAllCommand(key string) Command {
	return NewCommand("HGETALL", key)
}

// NewHKeysCommand creates an HKEYS command.
func NewHKeysCommand(key string) Command {
	return NewCommand("HKEYS", key)
}

// NewHLenCommand creates an HLEN command.
func NewHLenCommand(key string) Command {
	return NewCommand("HLEN", key)
}

// NewHSetCommand creates an HSET command.
func NewHSetCommand(key, field, value string) Command {
	return NewCommand("HSET", key, field, value)
}

// NewHValsCommand creates an HVALS command.
func NewHValsCommand(key string) Command {
	return NewCommand("HVALS", key)
}

// List commands

// NewLIndexCommand creates an LINDEX command.
func NewLIndexCommand(key string, index int) Command {
	return NewCommand("LINDEX", key, strconv.Itoa(index))
}

// NewLInsertCommand creates an LINSERT command, BEFORE or AFTER pivot.
func NewLInsertCommand(key string, before bool, pivot, element string) Command {
	where := "AFTER"
	if before {
		where = "BEFORE"
	}
	return NewCommand("LINSERT", key, where, pivot, element)
}

// NewLLenCommand creates an LLEN command.
func NewLLenCommand(key string) Command {
	return NewCommand("LLEN", key)
}

// NewLPopCommand creates an LPOP command without the count argument.
func NewLPopCommand(key string) Command {
	return NewCommand("LPOP", key)
}

// NewLPushCommand creates an LPUSH command.
func NewLPushCommand(key, element string) Command {
	return NewCommand("LPUSH", key, element)
}

// NewLRemCommand creates an LREM command.
func NewLRemCommand(key string, count int, element string) Command {
	return NewCommand("LREM", key, strconv.Itoa(count), element)
}

// NewLSetCommand creates an LSET command.
func NewLSetCommand(key string, index int, element string) Command {
	return NewCommand("LSET", key, strconv.Itoa(index), element)
}

// Set commands

// NewSAddCommand creates an SADD command.
func NewSAddCommand(key, member string) Command {
	return NewCommand("SADD", key, member)
}

// NewSCardCommand creates an SCARD command.
func NewSCardCommand(key string) Command {
	return NewCommand("SCARD", key)
}

// NewSIsMemberCommand creates an SISMEMBER command.
func NewSIsMemberCommand(key, member string) Command {
	return NewCommand("SISMEMBER", key, member)
}

// NewSMembersCommand creates an SMEMBERS command.
func NewSMembersCommand(key string) Command {
	return NewCommand("SMEMBERS", key)
}

// NewSRemCommand creates an SREM command.
func NewSRemCommand(key, member string) Command {
	return NewCommand("SREM", key, member)
}

// Pub/sub commands

// NewPublishCommand creates a PUBLISH command.
func NewPublishCommand(channel, message string) Command {
	return NewCommand("PUBLISH", channel, message)
}

// NewSubscribeCommand creates a SUBSCRIBE command.
func NewSubscribeCommand(channels ...string) Command {
	return NewCommand("SUBSCRIBE", channels...)
}

// NewUnsubscribeCommand creates an UNSUBSCRIBE command. With no channels
// the server unsubscribes from all of them.
func NewUnsubscribeCommand(channels ...string) Command {
	return NewCommand("UNSUBSCRIBE", channels...)
}
