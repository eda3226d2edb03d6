// =============================================================================
// help.go - REPL Help
// =============================================================================
//
// `.help` prints an overview; `.help <topic>` prints the entry for one
// dot-command or server command. Topics are case-insensitive and a leading
// dot is ignored, so `.help .raw`, `.help raw` and `.help RAW` agree.
//
// =============================================================================

package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

const helpOverview = `Dot-commands:
  .help [topic]           Show help (or help for one command)
  .connect [host] [port]  Reconnect, optionally to another server
  .info                   Show connection settings
  .raw                    Toggle raw output
  .quit                   Exit (also: quit, exit)

Anything else is sent to the server as a command. Arguments are split on
whitespace; use "double quotes" (with \n, \t, \xHH escapes) or 'single
quotes' for arguments containing spaces.

Server commands with help: `

// dotHelp documents the REPL's own commands.
var dotHelp = map[string]string{
	"help": `.help [topic]
  Without a topic, list the dot-commands and documented server commands.
  With a topic, show its usage, e.g. .help hset`,
	"connect": `.connect [host] [port]
  Close the current connection and connect again. A host and port given
  here replace the configured ones for the rest of the session.`,
	"info": `.info
  Show the server address, connection state and client name.`,
	"raw": `.raw
  Toggle raw output. Raw output prints bare values one per line instead
  of redis-cli style (integer)/"quoted"/numbered formatting.`,
	"quit": `.quit
  Close the connection and exit. quit and exit work as well.`,
}

// commandHelp documents the server commands the client library wraps.
var commandHelp = map[string]string{
	"ping":      "PING [message]\n  Test the connection; replies PONG or echoes message.",
	"auth":      "AUTH [username] password\n  Authenticate the connection.",
	"select":    "SELECT index\n  Switch to the numbered database.",
	"client":    "CLIENT SETNAME name | CLIENT GETNAME\n  Set or get the connection name.",
	"get":       "GET key\n  Get the string value of key, or (nil).",
	"set":       "SET key value [EX seconds]\n  Set the string value of key.",
	"setex":     "SETEX key seconds value\n  Set key with a time to live.",
	"del":       "DEL key [key ...]\n  Delete keys; replies the number removed.",
	"exists":    "EXISTS key\n  Reply 1 if key exists, 0 otherwise.",
	"expire":    "EXPIRE key seconds\n  Set a time to live on key.",
	"ttl":       "TTL key\n  Remaining time to live in seconds; -1 without expiry, -2 if missing.",
	"type":      "TYPE key\n  string, list, set, hash or none.",
	"keys":      "KEYS pattern\n  List keys matching a glob pattern.",
	"rename":    "RENAME key newkey\n  Rename a key.",
	"incr":      "INCR key\n  Increment the integer value of key by one.",
	"decr":      "DECR key\n  Decrement the integer value of key by one.",
	"append":    "APPEND key value\n  Append to a string; replies the new length.",
	"strlen":    "STRLEN key\n  Length of the string value of key.",
	"hset":      "HSET key field value\n  Set a hash field.",
	"hget":      "HGET key field\n  Get a hash field, or (nil).",
	"hdel":      "HDEL key field\n  Delete a hash field.",
	"hexists":   "HEXISTS key field\n  Reply 1 if the field exists.",
	"hgetall":   "HGETALL key\n  All fields and values of a hash.",
	"hkeys":     "HKEYS key\n  All field names of a hash.",
	"hvals":     "HVALS key\n  All values of a hash.",
	"hlen":      "HLEN key\n  Number of fields in a hash.",
	"lpush":     "LPUSH key element\n  Prepend to a list.",
	"lpop":      "LPOP key\n  Remove and return the first element.",
	"llen":      "LLEN key\n  Length of a list.",
	"lindex":    "LINDEX key index\n  Element at index; negative counts from the end.",
	"linsert":   "LINSERT key BEFORE|AFTER pivot element\n  Insert next to pivot.",
	"lrem":      "LREM key count element\n  Remove occurrences of element.",
	"lset":      "LSET key index element\n  Overwrite the element at index.",
	"sadd":      "SADD key member\n  Add to a set.",
	"srem":      "SREM key member\n  Remove from a set.",
	"scard":     "SCARD key\n  Number of members of a set.",
	"sismember": "SISMEMBER key member\n  Reply 1 if member is in the set.",
	"smembers":  "SMEMBERS key\n  All members of a set.",
	"publish":   "PUBLISH channel message\n  Post a message; replies the number of receivers.",
	"subscribe": "SUBSCRIBE channel [channel ...]\n  Not available in the REPL; run `miniredis subscribe` instead.",
}

// printHelp writes the overview, or the entry for topic, to w. It reports
// whether the topic was found.
func printHelp(w io.Writer, topic string) bool {
	if topic == "" {
		fmt.Fprint(w, helpOverview)
		fmt.Fprintln(w, strings.Join(helpTopics(), " "))
		return true
	}

	key := strings.TrimPrefix(strings.ToLower(topic), ".")
	if text, ok := dotHelp[key]; ok {
		fmt.Fprintln(w, text)
		return true
	}
	if text, ok := commandHelp[key]; ok {
		fmt.Fprintln(w, text)
		return true
	}
	fmt.Fprintf(w, "No help for '%s'. Type .help to see available topics.\n", topic)
	return false
}

func helpTopics() []string {
	topics := make([]string, 0, len(commandHelp))
	for name := range commandHelp {
		topics = append(topics, name)
	}
	sort.Strings(topics)
	return topics
}
