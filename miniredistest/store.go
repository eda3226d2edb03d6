package miniredistest

import (
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yuchuanwang/RedisClient/miniredis"
)

const (
	typeString = "string"
	typeHash   = "hash"
	typeList   = "list"
	typeSet    = "set"
)

const wrongType = "WRONGTYPE Operation against a key holding the wrong kind of value"

type entry struct {
	kind    string
	str     string
	hash    map[string]string
	list    []string
	set     map[string]struct{}
	expires time.Time
}

// store is the keyspace. All access happens under Server.mu.
type store struct {
	data map[string]*entry
}

func newStore() *store {
	return &store{data: make(map[string]*entry)}
}

// lookup returns the live entry for key, evicting it if expired.
func (st *store) lookup(key string) *entry {
	e, ok := st.data[key]
	if !ok {
		return nil
	}
	if !e.expires.IsZero() && !time.Now().Before(e.expires) {
		delete(st.data, key)
		return nil
	}
	return e
}

func (st *store) setString(key, value string, ttl time.Duration) {
	e := &entry{kind: typeString, str: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	st.data[key] = e
}

func (st *store) getString(key string) (string, bool) {
	e := st.lookup(key)
	if e == nil || e.kind != typeString {
		return "", false
	}
	return e.str, true
}

// typed returns the entry for key if it holds kind. create makes a new
// empty entry for a missing key. A reply is returned for WRONGTYPE.
func (st *store) typed(key, kind string, create bool) (*entry, *miniredis.Reply) {
	e := st.lookup(key)
	if e == nil {
		if !create {
			return nil, nil
		}
		e = &entry{kind: kind}
		switch kind {
		case typeHash:
			e.hash = make(map[string]string)
		case typeSet:
			e.set = make(map[string]struct{})
		}
		st.data[key] = e
		return e, nil
	}
	if e.kind != kind {
		return nil, miniredis.NewErrorReply(wrongType)
	}
	return e, nil
}

// dropIfEmpty removes containers that lost their last element.
func (st *store) dropIfEmpty(key string, e *entry) {
	if len(e.hash) == 0 && len(e.list) == 0 && len(e.set) == 0 && e.kind != typeString {
		delete(st.data, key)
	}
}

func okReply() *miniredis.Reply {
	return miniredis.NewStatusReply("OK")
}

func intReply(n int) *miniredis.Reply {
	return miniredis.NewIntegerReply(int64(n))
}

func notInteger() *miniredis.Reply {
	return miniredis.NewErrorReply("ERR value is not an integer or out of range")
}

// arity maps a verb to its minimum argument count including the verb and
// whether extra arguments are allowed.
var arity = map[string]struct {
	min      int
	variadic bool
}{
	"PING": {1, true}, "ECHO": {2, false}, "AUTH": {2, true}, "SELECT": {2, false},
	"CLIENT": {2, true}, "GET": {2, false}, "SET": {3, true}, "SETEX": {4, false},
	"DEL": {2, true}, "EXISTS": {2, true}, "EXPIRE": {3, false}, "TTL": {2, false},
	"INCR": {2, false}, "DECR": {2, false}, "APPEND": {3, false}, "STRLEN": {2, false},
	"KEYS": {2, false}, "RENAME": {3, false}, "TYPE": {2, false},
	"HSET": {4, true}, "HGET": {3, false}, "HDEL": {3, true}, "HEXISTS": {3, false},
	"HGETALL": {2, false}, "HKEYS": {2, false}, "HVALS": {2, false}, "HLEN": {2, false},
	"LPUSH": {3, true}, "LPOP": {2, false}, "LLEN": {2, false}, "LINDEX": {3, false},
	"LINSERT": {5, false}, "LREM": {4, false}, "LSET": {4, false},
	"SADD": {3, true}, "SREM": {3, true}, "SCARD": {2, false}, "SISMEMBER": {3, false},
	"SMEMBERS": {2, false},
}

// exec runs a data command.
func (s *Server) exec(c *Conn, verb string, args []string) *miniredis.Reply {
	a, known := arity[verb]
	if !known {
		rest := make([]string, 0, len(args)-1)
		for _, arg := range args[1:] {
			rest = append(rest, "'"+arg+"'")
		}
		return miniredis.NewErrorReply("ERR unknown command '" + args[0] + "', with args beginning with: " + strings.Join(rest, " "))
	}
	if len(args) < a.min || (!a.variadic && len(args) != a.min) {
		return wrongArgs(args[0])
	}

	switch verb {
	case "PING":
		return s.ping(c, args)
	case "ECHO":
		return miniredis.NewBulkStringReply(args[1])
	case "AUTH":
		return s.auth(c, args)
	case "SELECT":
		n, ok := parseInt(args[1])
		if !ok {
			return notInteger()
		}
		if n < 0 || n > 15 {
			return miniredis.NewErrorReply("ERR DB index is out of range")
		}
		return okReply()
	case "CLIENT":
		return s.client(c, args)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.store

	switch verb {
	case "GET":
		e, errReply := st.typed(args[1], typeString, false)
		if errReply != nil {
			return errReply
		}
		if e == nil {
			return miniredis.NewNilReply()
		}
		return miniredis.NewBulkStringReply(e.str)

	case "SET":
		var ttl time.Duration
		if len(args) == 5 && strings.EqualFold(args[3], "EX") {
			n, ok := parseInt(args[4])
			if !ok || n <= 0 {
				return miniredis.NewErrorReply("ERR invalid expire time in 'set' command")
			}
			ttl = time.Duration(n) * time.Second
		} else if len(args) != 3 {
			return miniredis.NewErrorReply("ERR syntax error")
		}
		st.setString(args[1], args[2], ttl)
		return okReply()

	case "SETEX":
		n, ok := parseInt(args[2])
		if !ok {
			return notInteger()
		}
		if n <= 0 {
			return miniredis.NewErrorReply("ERR invalid expire time in 'setex' command")
		}
		st.setString(args[1], args[3], time.Duration(n)*time.Second)
		return okReply()

	case "DEL":
		n := 0
		for _, k := range args[1:] {
			if st.lookup(k) != nil {
				delete(st.data, k)
				n++
			}
		}
		return intReply(n)

	case "EXISTS":
		n := 0
		for _, k := range args[1:] {
			if st.lookup(k) != nil {
				n++
			}
		}
		return intReply(n)

	case "EXPIRE":
		n, ok := parseInt(args[2])
		if !ok {
			return notInteger()
		}
		e := st.lookup(args[1])
		if e == nil {
			return intReply(0)
		}
		if n <= 0 {
			delete(st.data, args[1])
			return intReply(1)
		}
		e.expires = time.Now().Add(time.Duration(n) * time.Second)
		return intReply(1)

	case "TTL":
		e := st.lookup(args[1])
		switch {
		case e == nil:
			return intReply(-2)
		case e.expires.IsZero():
			return intReply(-1)
		}
		left := time.Until(e.expires) + 500*time.Millisecond
		return miniredis.NewIntegerReply(int64(left / time.Second))

	case "INCR", "DECR":
		delta := int64(1)
		if verb == "DECR" {
			delta = -1
		}
		e, errReply := st.typed(args[1], typeString, false)
		if errReply != nil {
			return errReply
		}
		var cur int64
		if e != nil {
			v, ok := parseInt(e.str)
			if !ok {
				return notInteger()
			}
			cur = v
		}
		cur += delta
		if e == nil {
			st.setString(args[1], strconv.FormatInt(cur, 10), 0)
		} else {
			e.str = strconv.FormatInt(cur, 10)
		}
		return miniredis.NewIntegerReply(cur)

	case "APPEND":
		e, errReply := st.typed(args[1], typeString, false)
		if errReply != nil {
			return errReply
		}
		if e == nil {
			st.setString(args[1], args[2], 0)
			return intReply(len(args[2]))
		}
		e.str += args[2]
		return intReply(len(e.str))

	case "STRLEN":
		e, errReply := st.typed(args[1], typeString, false)
		if errReply != nil {
			return errReply
		}
		if e == nil {
			return intReply(0)
		}
		return intReply(len(e.str))

	case "KEYS":
		var keys []string
		for k := range st.data {
			if st.lookup(k) == nil {
				continue
			}
			if ok, _ := path.Match(args[1], k); ok {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		return miniredis.NewStringsReply(keys...)

	case "RENAME":
		e := st.lookup(args[1])
		if e == nil {
			return miniredis.NewErrorReply("ERR no such key")
		}
		delete(st.data, args[1])
		st.data[args[2]] = e
		return okReply()

	case "TYPE":
		e := st.lookup(args[1])
		if e == nil {
			return miniredis.NewStatusReply("none")
		}
		return miniredis.NewStatusReply(e.kind)
	}

	if strings.HasPrefix(verb, "H") {
		return st.execHash(verb, args)
	}
	if strings.HasPrefix(verb, "L") {
		return st.execList(verb, args)
	}
	return st.execSet(verb, args)
}

func (s *Server) ping(c *Conn, args []string) *miniredis.Reply {
	msg := ""
	if len(args) > 1 {
		msg = args[1]
	}
	if c.inSubscribedMode() {
		return miniredis.NewStringsReply("pong", msg)
	}
	if len(args) == 1 {
		return miniredis.NewStatusReply("PONG")
	}
	return miniredis.NewBulkStringReply(msg)
}

func (s *Server) auth(c *Conn, args []string) *miniredis.Reply {
	s.mu.Lock()
	pass := s.requirePass
	s.mu.Unlock()

	if pass == "" {
		return miniredis.NewErrorReply("ERR AUTH <password> called without any password configured for the default user. Are you sure your configuration is correct?")
	}
	if args[len(args)-1] != pass {
		return miniredis.NewErrorReply("WRONGPASS invalid username-password pair or user is disabled.")
	}
	c.mu.Lock()
	c.authed = true
	c.mu.Unlock()
	return okReply()
}

func (s *Server) client(c *Conn, args []string) *miniredis.Reply {
	switch strings.ToUpper(args[1]) {
	case "SETNAME":
		if len(args) != 3 {
			return wrongArgs("client|setname")
		}
		if strings.ContainsAny(args[2], " \n") {
			return miniredis.NewErrorReply("ERR Client names cannot contain spaces, newlines or special characters.")
		}
		c.mu.Lock()
		c.name = args[2]
		c.mu.Unlock()
		return okReply()
	case "GETNAME":
		name := c.Name()
		if name == "" {
			return miniredis.NewNilReply()
		}
		return miniredis.NewBulkStringReply(name)
	default:
		return miniredis.NewErrorReply("ERR unknown subcommand '" + args[1] + "'.")
	}
}

func (st *store) execHash(verb string, args []string) *miniredis.Reply {
	key := args[1]
	if verb == "HSET" {
		if len(args)%2 != 0 {
			return wrongArgs(args[0])
		}
		e, errReply := st.typed(key, typeHash, true)
		if errReply != nil {
			return errReply
		}
		added := 0
		for i := 2; i < len(args); i += 2 {
			if _, ok := e.hash[args[i]]; !ok {
				added++
			}
			e.hash[args[i]] = args[i+1]
		}
		return intReply(added)
	}

	e, errReply := st.typed(key, typeHash, false)
	if errReply != nil {
		return errReply
	}
	if e == nil {
		switch verb {
		case "HGET":
			return miniredis.NewNilReply()
		case "HGETALL", "HKEYS", "HVALS":
			return miniredis.NewArrayReply()
		default:
			return intReply(0)
		}
	}

	fields := make([]string, 0, len(e.hash))
	for f := range e.hash {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	switch verb {
	case "HGET":
		v, ok := e.hash[args[2]]
		if !ok {
			return miniredis.NewNilReply()
		}
		return miniredis.NewBulkStringReply(v)
	case "HDEL":
		n := 0
		for _, f := range args[2:] {
			if _, ok := e.hash[f]; ok {
				delete(e.hash, f)
				n++
			}
		}
		st.dropIfEmpty(key, e)
		return intReply(n)
	case "HEXISTS":
		if _, ok := e.hash[args[2]]; ok {
			return intReply(1)
		}
		return intReply(0)
	case "HGETALL":
		items := make([]string, 0, 2*len(fields))
		for _, f := range fields {
			items = append(items, f, e.hash[f])
		}
		return miniredis.NewStringsReply(items...)
	case "HKEYS":
		return miniredis.NewStringsReply(fields...)
	case "HVALS":
		vals := make([]string, 0, len(fields))
		for _, f := range fields {
			vals = append(vals, e.hash[f])
		}
		return miniredis.NewStringsReply(vals...)
	default: // HLEN
		return intReply(len(e.hash))
	}
}

func (st *store) execList(verb string, args []string) *miniredis.Reply {
	key := args[1]
	if verb == "LPUSH" {
		e, errReply := st.typed(key, typeList, true)
		if errReply != nil {
			return errReply
		}
		for _, v := range args[2:] {
			e.list = append([]string{v}, e.list...)
		}
		return intReply(len(e.list))
	}

	e, errReply := st.typed(key, typeList, false)
	if errReply != nil {
		return errReply
	}

	switch verb {
	case "LPOP":
		if e == nil {
			return miniredis.NewNilReply()
		}
		v := e.list[0]
		e.list = e.list[1:]
		st.dropIfEmpty(key, e)
		return miniredis.NewBulkStringReply(v)

	case "LLEN":
		if e == nil {
			return intReply(0)
		}
		return intReply(len(e.list))

	case "LINDEX":
		idx, ok := parseInt(args[2])
		if !ok {
			return notInteger()
		}
		if e == nil {
			return miniredis.NewNilReply()
		}
		i, ok := listIndex(len(e.list), idx)
		if !ok {
			return miniredis.NewNilReply()
		}
		return miniredis.NewBulkStringReply(e.list[i])

	case "LINSERT":
		where := strings.ToUpper(args[2])
		if where != "BEFORE" && where != "AFTER" {
			return miniredis.NewErrorReply("ERR syntax error")
		}
		if e == nil {
			return intReply(0)
		}
		for i, v := range e.list {
			if v != args[3] {
				continue
			}
			at := i
			if where == "AFTER" {
				at = i + 1
			}
			e.list = append(e.list[:at], append([]string{args[4]}, e.list[at:]...)...)
			return intReply(len(e.list))
		}
		return intReply(-1)

	case "LREM":
		count, ok := parseInt(args[2])
		if !ok {
			return notInteger()
		}
		if e == nil {
			return intReply(0)
		}
		return intReply(st.lrem(key, e, count, args[3]))

	default: // LSET
		idx, ok := parseInt(args[2])
		if !ok {
			return notInteger()
		}
		if e == nil {
			return miniredis.NewErrorReply("ERR no such key")
		}
		i, ok := listIndex(len(e.list), idx)
		if !ok {
			return miniredis.NewErrorReply("ERR index out of range")
		}
		e.list[i] = args[3]
		return okReply()
	}
}

func (st *store) lrem(key string, e *entry, count int64, element string) int {
	removed := 0
	limit := count
	if limit < 0 {
		limit = -limit
	}
	keep := make([]string, 0, len(e.list))
	if count >= 0 {
		for _, v := range e.list {
			if v == element && (count == 0 || int64(removed) < limit) {
				removed++
				continue
			}
			keep = append(keep, v)
		}
	} else {
		for i := len(e.list) - 1; i >= 0; i-- {
			v := e.list[i]
			if v == element && int64(removed) < limit {
				removed++
				continue
			}
			keep = append([]string{v}, keep...)
		}
	}
	e.list = keep
	st.dropIfEmpty(key, e)
	return removed
}

func listIndex(n int, idx int64) (int, bool) {
	if idx < 0 {
		idx += int64(n)
	}
	if idx < 0 || idx >= int64(n) {
		return 0, false
	}
	return int(idx), true
}

func (st *store) execSet(verb string, args []string) *miniredis.Reply {
	key := args[1]
	if verb == "SADD" {
		e, errReply := st.typed(key, typeSet, true)
		if errReply != nil {
			return errReply
		}
		added := 0
		for _, m := range args[2:] {
			if _, ok := e.set[m]; !ok {
				e.set[m] = struct{}{}
				added++
			}
		}
		return intReply(added)
	}

	e, errReply := st.typed(key, typeSet, false)
	if errReply != nil {
		return errReply
	}
	if e == nil {
		if verb == "SMEMBERS" {
			return miniredis.NewArrayReply()
		}
		return intReply(0)
	}

	switch verb {
	case "SREM":
		n := 0
		for _, m := range args[2:] {
			if _, ok := e.set[m]; ok {
				delete(e.set, m)
				n++
			}
		}
		st.dropIfEmpty(key, e)
		return intReply(n)
	case "SCARD":
		return intReply(len(e.set))
	case "SISMEMBER":
		if _, ok := e.set[args[2]]; ok {
			return intReply(1)
		}
		return intReply(0)
	default: // SMEMBERS
		members := make([]string, 0, len(e.set))
		for m := range e.set {
			members = append(members, m)
		}
		sort.Strings(members)
		return miniredis.NewStringsReply(members...)
	}
}
