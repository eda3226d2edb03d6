package miniredis

import "strconv"

// Value is a decoded reply. Exactly one field besides Kind is meaningful,
// selected by the kind that was requested from Decode.
type Value struct {
	Kind    Kind
	Str     string   // KindStatus, KindBulk
	Int     int64    // KindInteger
	Strings []string // KindArray
}

// zeroValue returns the value reported for a failed decode.
func zeroValue(want Kind) Value {
	v := Value{Kind: want}
	switch want {
	case KindInteger:
		v.Int = -1
	case KindArray:
		v.Strings = []string{}
	}
	return v
}

// Decode interprets r as the expected kind. ok is false when r is nil or
// its kind differs from want, in which case the zero value for want is
// returned ("" for strings, -1 for integers, no elements for arrays).
// r is released before Decode returns.
func Decode(r *Reply, want Kind) (v Value, ok bool) {
	defer r.Release()

	if r == nil || r.Kind != want {
		return zeroValue(want), false
	}
	v = Value{Kind: want}
	switch want {
	case KindStatus, KindBulk, KindError:
		v.Str = string(r.Str)
	case KindInteger:
		v.Int = r.Int
	case KindArray:
		v.Strings = elemStrings(r)
	}
	return v, true
}

// The helpers below follow the reply-helper idiom
//
//	s, err := miniredis.DecodeString(client.Execute(ctx, "GET", key))
//
// They pass a transport error through unchanged, release r on every path
// and report failures as ErrNil, *ServerError or *ProtocolError.

// check validates r against want. It never releases r.
func check(r *Reply, err error, want Kind) error {
	if err != nil {
		return err
	}
	if r == nil {
		return ErrNotConnected
	}
	switch {
	case r.Kind == want:
		return nil
	case r.Kind == KindNil:
		return ErrNil
	case r.Kind == KindError:
		return r.Err()
	default:
		return newKindMismatchError(want, r.Kind)
	}
}

// DecodeStatus decodes a status reply such as "OK".
func DecodeStatus(r *Reply, err error) (string, error) {
	defer r.Release()
	if err := check(r, err, KindStatus); err != nil {
		return "", err
	}
	return string(r.Str), nil
}

// DecodeString decodes a bulk string reply. The result is binary safe.
func DecodeString(r *Reply, err error) (string, error) {
	defer r.Release()
	if err := check(r, err, KindBulk); err != nil {
		return "", err
	}
	return string(r.Str), nil
}

// DecodeStatusOrString accepts either a status or a bulk reply. It is used
// for commands whose documented reply kind disagrees with what servers send.
func DecodeStatusOrString(r *Reply, err error) (string, error) {
	defer r.Release()
	if err == nil && r != nil && r.Kind == KindStatus {
		return string(r.Str), nil
	}
	if err := check(r, err, KindBulk); err != nil {
		return "", err
	}
	return string(r.Str), nil
}

// DecodeInt decodes an integer reply. On failure the result is -1.
func DecodeInt(r *Reply, err error) (int64, error) {
	defer r.Release()
	if err := check(r, err, KindInteger); err != nil {
		return -1, err
	}
	return r.Int, nil
}

// DecodeBool decodes an integer reply as 0 or 1.
func DecodeBool(r *Reply, err error) (bool, error) {
	n, err := DecodeInt(r, err)
	return n == 1, err
}

// DecodeStrings decodes an array reply, flattening every element to a string.
func DecodeStrings(r *Reply, err error) ([]string, error) {
	defer r.Release()
	if err := check(r, err, KindArray); err != nil {
		return []string{}, err
	}
	return elemStrings(r), nil
}

// DecodeMap decodes an array of alternating field/value elements, as sent
// by HGETALL. An odd number of elements is a protocol error.
func DecodeMap(r *Reply, err error) (map[string]string, error) {
	defer r.Release()
	if err := check(r, err, KindArray); err != nil {
		return map[string]string{}, err
	}
	if len(r.Elems)%2 != 0 {
		return map[string]string{}, newOddMappingError(len(r.Elems))
	}
	m := make(map[string]string, len(r.Elems)/2)
	for i := 0; i < len(r.Elems); i += 2 {
		m[elemString(r.Elems[i])] = elemString(r.Elems[i+1])
	}
	return m, nil
}

func elemStrings(r *Reply) []string {
	out := make([]string, len(r.Elems))
	for i, e := range r.Elems {
		out[i] = elemString(e)
	}
	return out
}

// elemString flattens one array element. Integers are formatted in decimal
// and nil elements become "".
func elemString(e *Reply) string {
	switch e.Kind {
	case KindInteger:
		return strconv.FormatInt(e.Int, 10)
	case KindNil:
		return ""
	case KindArray:
		return e.Format()
	default:
		return string(e.Str)
	}
}
