package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Key is an ordered tuple of tokens addressing one cacheable resource,
// e.g. Key{"drink", 7, "favorites"}. The cache attaches no meaning to a key.
//
// Two keys are equal when every token compares equal in order. Tokens are
// compared structurally through their canonical JSON encoding, so 7, int64(7)
// and float64(7) are the same token, and a struct token equals a map token with
// the same fields.
type Key []any

// NewKey builds a Key from the given tokens.
func NewKey(tokens ...any) Key {
	return Key(tokens)
}

// Append returns a new key with the extra tokens added to the end.
func (k Key) Append(tokens ...any) Key {
	out := make(Key, 0, len(k)+len(tokens))
	out = append(out, k...)
	return append(out, tokens...)
}

// Equal reports whether both keys hold the same tokens in the same order.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if canonicalToken(k[i]) != canonicalToken(other[i]) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether the leading tokens of k equal prefix.
// An empty prefix matches every key.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	return k[:len(prefix)].Equal(prefix)
}

// Kind returns the first token as a string, used as a low-cardinality label.
func (k Key) Kind() string {
	if len(k) == 0 {
		return ""
	}
	if s, ok := k[0].(string); ok {
		return s
	}
	return canonicalToken(k[0])
}

// String returns the canonical encoding of the key. Equal keys always produce
// the same string, which makes it usable as a map key.
func (k Key) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, tok := range k {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(canonicalToken(tok))
	}
	b.WriteByte(']')
	return b.String()
}

// MarshalJSON encodes the key as a JSON array of its tokens.
func (k Key) MarshalJSON() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalJSON decodes a JSON array into the key. Numbers decode as float64,
// which still compare equal to their integer counterparts.
func (k *Key) UnmarshalJSON(data []byte) error {
	var tokens []any
	if err := json.Unmarshal(data, &tokens); err != nil {
		return fmt.Errorf("failed to decode query key: %w", err)
	}
	*k = Key(tokens)
	return nil
}

// canonicalToken renders one token as canonical JSON. Composite values are
// re-decoded into generic maps so field order never matters.
func canonicalToken(tok any) string {
	switch v := tok.(type) {
	case nil:
		return "null"
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%q", fmt.Sprintf("%v", v))
		}
		return string(b)
	}

	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprintf("%#v", tok))
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return string(raw)
	}
	out, err := json.Marshal(normalizeNumbers(generic))
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// normalizeNumbers rewrites json.Number values so 7 and 7.0 encode identically.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, inner := range t {
			t[k] = normalizeNumbers(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = normalizeNumbers(inner)
		}
		return t
	default:
		return v
	}
}
