// Package document holds the store-neutral representation of a source document.
//
// Documents decoded from the store are converted into a Value tree by Normalize.
// A Value is a tagged union of null, bool, number, string, map and sequence.
// Numbers are arbitrary-precision decimals so monetary amounts survive intact.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindMap
	KindSeq
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindMap:
		return "map"
	case KindSeq:
		return "seq"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Field is a key/value pair of a map Value.
type Field struct {
	Key   string
	Value Value
}

// Value is an immutable document node. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	n    decimal.Decimal
	s    string
	keys []string
	m    map[string]Value
	seq  []Value
}

// Null returns the null Value.
func Null() Value { return Value{} }

// Bool returns a bool Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a number Value.
func Number(d decimal.Decimal) Value { return Value{kind: KindNumber, n: d} }

// Int returns a number Value for i.
func Int(i int64) Value { return Number(decimal.NewFromInt(i)) }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Object returns a map Value with fields in the given order. A repeated key
// keeps its first position and its last value.
func Object(fields ...Field) Value {
	v := Value{kind: KindMap, m: make(map[string]Value, len(fields))}
	for _, f := range fields {
		if _, ok := v.m[f.Key]; !ok {
			v.keys = append(v.keys, f.Key)
		}
		v.m[f.Key] = f.Value
	}
	return v
}

// FromMap returns a map Value with keys in sorted order.
func FromMap(m map[string]Value) Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	fields := make([]Field, len(keys))
	for i, k := range keys {
		fields[i] = Field{Key: k, Value: m[k]}
	}
	return Object(fields...)
}

// Seq returns a sequence Value.
func Seq(items ...Value) Value {
	return Value{kind: KindSeq, seq: slices.Clone(items)}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsMap reports whether v is a map.
func (v Value) IsMap() bool { return v.kind == KindMap }

// Get returns the value at key, or null when v is not a map or has no such key.
func (v Value) Get(key string) Value {
	if v.kind != KindMap {
		return Null()
	}
	return v.m[key]
}

// Has reports whether v is a map containing key.
func (v Value) Has(key string) bool {
	if v.kind != KindMap {
		return false
	}
	_, ok := v.m[key]
	return ok
}

// Path follows keys through nested maps.
func (v Value) Path(keys ...string) Value {
	cur := v
	for _, k := range keys {
		cur = cur.Get(k)
	}
	return cur
}

// Keys returns the keys of a map in order, or nil.
func (v Value) Keys() []string {
	return slices.Clone(v.keys)
}

// Items returns the elements of a sequence, or nil.
func (v Value) Items() []Value {
	return slices.Clone(v.seq)
}

// Len returns the number of entries of a map or sequence, or the length of a string.
func (v Value) Len() int {
	switch v.kind {
	case KindMap:
		return len(v.keys)
	case KindSeq:
		return len(v.seq)
	case KindString:
		return len(v.s)
	default:
		return 0
	}
}

// Str returns the string held by v.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Decimal returns the number held by v.
func (v Value) Decimal() (decimal.Decimal, bool) {
	if v.kind != KindNumber {
		return decimal.Zero, false
	}
	return v.n, true
}

// Boolean returns the bool held by v.
func (v Value) Boolean() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Text renders a scalar as an identifier string. Strings are returned as is
// and numbers in their canonical decimal form. Other kinds report false.
func (v Value) Text() (string, bool) {
	switch v.kind {
	case KindString:
		return v.s, true
	case KindNumber:
		return v.n.String(), true
	default:
		return "", false
	}
}

// String renders v as compact JSON.
func (v Value) String() string {
	b, err := json.Marshal(v)
	if err != nil {
		return "<invalid>"
	}
	return string(b)
}

// Equal reports whether v and o hold the same data. Map key order is ignored.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n.Equal(o.n)
	case KindString:
		return v.s == o.s
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, a := range v.m {
			b, ok := o.m[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	case KindSeq:
		return slices.EqualFunc(v.seq, o.seq, Value.Equal)
	}
	return false
}

// MarshalJSON encodes v with map keys in order and numbers in exact decimal form.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		buf.WriteString(v.n.String())
	case KindString:
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindMap:
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(b)
			buf.WriteByte(':')
			if err := v.m[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case KindSeq:
		buf.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("encode: unknown kind %d", v.kind)
	}
	return nil
}

// UnmarshalJSON decodes JSON into v, keeping object key order.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	out, err := decodeValue(dec, 0)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); err == nil {
		return fmt.Errorf("decode: trailing data")
	}
	*v = out
	return nil
}

func decodeValue(dec *json.Decoder, depth int) (Value, error) {
	if depth > MaxDepth {
		return Value{}, ErrTooDeep
	}

	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("decode: %w", err)
	}

	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return Value{}, fmt.Errorf("decode number %q: %w", t, err)
		}
		return Number(d), nil
	case json.Delim:
		switch t {
		case '{':
			var fields []Field
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, fmt.Errorf("decode: %w", err)
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("decode: object key %v", kt)
				}
				item, err := decodeValue(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				fields = append(fields, Field{Key: key, Value: item})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("decode: %w", err)
			}
			return Object(fields...), nil
		case '[':
			items := make([]Value, 0)
			for dec.More() {
				item, err := decodeValue(dec, depth+1)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("decode: %w", err)
			}
			return Value{kind: KindSeq, seq: items}, nil
		}
	}
	return Value{}, fmt.Errorf("decode: unexpected token %v", tok)
}
