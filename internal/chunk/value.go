package chunk

import (
	"bytes"
	"strconv"
)

// Kind tags match the wire encoding.
type Kind uint8

const (
	KindBytes  Kind = 0x01
	KindInt    Kind = 0x02
	KindString Kind = 0x03
	KindList   Kind = 0x04
)

// Value is one tagged meta value.
type Value struct {
	Kind  Kind
	Bytes []byte
	Int   int64
	Str   string
	List  []Value
}

func BytesValue(b []byte) Value  { return Value{Kind: KindBytes, Bytes: b} }
func IntValue(n int64) Value     { return Value{Kind: KindInt, Int: n} }
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func ListValue(vs ...Value) Value {
	return Value{Kind: KindList, List: vs}
}

// Render converts a value to its byte representation: bytes verbatim, ints
// and strings as text, lists joined without separator.
func (v Value) Render() []byte {
	switch v.Kind {
	case KindBytes:
		return v.Bytes
	case KindInt:
		return []byte(strconv.FormatInt(v.Int, 10))
	case KindString:
		return []byte(v.Str)
	case KindList:
		var out []byte
		for _, item := range v.List {
			out = append(out, item.Render()...)
		}
		return out
	}
	return nil
}

func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindBytes:
		return bytes.Equal(v.Bytes, o.Bytes)
	case KindInt:
		return v.Int == o.Int
	case KindString:
		return v.Str == o.Str
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	}
	return false
}
