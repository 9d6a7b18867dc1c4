package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// ValueKind identifies which variant a Value holds.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindHashMap
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindHashMap:
		return "hashmap"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a dynamically typed SQF value as returned by a benchmarked
// script. The zero Value is Null.
type Value struct {
	kind ValueKind
	b    bool
	n    float64
	s    string
	arr  []Value
	m    map[string]Value
}

func Null() Value { return Value{} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an array value. The result is never a nil slice, so an
// empty array survives a round trip unchanged.
func Array(elems ...Value) Value {
	arr := make([]Value, len(elems))
	copy(arr, elems)
	return Value{kind: KindArray, arr: arr}
}

// HashMap returns a hashmap value holding a copy of m.
func HashMap(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindHashMap, m: cp}
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

func (v Value) AsHashMap() (map[string]Value, bool) { return v.m, v.kind == KindHashMap }

// String renders v in SQF notation, e.g. [1,"a",true].
func (v Value) String() string {
	var sb strings.Builder
	v.writeSQF(&sb)
	return sb.String()
}

func (v Value) writeSQF(sb *strings.Builder) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		sb.WriteString(strconv.FormatFloat(v.n, 'g', -1, 64))
	case KindString:
		sb.WriteByte('"')
		sb.WriteString(strings.ReplaceAll(v.s, `"`, `""`))
		sb.WriteByte('"')
	case KindArray:
		sb.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				sb.WriteByte(',')
			}
			e.writeSQF(sb)
		}
		sb.WriteByte(']')
	case KindHashMap:
		sb.WriteByte('[')
		for i, k := range v.sortedKeys() {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('[')
			String(k).writeSQF(sb)
			sb.WriteByte(',')
			v.m[k].writeSQF(sb)
			sb.WriteByte(']')
		}
		sb.WriteByte(']')
	}
}

func (v Value) sortedKeys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	_ msgpack.CustomEncoder = Value{}
	_ msgpack.CustomDecoder = (*Value)(nil)
	_ json.Marshaler        = Value{}
	_ json.Unmarshaler      = (*Value)(nil)
)

// EncodeMsgpack writes v using the native MessagePack type of each variant.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch v.kind {
	case KindNull:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindNumber:
		return enc.EncodeFloat64(v.n)
	case KindString:
		return enc.EncodeString(v.s)
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.arr)); err != nil {
			return err
		}
		for _, e := range v.arr {
			if err := e.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	case KindHashMap:
		if err := enc.EncodeMapLen(len(v.m)); err != nil {
			return err
		}
		for _, k := range v.sortedKeys() {
			if err := enc.EncodeString(k); err != nil {
				return err
			}
			if err := v.m[k].EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("encode value: unknown kind %s", v.kind)
	}
}

// DecodeMsgpack reads any MessagePack scalar, array or string-keyed map.
// Integers of every width decode to Number.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	c, err := dec.PeekCode()
	if err != nil {
		return err
	}

	switch {
	case c == msgpcode.Nil:
		*v = Null()
		return dec.DecodeNil()
	case c == msgpcode.True || c == msgpcode.False:
		b, err := dec.DecodeBool()
		if err != nil {
			return err
		}
		*v = Bool(b)
	case msgpcode.IsString(c) || msgpcode.IsBin(c):
		s, err := dec.DecodeString()
		if err != nil {
			return err
		}
		*v = String(s)
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		arr := make([]Value, n)
		for i := range arr {
			if err := arr[i].DecodeMsgpack(dec); err != nil {
				return err
			}
		}
		*v = Value{kind: KindArray, arr: arr}
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return err
		}
		m := make(map[string]Value, n)
		for i := 0; i < n; i++ {
			key, err := dec.DecodeString()
			if err != nil {
				return fmt.Errorf("decode hashmap key: %w", err)
			}
			var elem Value
			if err := elem.DecodeMsgpack(dec); err != nil {
				return err
			}
			m[key] = elem
		}
		*v = Value{kind: KindHashMap, m: m}
	default:
		n, err := dec.DecodeFloat64()
		if err != nil {
			return fmt.Errorf("decode value: unsupported code 0x%02x: %w", c, err)
		}
		*v = Number(n)
	}
	return nil
}

// MarshalJSON maps each variant onto its natural JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	case KindArray:
		return json.Marshal(v.arr)
	case KindHashMap:
		return json.Marshal(v.m)
	default:
		return nil, fmt.Errorf("marshal value: unknown kind %s", v.kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("unmarshal value: empty input")
	}

	switch data[0] {
	case 'n':
		*v = Null()
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case '[':
		arr := []Value{}
		if err := json.Unmarshal(data, &arr); err != nil {
			return err
		}
		*v = Value{kind: KindArray, arr: arr}
	case '{':
		m := map[string]Value{}
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		*v = Value{kind: KindHashMap, m: m}
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Number(n)
	}
	return nil
}
