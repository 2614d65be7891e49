// Package walker decodes JSON records into an ordered value tree and walks
// that tree into flat (path, scalar) pairs.
package walker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Kind is the variant tag of a Value.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Object
	Array
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Object:
		return "object"
	case Array:
		return "array"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Member is one key of an object, in document order.
type Member struct {
	Key   string
	Value Value
}

// Value is a JSON value. Objects keep their keys in document order, numbers
// keep their literal text.
//
// The zero Value is null.
type Value struct {
	kind    Kind
	b       bool
	s       string
	members []Member
	elems   []Value
}

// NullValue returns JSON null, the same as the zero Value.
func NullValue() Value { return Value{} }

// BoolValue returns true or false.
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// StringValue returns a JSON string.
func StringValue(s string) Value { return Value{kind: String, s: s} }

// NumberValue returns a number written as lit. lit is not validated.
func NumberValue(lit string) Value { return Value{kind: Number, s: lit} }

// ObjectValue builds an object from members. Duplicate keys are kept as given.
func ObjectValue(members ...Member) Value {
	return Value{kind: Object, members: members}
}

// ArrayValue builds an array from elems.
func ArrayValue(elems ...Value) Value {
	return Value{kind: Array, elems: elems}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// Members returns the object members of v, nil for non-objects.
func (v Value) Members() []Member { return v.members }

// Elems returns the array elements of v, nil for non-arrays.
func (v Value) Elems() []Value { return v.elems }

// AsBool returns the boolean content, false for non-booleans.
func (v Value) AsBool() bool { return v.b }

// AsString returns string content, or the literal text of a number.
func (v Value) AsString() string { return v.s }

// Get returns the first member named key.
func (v Value) Get(key string) (Value, bool) {
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Text renders v as the string that gets masked: string content without
// quotes, number literals as written, true/false/null as keywords, and
// containers as compact JSON.
func (v Value) Text() string {
	switch v.kind {
	case String, Number:
		return v.s
	case Bool:
		return strconv.FormatBool(v.b)
	case Null:
		return "null"
	default:
		b, _ := v.MarshalJSON()
		return string(b)
	}
}

// MarshalJSON writes v with object keys in their stored order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(v.b))
	case Number:
		if v.s == "" {
			buf.WriteByte('0')
			return nil
		}
		buf.WriteString(v.s)
	case String:
		writeString(buf, v.s)
	case Object:
		buf.WriteByte('{')
		for i, m := range v.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, m.Key)
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case Array:
		buf.WriteByte('[')
		for i, e := range v.elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("walker: cannot encode %s", v.kind)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encode terminates with a newline.
	buf.Truncate(buf.Len() - 1)
}

// ErrTrailingData is returned by Parse when more than one JSON value is present.
var ErrTrailingData = errors.New("walker: trailing data after JSON value")

// Parse decodes exactly one JSON document.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decode(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, ErrTrailingData
	}
	return v, nil
}

func decode(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case nil:
		return NullValue(), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		return NumberValue(t.String()), nil
	case string:
		return StringValue(t), nil
	case json.Delim:
		switch t {
		case '{':
			var members []Member
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("walker: object key is %T", kt)
				}
				val, err := decode(dec)
				if err != nil {
					return Value{}, err
				}
				members = append(members, Member{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return ObjectValue(members...), nil
		case '[':
			var elems []Value
			for dec.More() {
				val, err := decode(dec)
				if err != nil {
					return Value{}, err
				}
				elems = append(elems, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return ArrayValue(elems...), nil
		}
	}
	return Value{}, fmt.Errorf("walker: unexpected token %v", tok)
}
