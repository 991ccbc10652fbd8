package summary

import (
	"bytes"

	json "github.com/goccy/go-json"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Object is an object node whose keys keep their document order.
type Object = orderedmap.OrderedMap[string, Value]

// Value is a structured-data tree node. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	raw  string // number literal or string contents
	arr  []Value
	obj  *Object
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a number value from its literal text, e.g. "1.5e3".
func Number(literal string) Value { return Value{kind: KindNumber, raw: literal} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, raw: s} }

// Array returns an array value holding elems. The slice is not copied.
func Array(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{kind: KindArray, arr: elems}
}

// ObjectOf returns an object value backed by obj.
func ObjectOf(obj *Object) Value {
	if obj == nil {
		obj = orderedmap.New[string, Value]()
	}
	return Value{kind: KindObject, obj: obj}
}

// NewObject returns an empty ordered object with room for n keys.
func NewObject(n int) *Object {
	return orderedmap.New[string, Value](orderedmap.WithCapacity[string, Value](n))
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsArray() bool { return v.kind == KindArray }
func (v Value) IsObject() bool { return v.kind == KindObject }
func (v Value) Elems() []Value { return v.arr }
func (v Value) Fields() *Object { return v.obj }
func (v Value) Text() string { return v.raw }
func (v Value) BoolValue() bool { return v.b }

// Len returns the element count of an array or the key count of an object.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return v.obj.Len()
	}
	return 0
}

// Equal reports deep equality, including object key order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber, KindString:
		return v.raw == o.raw
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if v.obj.Len() != o.obj.Len() {
			return false
		}
		a, b := v.obj.Oldest(), o.obj.Oldest()
		for ; a != nil && b != nil; a, b = a.Next(), b.Next() {
			if a.Key != b.Key || !a.Value.Equal(b.Value) {
				return false
			}
		}
		return a == nil && b == nil
	}
	return false
}

// MarshalJSON renders v as compact JSON without HTML escaping.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf, "", 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Pretty renders v as indented JSON, two spaces per level. Empty arrays
// and objects stay on one line.
func Pretty(v Value) (string, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf, "  ", 0); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// encode writes v; a non-empty indent switches to multi-line output.
func (v Value) encode(buf *bytes.Buffer, indent string, depth int) error {
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
		buf.WriteString(v.raw)
	case KindString:
		return encodeString(buf, v.raw)
	case KindArray:
		if len(v.arr) == 0 {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			newline(buf, indent, depth+1)
			if err := e.encode(buf, indent, depth+1); err != nil {
				return err
			}
		}
		newline(buf, indent, depth)
		buf.WriteByte(']')
	case KindObject:
		if v.obj == nil || v.obj.Len() == 0 {
			buf.WriteString("{}")
			return nil
		}
		buf.WriteByte('{')
		for pair := v.obj.Oldest(); pair != nil; pair = pair.Next() {
			if pair != v.obj.Oldest() {
				buf.WriteByte(',')
			}
			newline(buf, indent, depth+1)
			if err := encodeString(buf, pair.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if indent != "" {
				buf.WriteByte(' ')
			}
			if err := pair.Value.encode(buf, indent, depth+1); err != nil {
				return err
			}
		}
		newline(buf, indent, depth)
		buf.WriteByte('}')
	}
	return nil
}

func newline(buf *bytes.Buffer, indent string, depth int) {
	if indent == "" {
		return
	}
	buf.WriteByte('\n')
	for i := 0; i < depth; i++ {
		buf.WriteString(indent)
	}
}

// encodeString writes s as a JSON string literal, leaving <, > and &
// unescaped.
func encodeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}
