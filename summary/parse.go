package summary

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when a frame is not a single JSON document.
var ErrInvalidJSON = errors.New("invalid json")

// Parse decodes a JSON document into a Value tree. Object keys keep the
// order they have in the document; a repeated key keeps its first position
// and its last value.
func Parse(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return Value{}, ErrInvalidJSON
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

// ParseString is Parse for text input.
func ParseString(s string) (Value, error) {
	if !gjson.Valid(s) {
		return Value{}, ErrInvalidJSON
	}
	return fromResult(gjson.Parse(s)), nil
}

func fromResult(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return Null()
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.Number:
		return Number(strings.TrimSpace(r.Raw))
	case gjson.String:
		return String(r.String())
	}

	if r.IsArray() {
		elems := make([]Value, 0)
		r.ForEach(func(_, v gjson.Result) bool {
			elems = append(elems, fromResult(v))
			return true
		})
		return Array(elems...)
	}

	obj := NewObject(0)
	r.ForEach(func(k, v gjson.Result) bool {
		obj.Set(k.String(), fromResult(v))
		return true
	})
	return ObjectOf(obj)
}
