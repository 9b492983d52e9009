package resource

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind is the native type of an attribute
type Kind int

const (
	KindNone Kind = iota
	KindNumber
	KindBool
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "none"
	}
}

// ParseKind maps the textual kind used in descriptor files
func ParseKind(s string) (Kind, error) {
	switch s {
	case "number", "int", "uint", "float":
		return KindNumber, nil
	case "bool", "boolean":
		return KindBool, nil
	case "string", "time":
		return KindString, nil
	}
	return KindNone, fmt.Errorf("unknown attribute kind %q", s)
}

// Value is a typed attribute value. The zero Value is unset.
type Value struct {
	kind Kind
	num  float64
	b    bool
	s    string
}

func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func String(s string) Value  { return Value{kind: KindString, s: s} }

// FromAny converts a decoded JSON value. Unsupported types yield an unset Value.
func FromAny(v any) Value {
	switch t := v.(type) {
	case Value:
		return t
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return String(t.String())
		}
		return Number(f)
	case bool:
		return Bool(t)
	case string:
		return String(t)
	}
	return Value{}
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsSet() bool    { return v.kind != KindNone }
func (v Value) Float() float64 { return v.num }

// Int truncates a number towards zero. Booleans map to 0/1.
func (v Value) Int() int64 {
	switch v.kind {
	case KindNumber:
		return int64(v.num)
	case KindBool:
		if v.b {
			return 1
		}
	}
	return 0
}

func (v Value) Bool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num != 0
	case KindString:
		return v.s == "true"
	}
	return false
}

// String renders the value as text
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.s
	}
	return ""
}

// Any returns the plain Go value (float64, bool, string or nil)
func (v Value) Any() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindString:
		return v.s
	}
	return nil
}

// Equal reports whether both values have the same kind and content
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	}
	return true
}

// Convert coerces the value to the given kind
func (v Value) Convert(k Kind) (Value, bool) {
	if v.kind == k {
		return v, true
	}
	switch k {
	case KindNumber:
		switch v.kind {
		case KindBool:
			return Number(float64(v.Int())), true
		case KindString:
			f, err := strconv.ParseFloat(v.s, 64)
			if err != nil {
				return Value{}, false
			}
			return Number(f), true
		}
	case KindBool:
		switch v.kind {
		case KindNumber:
			return Bool(v.num != 0), true
		case KindString:
			if v.s == "true" || v.s == "false" {
				return Bool(v.s == "true"), true
			}
		}
	case KindString:
		if v.kind != KindNone {
			return String(v.String()), true
		}
	}
	return Value{}, false
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}
