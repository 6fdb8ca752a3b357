package directive

import (
	"encoding/json"
	"sort"
	"strconv"
)

// Kind is the primitive type of a decoded argument value.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
)

var kindNames = [...]string{
	KindString: "string",
	KindNumber: "number",
	KindBool:   "boolean",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is an immutable scalar decoded from a directive argument body.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric Value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind returns the value's primitive type.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload and whether the value is a string.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the numeric payload and whether the value is a number.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Bool returns the boolean payload and whether the value is a boolean.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// String coerces the value to its string form. Enum membership is checked against this form.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.str
	}
}

// Interface returns the value as a plain Go scalar (string, float64 or bool).
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	default:
		return v.str
	}
}

// Equal reports whether v and o have the same kind and payload.
func (v Value) Equal(o Value) bool {
	return v == o
}

// MarshalJSON encodes the value as its native JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON accepts a JSON string, number or boolean.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	val, ok := FromInterface(raw)
	if !ok {
		return &json.UnsupportedValueError{Str: string(data)}
	}
	*v = val
	return nil
}

// FromInterface converts a Go scalar into a Value. Integer types are widened to float64.
func FromInterface(x any) (Value, bool) {
	switch t := x.(type) {
	case string:
		return String(t), true
	case bool:
		return Bool(t), true
	case float64:
		return Number(t), true
	case float32:
		return Number(float64(t)), true
	case int:
		return Number(float64(t)), true
	case int64:
		return Number(float64(t)), true
	case int32:
		return Number(float64(t)), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, false
		}
		return Number(f), true
	}
	return Value{}, false
}

// ArgumentMap maps parameter names to decoded values. Each map is owned by the call that decoded it.
type ArgumentMap map[string]Value

// Keys returns the argument names in sorted order.
func (m ArgumentMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether name is present.
func (m ArgumentMap) Has(name string) bool {
	_, ok := m[name]
	return ok
}

// StringOf returns the coerced string form of name, or "" when absent.
func (m ArgumentMap) StringOf(name string) string {
	v, ok := m[name]
	if !ok {
		return ""
	}
	return v.String()
}

// Interface returns a plain map suitable for JSON or logging.
func (m ArgumentMap) Interface() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Interface()
	}
	return out
}

// Call is a decoded directive: the operation name and its arguments, ready for presentation or dispatch.
type Call struct {
	Name      string      `json:"name"`
	Arguments ArgumentMap `json:"arguments"`
}
