package table

import (
	"encoding/json"
	"strconv"
	"time"
)

// ValueKind tags a canonical value.
type ValueKind int

const (
	ValueMissing ValueKind = iota
	ValueUnresolved
	ValueNumber
	ValueBoolean
	ValueCategory
	ValueDateTime
	ValueText
)

var valueKindNames = map[ValueKind]string{
	ValueMissing:    "missing",
	ValueUnresolved: "unresolved",
	ValueNumber:     "number",
	ValueBoolean:    "boolean",
	ValueCategory:   "category",
	ValueDateTime:   "datetime",
	ValueText:       "text",
}

func (k ValueKind) String() string {
	if s, ok := valueKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Value is a normalized cell. Only the field matching Kind is meaningful;
// Str holds the category or text and, for Unresolved, the original text.
type Value struct {
	Kind ValueKind
	Num  float64
	Bool bool
	Str  string
	Time time.Time
}

func MissingValue() Value { return Value{Kind: ValueMissing} }
func UnresolvedValue(raw string) Value { return Value{Kind: ValueUnresolved, Str: raw} }
func NumberValue(f float64) Value { return Value{Kind: ValueNumber, Num: f} }
func BoolValue(b bool) Value { return Value{Kind: ValueBoolean, Bool: b} }
func CategoryValue(s string) Value { return Value{Kind: ValueCategory, Str: s} }
func DateTimeValue(t time.Time) Value { return Value{Kind: ValueDateTime, Time: t} }
func TextValue(s string) Value { return Value{Kind: ValueText, Str: s} }

// String renders the value for text views.
func (v Value) String() string {
	switch v.Kind {
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case ValueBoolean:
		return strconv.FormatBool(v.Bool)
	case ValueCategory, ValueText:
		return v.Str
	case ValueDateTime:
		return v.Time.Format(time.RFC3339)
	case ValueUnresolved:
		return "<unresolved " + strconv.Quote(v.Str) + ">"
	default:
		return "<missing>"
	}
}

// MarshalJSON encodes the value as its natural JSON form. Missing becomes
// null and Unresolved becomes {"unresolved": "<original>"}.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueNumber:
		return json.Marshal(v.Num)
	case ValueBoolean:
		return json.Marshal(v.Bool)
	case ValueCategory, ValueText:
		return json.Marshal(v.Str)
	case ValueDateTime:
		return json.Marshal(v.Time.Format(time.RFC3339Nano))
	case ValueUnresolved:
		return json.Marshal(map[string]string{"unresolved": v.Str})
	default:
		return []byte("null"), nil
	}
}
