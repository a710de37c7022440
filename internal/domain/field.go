package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind describes how a column value is validated and bound.
type Kind int

const (
	KindInt Kind = iota
	KindString
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// Field is one writable column of the users table.
type Field struct {
	Name   string
	Column string
	Kind   Kind
	// Rule is a go-playground/validator tag applied to the normalized value.
	Rule string
}

// UsernameRule constrains the primary key.
const UsernameRule = "required,max=255"

var (
	FieldPoints      = Field{Name: "points", Column: "points", Kind: KindInt}
	FieldOpted       = Field{Name: "opted", Column: "opted", Kind: KindInt}
	FieldSession     = Field{Name: "session", Column: "session", Kind: KindInt}
	FieldWatched     = Field{Name: "watched", Column: "watched", Kind: KindInt}
	FieldReferral    = Field{Name: "referral", Column: "referral", Kind: KindString, Rule: "max=255"}
	FieldLastControl = Field{Name: "last_control", Column: "last_control", Kind: KindTimestamp, Rule: "datetime=" + LastControlLayout}
)

// Fields lists every writable column in table order.
var Fields = []Field{
	FieldPoints,
	FieldOpted,
	FieldSession,
	FieldWatched,
	FieldReferral,
	FieldLastControl,
}

// Normalize converts raw into the Go value bound for the field's column.
// Integer fields accept any integer type, integral floats and base-10
// integer strings; string and timestamp fields accept strings only.
func (f Field) Normalize(raw any) (any, error) {
	switch f.Kind {
	case KindInt:
		return ToInt64(raw)
	case KindString, KindTimestamp:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported field kind %s", f.Kind)
	}
}

// ToInt64 converts an integer-valued input into int64.
func ToInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return uintToInt64(uint64(v))
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return uintToInt64(v)
	case float32:
		return floatToInt64(float64(v))
	case float64:
		return floatToInt64(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", v)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("value is nil")
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
}

func uintToInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%d overflows int64", v)
	}
	return int64(v), nil
}

func floatToInt64(v float64) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, fmt.Errorf("%v is not an integer", v)
	}
	if v < math.MinInt64 || v >= math.MaxInt64 {
		return 0, fmt.Errorf("%v overflows int64", v)
	}
	return int64(v), nil
}
