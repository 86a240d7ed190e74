package xtce

import "fmt"

// Kind identifies which field of Value holds the meaningful payload.
type Kind int

// Value kinds supported by raw/derived parameter values and match-criteria
// comparisons.
const (
	KindInt Kind = iota
	KindUint
	KindFloat
	KindString
	KindBytes
	KindBool
)

// Value is a small tagged union over the scalar types a parameter's raw or
// derived value can take. It is deliberately a closed set, mirroring the
// closed set of XTCE parameter-type kinds.
type Value struct {
	Kind Kind
	I    int64
	U    uint64
	F    float64
	S    string
	B    []byte
	Bool bool
}

// IntValue wraps a signed integer.
func IntValue(v int64) Value { return Value{Kind: KindInt, I: v} }

// UintValue wraps an unsigned integer.
func UintValue(v uint64) Value { return Value{Kind: KindUint, U: v} }

// FloatValue wraps a floating-point value.
func FloatValue(v float64) Value { return Value{Kind: KindFloat, F: v} }

// StringValue wraps a decoded string.
func StringValue(v string) Value { return Value{Kind: KindString, S: v} }

// BytesValue wraps a raw byte buffer.
func BytesValue(v []byte) Value { return Value{Kind: KindBytes, B: v} }

// BoolValue wraps a boolean.
func BoolValue(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// Float64 coerces the value to a float64 for numeric comparison or
// calibration input. Strings and bytes return an error.
func (v Value) Float64() (float64, error) {
	switch v.Kind {
	case KindInt:
		return float64(v.I), nil
	case KindUint:
		return float64(v.U), nil
	case KindFloat:
		return v.F, nil
	case KindBool:
		if v.Bool {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("xtce: value of kind %v is not numeric", v.Kind)
	}
}

// String renders the value as a human-readable string, used for JSON/CLI
// output and error messages; not involved in derived-string decoding.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.I)
	case KindUint:
		return fmt.Sprintf("%d", v.U)
	case KindFloat:
		return fmt.Sprintf("%g", v.F)
	case KindString:
		return v.S
	case KindBytes:
		return fmt.Sprintf("%x", v.B)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return ""
	}
}

// Equal reports whether two values compare equal under XTCE comparison
// semantics: numeric kinds compare by numeric value, strings compare
// byte-wise, bytes compare byte-wise, bools compare directly.
func (v Value) Equal(o Value) bool {
	if isNumericKind(v.Kind) && isNumericKind(o.Kind) {
		a, _ := v.Float64()
		b, _ := o.Float64()
		return a == b
	}
	if v.Kind == KindString && o.Kind == KindString {
		return v.S == o.S
	}
	if v.Kind == KindBytes && o.Kind == KindBytes {
		return string(v.B) == string(o.B)
	}
	if v.Kind == KindBool && o.Kind == KindBool {
		return v.Bool == o.Bool
	}
	return false
}

// Compare returns -1, 0, or 1 per Go's ordering conventions. Strings compare
// byte-wise (callers wanting codepoint-wise comparison on derived strings
// should compare the []rune form themselves; byte-wise is correct for raw
// string buffers and is used as the default here per spec).
func (v Value) Compare(o Value) (int, error) {
	if isNumericKind(v.Kind) && isNumericKind(o.Kind) {
		a, _ := v.Float64()
		b, _ := o.Float64()
		switch {
		case a < b:
			return -1, nil
		case a > b:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if v.Kind == KindString && o.Kind == KindString {
		switch {
		case v.S < o.S:
			return -1, nil
		case v.S > o.S:
			return 1, nil
		default:
			return 0, nil
		}
	}
	return 0, fmt.Errorf("xtce: values of kind %v and %v are not comparable", v.Kind, o.Kind)
}

func isNumericKind(k Kind) bool {
	return k == KindInt || k == KindUint || k == KindFloat || k == KindBool
}
