package analytics

import "strconv"

// Value is a metric value as reported by the analytics API. The API
// returns every value as a string; a decimal point in the source string
// decides whether the value is a float or an integer.
type Value struct {
	isFloat bool
	i       int64
	f       float64
}

// ParseValue coerces an API string value. Unparseable input degrades to
// integer zero rather than failing the row.
func ParseValue(s string) Value {
	for _, r := range s {
		if r == '.' {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return Value{}
			}
			return Value{isFloat: true, f: f}
		}
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Value{}
	}
	return Value{i: i}
}

// IntValue builds an integer Value, mainly for tests and synthetic rows.
func IntValue(i int64) Value { return Value{i: i} }

// FloatValue builds a float Value.
func FloatValue(f float64) Value { return Value{isFloat: true, f: f} }

// IsFloat reports whether the source representation carried a decimal point.
func (v Value) IsFloat() bool { return v.isFloat }

// Int returns the value as an integer, truncating floats.
func (v Value) Int() int64 {
	if v.isFloat {
		return int64(v.f)
	}
	return v.i
}

// Float returns the value as a float64.
func (v Value) Float() float64 {
	if v.isFloat {
		return v.f
	}
	return float64(v.i)
}

// String formats the value the way the source represented it.
func (v Value) String() string {
	if v.isFloat {
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	}
	return strconv.FormatInt(v.i, 10)
}
