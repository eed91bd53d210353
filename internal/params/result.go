package params

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Status tells how a field got its value.
type Status int

const (
	// Parsed means the supplied value was used.
	Parsed Status = iota
	// Defaulted means the key was absent.
	Defaulted
	// Rejected means the supplied value was unusable and the default was used.
	Rejected
)

func (s Status) String() string {
	switch s {
	case Parsed:
		return "parsed"
	case Defaulted:
		return "defaulted"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of parsing one field.
type Result[T any] struct {
	Value  T
	Status Status
	Reason string
}

func parsed[T any](v T) Result[T] { return Result[T]{Value: v, Status: Parsed} }

func rejected[T any](def T, format string, args ...any) Result[T] {
	return Result[T]{Value: def, Status: Rejected, Reason: fmt.Sprintf(format, args...)}
}

// ParseBool accepts bools, numbers (non-zero is true) and the usual truthy and
// falsy words.
func ParseBool(v any, def bool) Result[bool] {
	switch b := v.(type) {
	case nil:
		return Result[bool]{Value: def, Status: Defaulted}
	case bool:
		return parsed(b)
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "t", "true", "y", "yes", "on":
			return parsed(true)
		case "0", "f", "false", "n", "no", "off", "":
			return parsed(false)
		}
		return rejected(def, "not a boolean")
	}
	if f, ok := toFloat(v); ok {
		return parsed(f != 0)
	}
	return rejected(def, "unsupported type %T", v)
}

// ParseFloat accepts numbers and numeric strings that satisfy valid.
func ParseFloat(v any, def float64, valid func(float64) bool) Result[float64] {
	if v == nil {
		return Result[float64]{Value: def, Status: Defaulted}
	}
	f, ok := toFloat(v)
	if !ok {
		if s, isString := v.(string); isString {
			var err error
			f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
			ok = err == nil
		}
	}
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return rejected(def, "not a number")
	}
	if valid != nil && !valid(f) {
		return rejected(def, "out of range")
	}
	return parsed(f)
}

// ParseInt accepts integers, integral floats and integer strings that satisfy valid.
func ParseInt(v any, def int, valid func(int) bool) Result[int] {
	if v == nil {
		return Result[int]{Value: def, Status: Defaulted}
	}
	var n int
	switch x := v.(type) {
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return rejected(def, "not an integer")
		}
		n = i
	case bool:
		return rejected(def, "not an integer")
	default:
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return rejected(def, "not an integer")
		}
		n = int(f)
	}
	if valid != nil && !valid(n) {
		return rejected(def, "out of range")
	}
	return parsed(n)
}

// ParseString accepts non-empty strings that satisfy valid.
func ParseString(v any, def string, valid func(string) bool) Result[string] {
	if v == nil {
		return Result[string]{Value: def, Status: Defaulted}
	}
	s, ok := v.(string)
	if !ok {
		return rejected(def, "not a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return rejected(def, "empty")
	}
	if valid != nil && !valid(s) {
		return rejected(def, "invalid value")
	}
	return parsed(s)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// scalarString renders a passthrough or descriptor value as a command line token.
func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x), true
	case bool:
		if x {
			return "1", true
		}
		return "0", true
	}
	if f, ok := toFloat(v); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}
