package mqrpc

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/srand/mqrpc/serialization"
)

// IsPrimitive reports whether t is a bool or numeric kind.
func IsPrimitive(t reflect.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// CoercePrimitive converts a decoded scalar to primitive type t. Nil values
// and non-primitive targets pass through unchanged.
func CoercePrimitive(v any, t reflect.Type) (any, error) {
	if v == nil || !IsPrimitive(t) {
		return v, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type() == t {
		return v, nil
	}

	out := reflect.New(t).Elem()

	if t.Kind() == reflect.Bool {
		if rv.Kind() != reflect.Bool {
			return nil, fmt.Errorf("%w: cannot convert %T to %v", ErrCoercion, v, t)
		}
		out.SetBool(rv.Bool())
		return out.Interface(), nil
	}

	if n, ok := v.(json.Number); ok {
		return coerceNumber(n, t)
	}

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		switch {
		case isInt(t):
			if out.OverflowInt(i) {
				return nil, overflow(v, t)
			}
			out.SetInt(i)
		case isUint(t):
			if i < 0 || out.OverflowUint(uint64(i)) {
				return nil, overflow(v, t)
			}
			out.SetUint(uint64(i))
		default:
			out.SetFloat(float64(i))
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		switch {
		case isInt(t):
			if u > math.MaxInt64 || out.OverflowInt(int64(u)) {
				return nil, overflow(v, t)
			}
			out.SetInt(int64(u))
		case isUint(t):
			if out.OverflowUint(u) {
				return nil, overflow(v, t)
			}
			out.SetUint(u)
		default:
			out.SetFloat(float64(u))
		}
	case reflect.Float32, reflect.Float64:
		return coerceFloat(rv.Float(), v, t)
	default:
		return nil, fmt.Errorf("%w: cannot convert %T to %v", ErrCoercion, v, t)
	}

	return out.Interface(), nil
}

func coerceNumber(n json.Number, t reflect.Type) (any, error) {
	out := reflect.New(t).Elem()
	switch {
	case isInt(t):
		if i, err := n.Int64(); err == nil {
			if out.OverflowInt(i) {
				return nil, overflow(n, t)
			}
			out.SetInt(i)
			return out.Interface(), nil
		}
	case isUint(t):
		var u uint64
		if _, err := fmt.Sscan(n.String(), &u); err == nil {
			if out.OverflowUint(u) {
				return nil, overflow(n, t)
			}
			out.SetUint(u)
			return out.Interface(), nil
		}
	}

	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", ErrCoercion, n.String())
	}
	return coerceFloat(f, n, t)
}

func coerceFloat(f float64, v any, t reflect.Type) (any, error) {
	out := reflect.New(t).Elem()
	switch {
	case isInt(t):
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 || out.OverflowInt(int64(f)) {
			return nil, overflow(v, t)
		}
		out.SetInt(int64(f))
	case isUint(t):
		if f != math.Trunc(f) || f < 0 || f >= math.MaxUint64 || out.OverflowUint(uint64(f)) {
			return nil, overflow(v, t)
		}
		out.SetUint(uint64(f))
	default:
		if out.OverflowFloat(f) {
			return nil, overflow(v, t)
		}
		out.SetFloat(f)
	}
	return out.Interface(), nil
}

func isInt(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUint(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func overflow(v any, t reflect.Type) error {
	return fmt.Errorf("%w: %v does not fit in %v", ErrCoercion, v, t)
}

// SanitizeComplex re-encodes v with codec and decodes it into a fresh value
// of type t, turning generic decoder output (maps, []any) into the exact
// declared type.
func SanitizeComplex(codec serialization.Serializer, v any, t reflect.Type) (any, error) {
	if v == nil || t == nil {
		return v, nil
	}
	if reflect.TypeOf(v) == t {
		return v, nil
	}
	if t.Kind() == reflect.Interface && reflect.TypeOf(v).Implements(t) {
		return v, nil
	}

	data, err := codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding %T: %w", ErrCoercion, v, err)
	}
	out := reflect.New(t)
	if err := codec.Unmarshal(data, out.Interface()); err != nil {
		return nil, fmt.Errorf("%w: decoding into %v: %w", ErrCoercion, t, err)
	}
	return out.Elem().Interface(), nil
}

// Coerce converts v to type t, using CoercePrimitive for primitive targets
// and SanitizeComplex otherwise.
func Coerce(codec serialization.Serializer, v any, t reflect.Type) (any, error) {
	if IsPrimitive(t) {
		return CoercePrimitive(v, t)
	}
	return SanitizeComplex(codec, v, t)
}
