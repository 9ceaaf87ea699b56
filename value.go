package callcache

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrUnsupportedValue is returned when Store receives something other than
// text, bytes, an integer or a float.
var ErrUnsupportedValue = errors.New("unsupported value type")

// Decoder converts a raw stored value into T.
type Decoder[T any] func(raw []byte) (T, error)

// DecodeError reports a stored value that a Decoder could not convert.
type DecodeError struct {
	As  string
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q as %s: %v", e.Raw, e.As, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var errInvalidUTF8 = errors.New("invalid utf-8")

// AsBytes returns a copy of the raw value.
func AsBytes(raw []byte) ([]byte, error) {
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// AsString decodes the raw value as UTF-8 text.
func AsString(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", &DecodeError{As: "string", Raw: cloneBytes(raw), Err: errInvalidUTF8}
	}
	return string(raw), nil
}

// AsInt decodes the raw value as a base-10 integer.
func AsInt(raw []byte) (int64, error) {
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, &DecodeError{As: "int", Raw: cloneBytes(raw), Err: err}
	}
	return n, nil
}

// AsFloat decodes the raw value as a 64-bit float.
func AsFloat(raw []byte) (float64, error) {
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return 0, &DecodeError{As: "float", Raw: cloneBytes(raw), Err: err}
	}
	return f, nil
}

// encodeValue renders a storable value the way a Redis client would write it.
func encodeValue(data any) ([]byte, error) {
	switch v := data.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return cloneBytes(v), nil
	case int:
		return strconv.AppendInt(nil, int64(v), 10), nil
	case int8:
		return strconv.AppendInt(nil, int64(v), 10), nil
	case int16:
		return strconv.AppendInt(nil, int64(v), 10), nil
	case int32:
		return strconv.AppendInt(nil, int64(v), 10), nil
	case int64:
		return strconv.AppendInt(nil, v, 10), nil
	case uint:
		return strconv.AppendUint(nil, uint64(v), 10), nil
	case uint8:
		return strconv.AppendUint(nil, uint64(v), 10), nil
	case uint16:
		return strconv.AppendUint(nil, uint64(v), 10), nil
	case uint32:
		return strconv.AppendUint(nil, uint64(v), 10), nil
	case uint64:
		return strconv.AppendUint(nil, v, 10), nil
	case float32:
		return []byte(formatFloat(float64(v), 32)), nil
	case float64:
		return []byte(formatFloat(v, 64)), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, data)
	}
}

// formatFloat renders v like a Python float repr: fixed notation keeping at
// least one fractional digit when the exponent is in [-4, 16), shortest
// scientific notation otherwise.
func formatFloat(v float64, bitSize int) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, bitSize)
	}
	if abs := math.Abs(v); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, bitSize)
	}
	out := strconv.FormatFloat(v, 'f', -1, bitSize)
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}
