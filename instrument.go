package callcache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Operation is a single-input call that instrumentation can wrap.
type Operation[In, Out any] func(ctx context.Context, in In) (Out, error)

// InputsKey names the list holding serialized inputs for operation name.
func InputsKey(name string) string { return name + ":inputs" }

// OutputsKey names the list holding serialized outputs for operation name.
func OutputsKey(name string) string { return name + ":outputs" }

// CountCalls increments the counter stored under name before delegating to op.
// A failed increment aborts the call.
func CountCalls[In, Out any](store Store, name string, op Operation[In, Out]) Operation[In, Out] {
	return func(ctx context.Context, in In) (Out, error) {
		if _, err := store.Increment(ctx, name, 1); err != nil {
			var zero Out
			return zero, err
		}
		return op(ctx, in)
	}
}

// CallHistory records the serialized input before delegating to op and the
// serialized output after it succeeds. A failed op leaves the input without a
// matching output.
func CallHistory[In, Out any](store Store, name string, op Operation[In, Out]) Operation[In, Out] {
	return func(ctx context.Context, in In) (Out, error) {
		var zero Out
		if _, err := store.Append(ctx, InputsKey(name), []byte(FormatArgs(in))); err != nil {
			return zero, err
		}
		out, err := op(ctx, in)
		if err != nil {
			return zero, err
		}
		if _, err := store.Append(ctx, OutputsKey(name), []byte(fmt.Sprint(out))); err != nil {
			return zero, err
		}
		return out, nil
	}
}

// FormatArgs renders call arguments as a parenthesized list, quoting text.
//
//	FormatArgs("hello", 42) // ("hello", 42)
func FormatArgs(args ...any) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, formatArg(arg))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func formatArg(arg any) string {
	switch v := arg.(type) {
	case string:
		return strconv.Quote(v)
	case []byte:
		return "[]byte(" + strconv.Quote(string(v)) + ")"
	case float32:
		return formatFloat(float64(v), 32)
	case float64:
		return formatFloat(v, 64)
	case nil:
		return "nil"
	default:
		return fmt.Sprint(v)
	}
}
