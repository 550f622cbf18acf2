package dispatch

import (
	"context"
	"fmt"
	"log/slog"
)

// Callable runs an in-process Handler.
type Callable struct {
	handler Handler
	onError ErrorHandler
	log     *slog.Logger
}

// PanicError carries the value a handler panicked with.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}

	return fmt.Sprint(e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Dispatch calls the handler with values. Errors and panics are converted into an
// error Result, through the ErrorHandler when one is configured.
func (c *Callable) Dispatch(ctx context.Context, values Values) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			err := &PanicError{Value: r}
			c.log.Error("Handler panicked", "error", err)
			res = convertError(c.onError, err)
		}
	}()

	out, err := c.handler(ctx, values)
	if err != nil {
		c.log.Error("Handler returned an error", "error", err)
		return convertError(c.onError, err)
	}

	res = Normalize(out)
	c.log.Info("Handler completed", "status", res.Status)

	return res
}

// Normalize converts a handler's return value into a Result. A Result, or a map
// carrying a "status" key, is taken as the complete envelope. Anything else is
// wrapped as a success.
func Normalize(v any) Result {
	switch val := v.(type) {
	case nil:
		return Success(DefaultOutput, nil)
	case Result:
		return val
	case *Result:
		if val == nil {
			return Success(DefaultOutput, nil)
		}

		return *val
	case map[string]any:
		if _, ok := val["status"]; ok {
			return fromEnvelope(val)
		}

		return Success(fmt.Sprint(val), val)
	case Values:
		return Normalize(map[string]any(val))
	case map[string]string:
		return Normalize(toAnyMap(val))
	default:
		return Success(stringify(val), nil)
	}
}

func fromEnvelope(m map[string]any) Result {
	res := Result{Status: Status(stringify(m["status"]))}

	if output, ok := m["output"]; ok {
		res.Output = stringify(output)
	}

	switch data := m["data"].(type) {
	case map[string]any:
		res.Data = data
	case Values:
		res.Data = map[string]any(data)
	case map[string]string:
		res.Data = toAnyMap(data)
	}

	if res.Data == nil {
		res.Data = map[string]any{}
	}

	return res
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}
