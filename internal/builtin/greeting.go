package builtin

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"formrunner/internal/dispatch"
)

const maxRepeat = 1000

// Greeting repeats "Hello, <name>!" count times, one per line, upper-cased when
// the uppercase box is ticked. An empty count means once.
func Greeting(_ context.Context, values dispatch.Values) (any, error) {
	count, err := repeatCount(values["count"])
	if err != nil {
		return nil, err
	}

	upper, err := checked(values["uppercase"])
	if err != nil {
		return nil, err
	}

	greeting := fmt.Sprintf("Hello, %s!", values.String("name"))
	if upper {
		greeting = strings.ToUpper(greeting)
	}

	lines := make([]string, count)
	for i := range lines {
		lines[i] = greeting
	}

	return map[string]any{
		"status": dispatch.StatusSuccess,
		"output": strings.Join(lines, "\n"),
		"data":   map[string]any{"count": count, "uppercase": upper},
	}, nil
}

func repeatCount(v any) (int, error) {
	var n float64

	switch val := v.(type) {
	case nil:
		return 1, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return 1, nil
		}

		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("count: %q is not a number", val)
		}

		n = parsed
	case int:
		n = float64(val)
	case float64:
		n = val
	default:
		return 0, fmt.Errorf("count: unsupported value %v", v)
	}

	if n != math.Trunc(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("count: %v is not a whole number", v)
	}

	if n < 0 || n > maxRepeat {
		return 0, fmt.Errorf("count: %v is outside 0..%d", v, maxRepeat)
	}

	return int(n), nil
}

func checked(v any) (bool, error) {
	switch val := v.(type) {
	case nil:
		return false, nil
	case bool:
		return val, nil
	case string:
		if val == "" {
			return false, nil
		}

		b, err := strconv.ParseBool(val)
		if err != nil {
			return false, fmt.Errorf("uppercase: %q is not a boolean", val)
		}

		return b, nil
	default:
		return false, fmt.Errorf("uppercase: unsupported value %v", v)
	}
}
