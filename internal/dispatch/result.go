package dispatch

import (
	"fmt"
	"sort"
	"strconv"
)

// Status is the outcome of a dispatched submission.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// DefaultOutput is shown when a handler finishes without returning anything.
const DefaultOutput = "Processing complete."

// Result is the envelope every submission produces.
type Result struct {
	Status Status         `json:"status"`
	Output string         `json:"output"`
	Data   map[string]any `json:"data"`
}

// OK reports whether the result is a success.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

func Success(output string, data map[string]any) Result {
	if data == nil {
		data = map[string]any{}
	}

	return Result{Status: StatusSuccess, Output: output, Data: data}
}

func Failure(output string, data map[string]any) Result {
	if data == nil {
		data = map[string]any{}
	}

	return Result{Status: StatusError, Output: output, Data: data}
}

// Values maps field names to submitted values. Text-like fields hold strings,
// checkboxes hold bools and file fields hold the path the upload was saved to.
type Values map[string]any

// String returns the substitution form of the named value.
func (v Values) String(name string) string {
	return stringify(v[name])
}

// Names returns the value names in sorted order.
func (v Values) Names() []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
