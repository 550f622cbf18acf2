// Package builtin holds the in-process handlers the formrunner binary can serve
// without an external command.
package builtin

import (
	"context"
	"maps"
	"slices"

	"formrunner/internal/dispatch"
)

var handlers = map[string]dispatch.Handler{
	"greeting": Greeting,
	"echo":     Echo,
}

// Lookup returns the handler registered under name.
func Lookup(name string) (dispatch.Handler, bool) {
	h, ok := handlers[name]
	return h, ok
}

// Names lists the registered handler names in sorted order.
func Names() []string {
	return slices.Sorted(maps.Keys(handlers))
}

// Echo returns the submitted values as the result data.
func Echo(_ context.Context, values dispatch.Values) (any, error) {
	data := make(map[string]any, len(values))
	for name, v := range values {
		data[name] = v
	}

	return data, nil
}
