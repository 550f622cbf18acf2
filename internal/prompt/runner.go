// Package prompt fills a form on the terminal instead of in a browser and
// prints the dispatched result.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"formrunner/internal/dispatch"
	"formrunner/internal/field"
)

// Runner asks for every field in order, then dispatches the answers once.
type Runner struct {
	Title      string
	Fields     []field.Descriptor
	Dispatcher dispatch.Dispatcher
	Driver     Driver
	Out        io.Writer
	Logger     *slog.Logger
}

// Run collects the values and dispatches them. A required field left empty
// aborts the run before anything is dispatched.
func (r *Runner) Run(ctx context.Context) (dispatch.Result, error) {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}

	out := r.Out
	if out == nil {
		out = os.Stdout
	}

	if r.Title != "" {
		fmt.Fprintf(out, "%s\n\n", r.Title)
	}

	values, err := r.collect(ctx)
	if err != nil {
		return dispatch.Result{}, err
	}

	log.Info("Processing form submission", "title", r.Title, "fields", values.Names())

	result := r.Dispatcher.Dispatch(ctx, values)

	if err := PrintResult(out, result); err != nil {
		return result, fmt.Errorf("failed to print result: %w", err)
	}

	return result, nil
}

func (r *Runner) collect(ctx context.Context) (dispatch.Values, error) {
	values := make(dispatch.Values, len(r.Fields))

	for _, d := range r.Fields {
		switch f := d.(type) {
		case field.Checkbox:
			checked, err := r.Driver.Confirm(ctx, ConfirmConfig{
				Message: f.Label(),
				Default: f.Default,
				Help:    f.Help(),
			})
			if err != nil {
				return nil, err
			}

			values[f.Name()] = checked

			continue

		case field.Select:
			value, err := r.choose(ctx, f)
			if err != nil {
				return nil, err
			}

			if value == "" && f.Required() {
				return nil, &field.MissingValueError{Field: f}
			}

			values[f.Name()] = value

			continue
		}

		value, err := r.ask(ctx, d)
		if err != nil {
			return nil, err
		}

		if d.Kind() == field.KindFile {
			value = strings.TrimSpace(value)
		}

		if value == "" {
			if d.Required() {
				return nil, &field.MissingValueError{Field: d}
			}

			if d.Kind() == field.KindFile {
				continue
			}
		}

		values[d.Name()] = value
	}

	return values, nil
}

func (r *Runner) ask(ctx context.Context, d field.Descriptor) (string, error) {
	switch f := d.(type) {
	case field.Text:
		if f.Multiline {
			return r.Driver.TextArea(ctx, TextAreaConfig{Message: f.Label(), Default: f.Default, Help: f.Help()})
		}

		return r.Driver.Input(ctx, InputConfig{
			Message:   f.Label(),
			Default:   f.Default,
			Help:      f.Help(),
			Validator: requiredValidator(f),
		})

	case field.Number:
		var def string
		if f.Default != nil {
			def = strconv.FormatFloat(*f.Default, 'f', -1, 64)
		}

		answer, err := r.Driver.Input(ctx, InputConfig{
			Message: f.Label(),
			Default: def,
			Help:    f.Help(),
			Validator: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return requiredValidator(f)(s)
				}

				return checkNumber(s, f)
			},
		})
		if err != nil {
			return "", err
		}

		if strings.TrimSpace(answer) != "" {
			if err := checkNumber(answer, f); err != nil {
				return "", err
			}
		}

		return answer, nil

	case field.File:
		answer, err := r.Driver.Input(ctx, InputConfig{
			Message: f.Label() + " (path)",
			Help:    f.Help(),
			Validator: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return requiredValidator(f)(s)
				}

				return checkFile(strings.TrimSpace(s), f)
			},
		})
		if err != nil {
			return "", err
		}

		if path := strings.TrimSpace(answer); path != "" {
			if err := checkFile(path, f); err != nil {
				return "", err
			}
		}

		return answer, nil
	}

	return r.Driver.Input(ctx, InputConfig{Message: d.Label(), Help: d.Help(), Validator: requiredValidator(d)})
}

func (r *Runner) choose(ctx context.Context, f field.Select) (string, error) {
	if len(f.Choices) == 0 {
		return "", nil
	}

	labels := make([]string, len(f.Choices))
	defaultIndex := 0

	for i, c := range f.Choices {
		labels[i] = c.Label
		if c.Value == f.Default {
			defaultIndex = i
		}
	}

	idx, err := r.Driver.Select(ctx, SelectConfig{
		Message:      f.Label(),
		Options:      labels,
		DefaultIndex: defaultIndex,
		Help:         f.Help(),
	})
	if err != nil {
		return "", err
	}

	if idx < 0 || idx >= len(f.Choices) {
		return "", fmt.Errorf("invalid choice for %s", f.Label())
	}

	return f.Choices[idx].Value, nil
}

func requiredValidator(d field.Descriptor) func(string) error {
	return func(s string) error {
		if d.Required() && strings.TrimSpace(s) == "" {
			return &field.MissingValueError{Field: d}
		}

		return nil
	}
}

func checkNumber(raw string, f field.Number) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s: %q is not a number", f.Label(), raw)
	}

	if f.Min != nil && v < *f.Min {
		return fmt.Errorf("%s: must be at least %s", f.Label(), strconv.FormatFloat(*f.Min, 'f', -1, 64))
	}

	if f.Max != nil && v > *f.Max {
		return fmt.Errorf("%s: must be at most %s", f.Label(), strconv.FormatFloat(*f.Max, 'f', -1, 64))
	}

	return nil
}

func checkFile(path string, f field.File) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", f.Label(), err)
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s: %s is not a regular file", f.Label(), path)
	}

	if limit := f.MaxBytes(); limit > 0 && info.Size() > limit {
		return fmt.Errorf("%s: file too large: %d bytes (max %d)", f.Label(), info.Size(), limit)
	}

	return nil
}

// PrintResult writes a result the way the result page shows it: status, output
// and the data entries in key order.
func PrintResult(w io.Writer, result dispatch.Result) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Status: %s\n", result.Status)

	if result.Output != "" {
		b.WriteString("\n")
		b.WriteString(result.Output)

		if !strings.HasSuffix(result.Output, "\n") {
			b.WriteString("\n")
		}
	}

	if len(result.Data) > 0 {
		keys := make([]string, 0, len(result.Data))
		for k := range result.Data {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		b.WriteString("\n")

		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %v\n", k, result.Data[k])
		}
	}

	_, err := io.WriteString(w, b.String())

	return err
}

// IsAborted reports whether err means the user cancelled the prompts.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled)
}
