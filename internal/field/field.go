// Package field describes the inputs a form is built from.
//
// A form is an ordered list of Descriptor values. Each concrete type (File, Text,
// Number, Select, Checkbox) carries only the attributes that make sense for its kind.
// Descriptors are built with the New* constructors and are not changed afterwards.
package field

import (
	"errors"
	"fmt"
	"slices"
)

// Kind identifies the input control a descriptor renders as.
type Kind string

const (
	KindFile     Kind = "file"
	KindText     Kind = "text"
	KindNumber   Kind = "number"
	KindSelect   Kind = "select"
	KindCheckbox Kind = "checkbox"
)

// Descriptor is implemented by every field kind.
type Descriptor interface {
	Kind() Kind
	Name() string
	Label() string
	Required() bool
	Help() string

	descriptor()
}

type base struct {
	name     string
	label    string
	help     string
	required bool
}

func (b base) Name() string   { return b.name }
func (b base) Label() string  { return b.label }
func (b base) Required() bool { return b.required }
func (b base) Help() string   { return b.help }
func (base) descriptor()      {}

// File is an upload control. The submitted value is the path the upload was saved to.
type File struct {
	base
	// Accept is a comma separated list of extensions (".csv") or MIME patterns ("text/*").
	Accept    string
	MaxSizeMB float64
}

func (File) Kind() Kind { return KindFile }

// MaxBytes returns the size limit in bytes, or 0 when there is none.
func (f File) MaxBytes() int64 {
	if f.MaxSizeMB <= 0 {
		return 0
	}

	return int64(f.MaxSizeMB * 1024 * 1024)
}

type Text struct {
	base
	Default     string
	Placeholder string
	Multiline   bool
}

func (Text) Kind() Kind { return KindText }

// Number is a numeric control. Unset bounds are nil.
type Number struct {
	base
	Default *float64
	Min     *float64
	Max     *float64
	Step    *float64
}

func (Number) Kind() Kind { return KindNumber }

type Select struct {
	base
	Choices []Choice
	Default string
}

func (Select) Kind() Kind { return KindSelect }

// Checkbox submits true when ticked. It is never required.
type Checkbox struct {
	base
	Default bool
}

func (Checkbox) Kind() Kind { return KindCheckbox }

// NewFile builds a file field. File fields are required unless Optional is given.
func NewFile(name string, opts ...Option) File {
	s := apply(name, true, opts)

	return File{
		base:      s.base(),
		Accept:    s.accept,
		MaxSizeMB: s.maxSizeMB,
	}
}

func NewText(name string, opts ...Option) Text {
	s := apply(name, false, opts)

	return Text{
		base:        s.base(),
		Default:     s.text,
		Placeholder: s.placeholder,
		Multiline:   s.multiline,
	}
}

func NewNumber(name string, opts ...Option) Number {
	s := apply(name, false, opts)

	return Number{
		base:    s.base(),
		Default: s.number,
		Min:     s.min,
		Max:     s.max,
		Step:    s.step,
	}
}

// NewSelect builds a select field. Choices are kept as given, in order; use
// Choices for bare values that double as their label.
func NewSelect(name string, choices []Choice, opts ...Option) Select {
	s := apply(name, false, opts)

	return Select{
		base:    s.base(),
		Choices: slices.Clone(choices),
		Default: s.text,
	}
}

func NewCheckbox(name string, opts ...Option) Checkbox {
	s := apply(name, false, opts)
	b := s.base()
	b.required = false

	return Checkbox{
		base:    b,
		Default: s.checked,
	}
}

// ConfigError reports a descriptor that cannot be served.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "field: " + e.Reason
	}

	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Validate checks a form's descriptors before it is served: names must be present
// and unique, number bounds ordered and size limits non-negative.
func Validate(fields []Descriptor) error {
	var errs []error

	seen := make(map[string]struct{}, len(fields))

	for i, d := range fields {
		if d == nil {
			errs = append(errs, &ConfigError{Reason: fmt.Sprintf("descriptor #%d is nil", i)})
			continue
		}

		if d.Name() == "" {
			errs = append(errs, &ConfigError{Reason: fmt.Sprintf("descriptor #%d has an empty name", i)})
			continue
		}

		if _, dup := seen[d.Name()]; dup {
			errs = append(errs, &ConfigError{Field: d.Name(), Reason: "duplicate name"})
		}

		seen[d.Name()] = struct{}{}

		switch v := d.(type) {
		case Number:
			if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
				errs = append(errs, &ConfigError{Field: v.Name(), Reason: "min is greater than max"})
			}

			if v.Step != nil && *v.Step <= 0 {
				errs = append(errs, &ConfigError{Field: v.Name(), Reason: "step must be positive"})
			}
		case File:
			if v.MaxSizeMB < 0 {
				errs = append(errs, &ConfigError{Field: v.Name(), Reason: "max size must not be negative"})
			}
		case Select:
			if v.Default != "" && !slices.ContainsFunc(v.Choices, func(c Choice) bool { return c.Value == v.Default }) {
				errs = append(errs, &ConfigError{Field: v.Name(), Reason: fmt.Sprintf("default %q is not one of the choices", v.Default)})
			}
		}
	}

	return errors.Join(errs...)
}

// MissingValueError is returned when a required field was submitted empty.
type MissingValueError struct {
	Field Descriptor
}

func (e *MissingValueError) Error() string {
	if e.Field.Kind() == KindFile {
		return "missing required file: " + e.Field.Label()
	}

	return "missing required field: " + e.Field.Label()
}
