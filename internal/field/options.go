package field

// Option sets an attribute while a descriptor is constructed. Options that do not
// apply to the kind being built are ignored.
type Option func(*settings)

type settings struct {
	name     string
	label    string
	help     string
	required bool

	accept    string
	maxSizeMB float64

	text        string
	placeholder string
	multiline   bool

	number *float64
	min    *float64
	max    *float64
	step   *float64

	checked bool
}

func apply(name string, required bool, opts []Option) settings {
	s := settings{name: name, required: required}

	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	if s.label == "" {
		s.label = s.name
	}

	return s
}

func (s settings) base() base {
	return base{
		name:     s.name,
		label:    s.label,
		help:     s.help,
		required: s.required,
	}
}

// WithLabel sets the display text. An empty label falls back to the field name.
func WithLabel(label string) Option {
	return func(s *settings) { s.label = label }
}

// WithHelp sets a short description rendered under the control. Basic inline
// HTML is allowed and sanitized when rendered.
func WithHelp(help string) Option {
	return func(s *settings) { s.help = help }
}

func Required() Option {
	return func(s *settings) { s.required = true }
}

func Optional() Option {
	return func(s *settings) { s.required = false }
}

// SetRequired is Required or Optional depending on v.
func SetRequired(v bool) Option {
	return func(s *settings) { s.required = v }
}

// Accept restricts file uploads, e.g. ".csv,.json" or "image/*".
func Accept(accept string) Option {
	return func(s *settings) { s.accept = accept }
}

func MaxSizeMB(mb float64) Option {
	return func(s *settings) { s.maxSizeMB = mb }
}

// Default sets the initial value of a text field or the preselected select value.
func Default(v string) Option {
	return func(s *settings) { s.text = v }
}

func Placeholder(p string) Option {
	return func(s *settings) { s.placeholder = p }
}

// Multiline renders a text field as a textarea.
func Multiline() Option {
	return func(s *settings) { s.multiline = true }
}

func DefaultNumber(v float64) Option {
	return func(s *settings) { s.number = &v }
}

func Min(v float64) Option {
	return func(s *settings) { s.min = &v }
}

func Max(v float64) Option {
	return func(s *settings) { s.max = &v }
}

func Step(v float64) Option {
	return func(s *settings) { s.step = &v }
}

// Checked ticks a checkbox by default.
func Checked(v bool) Option {
	return func(s *settings) { s.checked = v }
}
