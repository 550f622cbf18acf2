// Package config loads the formrunner binary's form definition from a TOML or
// YAML file and turns it into a webserver configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"

	"formrunner/internal/builtin"
	"formrunner/internal/field"
	"formrunner/internal/webserver"
)

const (
	DefaultAddr = ":8080"

	EnvAddr      = "FORMRUNNER_ADDR"
	EnvSecretKey = "FORMRUNNER_SECRET_KEY"
	EnvLogLevel  = "FORMRUNNER_LOG_LEVEL"
)

// File is the on-disk form definition.
type File struct {
	Title string `toml:"title" yaml:"title"`
	Addr  string `toml:"addr" yaml:"addr"`

	// Command is either a list of arguments or one shell-quoted string.
	Command any    `toml:"command" yaml:"command"`
	Handler string `toml:"handler" yaml:"handler"`
	// Timeout is in seconds. Zero means no limit.
	Timeout float64           `toml:"timeout" yaml:"timeout"`
	WorkDir string            `toml:"work_dir" yaml:"work_dir"`
	Env     map[string]string `toml:"env" yaml:"env"`

	UploadDir      string  `toml:"upload_dir" yaml:"upload_dir"`
	ExampleDir     string  `toml:"example_dir" yaml:"example_dir"`
	EnableExamples bool    `toml:"enable_examples" yaml:"enable_examples"`
	CustomCSS      string  `toml:"custom_css" yaml:"custom_css"`
	SuccessMessage string  `toml:"success_message" yaml:"success_message"`
	SecretKey      string  `toml:"secret_key" yaml:"secret_key"`
	MaxUploadMB    float64 `toml:"max_upload_mb" yaml:"max_upload_mb"`
	CSRF           bool    `toml:"csrf" yaml:"csrf"`
	LogLevel       string  `toml:"log_level" yaml:"log_level"`

	Fields []Field `toml:"fields" yaml:"fields"`
}

// Field is one descriptor as written in a config file.
type Field struct {
	Name     string `toml:"name" yaml:"name"`
	Type     string `toml:"type" yaml:"type"`
	Label    string `toml:"label" yaml:"label"`
	Help     string `toml:"help" yaml:"help"`
	Required *bool  `toml:"required" yaml:"required"`

	Accept    string  `toml:"accept" yaml:"accept"`
	MaxSizeMB float64 `toml:"max_size_mb" yaml:"max_size_mb"`

	Default     any    `toml:"default" yaml:"default"`
	Placeholder string `toml:"placeholder" yaml:"placeholder"`
	Multiline   bool   `toml:"multiline" yaml:"multiline"`

	Min  *float64 `toml:"min" yaml:"min"`
	Max  *float64 `toml:"max" yaml:"max"`
	Step *float64 `toml:"step" yaml:"step"`

	Choices []any `toml:"choices" yaml:"choices"`
}

// Load reads a form definition. The format follows the file extension.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var f File

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown keys in %s: %v", path, undecoded)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)

		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}

	normalizeDefaults(f.Fields)

	return &f, nil
}

// normalizeDefaults converts numeric defaults to float64 so both decoders agree.
func normalizeDefaults(fields []Field) {
	for i := range fields {
		switch v := fields[i].Default.(type) {
		case int:
			fields[i].Default = float64(v)
		case int64:
			fields[i].Default = float64(v)
		case float32:
			fields[i].Default = float64(v)
		}
	}
}

// LoadEnv loads KEY=VALUE pairs from the given dotenv files (".env" when none
// are given) without overriding variables already set. Missing files are skipped.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, p := range paths {
		err := godotenv.Load(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}

	return nil
}

// ApplyEnv overrides file values with the FORMRUNNER_* variables found by lookup.
func (f *File) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAddr); ok && v != "" {
		f.Addr = v
	}

	if v, ok := lookup(EnvSecretKey); ok && v != "" {
		f.SecretKey = v
	}

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		f.LogLevel = v
	}
}

// ListenAddr returns the address to serve on.
func (f *File) ListenAddr() string {
	if f.Addr == "" {
		return DefaultAddr
	}

	return f.Addr
}

// Level parses LogLevel, defaulting to info.
func (f *File) Level() (slog.Level, error) {
	var level slog.Level
	if f.LogLevel == "" {
		return slog.LevelInfo, nil
	}

	if err := level.UnmarshalText([]byte(f.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", f.LogLevel, err)
	}

	return level, nil
}

// CommandArgs returns the command template as arguments. A string is split
// with shell quoting rules.
func (f *File) CommandArgs() ([]string, error) {
	switch cmd := f.Command.(type) {
	case nil:
		return nil, nil
	case string:
		args, err := shellquote.Split(cmd)
		if err != nil {
			return nil, fmt.Errorf("invalid command %q: %w", cmd, err)
		}

		if len(args) == 0 {
			return []string{}, nil
		}

		return args, nil
	case []string:
		return cmd, nil
	case []any:
		args := make([]string, 0, len(cmd))

		for i, arg := range cmd {
			s, ok := arg.(string)
			if !ok {
				return nil, fmt.Errorf("command argument #%d must be a string, got %T", i, arg)
			}

			args = append(args, s)
		}

		return args, nil
	default:
		return nil, fmt.Errorf("command must be a string or a list of strings, got %T", cmd)
	}
}

// BuildFields converts the configured fields into descriptors.
func (f *File) BuildFields() ([]field.Descriptor, error) {
	fields := make([]field.Descriptor, 0, len(f.Fields))

	for i, fc := range f.Fields {
		d, err := fc.descriptor()
		if err != nil {
			return nil, fmt.Errorf("field #%d (%s): %w", i, fc.Name, err)
		}

		fields = append(fields, d)
	}

	return fields, nil
}

func (fc Field) descriptor() (field.Descriptor, error) {
	opts := []field.Option{field.WithLabel(fc.Label), field.WithHelp(fc.Help)}
	if fc.Required != nil {
		opts = append(opts, field.SetRequired(*fc.Required))
	}

	switch field.Kind(strings.ToLower(fc.Type)) {
	case field.KindFile:
		opts = append(opts, field.Accept(fc.Accept), field.MaxSizeMB(fc.MaxSizeMB))
		return field.NewFile(fc.Name, opts...), nil

	case field.KindText, "":
		if fc.Default != nil {
			opts = append(opts, field.Default(scalar(fc.Default)))
		}

		opts = append(opts, field.Placeholder(fc.Placeholder))
		if fc.Multiline {
			opts = append(opts, field.Multiline())
		}

		return field.NewText(fc.Name, opts...), nil

	case field.KindNumber:
		if fc.Default != nil {
			n, err := number(fc.Default)
			if err != nil {
				return nil, fmt.Errorf("invalid default: %w", err)
			}

			opts = append(opts, field.DefaultNumber(n))
		}

		if fc.Min != nil {
			opts = append(opts, field.Min(*fc.Min))
		}

		if fc.Max != nil {
			opts = append(opts, field.Max(*fc.Max))
		}

		if fc.Step != nil {
			opts = append(opts, field.Step(*fc.Step))
		}

		return field.NewNumber(fc.Name, opts...), nil

	case field.KindSelect:
		choices, err := field.ParseChoices(fc.Choices)
		if err != nil {
			return nil, err
		}

		if fc.Default != nil {
			opts = append(opts, field.Default(scalar(fc.Default)))
		}

		return field.NewSelect(fc.Name, choices, opts...), nil

	case field.KindCheckbox:
		if fc.Default != nil {
			checked, ok := fc.Default.(bool)
			if !ok {
				return nil, fmt.Errorf("checkbox default must be true or false, got %v", fc.Default)
			}

			opts = append(opts, field.Checked(checked))
		}

		return field.NewCheckbox(fc.Name, opts...), nil
	}

	return nil, fmt.Errorf("unknown field type %q", fc.Type)
}

func scalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func number(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("%q is not a number", val)
		}

		return n, nil
	default:
		return 0, fmt.Errorf("%v is not a number", v)
	}
}

// ServerConfig assembles the webserver configuration. Exactly one of command
// and handler must be configured; the handler names a built-in.
func (f *File) ServerConfig(logger *slog.Logger) (webserver.Config, error) {
	fields, err := f.BuildFields()
	if err != nil {
		return webserver.Config{}, err
	}

	command, err := f.CommandArgs()
	if err != nil {
		return webserver.Config{}, err
	}

	cfg := webserver.Config{
		Title:          f.Title,
		Fields:         fields,
		Command:        command,
		Timeout:        time.Duration(f.Timeout * float64(time.Second)),
		WorkDir:        f.WorkDir,
		Env:            envList(f.Env),
		UploadDir:      f.UploadDir,
		ExampleDir:     f.ExampleDir,
		EnableExamples: f.EnableExamples,
		CustomCSS:      f.CustomCSS,
		SuccessMessage: f.SuccessMessage,
		SecretKey:      f.SecretKey,
		MaxUploadBytes: int64(f.MaxUploadMB * 1024 * 1024),
		CSRF:           f.CSRF,
		Logger:         logger,
	}

	if f.Handler != "" {
		handler, ok := builtin.Lookup(f.Handler)
		if !ok {
			return webserver.Config{}, fmt.Errorf("unknown handler %q (available: %s)", f.Handler, strings.Join(builtin.Names(), ", "))
		}

		cfg.Handler = handler
	}

	return cfg, nil
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}

	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}

	sort.Strings(list)

	return list
}
