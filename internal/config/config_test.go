package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formrunner/internal/dispatch"
	"formrunner/internal/field"
)

const tomlConfig = `
title = "CSV converter"
command = "python3 convert.py --input {data} --format '{format}'"
timeout = 30
upload_dir = "uploads"
max_upload_mb = 8

[env]
LANG = "C"
MODE = "fast"

[[fields]]
name = "data"
type = "file"
label = "Input CSV"
accept = ".csv"
max_size_mb = 2

[[fields]]
name = "rows"
type = "number"
default = 10
min = 1
max = 100

[[fields]]
name = "format"
type = "select"
choices = ["json", ["yaml", "YAML"], { value = "xml", label = "XML" }]
default = "json"
required = true

[[fields]]
name = "header"
type = "checkbox"
default = true
`

const yamlConfig = `
title: Greeter
handler: echo
csrf: true
fields:
  - name: name
    label: Your name
    required: true
    placeholder: Ada
  - name: notes
    type: text
    multiline: true
    help: "<b>optional</b>"
  - name: rows
    type: number
    default: 3
    step: 0.5
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func ptr(v float64) *float64 { return &v }

func TestLoad_TOML(t *testing.T) {
	f, err := Load(writeConfig(t, "form.toml", tomlConfig))
	require.NoError(t, err)

	assert.Equal(t, "CSV converter", f.Title)
	assert.Equal(t, DefaultAddr, f.ListenAddr())

	args, err := f.CommandArgs()
	require.NoError(t, err)
	assert.Equal(t, []string{"python3", "convert.py", "--input", "{data}", "--format", "{format}"}, args)

	fields, err := f.BuildFields()
	require.NoError(t, err)
	require.Len(t, fields, 4)

	file, ok := fields[0].(field.File)
	require.True(t, ok)
	assert.Equal(t, "Input CSV", file.Label())
	assert.True(t, file.Required())
	assert.Equal(t, ".csv", file.Accept)
	assert.Equal(t, int64(2*1024*1024), file.MaxBytes())

	rows, ok := fields[1].(field.Number)
	require.True(t, ok)
	assert.Equal(t, ptr(10), rows.Default)
	assert.Equal(t, ptr(1), rows.Min)
	assert.Equal(t, ptr(100), rows.Max)
	assert.Nil(t, rows.Step)

	format, ok := fields[2].(field.Select)
	require.True(t, ok)
	assert.True(t, format.Required())
	assert.Equal(t, "json", format.Default)

	if diff := cmp.Diff([]field.Choice{{Value: "json", Label: "json"}, {Value: "yaml", Label: "YAML"}, {Value: "xml", Label: "XML"}}, format.Choices); diff != "" {
		t.Errorf("choices mismatch (-want +got):\n%s", diff)
	}

	header, ok := fields[3].(field.Checkbox)
	require.True(t, ok)
	assert.True(t, header.Default)

	cfg, err := f.ServerConfig(slog.Default())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"LANG=C", "MODE=fast"}, cfg.Env)
	assert.Equal(t, int64(8*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, "uploads", cfg.UploadDir)
	assert.Nil(t, cfg.Handler)
}

func TestLoad_YAML(t *testing.T) {
	f, err := Load(writeConfig(t, "form.yml", yamlConfig))
	require.NoError(t, err)

	fields, err := f.BuildFields()
	require.NoError(t, err)
	require.Len(t, fields, 3)

	name, ok := fields[0].(field.Text)
	require.True(t, ok)
	assert.Equal(t, "Your name", name.Label())
	assert.True(t, name.Required())
	assert.Equal(t, "Ada", name.Placeholder)

	notes, ok := fields[1].(field.Text)
	require.True(t, ok)
	assert.True(t, notes.Multiline)
	assert.False(t, notes.Required())
	assert.Equal(t, "<b>optional</b>", notes.Help())

	rows, ok := fields[2].(field.Number)
	require.True(t, ok)
	assert.Equal(t, ptr(3), rows.Default)
	assert.Equal(t, ptr(0.5), rows.Step)

	cfg, err := f.ServerConfig(slog.Default())
	require.NoError(t, err)
	require.NotNil(t, cfg.Handler)
	assert.Nil(t, cfg.Command)
	assert.True(t, cfg.CSRF)

	out, err := cfg.Handler(context.Background(), dispatch.Values{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ada"}, out)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  string
		errMatch string
	}{
		{"unknown extension", "form.ini", "title = x", "unsupported config format"},
		{"broken toml", "form.toml", "title = ", "failed to parse"},
		{"unknown toml key", "form.toml", "titel = \"x\"", "unknown keys"},
		{"unknown yaml key", "form.yaml", "titel: x", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.file, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMatch)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		name     string
		command  any
		expected []string
		errMatch string
	}{
		{"unset", nil, nil, ""},
		{"quoted string", `sh -c "echo {name}"`, []string{"sh", "-c", "echo {name}"}, ""},
		{"empty string", "", []string{}, ""},
		{"list", []any{"echo", "{name}"}, []string{"echo", "{name}"}, ""},
		{"string slice", []string{"echo"}, []string{"echo"}, ""},
		{"unterminated quote", `echo "oops`, nil, "invalid command"},
		{"non string argument", []any{"sleep", int64(1)}, nil, "must be a string"},
		{"wrong type", int64(3), nil, "must be a string or a list"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &File{Command: tt.command}

			args, err := f.CommandArgs()
			if tt.errMatch != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMatch)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, args)
		})
	}
}

func TestBuildFields_Errors(t *testing.T) {
	tests := []struct {
		name     string
		field    Field
		errMatch string
	}{
		{"unknown type", Field{Name: "x", Type: "color"}, `unknown field type "color"`},
		{"bad number default", Field{Name: "x", Type: "number", Default: "ten"}, "invalid default"},
		{"bad checkbox default", Field{Name: "x", Type: "checkbox", Default: "yes"}, "checkbox default"},
		{"bad choice", Field{Name: "x", Type: "select", Choices: []any{[]any{"a", "b", "c"}}}, "expected [value, label]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &File{Fields: []Field{tt.field}}

			_, err := f.BuildFields()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMatch)
		})
	}
}

func TestServerConfig_UnknownHandler(t *testing.T) {
	f := &File{Handler: "nope"}

	_, err := f.ServerConfig(slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "echo, greeting")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvAddr:      "127.0.0.1:9000",
		EnvSecretKey: "s3cret",
		EnvLogLevel:  "debug",
	}

	f := &File{Addr: ":1", SecretKey: "file", LogLevel: "error"}
	f.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, "127.0.0.1:9000", f.ListenAddr())
	assert.Equal(t, "s3cret", f.SecretKey)

	level, err := f.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	untouched := &File{Addr: ":1"}
	untouched.ApplyEnv(func(string) (string, bool) { return "", false })
	assert.Equal(t, ":1", untouched.ListenAddr())
}

func TestLevel(t *testing.T) {
	level, err := (&File{}).Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	level, err = (&File{LogLevel: "WARN"}).Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = (&File{LogLevel: "loud"}).Level()
	assert.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("FORMRUNNER_TEST_FROM_DOTENV=loaded\nFORMRUNNER_TEST_PRESET=file\n"), 0o644))

	t.Setenv("FORMRUNNER_TEST_PRESET", "env")

	require.NoError(t, LoadEnv(path, filepath.Join(dir, "missing.env")))
	t.Cleanup(func() { os.Unsetenv("FORMRUNNER_TEST_FROM_DOTENV") })

	assert.Equal(t, "loaded", os.Getenv("FORMRUNNER_TEST_FROM_DOTENV"))
	assert.Equal(t, "env", os.Getenv("FORMRUNNER_TEST_PRESET"))
}

func TestSampleConfigs(t *testing.T) {
	for _, name := range []string{"greeting.toml", "greeting-handler.yaml"} {
		t.Run(name, func(t *testing.T) {
			f, err := Load(filepath.Join("..", "..", "configs", name))
			require.NoError(t, err)

			cfg, err := f.ServerConfig(slog.Default())
			require.NoError(t, err)
			require.NoError(t, field.Validate(cfg.Fields))

			assert.NotEmpty(t, cfg.Title)
			assert.True(t, (cfg.Command != nil) != (cfg.Handler != nil), "exactly one action")
		})
	}
}
