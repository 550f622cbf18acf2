package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	noop := func(context.Context, Values) (any, error) { return nil, nil }

	tests := []struct {
		name     string
		cfg      Config
		expected error
	}{
		{name: "neither", cfg: Config{}, expected: ErrNoAction},
		{name: "both", cfg: Config{Command: []string{"echo"}, Handler: noop}, expected: ErrAmbiguousAction},
		{name: "empty command", cfg: Config{Command: []string{}}, expected: ErrEmptyCommand},
		{name: "empty program", cfg: Config{Command: []string{""}}, expected: ErrEmptyCommand},
		{name: "command", cfg: Config{Command: []string{"echo"}}},
		{name: "handler", cfg: Config{Handler: noop}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.cfg)
			if tt.expected != nil {
				assert.ErrorIs(t, err, tt.expected)
				assert.Nil(t, d)
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, d)
		})
	}
}

func TestNewRejectsNegativeTimeout(t *testing.T) {
	_, err := New(Config{Command: []string{"echo"}, Timeout: -time.Second})
	assert.Error(t, err)
}

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name     string
		template []string
		values   Values
		expected []string
	}{
		{
			name:     "single token",
			template: []string{"echo", "{greeting}"},
			values:   Values{"greeting": "hello"},
			expected: []string{"echo", "hello"},
		},
		{
			name:     "every occurrence",
			template: []string{"x{greeting}y{greeting}"},
			values:   Values{"greeting": "hello"},
			expected: []string{"xhelloyhello"},
		},
		{
			name:     "unknown tokens stay",
			template: []string{"{unknown}", "{greeting}"},
			values:   Values{"greeting": "hi"},
			expected: []string{"{unknown}", "hi"},
		},
		{
			name:     "booleans and paths",
			template: []string{"run", "--upper={upper}", "{data.csv}"},
			values:   Values{"upper": true, "data.csv": "uploads/data.csv"},
			expected: []string{"run", "--upper=true", "uploads/data.csv"},
		},
		{
			name:     "substituted text is not expanded again",
			template: []string{"{a}"},
			values:   Values{"a": "{b}", "b": "x"},
			expected: []string{"{b}"},
		},
		{
			name:     "no values",
			template: []string{"echo", "{a}"},
			values:   Values{},
			expected: []string{"echo", "{a}"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Substitute(tt.template, tt.values))
		})
	}
}

func TestCommandDispatch(t *testing.T) {
	tests := []struct {
		name     string
		command  []string
		timeout  time.Duration
		values   Values
		expected Result
	}{
		{
			name:    "success",
			command: []string{"sh", "-c", "printf 'output text'"},
			expected: Result{
				Status: StatusSuccess,
				Output: "output text",
				Data:   map[string]any{"returncode": 0, "stderr": ""},
			},
		},
		{
			name:    "success keeps stderr",
			command: []string{"sh", "-c", "printf warn >&2; printf {word}"},
			values:  Values{"word": "done"},
			expected: Result{
				Status: StatusSuccess,
				Output: "done",
				Data:   map[string]any{"returncode": 0, "stderr": "warn"},
			},
		},
		{
			name:    "failure reports stderr",
			command: []string{"sh", "-c", "printf 'something failed' >&2; exit 1"},
			expected: Result{
				Status: StatusError,
				Output: "something failed",
				Data:   map[string]any{"returncode": 1},
			},
		},
		{
			name:    "failure falls back to stdout",
			command: []string{"sh", "-c", "printf 'only stdout'; exit 3"},
			expected: Result{
				Status: StatusError,
				Output: "only stdout",
				Data:   map[string]any{"returncode": 3},
			},
		},
		{
			name:    "missing executable",
			command: []string{"formrunner-definitely-missing-binary", "{x}"},
			values:  Values{"x": "1"},
			expected: Result{
				Status: StatusError,
				Output: "Command not found: formrunner-definitely-missing-binary",
				Data:   map[string]any{},
			},
		},
		{
			name:    "timeout",
			command: []string{"sleep", "5"},
			timeout: 100 * time.Millisecond,
			expected: Result{
				Status: StatusError,
				Output: "Process timed out after 0.1 seconds",
				Data:   map[string]any{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(Config{Command: tt.command, Timeout: tt.timeout})
			require.NoError(t, err)

			got := d.Dispatch(context.Background(), tt.values)

			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Fatalf("unexpected result (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCommandIgnoresCallerCancellation(t *testing.T) {
	d, err := New(Config{Command: []string{"sh", "-c", "sleep 0.2; printf finished"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := d.Dispatch(ctx, nil)
	assert.Equal(t, StatusSuccess, got.Status)
	assert.Equal(t, "finished", got.Output)
}

func TestCommandWorkDirAndEnv(t *testing.T) {
	dir := t.TempDir()

	d, err := New(Config{
		Command: []string{"sh", "-c", "pwd; printf \"$GREETING\""},
		Dir:     dir,
		Env:     []string{"GREETING=hi"},
	})
	require.NoError(t, err)

	got := d.Dispatch(context.Background(), nil)
	require.Equal(t, StatusSuccess, got.Status, got.Output)
	assert.Contains(t, got.Output, "hi")
}

func TestCallableDispatch(t *testing.T) {
	tests := []struct {
		name     string
		handler  Handler
		expected Result
	}{
		{
			name: "envelope passes through",
			handler: func(context.Context, Values) (any, error) {
				return map[string]any{"status": "success", "output": "done", "data": map[string]any{}}, nil
			},
			expected: Result{Status: StatusSuccess, Output: "done", Data: map[string]any{}},
		},
		{
			name: "error envelope passes through",
			handler: func(context.Context, Values) (any, error) {
				return map[string]any{"status": "error", "output": "bad input"}, nil
			},
			expected: Result{Status: StatusError, Output: "bad input", Data: map[string]any{}},
		},
		{
			name: "values envelope passes through",
			handler: func(context.Context, Values) (any, error) {
				return Values{"status": "error", "output": "bad", "data": Values{"line": 2}}, nil
			},
			expected: Result{Status: StatusError, Output: "bad", Data: map[string]any{"line": 2}},
		},
		{
			name: "string map envelope passes through",
			handler: func(context.Context, Values) (any, error) {
				return map[string]string{"status": "error", "output": "bad"}, nil
			},
			expected: Result{Status: StatusError, Output: "bad", Data: map[string]any{}},
		},
		{
			name: "envelope with non map data",
			handler: func(context.Context, Values) (any, error) {
				return map[string]any{"status": "success", "output": "ok", "data": []int{1}}, nil
			},
			expected: Result{Status: StatusSuccess, Output: "ok", Data: map[string]any{}},
		},
		{
			name: "result passes through",
			handler: func(context.Context, Values) (any, error) {
				return Result{Status: StatusError, Output: "nope"}, nil
			},
			expected: Result{Status: StatusError, Output: "nope"},
		},
		{
			name: "plain string is wrapped",
			handler: func(context.Context, Values) (any, error) {
				return "hello world", nil
			},
			expected: Result{Status: StatusSuccess, Output: "hello world", Data: map[string]any{}},
		},
		{
			name: "nil gets the default message",
			handler: func(context.Context, Values) (any, error) {
				return nil, nil
			},
			expected: Result{Status: StatusSuccess, Output: DefaultOutput, Data: map[string]any{}},
		},
		{
			name: "map without status becomes data",
			handler: func(context.Context, Values) (any, error) {
				return map[string]any{"rows": 3}, nil
			},
			expected: Result{Status: StatusSuccess, Output: "map[rows:3]", Data: map[string]any{"rows": 3}},
		},
		{
			name: "values without status become data",
			handler: func(context.Context, Values) (any, error) {
				return Values{"count": 3}, nil
			},
			expected: Result{Status: StatusSuccess, Output: "map[count:3]", Data: map[string]any{"count": 3}},
		},
		{
			name: "string map without status becomes data",
			handler: func(context.Context, Values) (any, error) {
				return map[string]string{"name": "Ada"}, nil
			},
			expected: Result{Status: StatusSuccess, Output: "map[name:Ada]", Data: map[string]any{"name": "Ada"}},
		},
		{
			name: "numbers are stringified",
			handler: func(context.Context, Values) (any, error) {
				return 42, nil
			},
			expected: Result{Status: StatusSuccess, Output: "42", Data: map[string]any{}},
		},
		{
			name: "error is converted",
			handler: func(context.Context, Values) (any, error) {
				return nil, errors.New("boom")
			},
			expected: Result{Status: StatusError, Output: "boom", Data: map[string]any{}},
		},
		{
			name: "panic is recovered",
			handler: func(context.Context, Values) (any, error) {
				panic("boom")
			},
			expected: Result{Status: StatusError, Output: "boom", Data: map[string]any{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(Config{Handler: tt.handler})
			require.NoError(t, err)

			got := d.Dispatch(context.Background(), Values{"name": "x"})

			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Fatalf("unexpected result (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCallableReceivesValues(t *testing.T) {
	var seen Values

	d, err := New(Config{Handler: func(_ context.Context, v Values) (any, error) {
		seen = v
		return nil, nil
	}})
	require.NoError(t, err)

	d.Dispatch(context.Background(), Values{"name": "Ada", "upper": true})
	assert.Equal(t, Values{"name": "Ada", "upper": true}, seen)
}

func TestErrorHandlerTakesPrecedence(t *testing.T) {
	var captured error

	onError := func(err error) Result {
		captured = err
		return Failure("handled: "+err.Error(), map[string]any{"hook": true})
	}

	t.Run("returned error", func(t *testing.T) {
		d, err := New(Config{
			Handler:      func(context.Context, Values) (any, error) { return nil, errors.New("boom") },
			ErrorHandler: onError,
		})
		require.NoError(t, err)

		got := d.Dispatch(context.Background(), nil)
		assert.Equal(t, "handled: boom", got.Output)
		assert.Equal(t, true, got.Data["hook"])
		assert.EqualError(t, captured, "boom")
	})

	t.Run("panic", func(t *testing.T) {
		d, err := New(Config{
			Handler:      func(context.Context, Values) (any, error) { panic(errors.New("kaboom")) },
			ErrorHandler: onError,
		})
		require.NoError(t, err)

		got := d.Dispatch(context.Background(), nil)
		assert.Equal(t, "handled: kaboom", got.Output)

		var panicErr *PanicError
		assert.ErrorAs(t, captured, &panicErr)
	})
}

func TestValuesString(t *testing.T) {
	v := Values{"s": "text", "b": false, "f": 2.5, "n": nil, "i": 7}

	assert.Equal(t, "text", v.String("s"))
	assert.Equal(t, "false", v.String("b"))
	assert.Equal(t, "2.5", v.String("f"))
	assert.Equal(t, "", v.String("n"))
	assert.Equal(t, "7", v.String("i"))
	assert.Equal(t, "", v.String("missing"))
	assert.Equal(t, []string{"b", "f", "i", "n", "s"}, v.Names())
}
