// Package dispatch runs the action behind a form: an external command built from
// a template, or an in-process handler. Either way the outcome is normalized into
// a Result and failures never escape as panics or errors.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var (
	ErrNoAction        = errors.New("dispatch: either a command or a handler must be provided")
	ErrAmbiguousAction = errors.New("dispatch: only one of a command or a handler may be provided")
	ErrEmptyCommand    = errors.New("dispatch: command template must name a program")
)

// Handler processes submitted values in-process. The returned value is normalized
// by Normalize; a returned error becomes an error Result.
type Handler func(ctx context.Context, values Values) (any, error)

// ErrorHandler turns a processing failure into a Result. When configured it is
// used instead of the default conversion.
type ErrorHandler func(err error) Result

// Dispatcher processes one submission.
type Dispatcher interface {
	Dispatch(ctx context.Context, values Values) Result
}

// Config selects and configures the action. Exactly one of Command and Handler
// must be set.
type Config struct {
	// Command is the program and its arguments; arguments may contain {field} tokens.
	Command []string
	// Timeout bounds command execution. Zero means no limit.
	Timeout time.Duration
	// Dir is the working directory of the command. Empty means the current one.
	Dir string
	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	Env []string

	Handler      Handler
	ErrorHandler ErrorHandler

	Logger *slog.Logger
}

// New validates cfg and returns the matching dispatcher.
func New(cfg Config) (Dispatcher, error) {
	hasCommand := cfg.Command != nil
	hasHandler := cfg.Handler != nil

	switch {
	case !hasCommand && !hasHandler:
		return nil, ErrNoAction
	case hasCommand && hasHandler:
		return nil, ErrAmbiguousAction
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if hasHandler {
		return &Callable{
			handler: cfg.Handler,
			onError: cfg.ErrorHandler,
			log:     logger.With("dispatcher", "callable"),
		}, nil
	}

	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, ErrEmptyCommand
	}

	if cfg.Timeout < 0 {
		return nil, errors.New("dispatch: timeout must not be negative")
	}

	return &Command{
		template: append([]string(nil), cfg.Command...),
		timeout:  cfg.Timeout,
		dir:      cfg.Dir,
		env:      append([]string(nil), cfg.Env...),
		onError:  cfg.ErrorHandler,
		log:      logger.With("dispatcher", "command"),
	}, nil
}

func convertError(onError ErrorHandler, err error) Result {
	if onError != nil {
		return onError(err)
	}

	return Failure(err.Error(), nil)
}
