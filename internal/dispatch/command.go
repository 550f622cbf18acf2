package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// waitDelay bounds how long Wait blocks on inherited pipes after the child was killed.
const waitDelay = 2 * time.Second

// Command runs an external program built from a template.
type Command struct {
	template []string
	timeout  time.Duration
	dir      string
	env      []string
	onError  ErrorHandler
	log      *slog.Logger
}

// Substitute replaces each {name} token in every template argument with the string
// form of the matching value. Tokens without a value are kept verbatim. All values
// are substituted in one pass, so substituted text is never expanded again.
func Substitute(template []string, values Values) []string {
	pairs := make([]string, 0, len(values)*2)
	for _, name := range values.Names() {
		pairs = append(pairs, "{"+name+"}", values.String(name))
	}

	replacer := strings.NewReplacer(pairs...)

	out := make([]string, len(template))
	for i, arg := range template {
		out[i] = replacer.Replace(arg)
	}

	return out
}

// Args returns the argument list the command would run with for values.
func (c *Command) Args(values Values) []string {
	return Substitute(c.template, values)
}

// Dispatch runs the command. The child is detached from ctx cancellation so a
// disconnecting client does not kill it; only the configured timeout does.
func (c *Command) Dispatch(ctx context.Context, values Values) Result {
	args := c.Args(values)

	runCtx := context.WithoutCancel(ctx)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, c.timeout)

		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = c.dir
	cmd.WaitDelay = waitDelay

	if len(c.env) > 0 {
		cmd.Env = append(os.Environ(), c.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.log.Debug("Running command", "args", args)

	started := time.Now()
	err := cmd.Run()
	elapsed := time.Since(started)

	var exitErr *exec.ExitError

	switch {
	case err == nil:
		c.log.Info("Command completed", "program", args[0], "duration", elapsed)

		return Success(stdout.String(), map[string]any{
			"returncode": 0,
			"stderr":     stderr.String(),
		})

	case errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist):
		c.log.Error("Command executable not found", "program", args[0], "error", err)

		return Failure("Command not found: "+args[0], nil)

	case c.timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		c.log.Error("Command timed out", "program", args[0], "timeout", c.timeout)

		return Failure(fmt.Sprintf("Process timed out after %s seconds", formatSeconds(c.timeout)), nil)

	case errors.As(err, &exitErr):
		code := exitErr.ExitCode()
		c.log.Error("Command failed", "program", args[0], "returncode", code, "stderr", stderr.String())

		output := stderr.String()
		if output == "" {
			output = stdout.String()
		}

		return Failure(output, map[string]any{"returncode": code})

	default:
		c.log.Error("Command could not be run", "program", args[0], "error", err)

		return convertError(c.onError, fmt.Errorf("run %s: %w", args[0], err))
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
