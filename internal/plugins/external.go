package plugins

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultPluginTimeout bounds external_app and web_api plugins that do
	// not configure their own timeout.
	DefaultPluginTimeout = 30 * time.Second

	maxPluginOutput = 4000
)

// ExternalApp runs a configured command. Arguments of the form {key} are
// replaced with the matching parameter.
type ExternalApp struct {
	name        string
	description string
	command     string
	args        []string
	timeout     time.Duration
}

func NewExternalApp(name, description, command string, args []string, timeout time.Duration) *ExternalApp {
	if timeout <= 0 {
		timeout = DefaultPluginTimeout
	}
	return &ExternalApp{
		name:        name,
		description: description,
		command:     command,
		args:        args,
		timeout:     timeout,
	}
}

func (a *ExternalApp) Name() string        { return a.name }
func (a *ExternalApp) Description() string { return a.description }

func (a *ExternalApp) Execute(ctx context.Context, params map[string]any) Result {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	args := make([]string, len(a.args))
	for i, arg := range a.args {
		args[i] = substitute(arg, params)
	}

	cmd := exec.CommandContext(ctx, a.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := truncate(strings.TrimSpace(stdout.String()))
	if ctx.Err() == context.DeadlineExceeded {
		return Result{Plugin: a.name, Output: out, Error: fmt.Sprintf("%s timed out after %s", a.command, a.timeout)}
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || msg == "" {
			msg = err.Error()
		}
		return Result{Plugin: a.name, Output: out, Error: truncate(msg)}
	}
	return Result{Plugin: a.name, Success: true, Output: out}
}

func substitute(arg string, params map[string]any) string {
	for k, v := range params {
		arg = strings.ReplaceAll(arg, "{"+k+"}", fmt.Sprint(v))
	}
	return arg
}

func truncate(s string) string {
	if len(s) <= maxPluginOutput {
		return s
	}
	return s[:maxPluginOutput] + "\n... (output truncated)"
}
