package run

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/goferpkg/gofer/internal/domain"
	"github.com/goferpkg/gofer/internal/utils"
)

// ExecRunner executes commands through os/exec.
type ExecRunner struct {
	logger *utils.Logger
}

// NewRunner creates an ExecRunner. A nil logger disables command tracing.
func NewRunner(logger *utils.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run executes cmd, capturing stdout and stderr separately. A non-zero exit
// returns the result plus a CommandError carrying the trimmed stderr; a
// context deadline expiring mid-run returns a TimeoutError instead.
func (r *ExecRunner) Run(ctx context.Context, cmd domain.Command) (*domain.RunResult, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if r.logger != nil {
		r.logger.Debug().
			Str("command", cmd.Name).
			Strs("args", cmd.Args).
			Str("dir", cmd.Dir).
			Msg("Running command")
	}

	err := c.Run()
	result := &domain.RunResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err == nil {
		return result, nil
	}

	// The context expiring kills the process, which then reports an exit
	// error; the deadline is the real cause.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, domain.NewTimeoutError(commandLine(cmd), "", ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, domain.NewCommandError(commandLine(cmd), strings.TrimSpace(stderr.String()), err)
	}

	return result, domain.NewCommandError(commandLine(cmd), "", err)
}

// LookPath reports the absolute path of an executable. The error wraps a
// ToolMissingError so callers can distinguish missing tools from failed runs.
func (r *ExecRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", domain.NewToolMissingError(name, err)
	}
	return path, nil
}

func commandLine(cmd domain.Command) string {
	if len(cmd.Args) == 0 {
		return cmd.Name
	}
	return cmd.Name + " " + strings.Join(cmd.Args, " ")
}
