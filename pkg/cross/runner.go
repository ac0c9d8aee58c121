package cross

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Command is an external command to run.
type Command struct {
	Name string
	Args []string

	// Env is appended to the current process environment.
	Env []string
}

// String renders the command roughly as a shell would show it.
func (c Command) String() string {
	parts := append([]string{}, c.Env...)
	parts = append(parts, c.Name)
	parts = append(parts, c.Args...)
	return strings.Join(parts, " ")
}

// Runner runs commands and returns their combined output.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s failed: %w\n%s", c.Name, err, strings.TrimSpace(string(out)))
	}

	return out, nil
}
