package cross

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CompilerVersion runs `<cc> -dumpversion` and parses the result. GCC may
// print a bare major version ("12"), which semver accepts as 12.0.0.
func CompilerVersion(ctx context.Context, runner Runner, c Compiler) (*semver.Version, error) {
	args := append(append([]string{}, c.Args...), "-dumpversion")

	out, err := runner.Run(ctx, Command{Name: c.Path, Args: args})
	if err != nil {
		return nil, fmt.Errorf("failed to query compiler version: %w", err)
	}

	raw := strings.TrimPrefix(strings.TrimSpace(string(out)), "v")
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid compiler version %q: %w", raw, err)
	}

	return v, nil
}

// CheckCompilerVersion verifies c against constraint. An empty constraint
// always passes without running the compiler.
func CheckCompilerVersion(ctx context.Context, runner Runner, c Compiler, constraint string) error {
	if constraint == "" {
		return nil
	}

	constraints, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}

	v, err := CompilerVersion(ctx, runner, c)
	if err != nil {
		return err
	}

	if !constraints.Check(v) {
		return fmt.Errorf("%w: %s is %s, want %s", ErrCompilerTooOld, c, v, constraint)
	}

	return nil
}
