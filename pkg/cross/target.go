// Package cross builds the now binary for other platforms. Because the binary
// links C code through cgo, every target needs a C compiler that emits code
// for that platform; this package finds one, checks its version and drives
// go build with the matching environment.
package cross

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

var (
	// ErrNoCompiler is returned when no C compiler can be found for a target.
	ErrNoCompiler = errors.New("no C compiler found")

	// ErrCompilerTooOld is returned when a compiler fails its version constraint.
	ErrCompilerTooOld = errors.New("C compiler version does not satisfy constraint")
)

// Target is a platform to build for.
type Target struct {
	Name   string `yaml:"-"`
	GOOS   string `yaml:"goos"`
	GOARCH string `yaml:"goarch"`

	// CC overrides compiler resolution, e.g. "aarch64-linux-gnu-gcc" or
	// "zig cc -target aarch64-linux-gnu".
	CC string `yaml:"cc,omitempty"`

	// MinCCVersion is a semver constraint checked against `cc -dumpversion`.
	MinCCVersion string `yaml:"minCCVersion,omitempty"`

	// DisableCGO builds with CGO_ENABLED=0, linking the pure-Go time source.
	DisableCGO bool `yaml:"disableCgo,omitempty"`
}

// Platform returns "goos/goarch".
func (t Target) Platform() string {
	return t.GOOS + "/" + t.GOARCH
}

// IsHost reports whether t is the platform this process runs on.
func (t Target) IsHost() bool {
	return t.GOOS == runtime.GOOS && t.GOARCH == runtime.GOARCH
}

// DefaultTargets are built when the configuration names none.
func DefaultTargets() []Target {
	return []Target{
		{Name: "linux-amd64", GOOS: "linux", GOARCH: "amd64"},
		{Name: "linux-arm64", GOOS: "linux", GOARCH: "arm64"},
		{Name: "windows-amd64", GOOS: "windows", GOARCH: "amd64"},
	}
}

// gnuTriples maps platforms to the prefixes used by packaged GNU cross
// compilers (aarch64-linux-gnu-gcc and friends).
var gnuTriples = map[string]string{
	"linux/amd64":   "x86_64-linux-gnu",
	"linux/386":     "i686-linux-gnu",
	"linux/arm64":   "aarch64-linux-gnu",
	"linux/arm":     "arm-linux-gnueabihf",
	"linux/riscv64": "riscv64-linux-gnu",
	"linux/ppc64le": "powerpc64le-linux-gnu",
	"linux/s390x":   "s390x-linux-gnu",
	"windows/amd64": "x86_64-w64-mingw32",
	"windows/386":   "i686-w64-mingw32",
}

// zigTargets maps platforms to `zig cc -target` values.
var zigTargets = map[string]string{
	"linux/amd64":   "x86_64-linux-gnu",
	"linux/386":     "x86-linux-gnu",
	"linux/arm64":   "aarch64-linux-gnu",
	"linux/arm":     "arm-linux-gnueabihf",
	"linux/riscv64": "riscv64-linux-gnu",
	"windows/amd64": "x86_64-windows-gnu",
	"windows/arm64": "aarch64-windows-gnu",
}

// Compiler is a resolved C compiler command.
type Compiler struct {
	Path string
	Args []string

	// Source records how the compiler was found: config, env, triple, zig
	// or host.
	Source string
}

// String returns the compiler as a CC value.
func (c Compiler) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// ResolveCompiler picks a C compiler for t. The order is: the target's CC,
// CC_<GOOS>_<GOARCH> from the environment, CC (host builds only), a GNU
// cross compiler on PATH, zig cc, and finally cc/gcc/clang for host builds.
func ResolveCompiler(t Target, lookPath func(string) (string, error), getenv func(string) string) (Compiler, error) {
	if cc := strings.TrimSpace(t.CC); cc != "" {
		return parseCompiler(cc, "config"), nil
	}

	envKey := fmt.Sprintf("CC_%s_%s", strings.ToUpper(t.GOOS), strings.ToUpper(t.GOARCH))
	if cc := strings.TrimSpace(getenv(envKey)); cc != "" {
		return parseCompiler(cc, "env"), nil
	}

	if t.IsHost() {
		if cc := strings.TrimSpace(getenv("CC")); cc != "" {
			return parseCompiler(cc, "env"), nil
		}
	}

	if triple, ok := gnuTriples[t.Platform()]; ok {
		if path, err := lookPath(triple + "-gcc"); err == nil {
			return Compiler{Path: path, Source: "triple"}, nil
		}
	}

	if zigTarget, ok := zigTargets[t.Platform()]; ok {
		if path, err := lookPath("zig"); err == nil {
			return Compiler{Path: path, Args: []string{"cc", "-target", zigTarget}, Source: "zig"}, nil
		}
	}

	if t.IsHost() {
		for _, name := range []string{"cc", "gcc", "clang"} {
			if path, err := lookPath(name); err == nil {
				return Compiler{Path: path, Source: "host"}, nil
			}
		}
	}

	return Compiler{}, fmt.Errorf("%w for %s (set cc in the target or %s)", ErrNoCompiler, t.Platform(), envKey)
}

func parseCompiler(cc, source string) Compiler {
	fields := strings.Fields(cc)
	return Compiler{Path: fields[0], Args: fields[1:], Source: source}
}
