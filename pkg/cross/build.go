package cross

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultPackage is the main package built for each target.
	DefaultPackage = "./cmd/now"

	// DefaultOutputDir is where artifacts are written.
	DefaultOutputDir = "dist"

	// DefaultBinaryName is the artifact name, ".exe" is added on Windows.
	DefaultBinaryName = "now"
)

// BuildOptions configures how to build the binaries
type BuildOptions struct {
	Package    string // Main package to build
	OutputDir  string // Artifacts go to OutputDir/<target>/
	BinaryName string
	GoBinary   string // go command, defaults to $GO or "go"
	LDFlags    string

	// DryRun logs the commands that would run without running them.
	DryRun bool

	Runner   Runner
	LookPath func(string) (string, error)
	Getenv   func(string) string
	Logger   hclog.Logger
}

// DefaultBuildOptions returns default build options
func DefaultBuildOptions() *BuildOptions {
	goBinary := os.Getenv("GO")
	if goBinary == "" {
		goBinary = "go"
	}

	return &BuildOptions{
		Package:    DefaultPackage,
		OutputDir:  DefaultOutputDir,
		BinaryName: DefaultBinaryName,
		GoBinary:   goBinary,
		LDFlags:    "-s -w",
		Runner:     ExecRunner{},
		LookPath:   exec.LookPath,
		Getenv:     os.Getenv,
		Logger:     hclog.NewNullLogger(),
	}
}

// withDefaults fills unset fields of opts from DefaultBuildOptions.
func withDefaults(opts *BuildOptions) *BuildOptions {
	d := DefaultBuildOptions()
	if opts == nil {
		return d
	}

	o := *opts
	if o.Package == "" {
		o.Package = d.Package
	}
	if o.OutputDir == "" {
		o.OutputDir = d.OutputDir
	}
	if o.BinaryName == "" {
		o.BinaryName = d.BinaryName
	}
	if o.GoBinary == "" {
		o.GoBinary = d.GoBinary
	}
	if o.Runner == nil {
		o.Runner = d.Runner
	}
	if o.LookPath == nil {
		o.LookPath = d.LookPath
	}
	if o.Getenv == nil {
		o.Getenv = d.Getenv
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}

	return &o
}

// Build compiles the package for every target and returns a manifest of the
// produced binaries. Targets are built in name order; the first failure stops
// the build. In dry-run mode the manifest lists planned paths without hashes.
func Build(ctx context.Context, targets []Target, options *BuildOptions) (*Manifest, error) {
	opts := withDefaults(options)

	sorted := append([]Target{}, targets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	manifest := NewManifest()

	for _, target := range sorted {
		artifact, err := buildTarget(ctx, target, opts)
		if err != nil {
			return nil, fmt.Errorf("target %s (%s): %w", target.Name, target.Platform(), err)
		}
		manifest.Artifacts[target.Name] = artifact
	}

	return manifest, nil
}

func buildTarget(ctx context.Context, target Target, opts *BuildOptions) (Artifact, error) {
	if target.Name == "" || target.GOOS == "" || target.GOARCH == "" {
		return Artifact{}, fmt.Errorf("target needs a name, goos and goarch")
	}

	log := opts.Logger.With("target", target.Name)

	env := []string{
		"GOOS=" + target.GOOS,
		"GOARCH=" + target.GOARCH,
	}

	var compiler string
	if target.DisableCGO {
		env = append(env, "CGO_ENABLED=0")
	} else {
		cc, err := ResolveCompiler(target, opts.LookPath, opts.Getenv)
		if err != nil {
			return Artifact{}, err
		}
		log.Debug("resolved C compiler", "cc", cc.String(), "source", cc.Source)

		if !opts.DryRun {
			if err := CheckCompilerVersion(ctx, opts.Runner, cc, target.MinCCVersion); err != nil {
				return Artifact{}, err
			}
		}

		compiler = cc.String()
		env = append(env, "CGO_ENABLED=1", "CC="+compiler)
	}

	binary := opts.BinaryName
	if target.GOOS == "windows" {
		binary += ".exe"
	}
	outputPath := filepath.Join(opts.OutputDir, target.Name, binary)

	args := []string{"build", "-trimpath"}
	if opts.LDFlags != "" {
		args = append(args, "-ldflags", opts.LDFlags)
	}
	args = append(args, "-o", outputPath, opts.Package)

	cmd := Command{Name: opts.GoBinary, Args: args, Env: env}

	artifact := Artifact{
		GOOS:     target.GOOS,
		GOARCH:   target.GOARCH,
		Path:     outputPath,
		Compiler: compiler,
		CGO:      !target.DisableCGO,
	}

	if opts.DryRun {
		log.Info("dry run", "command", cmd.String())
		return artifact, nil
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return Artifact{}, fmt.Errorf("failed to create output directory: %w", err)
	}

	log.Debug("building", "command", cmd.String())
	if _, err := opts.Runner.Run(ctx, cmd); err != nil {
		return Artifact{}, fmt.Errorf("build failed: %w", err)
	}

	hash, err := CalculateSHA256(outputPath)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to calculate hash: %w", err)
	}

	artifact.ResolvedHash = hash
	artifact.BuiltAt = time.Now()

	log.Info("built", "path", outputPath, "hash", hash)

	return artifact, nil
}
