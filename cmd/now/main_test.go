package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kalo-build/kalo-now/pkg/cross"
	"github.com/kalo-build/kalo-now/pkg/timestamp"
)

var currentTimeLine = regexp.MustCompile(`^current time: \d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\n$`)

// execute runs the root command with args and a config path inside a temp
// dir, isolated from NOW_* variables in the environment.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	for _, key := range []string{"NOW_CONFIG", "NOW_CAPACITY", "NOW_MAX_CAPACITY", "NOW_LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func missingConfig(t *testing.T) string {
	return filepath.Join(t.TempDir(), "now.yaml")
}

func TestRoot_PrintsCurrentTime(t *testing.T) {
	stdout, _, err := execute(t, "--config", missingConfig(t))

	require.NoError(t, err)
	require.Regexp(t, currentTimeLine, stdout)
}

func TestRoot_CapacityTooSmall(t *testing.T) {
	stdout, _, err := execute(t, "--config", missingConfig(t), "--capacity", "4")

	require.ErrorIs(t, err, timestamp.ErrNativeCallFailed)
	require.Empty(t, stdout)
}

func TestRoot_GrowsUpToMaxCapacity(t *testing.T) {
	stdout, stderr, err := execute(t, "--config", missingConfig(t), "--capacity", "4", "--max-capacity", "64", "--debug")

	require.NoError(t, err)
	require.Regexp(t, currentTimeLine, stdout)
	require.Contains(t, stderr, "growing buffer")
}

func TestRoot_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "now.yaml")
	require.NoError(t, os.WriteFile(path, []byte("buffer:\n  capacity: 8\n"), 0644))

	_, _, err := execute(t, "--config", path)
	require.ErrorIs(t, err, timestamp.ErrNativeCallFailed)

	stdout, _, err := execute(t, "--config", path, "--capacity", "32")
	require.NoError(t, err)
	require.Regexp(t, currentTimeLine, stdout)
}

func TestRoot_InvalidConfig(t *testing.T) {
	_, _, err := execute(t, "--config", missingConfig(t), "--capacity", "128", "--max-capacity", "64")

	require.Error(t, err)
	require.Contains(t, err.Error(), "maxCapacity")
}

func TestRoot_RejectsArgs(t *testing.T) {
	_, _, err := execute(t, "--config", missingConfig(t), "bogus")

	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "--config", missingConfig(t), "version")

	require.NoError(t, err)
	require.Contains(t, stdout, "now dev (cgo: ")
}

func TestInit_WritesLoadableConfig(t *testing.T) {
	path := missingConfig(t)

	_, _, err := execute(t, "--config", path, "init")
	require.NoError(t, err)

	config, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, timestamp.DefaultCapacity, config.Buffer.Capacity)
	require.Len(t, config.Cross.Targets, len(cross.DefaultTargets()))
	require.Equal(t, "arm64", config.Cross.Targets["linux-arm64"].GOARCH)

	_, _, err = execute(t, "--config", path, "init")
	require.Error(t, err)

	_, _, err = execute(t, "--config", path, "init", "--force")
	require.NoError(t, err)
}

func TestCross_DryRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "now.yaml")
	config := `
cross:
  output: ` + filepath.Join(dir, "dist") + `
  targets:
    purego:
      goos: linux
      goarch: amd64
      disableCgo: true
`
	require.NoError(t, os.WriteFile(path, []byte(config), 0644))

	stdout, _, err := execute(t, "--config", path, "cross", "--dry-run")

	require.NoError(t, err)
	require.Contains(t, stdout, "purego: "+filepath.Join(dir, "dist", "purego", "now")+" (dry run)")
	require.NoDirExists(t, filepath.Join(dir, "dist"))
}

func TestCross_UnknownTarget(t *testing.T) {
	_, _, err := execute(t, "--config", missingConfig(t), "cross", "--dry-run", "nope")

	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown cross target: nope")
}

func TestCrossVerify(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "now")
	require.NoError(t, os.WriteFile(binary, []byte("binary"), 0755))

	hash, err := cross.CalculateSHA256(binary)
	require.NoError(t, err)

	manifest := cross.NewManifest()
	manifest.Artifacts["host"] = cross.Artifact{Path: binary, ResolvedHash: hash}
	manifestPath := filepath.Join(dir, cross.DefaultManifestName)
	require.NoError(t, cross.SaveManifest(manifest, manifestPath))

	stdout, _, err := execute(t, "--config", missingConfig(t), "cross", "verify", manifestPath)
	require.NoError(t, err)
	require.Contains(t, stdout, "1 artifacts verified")

	require.NoError(t, os.WriteFile(binary, []byte("changed"), 0755))
	_, _, err = execute(t, "--config", missingConfig(t), "cross", "verify", manifestPath)
	require.ErrorIs(t, err, cross.ErrHashMismatch)
}

func TestCrossVerify_FromOtherDirectory(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		require.NoError(t, os.Chdir(wd))
	})

	require.NoError(t, os.MkdirAll(filepath.Join("dist", "purego"), 0755))
	require.NoError(t, os.Mkdir("sub", 0755))
	binary := filepath.Join("dist", "purego", "now")
	require.NoError(t, os.WriteFile(binary, []byte("binary"), 0755))

	hash, err := cross.CalculateSHA256(binary)
	require.NoError(t, err)

	manifest := cross.NewManifest()
	manifest.Artifacts["purego"] = cross.Artifact{Path: binary, ResolvedHash: hash}
	require.NoError(t, cross.SaveManifest(manifest, filepath.Join("dist", cross.DefaultManifestName)))

	require.NoError(t, os.Chdir("sub"))
	stdout, _, err := execute(t, "--config", missingConfig(t), "cross", "verify", filepath.Join("..", "dist", cross.DefaultManifestName))
	require.NoError(t, err)
	require.Contains(t, stdout, "1 artifacts verified")
}

func TestPluginRun_MissingFile(t *testing.T) {
	_, _, err := execute(t, "--config", missingConfig(t), "plugin", "run", filepath.Join(t.TempDir(), "missing.wasm"))

	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read wasm file")
}

func TestPluginRun_InvalidModule(t *testing.T) {
	dir := t.TempDir()
	wasmPath := filepath.Join(dir, "bad.wasm")
	require.NoError(t, os.WriteFile(wasmPath, []byte("not wasm"), 0644))

	configPath := filepath.Join(dir, "now.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("plugins:\n  clock:\n    path: "+wasmPath+"\n"), 0644))

	_, _, err := execute(t, "--config", configPath, "plugin", "run", "clock")

	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to compile wasm module")
}
