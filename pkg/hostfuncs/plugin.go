package hostfuncs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// PluginOptions configures a plugin run.
type PluginOptions struct {
	// Args passed to the guest; the program name is prepended.
	Args []string

	// Env is exposed to the guest as WASI environment variables.
	Env map[string]string

	Stdout io.Writer
	Stderr io.Writer
}

// RunPlugin compiles and runs a WASI command module with the kalo host module
// available for import. It returns an error if the guest exits non-zero.
func (h *NowHost) RunPlugin(ctx context.Context, wasmBytes []byte, options *PluginOptions) error {
	opts := PluginOptions{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	if options != nil {
		opts.Args = options.Args
		opts.Env = options.Env
		if options.Stdout != nil {
			opts.Stdout = options.Stdout
		}
		if options.Stderr != nil {
			opts.Stderr = options.Stderr
		}
	}

	runtime := wazero.NewRuntime(ctx)
	defer runtime.Close(ctx)

	wasi_snapshot_preview1.MustInstantiate(ctx, runtime)

	if err := h.Register(ctx, runtime); err != nil {
		return fmt.Errorf("failed to register host module: %w", err)
	}

	compiledModule, err := runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return fmt.Errorf("failed to compile wasm module: %w", err)
	}

	moduleConfig := wazero.NewModuleConfig().
		WithArgs(append([]string{"plugin"}, opts.Args...)...).
		WithStdout(opts.Stdout).
		WithStderr(opts.Stderr).
		WithSysWalltime().
		WithSysNanotime()

	for k, v := range opts.Env {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}

	// Instantiation runs _start.
	instance, err := runtime.InstantiateModule(ctx, compiledModule, moduleConfig)
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() == 0 {
				return nil
			}
			return fmt.Errorf("plugin exited with code: %d", exitErr.ExitCode())
		}
		return fmt.Errorf("error executing wasm module: %w", err)
	}
	defer instance.Close(ctx)

	h.logger.Debug("plugin finished", "module", instance.Name())

	return nil
}
