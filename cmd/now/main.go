package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kalo-build/kalo-now/pkg/cross"
	"github.com/kalo-build/kalo-now/pkg/hostfuncs"
	"github.com/kalo-build/kalo-now/pkg/native"
	"github.com/kalo-build/kalo-now/pkg/timestamp"
)

// version is set with -ldflags "-X main.version=..."
var version = "dev"

type cli struct {
	configPath  string
	debug       bool
	capacity    int
	maxCapacity int

	config *NowConfig
	logger hclog.Logger
}

func main() {
	// Load .env file if present
	godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "now",
		Short: "Print the current local time from a C function linked into the binary",
		Long: `now calls a small C function, compiled into the binary by cgo, that formats
the current local time into a fixed-size buffer, and prints the result.

Without a configuration file it uses a 1024 byte buffer and fails if the
formatted time does not fit.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			var ts string
			var err error
			if c.config.Buffer == defaultConfig().Buffer {
				ts, err = timestamp.Now()
			} else {
				ts, err = timestamp.NewReader(timestamp.NativeSource, &timestamp.ReaderOptions{
					Capacity:    c.config.Buffer.Capacity,
					MaxCapacity: c.config.Buffer.MaxCapacity,
					Logger:      c.logger,
				}).Read()
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "current time: %s\n", ts)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", defaultConfigPath, "Path to now.yaml configuration file")
	flags.BoolVarP(&c.debug, "debug", "d", false, "Enable debug logging")
	flags.IntVar(&c.capacity, "capacity", timestamp.DefaultCapacity, "Buffer size handed to the C function")
	flags.IntVar(&c.maxCapacity, "max-capacity", 0, "Grow the buffer up to this size when the time does not fit (0 disables)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(c),
		newCrossCmd(c),
		newPluginCmd(c),
	)

	return rootCmd
}

// setup loads configuration and builds the logger. Flags beat environment
// variables, which beat the config file.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("config") {
		if path := os.Getenv("NOW_CONFIG"); path != "" {
			c.configPath = path
		}
	}

	config, err := loadConfigOrDefault(c.configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if err := config.applyEnv(os.Getenv); err != nil {
		return err
	}

	if cmd.Flags().Changed("capacity") {
		config.Buffer.Capacity = c.capacity
	}
	if cmd.Flags().Changed("max-capacity") {
		config.Buffer.MaxCapacity = c.maxCapacity
	}

	if err := config.validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", c.configPath, err)
	}

	c.config = config
	c.logger = newLogger(cmd, c.debug)
	c.logger.Debug("configuration loaded", "path", c.configPath,
		"capacity", config.Buffer.Capacity, "maxCapacity", config.Buffer.MaxCapacity)

	return nil
}

func newLogger(cmd *cobra.Command, debug bool) hclog.Logger {
	level := hclog.Warn
	if debug {
		level = hclog.Debug
	} else if l := hclog.LevelFromString(os.Getenv("NOW_LOG_LEVEL")); l != hclog.NoLevel {
		level = l
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   "now",
		Level:  level,
		Output: cmd.ErrOrStderr(),
	})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "now %s (cgo: %t)\n", version, native.Enabled)
		},
	}
}

func newInitCmd(c *cli) *cobra.Command {
	var force bool

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a now.yaml with the default buffer and cross targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(c.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", c.configPath)
			}

			config := defaultConfig()
			config.Cross = CrossConfig{
				Output:  cross.DefaultOutputDir,
				Package: cross.DefaultPackage,
				Targets: make(map[string]cross.Target),
			}
			for _, t := range cross.DefaultTargets() {
				config.Cross.Targets[t.Name] = t
			}

			if err := saveConfig(config, c.configPath); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", c.configPath)
			return nil
		},
	}

	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")

	return initCmd
}

func newCrossCmd(c *cli) *cobra.Command {
	var (
		dryRun       bool
		outputDir    string
		manifestPath string
	)

	crossCmd := &cobra.Command{
		Use:   "cross [target...]",
		Short: "Cross-compile the now binary, C source included, for configured targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := c.config.crossTargets(args)
			if err != nil {
				return err
			}

			opts := cross.DefaultBuildOptions()
			opts.DryRun = dryRun
			opts.Logger = c.logger.Named("cross")
			if c.config.Cross.Package != "" {
				opts.Package = c.config.Cross.Package
			}
			if c.config.Cross.Output != "" {
				opts.OutputDir = c.config.Cross.Output
			}
			if outputDir != "" {
				opts.OutputDir = outputDir
			}

			manifest, err := cross.Build(cmd.Context(), targets, opts)
			if err != nil {
				return err
			}

			for _, t := range targets {
				artifact := manifest.Artifacts[t.Name]
				if dryRun {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (dry run)\n", t.Name, artifact.Path)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s\n", t.Name, artifact.Path, artifact.ResolvedHash)
			}

			if dryRun {
				return nil
			}

			if manifestPath == "" {
				manifestPath = filepath.Join(opts.OutputDir, cross.DefaultManifestName)
			}
			if err := cross.SaveManifest(manifest, manifestPath); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", manifestPath)
			return nil
		},
	}

	crossCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the build commands without running them")
	crossCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default from config or dist)")
	crossCmd.Flags().StringVar(&manifestPath, "manifest", "", "Manifest path (default <output>/now.lock)")

	verifyCmd := &cobra.Command{
		Use:   "verify [manifest]",
		Short: "Check built binaries against their recorded hashes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(cross.DefaultOutputDir, cross.DefaultManifestName)
			if c.config.Cross.Output != "" {
				path = filepath.Join(c.config.Cross.Output, cross.DefaultManifestName)
			}
			if len(args) == 1 {
				path = args[0]
			}

			manifest, err := cross.LoadManifest(path)
			if err != nil {
				return err
			}

			if err := manifest.Verify(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d artifacts verified\n", len(manifest.Artifacts))
			return nil
		},
	}

	crossCmd.AddCommand(verifyCmd)

	return crossCmd
}

func newPluginCmd(c *cli) *cobra.Command {
	pluginCmd := &cobra.Command{
		Use:   "plugin",
		Short: "Run WASM plugins with access to the native time source",
	}

	runCmd := &cobra.Command{
		Use:   "run <name|file.wasm> [-- args...]",
		Short: "Run a WASI plugin; it can import kalo.now and kalo.system_now",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			pluginArgs := args[1:]
			env := make(map[string]string)

			if plugin, ok := c.config.Plugins[args[0]]; ok && !strings.HasSuffix(args[0], ".wasm") {
				path = os.ExpandEnv(plugin.Path)
				pluginArgs = append(append([]string{}, plugin.Args...), pluginArgs...)
				addConfigAsEnv("", plugin.Config, env)
			}

			wasmBytes, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read wasm file: %w", err)
			}

			c.logger.Debug("running plugin", "path", path, "args", pluginArgs)

			host := hostfuncs.NewNowHost(timestamp.NativeSource, c.logger.Named("hostfuncs"))
			return host.RunPlugin(cmd.Context(), wasmBytes, &hostfuncs.PluginOptions{
				Args:   pluginArgs,
				Env:    env,
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
			})
		},
	}

	pluginCmd.AddCommand(runCmd)

	return pluginCmd
}
