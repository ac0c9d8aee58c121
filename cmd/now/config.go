package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/iancoleman/strcase"
	"gopkg.in/yaml.v3"

	"github.com/kalo-build/kalo-now/pkg/cross"
	"github.com/kalo-build/kalo-now/pkg/timestamp"
)

const defaultConfigPath = "now.yaml"

type BufferConfig struct {
	Capacity    int `yaml:"capacity,omitempty"`
	MaxCapacity int `yaml:"maxCapacity,omitempty"` // 0 disables grow-and-retry
}

type CrossConfig struct {
	Output  string                  `yaml:"output,omitempty"`
	Package string                  `yaml:"package,omitempty"`
	Targets map[string]cross.Target `yaml:"targets,omitempty"`
}

type PluginConfig struct {
	Path   string         `yaml:"path"`
	Args   []string       `yaml:"args,omitempty"`
	Config map[string]any `yaml:"config,omitempty"`
}

type NowConfig struct {
	Buffer  BufferConfig            `yaml:"buffer,omitempty"`
	Cross   CrossConfig             `yaml:"cross,omitempty"`
	Plugins map[string]PluginConfig `yaml:"plugins,omitempty"`
}

func defaultConfig() *NowConfig {
	return &NowConfig{
		Buffer: BufferConfig{Capacity: timestamp.DefaultCapacity},
	}
}

// loadConfig loads the now.yaml configuration file
func loadConfig(path string) (*NowConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// loadConfigOrDefault is loadConfig, except that a missing file yields the
// defaults.
func loadConfigOrDefault(path string) (*NowConfig, error) {
	config, err := loadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return config, err
}

// saveConfig saves the now.yaml configuration file
func saveConfig(config *NowConfig, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	content := "# now YAML Configuration\n\n" + string(data)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnv overrides buffer settings from NOW_CAPACITY and NOW_MAX_CAPACITY.
func (c *NowConfig) applyEnv(getenv func(string) string) error {
	for key, dst := range map[string]*int{
		"NOW_CAPACITY":     &c.Buffer.Capacity,
		"NOW_MAX_CAPACITY": &c.Buffer.MaxCapacity,
	} {
		raw := strings.TrimSpace(getenv(key))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
		*dst = v
	}
	return nil
}

func (c *NowConfig) validate() error {
	if c.Buffer.Capacity <= 0 {
		return fmt.Errorf("buffer capacity must be positive, got %d", c.Buffer.Capacity)
	}
	if c.Buffer.MaxCapacity != 0 && c.Buffer.MaxCapacity < c.Buffer.Capacity {
		return fmt.Errorf("buffer maxCapacity %d is smaller than capacity %d",
			c.Buffer.MaxCapacity, c.Buffer.Capacity)
	}
	for name, target := range c.Cross.Targets {
		if target.GOOS == "" || target.GOARCH == "" {
			return fmt.Errorf("cross target %s needs goos and goarch", name)
		}
	}
	return nil
}

// crossTargets returns the configured targets (or the defaults when none are
// configured), restricted to names when any are given.
func (c *NowConfig) crossTargets(names []string) ([]cross.Target, error) {
	all := make(map[string]cross.Target)
	if len(c.Cross.Targets) == 0 {
		for _, t := range cross.DefaultTargets() {
			all[t.Name] = t
		}
	} else {
		for name, t := range c.Cross.Targets {
			t.Name = name
			all[name] = t
		}
	}

	if len(names) == 0 {
		targets := make([]cross.Target, 0, len(all))
		for _, t := range all {
			targets = append(targets, t)
		}
		sort.Slice(targets, func(i, j int) bool { return targets[i].Name < targets[j].Name })
		return targets, nil
	}

	targets := make([]cross.Target, 0, len(names))
	for _, name := range names {
		t, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("unknown cross target: %s", name)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// addConfigAsEnv adds config values as environment variables
func addConfigAsEnv(prefix string, config map[string]any, env map[string]string) {
	for k, v := range config {
		key := k
		if prefix != "" {
			key = prefix + "_" + key
		}

		key = strcase.ToScreamingSnake(key)

		if nestedMap, ok := v.(map[string]any); ok {
			addConfigAsEnv(key, nestedMap, env)
			continue
		}

		var strValue string
		switch val := v.(type) {
		case string:
			strValue = val
		case bool:
			strValue = strconv.FormatBool(val)
		case int:
			strValue = strconv.Itoa(val)
		case float64:
			strValue = fmt.Sprintf("%g", val)
		default:
			data, _ := json.Marshal(val)
			strValue = string(data)
		}
		env[key] = strValue
	}
}
