package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all hotload configuration.
type Config struct {
	// Source universe: glob patterns relative to the workspace (or absolute).
	Roots          []string `yaml:"roots"`
	IgnorePatterns []string `yaml:"ignore_patterns"`

	// Exclusion rules for scanning and symbol removal
	Exclusion ExclusionConfig `yaml:"exclusion"`

	// Mounted applications
	Apps []AppConfig `yaml:"apps"`

	// Reload engine settings
	Reload ReloadConfig `yaml:"reload"`

	// Interpreter (unit loader) settings
	Interpreter InterpreterConfig `yaml:"interpreter"`

	// HTTP serving
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ReloadConfig configures the reload engine.
type ReloadConfig struct {
	// Cooldown is the minimum time between reload passes triggered by requests.
	Cooldown string `yaml:"cooldown"`
	// Threaded guards every pass with a lock. Disable only for single-threaded hosts.
	Threaded bool `yaml:"threaded"`
}

// InterpreterConfig configures the Go unit interpreter.
type InterpreterConfig struct {
	// AllowedPackages whitelists stdlib imports. Empty allows every stdlib package.
	AllowedPackages []string `yaml:"allowed_packages"`
}

// ServerConfig configures `hotload serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// FailOnError answers 500 when a reload fails instead of serving stale code.
	FailOnError bool `yaml:"fail_on_error"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Roots:          []string{"lib/**/*.go", "app/**/*.go"},
		IgnorePatterns: DefaultIgnorePatterns(),
		Exclusion:      ExclusionConfig{},
		Reload: ReloadConfig{
			Cooldown: "1s",
			Threaded: true,
		},
		Interpreter: InterpreterConfig{
			AllowedPackages: DefaultAllowedPackages(),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8710",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultConfigPath returns the config location inside a workspace.
func DefaultConfigPath(workspace string) string {
	return filepath.Join(workspace, ".hotload", "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if roots := os.Getenv("HOTLOAD_ROOTS"); roots != "" {
		c.Roots = splitList(roots)
	}
	if cooldown := os.Getenv("HOTLOAD_COOLDOWN"); cooldown != "" {
		c.Reload.Cooldown = cooldown
	}
	if addr := os.Getenv("HOTLOAD_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if debug := os.Getenv("HOTLOAD_DEBUG"); debug != "" {
		if v, err := strconv.ParseBool(debug); err == nil {
			c.Logging.DebugMode = v
		}
	}
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == os.PathListSeparator })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetCooldown returns the reload cooldown as a duration.
func (c *Config) GetCooldown() time.Duration {
	d, err := time.ParseDuration(c.Reload.Cooldown)
	if err != nil || d < 0 {
		return time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Roots) == 0 && len(c.Apps) == 0 {
		return fmt.Errorf("nothing to reload: configure roots or apps")
	}
	if c.Reload.Cooldown != "" {
		if _, err := time.ParseDuration(c.Reload.Cooldown); err != nil {
			return fmt.Errorf("invalid reload.cooldown %q: %w", c.Reload.Cooldown, err)
		}
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Apps))
	for i, app := range c.Apps {
		if err := app.Validate(); err != nil {
			return fmt.Errorf("apps[%d]: %w", i, err)
		}
		if seen[app.Name] {
			return fmt.Errorf("apps[%d]: duplicate app name %q", i, app.Name)
		}
		seen[app.Name] = true
	}
	return nil
}
