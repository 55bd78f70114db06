package config

import "fmt"

// LoggingConfig configures the category file logs under .hotload/logs.
type LoggingConfig struct {
	Level      string          `yaml:"level"`      // debug, info, warn, error
	Format     string          `yaml:"format"`     // json, text
	DebugMode  bool            `yaml:"debug_mode"` // false writes no log files at all
	Categories map[string]bool `yaml:"categories"` // boot, reload, registry, loader, apps, server
}

// IsCategoryEnabled reports whether a category writes logs. Nothing is
// enabled outside debug mode; unlisted categories are on.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if on, listed := c.Categories[category]; listed {
		return on
	}
	return true
}

// JSONFormat reports whether structured JSON output was requested.
func (c *LoggingConfig) JSONFormat() bool {
	return c.Format == "json"
}

// Validate rejects unknown levels and formats. Empty values use defaults.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q", c.Level)
	}
	switch c.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid logging.format %q", c.Format)
	}
	return nil
}
