package config

import (
	"fmt"
	"strings"
)

// AppConfig declares a mounted application.
type AppConfig struct {
	Name string `yaml:"name"`
	// Entry is the application's entry file; reloading it reloads the whole app.
	Entry string `yaml:"entry"`
	// Dependencies are glob patterns the app reloads together with its entry.
	Dependencies []string `yaml:"dependencies"`
	// Mount is the URL prefix used by `hotload serve`.
	Mount string `yaml:"mount"`
	// Handler names the symbol (pkg.Name) serving requests,
	// of type func(http.ResponseWriter, *http.Request).
	Handler string `yaml:"handler"`
}

// Validate checks the app declaration.
func (a AppConfig) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("app name required")
	}
	if strings.TrimSpace(a.Entry) == "" {
		return fmt.Errorf("app %s: entry file required", a.Name)
	}
	if a.Mount != "" && !strings.HasPrefix(a.Mount, "/") {
		return fmt.Errorf("app %s: mount must start with /", a.Name)
	}
	if a.Mount != "" && a.Handler == "" {
		return fmt.Errorf("app %s: mounted app needs a handler symbol", a.Name)
	}
	return nil
}
