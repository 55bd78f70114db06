package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"hotload/internal/app"
	"hotload/internal/config"
	"hotload/internal/goscript"
	"hotload/internal/logging"
	"hotload/internal/module"
	"hotload/internal/reload"
	"hotload/internal/source"
)

// engine is a booted reload engine for one workspace.
type engine struct {
	workspace string
	cfg       *config.Config
	rt        *module.Runtime
	reloader  *reload.Reloader
	apps      *app.Registry
}

func resolveWorkspace() (string, error) {
	ws := workspace
	if ws == "" {
		var err error
		ws, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	return filepath.Abs(ws)
}

func resolveConfigPath(ws string) string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath(ws)
}

// openEngine loads the workspace config and wires the engine. Nothing is
// loaded yet.
func openEngine() (*engine, error) {
	ws, err := resolveWorkspace()
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	cfg, err := config.Load(resolveConfigPath(ws))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := logging.Initialize(ws, logging.Options{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat(),
		Categories: cfg.Logging.Categories,
	}); err != nil {
		logger.Warn("file logging unavailable", zap.Error(err))
	}

	apps, err := app.FromConfig(ws, cfg.Apps)
	if err != nil {
		return nil, err
	}

	rt := module.NewRuntime(goscript.NewLoader(cfg.Interpreter.AllowedPackages))
	policy := reload.NewExclusionPolicy(
		workspacePaths(ws, cfg.Exclusion.Paths),
		cfg.Exclusion.Symbols,
		cfg.Exclusion.IncludeSymbols,
	)
	r := reload.New(rt, reload.Options{
		Sources: []reload.FileSource{&source.Provider{
			Root:     ws,
			Patterns: cfg.Roots,
			Ignore:   cfg.IgnorePatterns,
		}},
		Apps:     apps,
		Policy:   policy,
		Threaded: cfg.Reload.Threaded,
	})

	logger.Debug("engine ready",
		zap.String("workspace", ws),
		zap.Strings("roots", cfg.Roots),
		zap.Int("apps", len(cfg.Apps)))
	logging.Boot("engine ready: %d roots, %d apps", len(cfg.Roots), len(cfg.Apps))

	return &engine{workspace: ws, cfg: cfg, rt: rt, reloader: r, apps: apps}, nil
}

// workspacePaths resolves relative paths against ws, keeping a trailing
// separator.
func workspacePaths(ws string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		trailing := strings.HasSuffix(p, "/") || strings.HasSuffix(p, string(os.PathSeparator))
		if !filepath.IsAbs(p) {
			p = filepath.Join(ws, p)
		}
		if trailing && !strings.HasSuffix(p, string(os.PathSeparator)) {
			p += string(os.PathSeparator)
		}
		out = append(out, p)
	}
	return out
}

// rel shortens path for display.
func (e *engine) rel(path string) string {
	if r, err := filepath.Rel(e.workspace, path); err == nil && !strings.HasPrefix(r, "..") {
		return r
	}
	return path
}
