// Package app models mounted applications: a unit tree with one entry file,
// a set of dependency globs, and an optional HTTP handler symbol served
// under a mount prefix.
package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"hotload/internal/logging"
	"hotload/internal/module"
	"hotload/internal/reload"
	"hotload/internal/source"
)

// Application is one mounted application.
type Application struct {
	name  string
	root  string
	entry string
	deps  []string
	mount string
	// handler is the symbol serving requests, e.g. "web.Serve".
	handler module.SymbolID

	mu         sync.Mutex
	reloads    int
	reloadedAt time.Time
}

var _ reload.Application = (*Application)(nil)

// Spec describes an application before it is mounted.
type Spec struct {
	Name         string
	Root         string
	Entry        string
	Dependencies []string
	Mount        string
	Handler      string
}

// New builds an application. Entry and dependency patterns resolve
// against Root.
func New(spec Spec) (*Application, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("application name is required")
	}
	if spec.Entry == "" {
		return nil, fmt.Errorf("application %s: entry is required", spec.Name)
	}
	root, err := filepath.Abs(spec.Root)
	if err != nil {
		return nil, fmt.Errorf("application %s: %w", spec.Name, err)
	}
	entry := spec.Entry
	if !filepath.IsAbs(entry) {
		entry = filepath.Join(root, entry)
	}
	return &Application{
		name:    spec.Name,
		root:    root,
		entry:   filepath.Clean(entry),
		deps:    spec.Dependencies,
		mount:   spec.Mount,
		handler: module.SymbolID(spec.Handler),
	}, nil
}

func (a *Application) Name() string      { return a.name }
func (a *Application) EntryFile() string { return a.entry }
func (a *Application) Mount() string     { return a.mount }

// HandlerSymbol returns the symbol serving requests, or "" for none.
func (a *Application) HandlerSymbol() module.SymbolID { return a.handler }

// DependencyFiles expands the dependency globs now, so files added since
// the last pass are seen. The entry file is never its own dependency.
func (a *Application) DependencyFiles() []string {
	if len(a.deps) == 0 {
		return nil
	}
	p := &source.Provider{Root: a.root, Patterns: a.deps}
	files, err := p.Files()
	if err != nil {
		logging.Apps("application %s: expanding dependencies failed: %v", a.name, err)
		return nil
	}
	out := files[:0]
	for _, f := range files {
		if f != a.entry {
			out = append(out, f)
		}
	}
	return out
}

// Reload loads changed dependencies, then forces the entry file.
func (a *Application) Reload(ctx context.Context, loader reload.FileLoader) error {
	timer := logging.StartTimer(logging.CategoryApps, "reload "+a.name)
	defer timer.Stop()

	for _, dep := range a.DependencyFiles() {
		if err := loader.Load(ctx, dep, reload.LoadOptions{}); err != nil {
			return err
		}
	}
	if err := loader.Load(ctx, a.entry, reload.LoadOptions{Force: true}); err != nil {
		return err
	}

	a.mu.Lock()
	a.reloads++
	a.reloadedAt = time.Now()
	a.mu.Unlock()
	return nil
}

// Stats returns how many times the application reloaded and when it last
// did.
func (a *Application) Stats() (int, time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reloads, a.reloadedAt
}

// Handler resolves the handler symbol on every request so reloaded code
// serves immediately.
func (a *Application) Handler(rt *module.Runtime) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, err := Resolve(rt, a.handler)
		if err != nil {
			logging.ServerWarn("application %s: %v", a.name, err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// Resolve turns a symbol into an http.Handler.
func Resolve(rt *module.Runtime, id module.SymbolID) (http.Handler, error) {
	def, ok := rt.Symbols.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("handler %s is not defined", id)
	}
	switch h := def.Interface().(type) {
	case func(http.ResponseWriter, *http.Request):
		return http.HandlerFunc(h), nil
	case http.HandlerFunc:
		return h, nil
	case http.Handler:
		return h, nil
	default:
		return nil, fmt.Errorf("handler %s has type %T, want func(http.ResponseWriter, *http.Request)", id, def.Interface())
	}
}
