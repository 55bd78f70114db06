package module

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"hotload/internal/logging"
)

// Loader executes one unit, defining its symbols into rt.Symbols and
// requiring any sub-units through rt.
type Loader interface {
	Load(ctx context.Context, rt *Runtime, path string) error
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, rt *Runtime, path string) error

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, rt *Runtime, path string) error {
	return f(ctx, rt, path)
}

// Runtime ties the symbol space and loaded features to a Loader.
type Runtime struct {
	Symbols  *Space
	Features *Features
	loader   Loader

	mu      sync.Mutex
	loading map[string]struct{}
}

// NewRuntime creates a runtime with empty state.
func NewRuntime(loader Loader) *Runtime {
	return &Runtime{
		Symbols:  NewSpace(),
		Features: NewFeatures(),
		loader:   loader,
		loading:  make(map[string]struct{}),
	}
}

// Require executes path unless it is already loaded. A unit that is required
// again while its own load is still running is skipped.
func (rt *Runtime) Require(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if rt.Features.Has(abs) {
		return nil
	}
	if !rt.begin(abs) {
		logging.LoaderDebug("require cycle: %s already loading, skipping", abs)
		return nil
	}
	defer rt.end(abs)

	if rt.loader == nil {
		return fmt.Errorf("require %s: no loader configured", abs)
	}
	if err := rt.loader.Load(ctx, rt, abs); err != nil {
		return err
	}
	rt.Features.Add(abs)
	return nil
}

// Loading reports whether path is currently being required.
func (rt *Runtime) Loading(path string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	_, ok := rt.loading[path]
	return ok
}

func (rt *Runtime) begin(path string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.loading[path]; ok {
		return false
	}
	rt.loading[path] = struct{}{}
	return true
}

func (rt *Runtime) end(path string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.loading, path)
}
