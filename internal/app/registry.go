package app

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"hotload/internal/config"
	"hotload/internal/module"
	"hotload/internal/reload"
)

// Registry holds the mounted applications in mount order.
type Registry struct {
	mu   sync.RWMutex
	apps []*Application
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// FromConfig mounts every configured application, resolving paths against
// workspace.
func FromConfig(workspace string, cfgs []config.AppConfig) (*Registry, error) {
	reg := NewRegistry()
	for _, c := range cfgs {
		a, err := New(Spec{
			Name:         c.Name,
			Root:         workspace,
			Entry:        c.Entry,
			Dependencies: c.Dependencies,
			Mount:        c.Mount,
			Handler:      c.Handler,
		})
		if err != nil {
			return nil, err
		}
		if err := reg.Mount(a); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Mount adds a. Names must be unique.
func (r *Registry) Mount(a *Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.apps {
		if existing.name == a.name {
			return fmt.Errorf("application %s already mounted", a.name)
		}
	}
	r.apps = append(r.apps, a)
	return nil
}

// Applications satisfies reload.Mounts.
func (r *Registry) Applications() []reload.Application {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]reload.Application, len(r.apps))
	for i, a := range r.apps {
		out[i] = a
	}
	return out
}

// All returns the mounted applications.
func (r *Registry) All() []*Application {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Application(nil), r.apps...)
}

// Get returns the application named name.
func (r *Registry) Get(name string) (*Application, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.apps {
		if a.name == name {
			return a, true
		}
	}
	return nil, false
}

// Router mounts every application with a mount prefix and handler. Longer
// prefixes are registered first.
func (r *Registry) Router(rt *module.Runtime) http.Handler {
	mux := http.NewServeMux()
	apps := r.All()
	sort.SliceStable(apps, func(i, j int) bool { return len(apps[i].mount) > len(apps[j].mount) })
	for _, a := range apps {
		if a.mount == "" || a.handler == "" {
			continue
		}
		prefix := strings.TrimSuffix(a.mount, "/")
		h := a.Handler(rt)
		if prefix == "" {
			mux.Handle("/", h)
			continue
		}
		mux.Handle(prefix+"/", http.StripPrefix(prefix, h))
		mux.Handle(prefix, http.StripPrefix(prefix, h))
	}
	return mux
}
