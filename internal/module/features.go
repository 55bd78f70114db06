package module

import (
	"sort"
	"sync"
)

// Features is the set of units the runtime currently considers loaded.
type Features struct {
	mu     sync.RWMutex
	loaded map[string]struct{}
}

// NewFeatures creates an empty feature set.
func NewFeatures() *Features {
	return &Features{loaded: make(map[string]struct{})}
}

// Has reports whether path is loaded.
func (f *Features) Has(path string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.loaded[path]
	return ok
}

// Add marks path as loaded.
func (f *Features) Add(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded[path] = struct{}{}
}

// Evict forgets path so the next Require executes it again.
func (f *Features) Evict(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.loaded[path]; !ok {
		return false
	}
	delete(f.loaded, path)
	return true
}

// Loaded returns a snapshot of the loaded paths.
func (f *Features) Loaded() map[string]struct{} {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]struct{}, len(f.loaded))
	for p := range f.loaded {
		out[p] = struct{}{}
	}
	return out
}

// SortedPaths returns the keys of a path set in lexical order.
func SortedPaths(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
