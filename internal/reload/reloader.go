package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"hotload/internal/logging"
	"hotload/internal/module"
)

// Application is a mounted unit of the host whose entry file is reloaded as
// a whole rather than file by file.
type Application interface {
	Name() string
	EntryFile() string
	DependencyFiles() []string
	Reload(ctx context.Context, loader FileLoader) error
}

// Mounts enumerates the mounted applications.
type Mounts interface {
	Applications() []Application
}

// FileSource enumerates candidate files.
type FileSource interface {
	Files() ([]string, error)
}

// Options configure a Reloader.
type Options struct {
	Sources []FileSource
	Apps    Mounts
	Policy  *ExclusionPolicy
	Stat    StatFunc
	// Threaded guards every pass with a coarse lock. Single-threaded hosts
	// may disable it.
	Threaded bool
}

// Result summarizes one pass.
type Result struct {
	PassID   string
	Scanned  int
	Loaded   []string
	New      []string
	Apps     []string
	Duration time.Duration
}

// Changed reports whether the pass loaded anything.
func (r Result) Changed() bool {
	return len(r.Loaded) > 0 || len(r.Apps) > 0
}

type locker interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

type nopLocker struct{}

func (nopLocker) Lock()    {}
func (nopLocker) Unlock()  {}
func (nopLocker) RLock()   {}
func (nopLocker) RUnlock() {}

// Reloader drives reload passes over the configured sources and
// applications.
type Reloader struct {
	rt       *module.Runtime
	detector *ChangeDetector
	registry *Registry
	tx       *Transaction
	policy   *ExclusionPolicy
	sources  []FileSource
	apps     Mounts
	mu       locker
}

// New creates a Reloader over rt.
func New(rt *module.Runtime, opts Options) *Reloader {
	detector := NewChangeDetector(opts.Stat)
	registry := NewRegistry(rt, opts.Policy)
	r := &Reloader{
		rt:       rt,
		detector: detector,
		registry: registry,
		tx:       NewTransaction(rt, registry, detector, opts.Policy),
		policy:   opts.Policy,
		sources:  opts.Sources,
		apps:     opts.Apps,
		mu:       nopLocker{},
	}
	if opts.Threaded {
		r.mu = &sync.RWMutex{}
	}
	return r
}

// Runtime returns the runtime the reloader manages.
func (r *Reloader) Runtime() *module.Runtime { return r.rt }

type candidateSet struct {
	files   []string
	entries map[string][]Application
	deps    map[string]map[string]struct{} // app name -> dependency files
	apps    []Application
}

func (r *Reloader) candidates() (*candidateSet, error) {
	cs := &candidateSet{
		entries: make(map[string][]Application),
		deps:    make(map[string]map[string]struct{}),
	}
	seen := make(map[string]struct{})
	add := func(path string) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		if r.policy.IsPathExcluded(abs) {
			return
		}
		cs.files = append(cs.files, abs)
	}

	for _, src := range r.sources {
		files, err := src.Files()
		if err != nil {
			return nil, fmt.Errorf("enumerate sources: %w", err)
		}
		for _, f := range files {
			add(f)
		}
	}
	if r.apps == nil {
		return cs, nil
	}
	cs.apps = r.apps.Applications()
	for _, app := range cs.apps {
		if entry := app.EntryFile(); entry != "" {
			if abs, err := filepath.Abs(entry); err == nil {
				cs.entries[abs] = append(cs.entries[abs], app)
			}
			add(entry)
		}
	}
	for _, app := range cs.apps {
		deps := make(map[string]struct{})
		for _, dep := range app.DependencyFiles() {
			abs, err := filepath.Abs(dep)
			if err != nil {
				continue
			}
			deps[abs] = struct{}{}
			add(abs)
		}
		cs.deps[app.Name()] = deps
	}
	return cs, nil
}

// ReloadAll runs one pass: every candidate is stat'd once and each new or
// modified file is loaded. A failure stops the pass and is returned; files
// not yet processed keep their old baseline and are retried next pass.
func (r *Reloader) ReloadAll(ctx context.Context) (res Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	res.PassID = uuid.NewString()
	defer func() { res.Duration = time.Since(start) }()

	cs, err := r.candidates()
	if err != nil {
		return res, err
	}
	changes := r.detector.Scan(cs.files)
	res.Scanned = len(changes)

	observed := make(map[string]time.Time, len(changes))
	for _, ch := range changes {
		observed[ch.Path] = ch.ModTime
	}
	r.tx.observe(observed)
	defer r.tx.observe(nil)

	reloaded := make(map[string]struct{})
	reloadApp := func(app Application) error {
		if _, done := reloaded[app.Name()]; done {
			return nil
		}
		reloaded[app.Name()] = struct{}{}
		logging.Apps("reloading application %s", app.Name())
		if err := app.Reload(ctx, r.tx); err != nil {
			return fmt.Errorf("reload application %s: %w", app.Name(), err)
		}
		res.Apps = append(res.Apps, app.Name())
		return nil
	}

	for _, ch := range changes {
		if !ch.Pending() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if apps, ok := cs.entries[ch.Path]; ok {
			for _, app := range apps {
				if err := reloadApp(app); err != nil {
					return res, err
				}
			}
			r.detector.Record(ch.Path, ch.ModTime)
			continue
		}

		executed, err := r.tx.load(ctx, ch.Path, LoadOptions{ModTime: ch.ModTime})
		if err != nil {
			return res, err
		}
		if executed {
			res.Loaded = append(res.Loaded, ch.Path)
			if ch.IsNew() {
				res.New = append(res.New, ch.Path)
			}
		}

		for _, app := range cs.apps {
			if _, dep := cs.deps[app.Name()][ch.Path]; !dep {
				continue
			}
			if err := reloadApp(app); err != nil {
				return res, err
			}
		}
	}

	if res.Changed() {
		logging.Reload("pass %s: reloaded %d files, %d applications", res.PassID, len(res.Loaded), len(res.Apps))
	}
	return res, nil
}

// Changed reports whether any candidate is new or modified. It stats every
// candidate once and commits nothing.
func (r *Reloader) Changed(ctx context.Context) (bool, error) {
	changes, err := r.Pending(ctx)
	if err != nil {
		return false, err
	}
	return len(changes) > 0, nil
}

// Pending returns the new or modified candidates without loading them.
func (r *Reloader) Pending(ctx context.Context) ([]Change, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cs, err := r.candidates()
	if err != nil {
		return nil, err
	}
	var out []Change
	for _, ch := range r.detector.Scan(cs.files) {
		if ch.Pending() {
			out = append(out, ch)
		}
	}
	return out, nil
}

// Require loads files that are not yet loaded. Files that fail are retried
// after the rest while each round makes progress, so load order between
// interdependent files does not matter. The first error of the final round
// is returned.
func (r *Reloader) Require(ctx context.Context, files ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	remaining := files
	for len(remaining) > 0 {
		var failed []string
		var firstErr error
		for _, f := range remaining {
			if err := r.tx.Load(ctx, f, LoadOptions{}); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				failed = append(failed, f)
			}
		}
		if len(failed) == 0 {
			return nil
		}
		if len(failed) == len(remaining) {
			return firstErr
		}
		logging.BootWarn("%d files failed to load, retrying", len(failed))
		remaining = failed
	}
	return nil
}

// Load loads one file through the transaction.
func (r *Reloader) Load(ctx context.Context, file string, opts LoadOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tx.Load(ctx, file, opts)
}

// Clear unloads every tracked file and forgets all baselines.
func (r *Reloader) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry.Clear()
	r.detector.Clear()
	logging.Reload("cleared all records")
}

// Records returns the current records ordered by file.
func (r *Reloader) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registry.Records()
}

// Tracked returns the committed mtime table.
func (r *Reloader) Tracked() map[string]time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.detector.Tracked()
}

// Owner returns the file whose record holds id.
func (r *Reloader) Owner(id module.SymbolID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registry.Owner(id)
}
