package reload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hotload/internal/logging"
	"hotload/internal/module"
)

// LoadOptions control a single Transaction.Load.
type LoadOptions struct {
	// Force loads the file even when its mtime matches the committed one.
	Force bool
	// ModTime is an already observed mtime. When zero the file is stat'd.
	ModTime time.Time
}

// FileLoader loads one file through the engine.
type FileLoader interface {
	Load(ctx context.Context, path string, opts LoadOptions) error
}

// Transaction loads files atomically against a runtime: a failed load is
// rolled back so the symbol space matches its pre-load state.
type Transaction struct {
	rt       *module.Runtime
	registry *Registry
	detector *ChangeDetector
	policy   *ExclusionPolicy

	inProgress map[string]struct{}
	observed   map[string]time.Time
}

// NewTransaction wires a transaction to the engine components.
func NewTransaction(rt *module.Runtime, registry *Registry, detector *ChangeDetector, policy *ExclusionPolicy) *Transaction {
	return &Transaction{
		rt:         rt,
		registry:   registry,
		detector:   detector,
		policy:     policy,
		inProgress: make(map[string]struct{}),
	}
}

// observe installs the mtimes a pass already stat'd, so nested loads of the
// same files do not stat again. A nil map ends the pass.
func (t *Transaction) observe(mtimes map[string]time.Time) {
	t.observed = mtimes
}

// Load executes file unless it is unchanged and not forced. A file already
// being loaded further up the call chain is skipped.
func (t *Transaction) Load(ctx context.Context, file string, opts LoadOptions) error {
	_, err := t.load(ctx, file, opts)
	return err
}

// load is Load that also reports whether file was executed through a
// tracked transaction.
func (t *Transaction) load(ctx context.Context, file string, opts LoadOptions) (bool, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return false, &LoadError{Path: file, Err: err}
	}
	if _, busy := t.inProgress[abs]; busy {
		logging.ReloadDebug("load cycle: %s already in progress, skipping", abs)
		return false, nil
	}

	mtime, err := t.modTime(abs, opts.ModTime)
	if err != nil {
		return false, &LoadError{Path: abs, Err: err}
	}
	if !opts.Force && !t.detector.Changed(abs, mtime) {
		return false, nil
	}
	if _, tracked := t.detector.ModTime(abs); !opts.Force && !tracked && t.rt.Features.Has(abs) {
		// Pulled in by another unit's require this pass; its symbols belong there.
		t.detector.Record(abs, mtime)
		return false, nil
	}

	if t.policy.IsPathExcluded(abs) {
		if err := t.rt.Require(ctx, abs); err != nil {
			return false, &LoadError{Path: abs, Err: err}
		}
		return false, nil
	}

	t.inProgress[abs] = struct{}{}
	defer delete(t.inProgress, abs)

	_, tracked := t.detector.ModTime(abs)
	if err := t.registry.Prepare(ctx, abs, t.loadFeature); err != nil {
		t.registry.Rollback(abs)
		logging.ReloadError("prepare %s failed: %v", abs, err)
		return false, &LoadError{Path: abs, Err: err}
	}

	if tracked {
		logging.ReloadDebug("reloading %s", abs)
	} else {
		logging.ReloadDebug("loading %s", abs)
	}
	if err := t.execute(ctx, abs); err != nil {
		t.registry.Rollback(abs)
		logging.ReloadError("load %s failed, rolled back: %v", abs, err)
		var le *LoadError
		if errors.As(err, &le) && le.Path == abs {
			return false, le
		}
		return false, &LoadError{Path: abs, Err: err}
	}

	t.registry.Commit(abs)
	t.detector.Record(abs, mtime)
	return true, nil
}

func (t *Transaction) modTime(abs string, known time.Time) (time.Time, error) {
	if !known.IsZero() {
		return known, nil
	}
	if seen, ok := t.observed[abs]; ok {
		return seen, nil
	}
	info, err := t.detector.stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, fmt.Errorf("%w: %v", ErrVanished, err)
		}
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (t *Transaction) execute(ctx context.Context, abs string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.rt.Require(ctx, abs)
}

// loadFeature force-loads a sub-unit recorded by a previous load. A sub-unit
// deleted from disk is dropped.
func (t *Transaction) loadFeature(ctx context.Context, path string) error {
	err := t.Load(ctx, path, LoadOptions{Force: true})
	if errors.Is(err, ErrVanished) {
		logging.ReloadDebug("sub-unit %s vanished, dropping", path)
		return nil
	}
	return err
}
