package reload

import (
	"context"
	"fmt"
	"sort"

	"hotload/internal/logging"
	"hotload/internal/module"
)

// Record is what one top-level file's load introduced into the runtime.
type Record struct {
	File     string
	Symbols  module.SymbolSet
	Features map[string]struct{} // sub-units first loaded during this file's load
}

func (r *Record) clone() Record {
	out := Record{
		File:     r.File,
		Symbols:  make(module.SymbolSet, len(r.Symbols)),
		Features: make(map[string]struct{}, len(r.Features)),
	}
	for id := range r.Symbols {
		out.Symbols[id] = struct{}{}
	}
	for f := range r.Features {
		out.Features[f] = struct{}{}
	}
	return out
}

type snapshot struct {
	symbols  module.SymbolSet
	features map[string]struct{}
}

// FeatureLoader force-loads a sub-unit during Prepare.
type FeatureLoader func(ctx context.Context, path string) error

// Registry maps each tracked file to its Record and holds at most one
// pending snapshot per file while its load is in flight.
type Registry struct {
	rt      *module.Runtime
	policy  *ExclusionPolicy
	records map[string]*Record
	owners  map[module.SymbolID]string
	pending map[string]*snapshot
}

// NewRegistry creates a registry over rt.
func NewRegistry(rt *module.Runtime, policy *ExclusionPolicy) *Registry {
	return &Registry{
		rt:      rt,
		policy:  policy,
		records: make(map[string]*Record),
		owners:  make(map[module.SymbolID]string),
		pending: make(map[string]*snapshot),
	}
}

// Remove deletes the record for file, removing its removable symbols from
// the symbol space and evicting its sub-units from the loaded features. It
// returns the removed record, or nil when file had none.
func (r *Registry) Remove(file string) *Record {
	rec, ok := r.records[file]
	if !ok {
		return nil
	}
	delete(r.records, file)

	removed := 0
	for _, id := range rec.Symbols.Sorted() {
		if r.release(rec, id) {
			removed++
		}
	}
	for _, f := range module.SortedPaths(rec.Features) {
		r.rt.Features.Evict(f)
	}
	logging.RegistryDebug("removed %s: %d/%d symbols, %d features", file, removed, len(rec.Symbols), len(rec.Features))
	return rec
}

// removeSymbol drops id unless the policy protects it or it was defined by
// a unit under an excluded path.
func (r *Registry) removeSymbol(id module.SymbolID) bool {
	if !r.policy.IsSymbolRemovable(id) {
		return false
	}
	def, ok := r.rt.Symbols.Lookup(id)
	if !ok {
		return false
	}
	if r.policy.IsPathExcluded(def.Source) {
		return false
	}
	return r.rt.Symbols.Remove(id)
}

// release drops id on behalf of rec. A definition since replaced by a unit
// that is neither rec's file nor one of its sub-units stays live and moves
// to that unit's record.
func (r *Registry) release(rec *Record, id module.SymbolID) bool {
	if r.owners[id] == rec.File {
		delete(r.owners, id)
	}
	def, ok := r.rt.Symbols.Lookup(id)
	if !ok {
		return false
	}
	if _, sub := rec.Features[def.Source]; def.Source != rec.File && !sub {
		if other, ok := r.records[def.Source]; ok {
			other.Symbols.Add(id)
			r.owners[id] = other.File
		}
		return false
	}
	return r.removeSymbol(id)
}

// reclaim removes what file defined while it was loaded as another unit's
// sub-unit. The owning record forgets the ids even when the policy keeps
// them live.
func (r *Registry) reclaim(file string) {
	for _, id := range r.rt.Symbols.DefinedBy(file) {
		if owner, ok := r.owners[id]; ok {
			if rec := r.records[owner]; rec != nil {
				delete(rec.Symbols, id)
			}
			delete(r.owners, id)
		}
		r.removeSymbol(id)
	}
}

// Prepare readies file for a load. It removes the previous record along with
// any definitions file made under another record, snapshots the runtime,
// force-loads the previous record's sub-units through load, and evicts file
// from the loaded features so the next require executes it.
func (r *Registry) Prepare(ctx context.Context, file string, load FeatureLoader) error {
	old := r.Remove(file)
	r.reclaim(file)

	snap := &snapshot{
		symbols:  r.rt.Symbols.Symbols(),
		features: r.rt.Features.Loaded(),
	}
	r.pending[file] = snap

	if old != nil && load != nil {
		for _, f := range module.SortedPaths(old.Features) {
			if err := load(ctx, f); err != nil {
				return fmt.Errorf("reload sub-unit %s of %s: %w", f, file, err)
			}
		}
	}

	if _, ok := snap.features[file]; ok {
		r.rt.Features.Evict(file)
	}
	return nil
}

// Commit stores the difference between the runtime and the pending
// snapshot as the record for file. Symbols already owned by another record
// stay with that record. Commit without a pending snapshot returns nil.
func (r *Registry) Commit(file string) *Record {
	snap, ok := r.pending[file]
	if !ok {
		return nil
	}
	delete(r.pending, file)

	rec := &Record{
		File:     file,
		Symbols:  make(module.SymbolSet),
		Features: make(map[string]struct{}),
	}
	for id := range r.rt.Symbols.Symbols().Difference(snap.symbols) {
		if owner, ok := r.owners[id]; ok && owner != file {
			continue
		}
		rec.Symbols.Add(id)
		r.owners[id] = file
	}
	for f := range r.rt.Features.Loaded() {
		if f == file {
			continue
		}
		if _, ok := snap.features[f]; ok {
			continue
		}
		rec.Features[f] = struct{}{}
	}
	r.records[file] = rec
	logging.Get(logging.CategoryRegistry).StructuredLog("debug", "commit", map[string]interface{}{
		"file":     file,
		"symbols":  len(rec.Symbols),
		"features": len(rec.Features),
	})
	return rec
}

// Rollback undoes a failed load of file: symbols and features that appeared
// since the snapshot are removed unless a committed record owns them. The
// pending snapshot is discarded. Without a pending snapshot it is a no-op.
func (r *Registry) Rollback(file string) {
	snap, ok := r.pending[file]
	if !ok {
		return
	}
	delete(r.pending, file)

	removed := 0
	for _, id := range r.rt.Symbols.Symbols().Difference(snap.symbols).Sorted() {
		if _, owned := r.owners[id]; owned {
			continue
		}
		if r.removeSymbol(id) {
			removed++
		}
	}
	for f := range r.rt.Features.Loaded() {
		if _, ok := snap.features[f]; ok {
			continue
		}
		if _, recorded := r.records[f]; recorded {
			continue
		}
		r.rt.Features.Evict(f)
	}
	logging.RegistryDebug("rolled back %s: removed %d symbols", file, removed)
}

// Clear removes every record and discards pending snapshots.
func (r *Registry) Clear() {
	files := make([]string, 0, len(r.records))
	for f := range r.records {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		r.Remove(f)
	}
	r.pending = make(map[string]*snapshot)
	r.owners = make(map[module.SymbolID]string)
}

// Lookup returns a copy of the record for file.
func (r *Registry) Lookup(file string) (Record, bool) {
	rec, ok := r.records[file]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Owner returns the file whose record holds id.
func (r *Registry) Owner(id module.SymbolID) (string, bool) {
	f, ok := r.owners[id]
	return f, ok
}

// Pending reports whether file has an in-flight snapshot.
func (r *Registry) Pending(file string) bool {
	_, ok := r.pending[file]
	return ok
}

// Records returns copies of all records ordered by file.
func (r *Registry) Records() []Record {
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out
}
