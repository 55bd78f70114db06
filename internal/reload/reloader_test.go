package reload

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotload/internal/module"
)

func newReloader(p *project, opts Options) (*Reloader, *module.Runtime) {
	rt := p.runtime()
	opts.Stat = p.stat
	return New(rt, opts), rt
}

func TestReloadAllStatsEachCandidateOnce(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	src := files{"/proj/a.go", "/proj/b.go", "/proj/c.go"}
	for _, f := range src {
		p.write(f, unit{})
	}
	r, _ := newReloader(p, Options{Sources: []FileSource{src}, Threaded: true})

	res, err := r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, p.stats)
	assert.Len(t, res.Loaded, 3)
	assert.Len(t, res.New, 3)
	assert.NotEmpty(t, res.PassID)

	p.write("/proj/b.go", unit{})
	_, err = r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, p.stats)

	_, err = r.Changed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, p.stats)
}

func TestUnchangedReloadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/a.go", unit{defines: ids("a.A")})
	r, _ := newReloader(p, Options{Sources: []FileSource{files{"/proj/a.go"}}})

	_, err := r.ReloadAll(ctx)
	require.NoError(t, err)
	res, err := r.ReloadAll(ctx)
	require.NoError(t, err)

	assert.False(t, res.Changed())
	assert.Equal(t, 1, p.runs["/proj/a.go"])

	changed, err := r.Changed(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestReloadReplacesRemovedSymbols(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/a.go", unit{defines: ids("a.A", "a.B")})
	r, rt := newReloader(p, Options{Sources: []FileSource{files{"/proj/a.go"}}})

	_, err := r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids("a.A", "a.B"), symbols(rt))

	p.write("/proj/a.go", unit{defines: ids("a.A")})
	res, err := r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/proj/a.go"}, res.Loaded)
	assert.Empty(t, res.New)
	assert.Equal(t, ids("a.A"), symbols(rt))

	recs := r.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, ids("a.A"), recs[0].Symbols.Sorted())
}

func TestFailedLoadRollsBack(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/a.go", unit{defines: ids("a.A", "a.B"), fail: errors.New("syntax error")})
	r, rt := newReloader(p, Options{Sources: []FileSource{files{"/proj/a.go"}}})

	_, err := r.ReloadAll(ctx)
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "/proj/a.go", le.Path)
	assert.Contains(t, err.Error(), "syntax error")

	assert.Empty(t, symbols(rt))
	assert.Empty(t, r.Records())
	assert.NotContains(t, r.Tracked(), "/proj/a.go")
	assert.False(t, rt.Features.Has("/proj/a.go"))

	// The file is retried on the next pass.
	_, err = r.ReloadAll(ctx)
	require.Error(t, err)
	assert.Equal(t, 2, p.runs["/proj/a.go"])
}

func TestPanickingLoadRollsBack(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/a.go", unit{defines: ids("a.A"), panics: true})
	r, rt := newReloader(p, Options{Sources: []FileSource{files{"/proj/a.go"}}})

	_, err := r.ReloadAll(ctx)
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Empty(t, symbols(rt))
}

func TestFailureStopsPassAndKeepsLaterFilesPending(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/a.go", unit{fail: errors.New("broken")})
	p.write("/proj/b.go", unit{defines: ids("b.B")})
	r, _ := newReloader(p, Options{Sources: []FileSource{files{"/proj/a.go", "/proj/b.go"}}})

	_, err := r.ReloadAll(ctx)
	require.Error(t, err)
	assert.Zero(t, p.runs["/proj/b.go"])

	pending, err := r.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestSubUnitsReloadWithParent(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/p.go", unit{defines: ids("p.A", "p.B"), requires: []string{"/proj/s.go"}})
	p.write("/proj/s.go", unit{defines: ids("s.C")})
	r, rt := newReloader(p, Options{Sources: []FileSource{files{"/proj/p.go"}}})

	_, err := r.ReloadAll(ctx)
	require.NoError(t, err)
	recs := r.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, ids("p.A", "p.B", "s.C"), recs[0].Symbols.Sorted())
	assert.Equal(t, []string{"/proj/s.go"}, module.SortedPaths(recs[0].Features))

	p.write("/proj/p.go", unit{defines: ids("p.A", "p.B"), requires: []string{"/proj/s.go"}})
	_, err = r.ReloadAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, p.runs["/proj/p.go"])
	assert.Equal(t, 2, p.runs["/proj/s.go"])
	assert.Equal(t, ids("p.A", "p.B", "s.C"), symbols(rt))

	got := make(map[string][]module.SymbolID)
	for _, rec := range r.Records() {
		got[rec.File] = rec.Symbols.Sorted()
	}
	want := map[string][]module.SymbolID{
		"/proj/p.go": ids("p.A", "p.B"),
		"/proj/s.go": ids("s.C"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestVanishedSubUnitIsDropped(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/p.go", unit{defines: ids("p.A"), requires: []string{"/proj/s.go"}})
	p.write("/proj/s.go", unit{defines: ids("s.C")})
	r, rt := newReloader(p, Options{Sources: []FileSource{files{"/proj/p.go"}}})

	_, err := r.ReloadAll(ctx)
	require.NoError(t, err)

	p.remove("/proj/s.go")
	p.write("/proj/p.go", unit{defines: ids("p.A")})
	_, err = r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids("p.A"), symbols(rt))
}

func TestSubUnitChangedOnItsOwnDropsStaleSymbols(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/p.go", unit{defines: ids("p.A"), requires: []string{"/proj/s.go"}})
	p.write("/proj/s.go", unit{defines: ids("s.Keep", "s.Old")})
	r, rt := newReloader(p, Options{Sources: []FileSource{files{"/proj/p.go", "/proj/s.go"}}})

	res, err := r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/proj/p.go"}, res.Loaded)
	assert.Equal(t, 1, p.runs["/proj/s.go"])

	p.write("/proj/s.go", unit{defines: ids("s.Keep")})
	_, err = r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids("p.A", "s.Keep"), symbols(rt))

	got := make(map[string][]module.SymbolID)
	for _, rec := range r.Records() {
		got[rec.File] = rec.Symbols.Sorted()
	}
	want := map[string][]module.SymbolID{
		"/proj/p.go": ids("p.A"),
		"/proj/s.go": ids("s.Keep"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestSubUnitFailingOnItsOwnRollsBack(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/p.go", unit{defines: ids("p.A"), requires: []string{"/proj/s.go"}})
	p.write("/proj/s.go", unit{defines: ids("s.C")})
	r, rt := newReloader(p, Options{Sources: []FileSource{files{"/proj/p.go", "/proj/s.go"}}})

	_, err := r.ReloadAll(ctx)
	require.NoError(t, err)
	baseline := r.Tracked()["/proj/s.go"]

	p.write("/proj/s.go", unit{defines: ids("s.C", "s.D"), fail: errors.New("broken")})
	_, err = r.ReloadAll(ctx)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "/proj/s.go", le.Path)
	assert.Equal(t, ids("p.A"), symbols(rt))
	assert.Equal(t, baseline, r.Tracked()["/proj/s.go"])

	p.write("/proj/s.go", unit{defines: ids("s.C")})
	_, err = r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids("p.A", "s.C"), symbols(rt))
}

func TestCircularRequiresTerminate(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/a.go", unit{defines: ids("a.A"), requires: []string{"/proj/b.go"}})
	p.write("/proj/b.go", unit{defines: ids("b.B"), requires: []string{"/proj/a.go"}})
	r, rt := newReloader(p, Options{Sources: []FileSource{files{"/proj/a.go", "/proj/b.go"}}})

	_, err := r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.runs["/proj/a.go"])
	assert.Equal(t, 1, p.runs["/proj/b.go"])

	p.write("/proj/a.go", unit{defines: ids("a.A"), requires: []string{"/proj/b.go"}})
	_, err = r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids("a.A", "b.B"), symbols(rt))
}

func TestExcludedSymbolSurvivesReload(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/a.go", unit{defines: ids("lib.Keep", "lib.Drop", "lib.TempX")})
	policy := NewExclusionPolicy(nil, []string{"lib.Keep", "lib.Temp"}, []string{"lib.TempX"})
	r, rt := newReloader(p, Options{Sources: []FileSource{files{"/proj/a.go"}}, Policy: policy})

	_, err := r.ReloadAll(ctx)
	require.NoError(t, err)

	p.write("/proj/a.go", unit{})
	_, err = r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids("lib.Keep"), symbols(rt))

	recs := r.Records()
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].Symbols)
	_, owned := r.Owner("lib.Keep")
	assert.False(t, owned)
}

func TestExcludedPathsAreNotScanned(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/lib/a.go", unit{defines: ids("a.A")})
	p.write("/proj/vendor/v.go", unit{defines: ids("v.V")})
	policy := NewExclusionPolicy([]string{"/proj/vendor"}, nil, nil)
	r, rt := newReloader(p, Options{
		Sources: []FileSource{files{"/proj/lib/a.go", "/proj/vendor/v.go"}},
		Policy:  policy,
	})

	_, err := r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.stats)
	assert.Equal(t, ids("a.A"), symbols(rt))

	// Loading an excluded file directly is a plain, untracked require.
	require.NoError(t, r.Load(ctx, "/proj/vendor/v.go", LoadOptions{}))
	assert.Equal(t, ids("a.A", "v.V"), symbols(rt))
	assert.NotContains(t, r.Tracked(), "/proj/vendor/v.go")
	assert.Len(t, r.Records(), 1)
}

func TestExternalSymbolsAreNeverRemoved(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/lib/a.go", unit{defines: ids("a.A"), requires: []string{"/proj/vendor/v.go"}})
	p.write("/proj/vendor/v.go", unit{defines: ids("v.V")})
	policy := NewExclusionPolicy([]string{"/proj/vendor"}, nil, nil)
	r, rt := newReloader(p, Options{Sources: []FileSource{files{"/proj/lib/a.go"}}, Policy: policy})

	_, err := r.ReloadAll(ctx)
	require.NoError(t, err)

	p.write("/proj/lib/a.go", unit{defines: ids("a.A")})
	_, err = r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids("a.A", "v.V"), symbols(rt))
}

func TestDependentApplicationReloadsOncePerPass(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/app/app.go", unit{defines: ids("app.Handler")})
	p.write("/proj/lib/x.go", unit{defines: ids("lib.X")})
	p.write("/proj/lib/y.go", unit{defines: ids("lib.Y")})
	app := &fakeApp{
		name:  "web",
		entry: "/proj/app/app.go",
		deps:  []string{"/proj/lib/x.go", "/proj/lib/y.go"},
	}
	r, rt := newReloader(p, Options{
		Sources: []FileSource{files{"/proj/lib/x.go", "/proj/lib/y.go"}, files{"/proj/lib/x.go"}},
		Apps:    mounts{app},
	})

	res, err := r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, app.reloads)
	assert.Equal(t, []string{"web"}, res.Apps)
	assert.Equal(t, 3, p.stats)
	assert.Equal(t, ids("app.Handler", "lib.X", "lib.Y"), symbols(rt))

	_, err = r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, app.reloads)

	p.write("/proj/lib/x.go", unit{defines: ids("lib.X")})
	p.write("/proj/lib/y.go", unit{defines: ids("lib.Y")})
	_, err = r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, app.reloads)
	assert.Equal(t, 2, p.runs["/proj/app/app.go"])
}

func TestDependencyLoadedByApplicationIsReportedOnce(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/app/app.go", unit{defines: ids("app.Handler")})
	p.write("/proj/lib/x.go", unit{defines: ids("lib.X")})
	p.write("/proj/lib/y.go", unit{defines: ids("lib.Y")})
	app := &fakeApp{
		name:     "web",
		entry:    "/proj/app/app.go",
		deps:     []string{"/proj/lib/x.go", "/proj/lib/y.go"},
		loadDeps: true,
	}
	r, rt := newReloader(p, Options{
		Sources: []FileSource{files{"/proj/lib/x.go", "/proj/lib/y.go"}},
		Apps:    mounts{app},
	})

	res, err := r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/proj/lib/x.go"}, res.Loaded)
	assert.Equal(t, []string{"/proj/lib/x.go"}, res.New)
	assert.Equal(t, []string{"web"}, res.Apps)
	assert.Equal(t, 1, p.runs["/proj/lib/y.go"])
	assert.Equal(t, ids("app.Handler", "lib.X", "lib.Y"), symbols(rt))
}

func TestApplicationEntryDelegates(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/app/app.go", unit{defines: ids("app.Handler")})
	app := &fakeApp{name: "web", entry: "/proj/app/app.go"}
	r, _ := newReloader(p, Options{Apps: mounts{app}})

	_, err := r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, app.reloads)

	p.write("/proj/app/app.go", unit{defines: ids("app.Handler")})
	res, err := r.ReloadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, app.reloads)
	assert.Empty(t, res.Loaded)

	app.err = errors.New("mount failed")
	p.write("/proj/app/app.go", unit{defines: ids("app.Handler")})
	_, err = r.ReloadAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reload application web")
}

func TestRequireRetriesOutOfOrderFiles(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/a.go", unit{defines: ids("a.A"), needs: ids("b.B")})
	p.write("/proj/b.go", unit{defines: ids("b.B")})
	r, rt := newReloader(p, Options{})

	require.NoError(t, r.Require(ctx, "/proj/a.go", "/proj/b.go"))
	assert.Equal(t, ids("a.A", "b.B"), symbols(rt))
	assert.Equal(t, 2, p.runs["/proj/a.go"])
	assert.Len(t, r.Tracked(), 2)

	// Already loaded and unchanged: nothing runs.
	require.NoError(t, r.Require(ctx, "/proj/a.go"))
	assert.Equal(t, 2, p.runs["/proj/a.go"])
}

func TestRequireReportsUnresolvableFiles(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/a.go", unit{needs: ids("missing.M")})
	r, _ := newReloader(p, Options{})

	err := r.Require(ctx, "/proj/a.go", "/proj/nope.go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined: missing.M")

	err = r.Require(ctx, "/proj/nope.go")
	assert.ErrorIs(t, err, ErrVanished)
}

func TestCanceledContextStopsPass(t *testing.T) {
	p := newProject(t)
	p.write("/proj/a.go", unit{})
	r, _ := newReloader(p, Options{Sources: []FileSource{files{"/proj/a.go"}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.ReloadAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEndToEndLoadFailClear(t *testing.T) {
	ctx := context.Background()
	p := newProject(t)
	p.write("/proj/a.src", unit{defines: ids("A")})
	r, rt := newReloader(p, Options{Sources: []FileSource{files{"/proj/a.src"}}, Threaded: true})

	// (1) fresh file loads and is tracked.
	_, err := r.ReloadAll(ctx)
	require.NoError(t, err)
	first, ok := r.Tracked()["/proj/a.src"]
	require.True(t, ok)
	assert.Equal(t, p.mtimes["/proj/a.src"], first)
	recs := r.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, ids("A"), recs[0].Symbols.Sorted())

	// (2) newer mtime with a broken body fails and keeps the old baseline.
	p.write("/proj/a.src", unit{fail: errors.New("syntax error: unexpected }")})
	_, err = r.ReloadAll(ctx)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	_, defined := rt.Symbols.Lookup("A")
	assert.False(t, defined)
	assert.Equal(t, first, r.Tracked()["/proj/a.src"])

	// (3) clear forgets everything.
	r.Clear()
	assert.Empty(t, r.Tracked())
	assert.Empty(t, symbols(rt))
	assert.Empty(t, r.Records())
}
