// Package middleware triggers reload passes from incoming HTTP requests.
package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"hotload/internal/logging"
	"hotload/internal/reload"
)

// Engine runs reload passes.
type Engine interface {
	ReloadAll(ctx context.Context) (reload.Result, error)
}

// Options configure the middleware.
type Options struct {
	// Cooldown is the minimum time between passes. Zero checks on every
	// request.
	Cooldown time.Duration
	// FailOnError answers the triggering request with 500 when its pass
	// fails. Otherwise the failure is logged and the request is served by
	// the code still loaded.
	FailOnError bool
}

// Reloader runs at most one pass per cooldown window before handing the
// request on.
type Reloader struct {
	engine Engine
	opts   Options
	now    func() time.Time

	mu     sync.Mutex
	last   time.Time
	passes int
}

// New creates the middleware.
func New(engine Engine, opts Options) *Reloader {
	return &Reloader{engine: engine, opts: opts, now: time.Now}
}

// Wrap returns next behind the reload check.
func (m *Reloader) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := m.check(r.Context()); err != nil && m.opts.FailOnError {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Passes returns how many passes the middleware has run.
func (m *Reloader) Passes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.passes
}

func (m *Reloader) check(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.last.IsZero() && now.Sub(m.last) < m.opts.Cooldown {
		return nil
	}
	m.last = now
	m.passes++

	// A client hanging up must not abort a pass halfway.
	res, err := m.engine.ReloadAll(context.WithoutCancel(ctx))
	if err != nil {
		logging.ServerWarn("reload failed, serving loaded code: %v", err)
		return err
	}
	if res.Changed() {
		logging.Server("reloaded %d files, %d applications in %s", len(res.Loaded), len(res.Apps), res.Duration)
	}
	return nil
}
