package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hotload/internal/middleware"
)

const (
	statusPath      = "/_hotload/status"
	shutdownTimeout = 5 * time.Second
)

// serveCmd serves mounted applications with request-triggered reloads
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve mounted applications, reloading changed units on request",
	Long: `Boots the engine and serves every application that declares a mount and a
handler symbol. At most one request per cooldown window runs a reload pass;
a failed pass is logged and the loaded code keeps serving unless
server.fail_on_error is set.

Only one serve may run per workspace.`,
	RunE: runServe,
}

// acquireServeLock takes the per-workspace single-instance lock.
func acquireServeLock(ws string) (*flock.Flock, error) {
	path := filepath.Join(ws, ".hotload", "serve.lock")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire serve lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another hotload serve is running in %s", ws)
	}
	return lock, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := openEngine()
	if err != nil {
		return err
	}
	lock, err := acquireServeLock(e.workspace)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("Failed to release serve lock", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if res, err := e.reloader.ReloadAll(ctx); err != nil {
		logger.Warn("Initial load failed, retrying on next request", zap.Error(err))
	} else {
		logger.Info("Initial load complete",
			zap.Int("files", len(res.Loaded)),
			zap.Int("apps", len(res.Apps)),
			zap.Duration("duration", res.Duration))
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = e.cfg.Server.Addr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           newServeHandler(e),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Serving", zap.String("addr", addr), zap.Duration("cooldown", e.cfg.GetCooldown()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newServeHandler routes the status endpoint directly and every other
// request through the reload middleware to the mounted applications.
func newServeHandler(e *engine) http.Handler {
	mw := middleware.New(e.reloader, middleware.Options{
		Cooldown:    e.cfg.GetCooldown(),
		FailOnError: e.cfg.Server.FailOnError,
	})
	mux := http.NewServeMux()
	mux.HandleFunc(statusPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(collectStatus(e)); err != nil {
			logger.Warn("Failed to write status", zap.Error(err))
		}
	})
	mux.Handle("/", mw.Wrap(e.apps.Router(e.rt)))
	return mux
}
