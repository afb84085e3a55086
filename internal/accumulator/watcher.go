package accumulator

import (
	"context"
	"time"

	"github.com/vadiminshakov/stacker/config"
	"go.uber.org/zap"
)

// watchToggles periodically re-reads the strategy enable/disable file and
// reconciles the worker table: enabled-but-missing workers start, running-but-
// disabled workers stop. It never touches the ledger, so it is safe to run
// while fills keep arriving.
func (a *Accumulator) watchToggles(ctx context.Context, workerCtx context.Context) {
	ticker := time.NewTicker(a.cfg.TogglesInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			toggles, err := config.LoadToggles(a.cfg.TogglesPath)
			if err != nil {
				a.logger.Warn("failed to reload strategy toggles",
					zap.String("path", a.cfg.TogglesPath),
					zap.Error(err))
				continue
			}
			a.reconcile(workerCtx, toggles)
		}
	}
}

// reconcile aligns the running workers with the desired set.
func (a *Accumulator) reconcile(ctx context.Context, enabled map[string]bool) {
	if a.State() != StateRunning {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for name, want := range enabled {
		w, running := a.workers[name]
		switch {
		case want && !running:
			w = a.newWorker(name)
			if w == nil {
				continue
			}
			a.logger.Info("enabling strategy", zap.String("strategy", name))
			w.Start(ctx, 0)
			a.workers[name] = w
		case !want && running:
			a.logger.Info("disabling strategy", zap.String("strategy", name))
			w.Stop(a.cfg.StopTimeout)
			delete(a.workers, name)
		}
	}
}
