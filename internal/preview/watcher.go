package preview

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Watcher polls the store's file and calls onChange after each reload, so
// edits made with a text editor show up in the preview.
type Watcher struct {
	logger   *slog.Logger
	store    *Store
	clock    clockwork.Clock
	interval time.Duration
	onChange func()
}

// NewWatcher creates a watcher. Call Run to start polling.
func NewWatcher(logger *slog.Logger, store *Store, clock clockwork.Clock, interval time.Duration, onChange func()) *Watcher {
	return &Watcher{
		logger:   logger,
		store:    store,
		clock:    clock,
		interval: interval,
		onChange: onChange,
	}
}

// Run polls until ctx is canceled. It always returns nil; poll failures are
// logged and retried on the next tick.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			w.poll()
		case <-ctx.Done():
			w.logger.Debug("profile watcher stopped")
			return nil
		}
	}
}

func (w *Watcher) poll() {
	changed, err := w.store.ReloadIfChanged()
	if err != nil {
		w.logger.Warn("profile reload failed", "path", w.store.Path(), "error", err)
		return
	}
	if !changed {
		return
	}

	_, fallbacks := w.store.Snapshot()
	w.logger.Info("profile changed on disk", "path", w.store.Path(), "fallbacks", len(fallbacks))
	for _, fb := range fallbacks {
		w.logger.Warn("profile field fell back to default", "entry", fb.String())
	}
	if w.onChange != nil {
		w.onChange()
	}
}
