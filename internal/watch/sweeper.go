package watch

// sweeper.go re-submits files that linger in the staging directory.
//
// Notifications are not guaranteed to recur for a file whose commit failed,
// so the sweeper periodically scans the directory and submits whatever is
// still there. The dispatcher's per-path bookkeeping keeps a sweep from
// duplicating work already in flight.

import (
	"context"
	"log/slog"
	"time"
)

// Sweep scans the directory every interval until ctx is cancelled. A
// non-positive interval disables sweeping and returns immediately.
func (w *Watcher) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	slog.Info("staging sweeper started", "dir", w.dir, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("staging sweeper stopped")
			return
		case <-ticker.C:
			w.sweepOnce()
		}
	}
}

func (w *Watcher) sweepOnce() {
	start := time.Now()
	n, err := w.Scan()
	if err != nil {
		slog.Error("staging sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("staging sweep resubmitted files",
			"files", n,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
