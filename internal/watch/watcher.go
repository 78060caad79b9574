// Package watch observes the staging directory and forwards file events.
//
// The Watcher reads fsnotify notifications on its own goroutine and hands
// each qualifying one to a Sink without blocking, so slow processing never
// delays notification delivery. Only create and write notifications are
// forwarded. Removals, renames away and chmods are dropped.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/JonMunkholm/celllog/internal/ingest"
)

// Sink receives events. Submit must not block.
type Sink interface {
	Submit(ev ingest.FileEvent)
}

// Watcher watches one directory, non-recursively.
type Watcher struct {
	dir  string
	sink Sink

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a watcher for dir.
func New(dir string, sink Sink) *Watcher {
	return &Watcher{
		dir:   dir,
		sink:  sink,
		ready: make(chan struct{}),
	}
}

// Ready is closed once Run has registered the directory with the OS.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run watches until ctx is cancelled. It returns an error only if the watch
// cannot be established or the notification channels close unexpectedly.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.readyOnce.Do(func() { close(w.ready) })
	slog.Info("watching staging directory", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			slog.Info("watcher stopped", "dir", w.dir)
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			w.handle(ev)

		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			// Overflow means events were lost; a scan recovers them.
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				slog.Warn("watcher queue overflow, rescanning", "dir", w.dir)
				if _, err := w.Scan(); err != nil {
					slog.Error("rescan failed", "dir", w.dir, "error", err)
				}
				continue
			}
			slog.Warn("watcher error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	var op ingest.Op
	switch {
	case ev.Has(fsnotify.Create):
		op = ingest.OpCreate
	case ev.Has(fsnotify.Write):
		op = ingest.OpWrite
	default:
		return
	}

	// A file that is already gone is still forwarded; the pipeline treats
	// it as vanished input.
	isDir := false
	if info, err := os.Lstat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	slog.Debug("file event", "path", ev.Name, "op", op, "dir", isDir)
	w.sink.Submit(ingest.FileEvent{
		Path:  ev.Name,
		Op:    op,
		IsDir: isDir,
		At:    time.Now(),
	})
}

// Scan submits every regular file currently in the directory as a synthetic
// event and returns how many were submitted.
func (w *Watcher) Scan() (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", w.dir, err)
	}

	now := time.Now()
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.sink.Submit(ingest.FileEvent{
			Path: filepath.Join(w.dir, e.Name()),
			Op:   ingest.OpScan,
			At:   now,
		})
		n++
	}
	return n, nil
}
