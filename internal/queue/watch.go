package queue

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// Watch runs the long-lived filesystem-event mode. Create and write events
// on the incoming directory arm a debounce window (the file may still be
// being written), and each firing triggers a full queue sweep rather than
// processing only the triggering file, which covers missed events cheaply.
// A sweep in progress causes new triggers to be ignored, not queued; the
// physical claim move keeps a later sweep from double-processing.
//
// Watch blocks until ctx is cancelled.
func (q *Queue) Watch(ctx context.Context, window time.Duration, sweep func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(q.Dir(StateIncoming)); err != nil {
		return fmt.Errorf("failed to watch incoming directory: %w", err)
	}

	var busy atomic.Bool
	trigger := func() {
		if !busy.CompareAndSwap(false, true) {
			slog.Debug("sweep already in progress, ignoring trigger")
			return
		}
		defer busy.Store(false)

		sweep()
	}

	debounced := debounce.New(window)

	// Sweep whatever accumulated while the watcher was down.
	debounced(trigger)

	slog.Info("watching for recordings", "dir", q.Dir(StateIncoming), "debounce", window)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !IsSupportedAudio(filepath.Base(event.Name)) {
				continue
			}

			slog.Debug("incoming event", "file", filepath.Base(event.Name), "op", event.Op.String())
			debounced(trigger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("filesystem watcher error", "error", err)
		}
	}
}
