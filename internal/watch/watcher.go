// Package watch re-validates the selected package whenever it changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/JonMunkholm/addonvalidator/internal/gate"
	"github.com/JonMunkholm/addonvalidator/internal/logging"
)

// DefaultDebounce collapses the bursts of events editors and copy tools emit.
const DefaultDebounce = 250 * time.Millisecond

// Watcher watches one file and feeds every new version of it to a
// gate.Validator, just as picking a new file in the form would.
type Watcher struct {
	path      string
	validator *gate.Validator
	debounce  time.Duration
	sources   func(path string) gate.ContentSource

	mu      sync.Mutex
	running bool
	fsw     *fsnotify.Watcher
	done    chan struct{}
}

// New returns a Watcher for path. contentAccess mirrors the runtime
// capability: without it the validator gets no content source.
func New(path string, v *gate.Validator, contentAccess bool) *Watcher {
	w := &Watcher{
		path:      filepath.Clean(path),
		validator: v,
		debounce:  DefaultDebounce,
	}
	if contentAccess {
		w.sources = func(p string) gate.ContentSource { return gate.NewFileSource(p) }
	} else {
		w.sources = func(string) gate.ContentSource { return nil }
	}
	return w
}

// SetDebounce overrides the debounce window. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start validates the file once and then watches its directory. It returns
// immediately; events are handled until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: many tools replace files by rename, which drops
	// a watch placed on the file itself.
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	w.fsw = fsw
	w.done = make(chan struct{})
	w.running = true

	w.revalidate(ctx)
	go w.run(ctx)
	return nil
}

// Stop ends watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	fsw, done := w.fsw, w.done
	w.mu.Unlock()

	fsw.Close()
	<-done
}

// Done is closed once the event loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	logger := logging.WithFields(ctx, "file", w.path)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.fsw.Close()
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			logger.Debug("package changed", "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watch error", "error", err)

		case <-fire:
			fire = nil
			w.revalidate(ctx)
		}
	}
}

func (w *Watcher) revalidate(ctx context.Context) {
	g := w.validator.Validate(ctx, filepath.Base(w.path), w.sources(w.path))
	logging.FromContext(ctx).Debug("package re-validated", "file", w.path, "allowed", g.Allowed, "reason", g.Reason.String())
}
