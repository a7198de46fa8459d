// Package watch re-runs the pipeline when files under the input root
// change.
//
// Every directory in the tree is watched, including directories created
// after the watch starts. Bursts of events are coalesced: the callback
// fires once the tree has been quiet for the debounce interval, and never
// more than once per interval.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/bimmerbailey/sift/internal/errors"
)

// DefaultDebounce is used when Options.Debounce is zero.
const DefaultDebounce = 2 * time.Second

// Options configures a Watcher.
type Options struct {
	Root     string
	Debounce time.Duration
	// Ignore skips events for matching paths, for example the output root.
	Ignore func(path string) bool
	// OnChange runs after a quiet period following one or more changes.
	OnChange func(ctx context.Context) error
	Logger   *slog.Logger
}

// Watcher watches a directory tree.
type Watcher struct {
	opts    Options
	watcher *fsnotify.Watcher
	limiter *rate.Limiter
}

// New validates opts. Nothing is watched until Run.
func New(opts Options) (*Watcher, error) {
	if opts.Logger == nil {
		return nil, errors.New("watch: logger is required")
	}
	if opts.OnChange == nil {
		return nil, errors.New("watch: OnChange is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Ignore == nil {
		opts.Ignore = func(string) bool { return false }
	}
	return &Watcher{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.Debounce), 1),
	}, nil
}

// Run blocks until ctx is cancelled or the watcher fails. Cancellation is
// not an error.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.setupWatcher(); err != nil {
		return err
	}
	defer w.watcher.Close()

	// The caller has just run the pipeline.
	w.limiter.Allow()

	timer := time.NewTimer(w.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	w.opts.Logger.Info("watching for changes", "root", w.opts.Root, "debounce", w.opts.Debounce)
	pending := 0
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("watcher closed unexpectedly")
			}
			if w.handleEvent(event) {
				pending++
				timer.Reset(w.opts.Debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			w.opts.Logger.Warn("watcher error", "error", err)

		case <-timer.C:
			if err := w.limiter.Wait(ctx); err != nil {
				return nil
			}
			w.opts.Logger.Info("change detected, re-running", "events", pending)
			pending = 0
			if err := w.opts.OnChange(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.opts.Logger.Error("re-run failed", "error", err)
			}
		}
	}
}

// setupWatcher registers every directory under the root.
func (w *Watcher) setupWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	w.watcher = watcher

	if err := w.addTree(w.opts.Root); err != nil {
		watcher.Close()
		return err
	}
	return nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return errors.Filesystem(err, "watch %s", root)
			}
			w.opts.Logger.Warn("cannot watch directory", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.opts.Ignore(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return errors.Filesystem(err, "watch %s", path)
		}
		return nil
	})
}

// handleEvent reports whether event should trigger a re-run. New
// directories are added to the watch.
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	if w.opts.Ignore(event.Name) {
		return false
	}
	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.opts.Logger.Warn("cannot watch new directory", "path", event.Name, "error", err)
			}
		}
		return true
	case event.Has(fsnotify.Write), event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return true
	}
	// Chmod alone does not change content.
	return false
}
