// Package watcher turns filesystem activity below the content root into coalesced
// rebuild triggers.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchSetupError reports that change notification could not be initialized.
type WatchSetupError struct {
	Path string
	Err  error
}

func (e *WatchSetupError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("watch setup: %v", e.Err)
	}
	return fmt.Sprintf("watch setup %s: %v", e.Path, e.Err)
}

func (e *WatchSetupError) Unwrap() error { return e.Err }

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period after the last event before a trigger fires.
	// Zero fires on every event (still coalesced by the trigger slot).
	Debounce time.Duration
	// Ignore lists directories whose events never trigger, typically the output root
	// when it lives below the content root.
	Ignore []string
}

// Watcher observes a directory tree and emits triggers on a single-slot channel.
// A trigger that is not consumed absorbs every later one until it is.
type Watcher struct {
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	triggers chan struct{}
	root     string
	ignore   []string
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// New registers root and all of its subdirectories. Failure to create the
// notifier or to register root is a *WatchSetupError; subdirectories that cannot
// be registered are logged and skipped.
func New(root string, logger *slog.Logger, opts Options) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, &WatchSetupError{Path: root, Err: err}
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, &WatchSetupError{Path: absRoot, Err: err}
	}
	if !info.IsDir() {
		return nil, &WatchSetupError{Path: absRoot, Err: errors.New("not a directory")}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &WatchSetupError{Err: err}
	}

	w := &Watcher{
		fsw:      fsw,
		logger:   logger.With("component", "watcher"),
		triggers: make(chan struct{}, 1),
		root:     absRoot,
		debounce: opts.Debounce,
	}
	for _, dir := range opts.Ignore {
		if abs, err := filepath.Abs(dir); err == nil {
			w.ignore = append(w.ignore, abs)
		}
	}

	if err := fsw.Add(absRoot); err != nil {
		_ = fsw.Close()
		return nil, &WatchSetupError{Path: absRoot, Err: err}
	}
	w.addRecursive(absRoot)

	return w, nil
}

// Triggers returns the channel receiving one value per coalesced burst of changes.
func (w *Watcher) Triggers() <-chan struct{} {
	return w.triggers
}

// Run forwards filesystem events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching for changes", slog.String("root", w.root))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", slog.Any("err", err))
		}
	}
}

// Close stops any pending trigger and releases the notifier.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Name == "" || w.ignored(event.Name) {
		return
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addRecursive(event.Name)
		}
	}

	w.logger.Debug("change detected", slog.String("path", event.Name), slog.String("op", event.Op.String()))
	w.schedule()
}

// schedule (re)starts the debounce timer.
func (w *Watcher) schedule() {
	if w.debounce <= 0 {
		w.fire()
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	select {
	case w.triggers <- struct{}{}:
	default:
	}
}

func (w *Watcher) addRecursive(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignoredDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", slog.String("path", path), slog.Any("err", err))
		}
		return nil
	})
}

func (w *Watcher) ignored(path string) bool {
	return w.ignoredDir(path) || isScratchFile(filepath.Base(path))
}

func (w *Watcher) ignoredDir(path string) bool {
	for _, dir := range w.ignore {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

// isScratchFile matches editor swap, backup, and lock files and OS litter.
func isScratchFile(base string) bool {
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasPrefix(base, ".#"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"),
		base == ".DS_Store",
		base == "Thumbs.db":
		return true
	}
	return false
}
