// Package watch reruns work when files under a local directory change.
//
// Filesystem events are collected per path and released as one batch once
// the tree has been quiet for the debounce period, so a burst of saves
// triggers a single rerun.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pithecene-io/groupcat/log"
)

// DefaultDebounce is the quiet period before a batch is released.
const DefaultDebounce = 300 * time.Millisecond

// Config configures a Watcher.
type Config struct {
	// Root is the directory watched recursively (required).
	Root string
	// Debounce is the quiet period. Zero means DefaultDebounce.
	Debounce time.Duration
	// Ignore lists directories whose events are dropped, typically the
	// output directory when it lives under Root.
	Ignore []string
	// Logger is optional.
	Logger *log.Logger
}

// Stats counts watcher activity.
type Stats struct {
	Events  int
	Batches int
	Errors  int
}

// Watcher watches a directory tree.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	debounce time.Duration
	ignore   []string
	logger   *log.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	last    time.Time
	stats   Stats
}

// New creates a watcher and registers every directory under cfg.Root.
// Watches are in place when New returns.
func New(cfg Config) (*Watcher, error) {
	if cfg.Root == "" {
		return nil, errors.New("watch root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("watch root: %w", err)
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ignore := make([]string, 0, len(cfg.Ignore))
	for _, p := range cfg.Ignore {
		if abs, err := filepath.Abs(p); err == nil {
			ignore = append(ignore, abs)
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fw,
		root:     root,
		debounce: debounce,
		ignore:   ignore,
		logger:   cfg.Logger,
		pending:  make(map[string]struct{}),
	}
	if err := w.addTree(root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// addTree watches dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(p) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) ignored(p string) bool {
	for _, dir := range w.ignore {
		if p == dir || strings.HasPrefix(p, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Run delivers debounced change batches to fn until ctx is done or fn
// fails. Paths in a batch are sorted and deduplicated. Run closes the
// watcher before returning; a Watcher runs once.
func (w *Watcher) Run(ctx context.Context, fn func(ctx context.Context, changed []string) error) error {
	defer func() { _ = w.watcher.Close() }()

	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
			w.logWarn("watch error", map[string]any{"error": err.Error()})

		case <-ticker.C:
			batch := w.takeBatch()
			if len(batch) == 0 {
				continue
			}
			w.logInfo("change detected", map[string]any{"paths": len(batch), "first": batch[0]})
			if err := fn(ctx, batch); err != nil {
				return err
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod || w.ignored(event.Name) {
		return
	}

	// New directories are not covered by existing watches.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logWarn("watch new directory failed", map[string]any{"path": event.Name, "error": err.Error()})
			}
		}
	}

	w.mu.Lock()
	w.pending[event.Name] = struct{}{}
	w.last = time.Now()
	w.stats.Events++
	w.mu.Unlock()
}

// takeBatch releases pending paths once no event arrived for the debounce
// period.
func (w *Watcher) takeBatch() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 || time.Since(w.last) < w.debounce {
		return nil
	}
	batch := make([]string, 0, len(w.pending))
	for p := range w.pending {
		batch = append(batch, p)
	}
	sort.Strings(batch)
	w.pending = make(map[string]struct{})
	w.stats.Batches++
	return batch
}

// Stats returns a copy of the watcher counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) logInfo(msg string, fields map[string]any) {
	if w.logger != nil {
		w.logger.Info(msg, fields)
	}
}

func (w *Watcher) logWarn(msg string, fields map[string]any) {
	if w.logger != nil {
		w.logger.Warn(msg, fields)
	}
}
