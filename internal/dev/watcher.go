package dev

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vango-dev/devserve/internal/errors"
)

// Batch is one coalesced "something changed under the root" signal.
type Batch struct {
	// Paths are the changed paths, deduplicated, in first-seen order.
	Paths []string

	// Events is the number of raw filesystem events merged into the batch.
	Events int
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Root is the directory watched recursively.
	Root string

	// Ignore patterns to skip (globs or path segments).
	Ignore []string

	// Debounce is the window in which raw events are merged into one Batch.
	Debounce time.Duration

	// Logger receives non-fatal watch problems. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultIgnore contains default patterns to ignore.
var DefaultIgnore = []string{
	".git",
	".hg",
	"node_modules",
	".DS_Store",
	"*.tmp",
	"*.swp",
	"*.swx",
	"*~",
	".#*",
	"4913",
}

// DefaultDebounce is used when WatcherConfig.Debounce is zero.
const DefaultDebounce = 100 * time.Millisecond

// rawBuffer bounds the queue between the fsnotify pump and the debouncer.
const rawBuffer = 256

// Watcher watches a directory tree and emits debounced change batches.
type Watcher struct {
	config  WatcherConfig
	logger  *slog.Logger
	batches chan Batch

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	running bool
}

// NewWatcher creates a new file watcher. Nothing is watched until Open.
func NewWatcher(config WatcherConfig) *Watcher {
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if config.Root == "" {
		config.Root = "."
	}
	config.Ignore = append(append([]string(nil), DefaultIgnore...), config.Ignore...)

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		config:  config,
		logger:  logger.With("component", "watcher"),
		batches: make(chan Batch, 1),
	}
}

// Open subscribes to change notifications for every directory under the
// root. A root that cannot be watched is an E120 error.
func (w *Watcher) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}

	info, err := os.Stat(w.config.Root)
	if err != nil {
		return errors.New("E120").WithDetail(w.config.Root).Wrap(err)
	}
	if !info.IsDir() {
		return errors.New("E120").
			WithDetailf("%s is not a directory", w.config.Root).
			WithSuggestion("The watch root must be a directory; use --root to pick one")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.New("E120").WithDetail(w.config.Root).Wrap(err)
	}
	if err := fsw.Add(w.config.Root); err != nil {
		fsw.Close()
		return errors.New("E120").WithDetail(w.config.Root).Wrap(err)
	}
	w.fsw = fsw
	w.addTree(fsw, w.config.Root)

	return nil
}

// Changes returns the debounced batch stream. At most one batch is pending;
// later changes are merged into it until it is received.
func (w *Watcher) Changes() <-chan Batch {
	return w.batches
}

// Run pumps filesystem events until ctx is done. It returns nil on
// cancellation and an E121 error if the notification stream fails.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	fsw := w.fsw
	if fsw == nil {
		w.mu.Unlock()
		return errors.New("E121").WithDetail("watcher was not opened")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	raw := make(chan string, rawBuffer)
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go debounce(dctx, raw, w.batches, w.config.Debounce)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return errors.New("E121").WithDetail("event stream closed")
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.addTree(fsw, ev.Name)
				}
			}
			select {
			case raw <- ev.Name:
			default:
				// The debouncer is behind; a batch is already on its way.
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("E121").WithDetail("error stream closed")
			}
			return errors.New("E121").Wrap(err)
		}
	}
}

// Close stops OS notifications.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return nil
	}
	err := w.fsw.Close()
	w.fsw = nil
	return err
}

// IsRunning returns whether the watcher is running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// WatchList returns the directories currently subscribed.
func (w *Watcher) WatchList() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return nil
	}
	return w.fsw.WatchList()
}

// addTree subscribes every directory below dir. Unreadable subdirectories
// are logged and skipped.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) {
	filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("skipping unreadable path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() || p == w.config.Root {
			return nil
		}
		if w.shouldIgnore(p) {
			return filepath.SkipDir
		}
		if err := fsw.Add(p); err != nil {
			w.logger.Warn("cannot watch directory", "path", p, "error", err)
		}
		return nil
	})
}

// relevant filters out ignored paths and permission-only changes.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	return !w.shouldIgnore(ev.Name)
}

// shouldIgnore checks a path, taken relative to the root, against the
// ignore patterns.
func (w *Watcher) shouldIgnore(fullPath string) bool {
	rel, err := filepath.Rel(w.config.Root, fullPath)
	if err != nil {
		rel = fullPath
	}
	normalized := filepath.ToSlash(rel)
	name := path.Base(normalized)

	for _, pattern := range w.config.Ignore {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		if name == pattern {
			return true
		}

		hasPathSep := strings.Contains(pattern, "/")
		hasGlob := strings.ContainsAny(pattern, "*?[")

		if hasGlob {
			if hasPathSep {
				if matched, _ := path.Match(pattern, normalized); matched {
					return true
				}
			} else if matched, _ := path.Match(pattern, name); matched {
				return true
			}
			continue
		}

		if hasPathSep {
			if pathMatchesSegments(normalized, pattern) {
				return true
			}
			continue
		}

		if pathHasSegment(normalized, pattern) {
			return true
		}
	}

	return false
}

func pathHasSegment(p, segment string) bool {
	for _, part := range splitPathSegments(p) {
		if part == segment {
			return true
		}
	}
	return false
}

func pathMatchesSegments(p, pattern string) bool {
	pathParts := splitPathSegments(p)
	patternParts := splitPathSegments(pattern)
	if len(patternParts) == 0 || len(patternParts) > len(pathParts) {
		return false
	}

	for i := 0; i <= len(pathParts)-len(patternParts); i++ {
		match := true
		for j := range patternParts {
			if pathParts[i+j] != patternParts[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}

	return false
}

func splitPathSegments(p string) []string {
	if p == "" {
		return nil
	}
	parts := strings.Split(p, "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return result
}

// debounce merges raw paths arriving within window of the first one into a
// single Batch. out must have capacity 1; a batch still sitting in out is
// merged with the new one instead of queueing a second.
func debounce(ctx context.Context, in <-chan string, out chan Batch, window time.Duration) {
	var (
		pending Batch
		seen    = make(map[string]struct{})
		timer   *time.Timer
		fire    <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case p, ok := <-in:
			if !ok {
				return
			}
			pending.Events++
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				pending.Paths = append(pending.Paths, p)
			}
			if fire == nil {
				timer = time.NewTimer(window)
				fire = timer.C
			}

		case <-fire:
			fire = nil
			emit(out, pending)
			pending = Batch{}
			clear(seen)
		}
	}
}

func emit(out chan Batch, b Batch) {
	select {
	case old := <-out:
		b.Events += old.Events
		b.Paths = mergePaths(old.Paths, b.Paths)
	default:
	}
	select {
	case out <- b:
	default:
	}
}

func mergePaths(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	out := append([]string(nil), a...)
	for _, p := range a {
		seen[p] = struct{}{}
	}
	for _, p := range b {
		if _, ok := seen[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}
