package monitor

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/types"
)

// watcher feeds file-system changes into the change queue. It watches
// directories recursively, picks up directories created after start,
// and filters events through the configured watch/ignore patterns
// before they cost a queue slot.
type watcher struct {
	fs    *fsnotify.Watcher
	cfg   *config.MonitorConfig
	queue *changeQueue
	root  string

	wg sync.WaitGroup
}

func newWatcher(root string, cfg *config.MonitorConfig, queue *changeQueue) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	return &watcher{fs: fsw, cfg: cfg, queue: queue, root: root}, nil
}

// Start registers the directory tree and launches the event loop
func (w *watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.root); err != nil {
		w.fs.Close()
		return err
	}

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop closes the underlying watcher and waits for the loop to exit
func (w *watcher) Stop() {
	w.fs.Close()
	w.wg.Wait()
}

func (w *watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			fmt.Printf("Watcher: error: %v\n", err)
		}
	}
}

func (w *watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if w.ignored(ev.Name) {
		return
	}

	// New directories join the watch set immediately so files created
	// inside them are seen.
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				fmt.Printf("Watcher: failed to watch new directory %s: %v\n", ev.Name, err)
			}
			return
		}
	}

	if !w.matchesWatch(ev.Name) {
		return
	}

	kind, ok := changeKind(ev.Op)
	if !ok {
		return
	}

	change := types.ChangeEvent{Path: ev.Name, Kind: kind, Timestamp: time.Now().UTC()}
	if err := w.queue.Push(ctx, change); err != nil {
		fmt.Printf("Watcher: dropping event for %s: %v\n", ev.Name, err)
	}
}

// addTree registers a directory and everything under it, skipping
// ignored subtrees
func (w *watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A directory vanishing mid-walk is routine during builds.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// matchesWatch applies WatchPatterns to the file's base name
func (w *watcher) matchesWatch(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.cfg.WatchPatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// ignored applies IgnorePatterns to every path segment
func (w *watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	for _, segment := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, pattern := range w.cfg.IgnorePatterns {
			if ok, _ := filepath.Match(pattern, segment); ok {
				return true
			}
		}
	}
	return false
}

func changeKind(op fsnotify.Op) (types.ChangeKind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return types.ChangeCreated, true
	case op.Has(fsnotify.Write):
		return types.ChangeModified, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return types.ChangeDeleted, true
	default:
		// Chmod and friends do not affect drift
		return "", false
	}
}
