// Package watcher implements the File Watcher (spec §4.E): a debounced
// recursive watch that posts exactly one WatchFired event to the
// supervisor loop per burst of filesystem activity, no matter how many raw
// events the burst produced.
//
// The debounce pattern — a single reused timer, not one goroutine per
// event — is grounded on chainwatch's internal/daemon/watcher.go, which
// calls out the same fatal failure mode (thread exhaustion from per-event
// time.AfterFunc) this package avoids.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches root (recursively) and calls fire once per debounce
// window in which at least one filesystem event occurred. The watcher
// never mutates any supervisor state itself; it only calls fire (spec
// §4.E "the watcher thread/task never mutates the table; it only posts the
// event").
type Watcher struct {
	root     string
	debounce time.Duration
	fire     func()

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// Start begins watching root and returns a handle that must be stopped
// with Close. fire is invoked (from the watcher's own goroutine, never
// concurrently with itself) at most once per debounce window.
func Start(root string, debounce time.Duration, fire func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := addRecursive(fsw, root); err != nil {
		fsw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		root:     root,
		debounce: debounce,
		fire:     fire,
		fsw:      fsw,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.run(ctx)
	return w, nil
}

// Close tears down the watcher (spec §4.E "watchers are ... torn down at
// stop/remove").
func (w *Watcher) Close() {
	w.cancel()
	<-w.done
	w.fsw.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	dirty := false
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-timer.C:
			if dirty {
				dirty = false
				w.fire()
			}

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// A new directory created inside the tree must itself be
			// watched for the recursion to keep covering it.
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					addRecursive(w.fsw, ev.Name)
				}
			}
			dirty = true
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Sampling-style tolerance: a single watch error does not
			// tear down the whole watcher (spec §4.C applies the same
			// policy to sampler errors; a watcher is no different).
		}
	}
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable subtrees rather than aborting the whole watch
		}
		if d.IsDir() {
			fsw.Add(path)
		}
		return nil
	})
}
