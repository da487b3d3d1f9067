package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cristianoliveira/badgesync/internal/badge"
)

// Watcher turns writes to the database files into change events. SQLite has
// no per-row notifications, so every commit by any process is reported as
// Updated for the subscribed principal and the engine rechecks the count.
type Watcher struct {
	path string
}

// NewWatcher watches the database at dbPath, including its -wal and
// -journal side files.
func NewWatcher(dbPath string) *Watcher {
	return &Watcher{path: dbPath}
}

// Subscribe implements badge.EventSource.
func (w *Watcher) Subscribe(ctx context.Context, principal string) (<-chan badge.ChangeEvent, badge.CancelFunc, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite watcher: create: %w", err)
	}
	// Watch the directory: the database file may be replaced, and the WAL
	// file may not exist yet.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, nil, fmt.Errorf("sqlite watcher: watch %s: %w", filepath.Dir(w.path), err)
	}

	out := make(chan badge.ChangeEvent, 1)
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(stop) }) }

	go func() {
		defer close(out)
		defer fw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if !w.relevant(ev) {
					continue
				}
				// A queued event already means "recheck"; drop the rest.
				select {
				case out <- badge.ChangeEvent{Kind: badge.Updated, Principal: principal, At: time.Now()}:
				default:
				}
			case <-fw.Errors:
				// Ends the subscription; the engine resubscribes with backoff.
				return
			}
		}
	}()

	return out, cancel, nil
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	switch filepath.Clean(ev.Name) {
	case filepath.Clean(w.path), filepath.Clean(w.path + "-wal"), filepath.Clean(w.path + "-journal"):
		return true
	}
	return false
}
