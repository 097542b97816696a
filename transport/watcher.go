package transport

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/raktradar/relay/errors"
	"github.com/raktradar/relay/logging"
	"github.com/raktradar/relay/store"
	"github.com/sirupsen/logrus"
)

// StoreWatcher turns cross-process store writes into deliveries: when
// another dashboard process rewrites the store document, the watcher
// re-reads the active notification log and hands new entries to its
// handler. This is the storage-signaling channel; deduplication makes its
// overlap with the broadcast channel harmless.
type StoreWatcher struct {
	st       *store.Store
	watcher  *fsnotify.Watcher
	deliver  Handler
	logger   *logrus.Entry
	debounce time.Duration

	mu         sync.Mutex
	since      time.Time
	lastChange time.Time
	trailing   *time.Timer
	closed     bool
}

// NewStoreWatcher watches the store's document for external writes and
// delivers newly appended active notifications to deliver. Events that
// predate the watcher are never delivered; historical replay is the
// caller's job via ListActiveNotifications.
func NewStoreWatcher(st *store.Store, deliver Handler) (*StoreWatcher, error) {
	path := st.Path()
	if path == "" {
		return nil, errors.New(errors.ErrCodeWatchFailed, "store has no file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeWatchFailed, "failed to create watcher")
	}
	// The document is replaced by rename, so watch its directory; watching
	// the file itself would detach on the first write.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, errors.Wrap(err, errors.ErrCodeWatchFailed, "failed to watch store directory")
	}

	return &StoreWatcher{
		st:       st,
		watcher:  watcher,
		deliver:  deliver,
		logger:   logging.NewLogger("store-watcher"),
		debounce: 50 * time.Millisecond,
		since:    time.Now(),
	}, nil
}

// Start begins watching. It blocks until the context is cancelled.
func (w *StoreWatcher) Start(ctx context.Context) {
	path := w.st.Path()
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.handleChange()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.watcher.Close()
			return
		}
	}
}

// handleChange re-reads the notification log with debouncing and delivers
// everything newer than the cursor. A change landing inside the debounce
// interval arms one trailing re-read, so the last write of a burst is still
// picked up instead of waiting for the next event or poll.
func (w *StoreWatcher) handleChange() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if elapsed := time.Since(w.lastChange); elapsed < w.debounce {
		if w.trailing == nil {
			w.trailing = time.AfterFunc(w.debounce-elapsed, func() {
				w.mu.Lock()
				w.trailing = nil
				w.mu.Unlock()
				w.handleChange()
			})
		}
		w.mu.Unlock()
		return
	}
	w.lastChange = time.Now()
	since := w.since
	w.mu.Unlock()

	fresh := w.st.ListActiveNotifications(since)
	if len(fresh) == 0 {
		return
	}

	newest := since
	for _, n := range fresh {
		if n.CreatedAt.After(newest) {
			newest = n.CreatedAt
		}
	}

	w.mu.Lock()
	if newest.After(w.since) {
		w.since = newest
	}
	w.mu.Unlock()

	for _, n := range fresh {
		w.deliver(n)
	}
}

// Close stops the watcher, cancels any pending trailing re-read, and
// releases resources.
func (w *StoreWatcher) Close() error {
	w.mu.Lock()
	w.closed = true
	if w.trailing != nil {
		w.trailing.Stop()
		w.trailing = nil
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
