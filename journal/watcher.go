package journal

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/tessellate-ai/loom"
	"github.com/tessellate-ai/loom/log"
	"github.com/tessellate-ai/loom/store"
)

// ReviewWatcher observes the paths a session's journal touched while the
// session sits in review, and records any out-of-band edit in the session's
// progress log. A reviewed file changed outside the journal means accept and
// revert no longer round-trip, which the reviewer should know before
// deciding.
type ReviewWatcher struct {
	watcher *fsnotify.Watcher
	store   *store.Store
	logger  log.Logger

	mu       sync.Mutex
	sessions map[string][]string // session id -> watched paths
	paths    map[string]int      // path -> refcount across sessions

	done chan struct{}
	once sync.Once
}

// NewReviewWatcher starts a watcher goroutine that reports filesystem events
// on registered paths until Close.
func NewReviewWatcher(s *store.Store, logger log.Logger) (*ReviewWatcher, error) {
	if logger == nil {
		logger = log.NewNullLogger()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &ReviewWatcher{
		watcher:  fsw,
		store:    s,
		logger:   logger,
		sessions: make(map[string][]string),
		paths:    make(map[string]int),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch registers the journalled paths of a session entering review.
func (w *ReviewWatcher) Watch(ctx context.Context, sessionID string, paths []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, path := range paths {
		path = filepath.Clean(path)
		w.sessions[sessionID] = append(w.sessions[sessionID], path)
		if w.paths[path] == 0 {
			// Watch the parent so deletes and recreates of the file
			// itself are still observed.
			if err := w.watcher.Add(filepath.Dir(path)); err != nil {
				w.logger.Warn("failed to watch path", "path", path, "error", err)
			}
		}
		w.paths[path]++
	}
	return nil
}

// Unwatch drops a session's registrations, typically after accept or reject.
func (w *ReviewWatcher) Unwatch(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, path := range w.sessions[sessionID] {
		w.paths[path]--
		if w.paths[path] <= 0 {
			delete(w.paths, path)
		}
	}
	delete(w.sessions, sessionID)
}

// Close stops the watcher goroutine.
func (w *ReviewWatcher) Close() error {
	w.once.Do(func() { close(w.done) })
	return w.watcher.Close()
}

func (w *ReviewWatcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("review watcher error", "error", err)
		}
	}
}

func (w *ReviewWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename|fsnotify.Create) == 0 {
		return
	}
	path := filepath.Clean(event.Name)
	w.mu.Lock()
	_, watched := w.paths[path]
	var sessionIDs []string
	if watched {
		for id, paths := range w.sessions {
			for _, p := range paths {
				if p == path {
					sessionIDs = append(sessionIDs, id)
					break
				}
			}
		}
	}
	w.mu.Unlock()
	if !watched {
		return
	}
	w.logger.Warn("file under review modified outside session",
		"path", path, "op", event.Op.String())
	if w.store == nil {
		return
	}
	for _, id := range sessionIDs {
		err := w.store.AddProgress(context.Background(), &loom.ProgressEntry{
			SessionID: id,
			Step:      "review watch",
			Status:    loom.ProgressPending,
			Details:   "file modified outside session while under review: " + path,
		})
		if err != nil {
			w.logger.Warn("failed to record review watch event",
				"session_id", id, "path", path, "error", err)
		}
	}
}
