// Package watch observes a project tree through fsnotify and feeds debounced
// per-file changes to the indexer. Each path gets its own debounce timer; a
// secondary batch timer coalesces processed events into grouped emissions
// for subscribers.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// EventType mirrors the three mutations the indexer cares about.
type EventType string

const (
	EventAdd    EventType = "add"
	EventChange EventType = "change"
	EventDelete EventType = "delete"
)

// Event is one debounced file mutation.
type Event struct {
	Path string    `json:"path"`
	Type EventType `json:"type"`
	At   time.Time `json:"at"`
}

// Handler applies a debounced event. The watcher calls HandleChange for both
// add and change (the indexer's hash check makes them idempotent) and
// HandleDelete for removals.
type Handler interface {
	HandleChange(ctx context.Context, path string) error
	HandleDelete(ctx context.Context, path string) error
}

// Watcher wires fsnotify to a Handler with per-path debouncing.
type Watcher struct {
	root     string
	exclude  []string
	debounce time.Duration
	handler  Handler

	fsw *fsnotify.Watcher

	mu          sync.Mutex
	timers      map[string]*time.Timer
	pendingType map[string]EventType
	batch       []Event
	batchTimer  *time.Timer
	subscribers []func([]Event)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a watcher for the project root. exclude uses the same glob
// patterns as the scanner.
func New(root string, exclude []string, debounce time.Duration, handler Handler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	w := &Watcher{
		root:        root,
		exclude:     exclude,
		debounce:    debounce,
		handler:     handler,
		fsw:         fsw,
		timers:      make(map[string]*time.Timer),
		pendingType: make(map[string]EventType),
		done:        make(chan struct{}),
	}
	return w, nil
}

// Subscribe registers a callback for coalesced event groups.
func (w *Watcher) Subscribe(fn func([]Event)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, fn)
}

// Start registers every non-excluded directory and begins the event loop.
func (w *Watcher) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || !d.IsDir() {
			return nil
		}
		if w.excluded(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
	if err != nil {
		w.fsw.Close()
		return err
	}

	go w.loop()
	slog.Info("watch.started", "root", w.root, "debounce", w.debounce)
	return nil
}

// Stop tears the watcher down and waits for the loop to exit.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.fsw.Close()
	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.timers {
		t.Stop()
	}
	if w.batchTimer != nil {
		w.batchTimer.Stop()
	}
}

func (w *Watcher) excluded(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range w.exclude {
		if ok, mErr := doublestar.Match(p, rel); mErr == nil && ok {
			return true
		}
	}
	return false
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.dispatch(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watch.err", "err", err)
		}
	}
}

// dispatch classifies one raw fsnotify event and (re)arms the per-path
// debounce timer. A later event type overwrites the pending one, so a
// create-then-delete within the window collapses into delete.
func (w *Watcher) dispatch(ev fsnotify.Event) {
	if w.excluded(ev.Name) {
		return
	}

	var t EventType
	switch {
	case ev.Op.Has(fsnotify.Create):
		t = EventAdd
		// New directories need registration for nested events.
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.fsw.Add(ev.Name)
			return
		}
	case ev.Op.Has(fsnotify.Write):
		t = EventChange
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		t = EventDelete
	default:
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pendingType[ev.Name] = t
	if timer, ok := w.timers[ev.Name]; ok {
		timer.Reset(w.debounce)
		return
	}
	path := ev.Name
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.fire(path)
	})
}

// fire applies the debounced event for one path and queues it for the
// batched emission.
func (w *Watcher) fire(path string) {
	w.mu.Lock()
	t := w.pendingType[path]
	delete(w.pendingType, path)
	delete(w.timers, path)
	w.mu.Unlock()

	if w.ctx.Err() != nil {
		return
	}

	var err error
	switch t {
	case EventDelete:
		err = w.handler.HandleDelete(w.ctx, path)
	case EventAdd, EventChange:
		err = w.handler.HandleChange(w.ctx, path)
	}
	if err != nil {
		slog.Warn("watch.handle.err", "path", path, "type", t, "err", err)
	}

	w.mu.Lock()
	w.batch = append(w.batch, Event{Path: path, Type: t, At: time.Now()})
	if w.batchTimer == nil {
		w.batchTimer = time.AfterFunc(2*w.debounce, w.emitBatch)
	}
	w.mu.Unlock()
}

// emitBatch hands the coalesced group to every subscriber.
func (w *Watcher) emitBatch() {
	w.mu.Lock()
	events := w.batch
	w.batch = nil
	w.batchTimer = nil
	subs := append([]func([]Event){}, w.subscribers...)
	w.mu.Unlock()

	if len(events) == 0 {
		return
	}
	slog.Debug("watch.batch", "events", len(events))
	for _, fn := range subs {
		fn(events)
	}
}
