// Package watch reports changes to files inside one directory. The status
// document is replaced by rename on every write, so the directory is watched
// rather than the file itself.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceDelay coalesces the burst of events one write produces
const DefaultDebounceDelay = 100 * time.Millisecond

// Event is a debounced change of a watched file
type Event struct {
	Path string
	Time time.Time
}

// Watcher watches selected file names in a directory
type Watcher struct {
	watcher *fsnotify.Watcher
	events  chan Event
	errors  chan error
	done    chan struct{}
	names   map[string]bool

	mu            sync.Mutex
	debounceDelay time.Duration
	pending       map[string]*time.Timer
	closed        bool
}

// New watches dir for changes to the given file names. With no names every
// file in dir is reported.
func New(dir string, names ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Clean(dir)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:       fsw,
		events:        make(chan Event, 16),
		errors:        make(chan error, 4),
		done:          make(chan struct{}),
		names:         make(map[string]bool, len(names)),
		debounceDelay: DefaultDebounceDelay,
		pending:       make(map[string]*time.Timer),
	}
	for _, n := range names {
		w.names[n] = true
	}

	go w.loop()
	return w, nil
}

// Events delivers debounced changes
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors delivers watcher errors. Errors are dropped when nobody reads them.
func (w *Watcher) Errors() <-chan error { return w.errors }

// SetDebounceDelay changes the coalescing window
func (w *Watcher) SetDebounceDelay(d time.Duration) {
	w.mu.Lock()
	w.debounceDelay = d
	w.mu.Unlock()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if len(w.names) > 0 && !w.names[filepath.Base(ev.Name)] {
		return
	}
	// Chmod alone carries no content change; temp files show up as Create,
	// the replaced document as Create or Rename depending on the platform.
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[ev.Name]; ok {
		t.Stop()
	}
	path := ev.Name
	w.pending[path] = time.AfterFunc(w.debounceDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}
		select {
		case w.events <- Event{Path: path, Time: time.Now()}:
		default:
		}
	})
}

// Close stops the watcher. Pending debounced events are discarded.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.pending {
		t.Stop()
	}
	w.pending = nil
	w.mu.Unlock()

	close(w.done)
	return w.watcher.Close()
}

// Follow calls render once and again after every change until ctx ends.
// Watcher errors are passed to onError when it is not nil.
func Follow(ctx context.Context, w *Watcher, render func(), onError func(error)) {
	render()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.Events():
			render()
		case err := <-w.Errors():
			if onError != nil {
				onError(err)
			}
		}
	}
}
