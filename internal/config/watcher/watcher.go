// Package watcher reports changes to the files of one directory.
//
// Events are filtered and debounced per path, so an atomic save (write a
// temporary file, rename it over the target) reaches handlers as a single
// event for the target.
package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a path's event is delivered.
const DefaultDebounce = 50 * time.Millisecond

// Operation is what happened to a file.
type Operation int

const (
	OpWrite Operation = iota
	OpCreate
	OpRemove
	OpRename
)

var opNames = [...]string{"write", "create", "remove", "rename"}

func (op Operation) String() string {
	if op >= 0 && int(op) < len(opNames) {
		return opNames[op]
	}
	return "unknown"
}

// Event is one, possibly coalesced, change.
type Event struct {
	Path string
	Op   Operation
}

// Handler receives events. Handlers run on the watcher's goroutines.
type Handler func(Event)

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Zero delivers every event at once.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithFilter drops events for paths f rejects.
func WithFilter(f func(path string) bool) Option {
	return func(w *Watcher) { w.filter = f }
}

// WithLogger sets the logger for watch errors.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Watcher watches one directory.
type Watcher struct {
	fsw      *fsnotify.Watcher
	dir      string
	filter   func(string) bool
	logger   *slog.Logger
	debounce time.Duration

	mu       sync.Mutex
	handlers []Handler
	pending  map[string]*pendingEvent
	closed   bool

	done chan struct{}
	wg   sync.WaitGroup
}

type pendingEvent struct {
	op    Operation
	timer *time.Timer
}

// New starts watching dir, which must be an existing directory.
func New(dir string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(abs); err != nil {
		return nil, err
	} else if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: not a directory", abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		dir:      abs,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		pending:  make(map[string]*pendingEvent),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// OnChange adds a handler.
func (w *Watcher) OnChange(h Handler) {
	w.mu.Lock()
	w.handlers = append(w.handlers, h)
	w.mu.Unlock()
}

// Close stops watching. Events still waiting out their debounce period are
// dropped. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	close(w.done)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.receive(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) receive(ev fsnotify.Event) {
	op, ok := convertOp(ev.Op)
	if !ok || (w.filter != nil && !w.filter(ev.Name)) {
		return
	}
	if w.debounce == 0 {
		w.emit(Event{Path: ev.Name, Op: op})
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if p, ok := w.pending[ev.Name]; ok {
		p.op = coalesce(p.op, op)
		p.timer.Reset(w.debounce)
		return
	}
	path := ev.Name
	w.pending[path] = &pendingEvent{
		op:    op,
		timer: time.AfterFunc(w.debounce, func() { w.flush(path) }),
	}
}

func (w *Watcher) flush(path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	delete(w.pending, path)
	closed := w.closed
	w.mu.Unlock()

	if ok && !closed {
		w.emit(Event{Path: path, Op: p.op})
	}
}

func (w *Watcher) emit(e Event) {
	w.mu.Lock()
	handlers := append([]Handler(nil), w.handlers...)
	w.mu.Unlock()

	for _, h := range handlers {
		w.call(h, e)
	}
}

// call runs h, keeping the watcher alive if it panics.
func (w *Watcher) call(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("watch handler panicked", "path", e.Path, "panic", r)
		}
	}()
	h(e)
}

// convertOp maps an fsnotify operation. Chmod-only events are dropped.
func convertOp(op fsnotify.Op) (Operation, bool) {
	switch {
	case op.Has(fsnotify.Remove):
		return OpRemove, true
	case op.Has(fsnotify.Rename):
		return OpRename, true
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpWrite, true
	}
	return 0, false
}

// coalesce folds a new operation into a pending one. A write to a newly
// created file is still a create, and a file that reappears after a remove
// or rename was replaced, which is a write.
func coalesce(prev, next Operation) Operation {
	switch {
	case next == OpWrite && prev == OpCreate:
		return OpCreate
	case next == OpCreate && (prev == OpRemove || prev == OpRename):
		return OpWrite
	}
	return next
}
