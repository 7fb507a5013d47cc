package backend

import (
	"sync"
)

// Listeners is a set of ChangeFuncs. Backends embed it to implement
// Subscribe. The zero value is ready to use.
type Listeners struct {
	mu     sync.RWMutex
	nextID uint64
	fns    map[uint64]ChangeFunc
}

// Add registers fn and returns a function that removes it.
func (l *Listeners) Add(fn ChangeFunc) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[uint64]ChangeFunc)
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// Len returns the number of registered listeners.
func (l *Listeners) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fns)
}

// Emit calls every listener with key, outside the lock.
func (l *Listeners) Emit(key Key) {
	l.mu.RLock()
	fns := make([]ChangeFunc, 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(key)
	}
}

// Clear removes every listener.
func (l *Listeners) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fns = nil
}
