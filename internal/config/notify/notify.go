// Package notify fans setting changes out to observers.
//
// Observers subscribe to a scope: every change, one plugin, or one
// setting. Delivery is synchronous unless WithAsync moves it onto a
// buffered goroutine, in which case backend watchers never wait on slow
// observers.
package notify

import (
	"strings"
	"sync"
)

// ChangeType is the kind of change.
type ChangeType int

const (
	// ChangeSet: a setting took a new value.
	ChangeSet ChangeType = iota
	// ChangeReset: the stored value was removed and the default applies.
	ChangeReset
	// ChangeReload: a plugin, or every plugin, was re-read.
	ChangeReload
	// ChangeProfile: the active profile was switched.
	ChangeProfile
)

var changeTypeNames = [...]string{"set", "reset", "reload", "profile"}

func (c ChangeType) String() string {
	if c >= 0 && int(c) < len(changeTypeNames) {
		return changeTypeNames[c]
	}
	return "unknown"
}

// Source says where a change came from.
type Source string

const (
	SourceLocal       Source = "local"
	SourceBackend     Source = "backend"
	SourceIntegration Source = "integration"
	SourceImport      Source = "import"
)

// Change describes one change. Setting is empty for plugin reloads; Plugin
// and Setting are both empty for session-wide events.
type Change struct {
	Type     ChangeType
	Profile  string
	Plugin   string
	Setting  string
	OldValue any
	NewValue any
	Source   Source
}

// Path returns "plugin.setting", "plugin" or "".
func (c Change) Path() string {
	if c.Setting == "" {
		return c.Plugin
	}
	return c.Plugin + "." + c.Setting
}

// Observer receives changes.
type Observer func(Change)

// Subscription is returned by the Subscribe methods.
type Subscription struct {
	id uint64
	n  *Notifier
}

// Unsubscribe stops delivery. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.n == nil {
		return
	}
	s.n.mu.Lock()
	delete(s.n.subs, s.id)
	s.n.mu.Unlock()
}

type subscriber struct {
	scope    string
	observer Observer
}

// Notifier delivers changes to subscribed observers.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[uint64]subscriber
	nextID uint64
	closed bool

	queue chan Change
	done  chan struct{}
	wg    sync.WaitGroup
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithAsync delivers changes from a goroutine through a buffer of size
// changes.
func WithAsync(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.queue = make(chan Change, size)
		}
	}
}

// New creates a Notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{
		subs: make(map[uint64]subscriber),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.queue != nil {
		n.wg.Add(1)
		go n.run()
	}
	return n
}

// Subscribe registers an observer for every change.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	return n.add("", observer)
}

// SubscribePlugin registers an observer for one plugin. It also sees
// session-wide events.
func (n *Notifier) SubscribePlugin(plugin string, observer Observer) *Subscription {
	return n.add(plugin, observer)
}

// SubscribeSetting registers an observer for one setting. It also sees
// reloads of the plugin and session-wide events.
func (n *Notifier) SubscribeSetting(plugin, setting string, observer Observer) *Subscription {
	return n.add(plugin+"."+setting, observer)
}

func (n *Notifier) add(scope string, observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	n.subs[n.nextID] = subscriber{scope: scope, observer: observer}
	return &Subscription{id: n.nextID, n: n}
}

// Notify delivers change to every observer whose scope covers it. Changes
// sent after Close are dropped.
func (n *Notifier) Notify(change Change) {
	n.mu.RLock()
	closed := n.closed
	n.mu.RUnlock()
	if closed {
		return
	}

	if n.queue == nil {
		n.deliver(change)
		return
	}
	select {
	case n.queue <- change:
	case <-n.done:
	}
}

// Close stops the notifier after delivering buffered changes. It is safe
// to call more than once.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	n.mu.Unlock()

	close(n.done)
	n.wg.Wait()
}

// deliver calls the matching observers outside the lock, so an observer
// may subscribe or unsubscribe.
func (n *Notifier) deliver(change Change) {
	path := change.Path()

	n.mu.RLock()
	var observers []Observer
	for _, s := range n.subs {
		if covers(s.scope, path) {
			observers = append(observers, s.observer)
		}
	}
	n.mu.RUnlock()

	for _, obs := range observers {
		obs(change)
	}
}

func (n *Notifier) run() {
	defer n.wg.Done()
	for {
		select {
		case change := <-n.queue:
			n.deliver(change)
		case <-n.done:
			for {
				select {
				case change := <-n.queue:
					n.deliver(change)
				default:
					return
				}
			}
		}
	}
}

// covers reports whether a subscription scope receives a change at path.
// Scopes receive changes at or below themselves and changes to any of
// their ancestors: "mock.mock" sees a reload of "mock" and a session-wide
// event at "".
func covers(scope, path string) bool {
	return scope == path || within(path, scope) || within(scope, path)
}

// within reports whether path lies strictly below parent.
func within(path, parent string) bool {
	if parent == "" {
		return path != ""
	}
	return strings.HasPrefix(path, parent+".")
}
