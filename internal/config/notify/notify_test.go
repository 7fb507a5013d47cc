package notify

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func set(plugin, setting string, v any) Change {
	return Change{Type: ChangeSet, Plugin: plugin, Setting: setting, NewValue: v, Source: SourceLocal}
}

func TestChangeType_String(t *testing.T) {
	for ct, want := range map[ChangeType]string{
		ChangeSet:      "set",
		ChangeReset:    "reset",
		ChangeReload:   "reload",
		ChangeProfile:  "profile",
		ChangeType(99): "unknown",
		ChangeType(-1): "unknown",
	} {
		if got := ct.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", ct, got, want)
		}
	}
}

func TestChange_Path(t *testing.T) {
	tests := []struct {
		change Change
		want   string
	}{
		{Change{}, ""},
		{Change{Plugin: "mock"}, "mock"},
		{Change{Plugin: "mock", Setting: "mock"}, "mock.mock"},
	}
	for _, tt := range tests {
		if got := tt.change.Path(); got != tt.want {
			t.Errorf("Path() = %q, want %q", got, tt.want)
		}
	}
}

func TestNotifier_Subscribe(t *testing.T) {
	n := New()
	defer n.Close()

	var got []Change
	sub := n.Subscribe(func(c Change) { got = append(got, c) })

	want := Change{Type: ChangeSet, Profile: "work", Plugin: "mock", Setting: "mock", OldValue: "Mock Value", NewValue: "X", Source: SourceBackend}
	n.Notify(want)
	if len(got) != 1 || got[0] != want {
		t.Fatalf("received %+v, want [%+v]", got, want)
	}

	sub.Unsubscribe()
	sub.Unsubscribe()
	n.Notify(set("mock", "mock", "Y"))
	if len(got) != 1 {
		t.Error("unsubscribed observer received a change")
	}
}

func TestNotifier_Scoped(t *testing.T) {
	n := New()
	defer n.Close()

	var mockPlugin, mockSetting, other atomic.Int32
	n.SubscribePlugin("mock", func(Change) { mockPlugin.Add(1) })
	n.SubscribeSetting("mock", "mock", func(Change) { mockSetting.Add(1) })
	n.SubscribePlugin("other", func(Change) { other.Add(1) })

	n.Notify(set("mock", "mock", "X"))
	n.Notify(set("mock", "count", 2))
	n.Notify(set("mockery", "mock", 1))
	n.Notify(Change{Type: ChangeReload, Plugin: "mock", Source: SourceBackend})
	n.Notify(Change{Type: ChangeProfile, Profile: "work"})
	n.Notify(Change{Type: ChangeReset, Plugin: "other", Setting: "x"})

	if got := mockPlugin.Load(); got != 4 {
		t.Errorf("plugin observer received %d changes, want 4", got)
	}
	if got := mockSetting.Load(); got != 3 {
		t.Errorf("setting observer received %d changes, want 3", got)
	}
	if got := other.Load(); got != 2 {
		t.Errorf("other observer received %d changes, want 2", got)
	}
}

func TestNotifier_ObserverMayUnsubscribe(t *testing.T) {
	n := New()
	defer n.Close()

	var calls int
	var sub *Subscription
	sub = n.Subscribe(func(Change) {
		calls++
		sub.Unsubscribe()
	})
	n.Notify(set("mock", "mock", 1))
	n.Notify(set("mock", "mock", 2))
	if calls != 1 {
		t.Errorf("observer called %d times, want 1", calls)
	}
}

func TestNotifier_Async(t *testing.T) {
	n := New(WithAsync(16))

	var count atomic.Int32
	done := make(chan struct{})
	n.Subscribe(func(Change) {
		if count.Add(1) == 10 {
			close(done)
		}
	})

	for i := 0; i < 10; i++ {
		n.Notify(set("mock", "count", i))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("received %d of 10 async changes", count.Load())
	}
	n.Close()
}

func TestNotifier_AsyncDrainsOnClose(t *testing.T) {
	n := New(WithAsync(100))

	var count atomic.Int32
	n.Subscribe(func(Change) { count.Add(1) })

	for i := 0; i < 50; i++ {
		n.Notify(set("mock", "count", i))
	}
	n.Close()

	if got := count.Load(); got != 50 {
		t.Errorf("delivered %d changes before close returned, want 50", got)
	}
}

func TestNotifier_CloseIdempotent(t *testing.T) {
	n := New(WithAsync(1))
	n.Close()
	n.Close()

	var received atomic.Bool
	n.Subscribe(func(Change) { received.Store(true) })
	n.Notify(Change{Type: ChangeReload})
	if received.Load() {
		t.Error("closed notifier delivered a change")
	}
}

func TestNotifier_ConcurrentSubscribe(t *testing.T) {
	n := New()
	defer n.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := n.SubscribePlugin("mock", func(Change) {})
			n.Notify(set("mock", "mock", "X"))
			sub.Unsubscribe()
		}()
	}
	wg.Wait()
}

func TestCovers(t *testing.T) {
	tests := []struct {
		scope, path string
		want        bool
	}{
		{"", "mock.mock", true},
		{"", "", true},
		{"mock", "mock.mock", true},
		{"mock", "", true},
		{"mock.mock", "mock", true},
		{"mock", "mock", true},
		{"mock", "mockery.x", false},
		{"mock.mock", "mock.count", false},
		{"mock", "other", false},
	}
	for _, tt := range tests {
		if got := covers(tt.scope, tt.path); got != tt.want {
			t.Errorf("covers(%q, %q) = %v, want %v", tt.scope, tt.path, got, tt.want)
		}
	}
}
