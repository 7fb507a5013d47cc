package ini

import (
	"context"
	"errors"
	"reflect"

	"github.com/dshills/plugreg/internal/backend"
	"github.com/dshills/plugreg/internal/config/loader"
	"github.com/dshills/plugreg/internal/config/watcher"
	perrors "github.com/dshills/plugreg/internal/errors"
)

// Subscribe registers fn for changes to any profile file, whichever process
// made them. The directory watch starts with the first subscriber.
func (b *Backend) Subscribe(fn backend.ChangeFunc) (func(), error) {
	const op = "ini.subscribe"

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, backend.Closed(op)
	}

	b.watchMu.Lock()
	defer b.watchMu.Unlock()

	if b.watcher == nil {
		if err := b.startWatch(op); err != nil {
			return nil, err
		}
	}
	return b.listeners.Add(fn), nil
}

// startWatch snapshots every profile and starts the directory watcher.
// Callers hold watchMu.
func (b *Backend) startWatch(op string) error {
	snapshots := make(map[string]map[string]any)
	profiles, err := b.ListProfiles(context.Background())
	if err != nil {
		return err
	}
	for _, p := range profiles {
		var config map[string]any
		err := b.withLock(op, false, func() error {
			var err error
			config, err = b.readProfile(op, p)
			return err
		})
		if err != nil {
			return err
		}
		snapshots[p] = config
	}

	w, err := watcher.New(b.dir,
		watcher.WithFilter(func(path string) bool {
			_, ok := profileOf(path)
			return ok
		}),
		watcher.WithLogger(b.logger),
	)
	if err != nil {
		return perrors.E(perrors.ErrIOFailure, op, err)
	}
	w.OnChange(b.handleEvent)

	b.snapshots = snapshots
	b.watcher = w
	return nil
}

// handleEvent re-reads the changed profile and emits a change for every
// key whose stored value differs from the last snapshot.
func (b *Backend) handleEvent(event watcher.Event) {
	const op = "ini.watch"

	profile, ok := profileOf(event.Path)
	if !ok {
		return
	}

	var current map[string]any
	err := b.withLock(op, false, func() error {
		var err error
		current, err = b.readProfile(op, profile)
		return err
	})
	if errors.Is(err, perrors.ErrClosed) {
		return
	}
	if err != nil {
		b.logger.Warn("failed to re-read profile", "profile", profile, "error", err)
		return
	}

	b.watchMu.Lock()
	if b.snapshots == nil {
		b.watchMu.Unlock()
		return
	}
	previous := b.snapshots[profile]
	b.snapshots[profile] = current
	b.watchMu.Unlock()

	changed := diff(profile, previous, current)
	b.logger.Debug("profile changed", "profile", profile, "op", event.Op.String(), "keys", len(changed))
	for _, key := range changed {
		b.listeners.Emit(key)
	}
}

// diff lists the keys added, removed or changed between two parsed files.
func diff(profile string, previous, current map[string]any) []backend.Key {
	var keys []backend.Key

	for plugin := range union(previous, current) {
		before := loader.Table(previous, plugin)
		after := loader.Table(current, plugin)
		for setting := range union(before, after) {
			old, hadOld := before[setting]
			val, hasNew := after[setting]
			if hadOld != hasNew || !reflect.DeepEqual(old, val) {
				keys = append(keys, backend.Key{Profile: profile, Plugin: plugin, Setting: setting})
			}
		}
	}
	return keys
}

func union(a, b map[string]any) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}
