// Package natskv provides a backend over a NATS JetStream key/value bucket.
//
// Keys have the form "<profile>.<plugin>.<setting>", with "_default"
// standing for the default profile. Values are JSON-encoded. Every server
// round trip is bounded by the configured timeout. Change notification
// follows the bucket with a WatchAll watcher, so writes from any client
// of the bucket are reported.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/dshills/plugreg/internal/backend"
	"github.com/dshills/plugreg/internal/config/schema"
	perrors "github.com/dshills/plugreg/internal/errors"
)

// Name is the registered backend name.
const Name = "natskv"

const (
	// DefaultBucket is used when no bucket is configured.
	DefaultBucket = "plugreg_settings"

	// DefaultTimeout bounds each server round trip.
	DefaultTimeout = 5 * time.Second
)

// Backend stores values in a JetStream key/value bucket.
type Backend struct {
	conn    *nats.Conn
	kv      jetstream.KeyValue
	bucket  string
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool

	watchMu   sync.Mutex
	watcher   jetstream.KeyWatcher
	stopWatch chan struct{}
	wg        sync.WaitGroup
	listeners backend.Listeners
}

// Option configures a Backend.
type Option func(*Backend)

// WithBucket sets the bucket name.
func WithBucket(bucket string) Option {
	return func(b *Backend) {
		if bucket != "" {
			b.bucket = bucket
		}
	}
}

// WithTimeout sets the per-operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Connect dials url and opens the bucket, creating it when missing.
func Connect(ctx context.Context, url string, opts ...Option) (*Backend, error) {
	const op = "natskv.open"
	if strings.TrimSpace(url) == "" {
		return nil, perrors.Errorf(perrors.ErrBackendUnavailable, op, "server url is required")
	}

	b := &Backend{
		bucket:  DefaultBucket,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "backend", "backend", Name, "bucket", b.bucket)

	conn, err := nats.Connect(url, nats.Timeout(b.timeout), nats.Name("plugreg"))
	if err != nil {
		return nil, perrors.E(perrors.ErrBackendUnavailable, op, err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, perrors.E(perrors.ErrBackendUnavailable, op, err)
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      b.bucket,
		Description: "plugin settings",
		History:     1,
	})
	if errors.Is(err, jetstream.ErrBucketExists) {
		kv, err = js.KeyValue(ctx, b.bucket)
	}
	if err != nil {
		conn.Close()
		return nil, perrors.E(perrors.ErrBackendUnavailable, op, err)
	}

	b.conn = conn
	b.kv = kv
	return b, nil
}

// Factory builds a natskv backend from the "url", "bucket" and "timeout"
// parameters.
func Factory(ctx context.Context, cfg backend.Config) (backend.Backend, error) {
	opts := []Option{WithBucket(cfg.Param("bucket", DefaultBucket))}
	if raw := cfg.Param("timeout", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, perrors.E(perrors.ErrBackendUnavailable, "natskv.open", err)
		}
		opts = append(opts, WithTimeout(d))
	}
	return Connect(ctx, cfg.Param("url", nats.DefaultURL), opts...)
}

// Info describes the backend.
func (b *Backend) Info() backend.Info {
	return backend.Info{
		Name: Name,
		Capabilities: backend.Capabilities{
			Read:     true,
			Write:    true,
			Profiles: true,
			Notify:   true,
		},
	}
}

// Bucket returns the bucket name.
func (b *Backend) Bucket() string {
	return b.bucket
}

func (b *Backend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

func (b *Backend) checkOpen(op string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return backend.Closed(op)
	}
	return nil
}

// ReadValue returns the stored value for key.
func (b *Backend) ReadValue(ctx context.Context, key backend.Key, s *schema.Schema) (any, error) {
	const op = "natskv.read"
	if err := b.checkOpen(op); err != nil {
		return nil, err
	}
	name, err := encodeKey(op, key)
	if err != nil {
		return nil, err
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	entry, err := b.kv.Get(ctx, name)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, backend.NotSet(op, key)
	}
	if err != nil {
		return nil, perrors.ForSetting(perrors.ErrIOFailure, op, key.Plugin, key.Setting, err)
	}

	var raw any
	if err := json.Unmarshal(entry.Value(), &raw); err != nil {
		return nil, perrors.ForSetting(perrors.ErrTypeMismatch, op, key.Plugin, key.Setting, err)
	}
	return backend.Decode(op, key, s, raw)
}

// WriteValue validates and stores value. Put is atomic on the server.
func (b *Backend) WriteValue(ctx context.Context, key backend.Key, s *schema.Schema, value any) error {
	const op = "natskv.write"
	if err := b.checkOpen(op); err != nil {
		return err
	}
	name, err := encodeKey(op, key)
	if err != nil {
		return err
	}
	_, encoded, err := backend.Prepare(op, key, s, value)
	if err != nil {
		return err
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return perrors.ForSetting(perrors.ErrTypeMismatch, op, key.Plugin, key.Setting, err)
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	if _, err := b.kv.Put(ctx, name, data); err != nil {
		return perrors.ForSetting(perrors.ErrIOFailure, op, key.Plugin, key.Setting, err)
	}
	return nil
}

// DeleteValue removes the value stored under key.
func (b *Backend) DeleteValue(ctx context.Context, key backend.Key) error {
	const op = "natskv.delete"
	if err := b.checkOpen(op); err != nil {
		return err
	}
	name, err := encodeKey(op, key)
	if err != nil {
		return err
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	if _, err := b.kv.Get(ctx, name); errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	if err := b.kv.Delete(ctx, name); err != nil {
		return perrors.ForSetting(perrors.ErrIOFailure, op, key.Plugin, key.Setting, err)
	}
	return nil
}

// keys lists every live key in the bucket.
func (b *Backend) keys(ctx context.Context, op string) ([]backend.Key, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	lister, err := b.kv.ListKeys(ctx)
	if err != nil {
		return nil, perrors.E(perrors.ErrIOFailure, op, err)
	}
	defer func() { _ = lister.Stop() }()

	var keys []backend.Key
	for name := range lister.Keys() {
		if key, ok := decodeKey(name); ok {
			keys = append(keys, key)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, perrors.E(perrors.ErrIOFailure, op, err)
	}
	return keys, nil
}

// ListProfiles returns the profiles holding values.
func (b *Backend) ListProfiles(ctx context.Context) ([]string, error) {
	const op = "natskv.list_profiles"
	if err := b.checkOpen(op); err != nil {
		return nil, err
	}
	keys, err := b.keys(ctx, op)
	if err != nil {
		return nil, err
	}

	profiles := []string{}
	for _, key := range keys {
		if !slices.Contains(profiles, key.Profile) {
			profiles = append(profiles, key.Profile)
		}
	}
	slices.Sort(profiles)
	return profiles, nil
}

// DeleteProfile removes every value of profile.
func (b *Backend) DeleteProfile(ctx context.Context, profile string) error {
	const op = "natskv.delete_profile"
	if err := b.checkOpen(op); err != nil {
		return err
	}
	if _, err := profileToken(op, profile); err != nil {
		return err
	}
	keys, err := b.keys(ctx, op)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if key.Profile != profile {
			continue
		}
		if err := b.DeleteValue(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers fn for changes made by any client of the bucket.
// The bucket watcher starts with the first subscriber.
func (b *Backend) Subscribe(fn backend.ChangeFunc) (func(), error) {
	const op = "natskv.subscribe"
	if err := b.checkOpen(op); err != nil {
		return nil, err
	}

	b.watchMu.Lock()
	defer b.watchMu.Unlock()

	if b.watcher == nil {
		w, err := b.kv.WatchAll(context.Background(), jetstream.UpdatesOnly())
		if err != nil {
			return nil, perrors.E(perrors.ErrIOFailure, op, err)
		}
		b.watcher = w
		b.stopWatch = make(chan struct{})
		b.wg.Add(1)
		go b.processWatcher(w, b.stopWatch)
	}
	return b.listeners.Add(fn), nil
}

// processWatcher forwards bucket updates to the listeners.
func (b *Backend) processWatcher(w jetstream.KeyWatcher, stop <-chan struct{}) {
	defer b.wg.Done()

	for {
		select {
		case <-stop:
			return
		case entry, ok := <-w.Updates():
			if !ok {
				return
			}
			// A nil entry marks the end of the initial values.
			if entry == nil {
				continue
			}
			key, ok := decodeKey(entry.Key())
			if !ok {
				b.logger.Debug("ignoring foreign key", "key", entry.Key())
				continue
			}
			b.listeners.Emit(key)
		}
	}
}

// Close stops the watcher and drains the connection.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.watchMu.Lock()
	w, stop := b.watcher, b.stopWatch
	b.watcher, b.stopWatch = nil, nil
	b.watchMu.Unlock()

	if w != nil {
		close(stop)
		_ = w.Stop()
		b.wg.Wait()
	}
	b.listeners.Clear()
	b.conn.Close()
	return nil
}
