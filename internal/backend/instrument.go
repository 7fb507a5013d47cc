package backend

import (
	"context"
	"time"

	"github.com/dshills/plugreg/internal/config/schema"
	"github.com/dshills/plugreg/internal/metric"
)

// Instrument wraps b so that every call is counted and timed in m. A nil m
// returns b unchanged.
func Instrument(b Backend, m *metric.Metrics) Backend {
	if m == nil {
		return b
	}
	return &instrumented{next: b, name: b.Info().Name, metrics: m}
}

type instrumented struct {
	next    Backend
	name    string
	metrics *metric.Metrics
}

func (i *instrumented) Info() Info {
	return i.next.Info()
}

func (i *instrumented) ReadValue(ctx context.Context, key Key, s *schema.Schema) (any, error) {
	start := time.Now()
	v, err := i.next.ReadValue(ctx, key, s)
	i.metrics.RecordBackendOp(i.name, "read", start, err)
	return v, err
}

func (i *instrumented) WriteValue(ctx context.Context, key Key, s *schema.Schema, value any) error {
	start := time.Now()
	err := i.next.WriteValue(ctx, key, s, value)
	i.metrics.RecordBackendOp(i.name, "write", start, err)
	return err
}

func (i *instrumented) DeleteValue(ctx context.Context, key Key) error {
	start := time.Now()
	err := i.next.DeleteValue(ctx, key)
	i.metrics.RecordBackendOp(i.name, "delete", start, err)
	return err
}

func (i *instrumented) ListProfiles(ctx context.Context) ([]string, error) {
	start := time.Now()
	profiles, err := i.next.ListProfiles(ctx)
	i.metrics.RecordBackendOp(i.name, "list_profiles", start, err)
	return profiles, err
}

func (i *instrumented) DeleteProfile(ctx context.Context, profile string) error {
	start := time.Now()
	err := i.next.DeleteProfile(ctx, profile)
	i.metrics.RecordBackendOp(i.name, "delete_profile", start, err)
	return err
}

func (i *instrumented) Subscribe(fn ChangeFunc) (func(), error) {
	return i.next.Subscribe(func(key Key) {
		i.metrics.RecordNotification("backend")
		fn(key)
	})
}

func (i *instrumented) Close() error {
	return i.next.Close()
}

// Unwrap returns the wrapped backend.
func (i *instrumented) Unwrap() Backend {
	return i.next
}
