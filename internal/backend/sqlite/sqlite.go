// Package sqlite provides a backend storing values in a SQLite database.
//
// Values live in one table keyed by (profile, plugin, setting) with the
// value JSON-encoded. Writes are single-statement upserts inside a
// transaction, so concurrent writers from several processes serialise on
// the database lock. The backend does not support change notification.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/dshills/plugreg/internal/backend"
	"github.com/dshills/plugreg/internal/backend/sqlite/migrations"
	"github.com/dshills/plugreg/internal/config/schema"
	perrors "github.com/dshills/plugreg/internal/errors"
)

// Name is the registered backend name.
const Name = "sqlite"

// Backend stores values in SQLite.
type Backend struct {
	sqlDB  *sql.DB
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Open opens the database at path, creating it if needed, and applies the
// embedded migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Backend, error) {
	const op = "sqlite.open"
	if strings.TrimSpace(path) == "" {
		return nil, perrors.Errorf(perrors.ErrBackendUnavailable, op, "storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, perrors.E(perrors.ErrBackendUnavailable, op, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, perrors.E(perrors.ErrBackendUnavailable, op, err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, perrors.E(perrors.ErrBackendUnavailable, op, err)
	}

	b := &Backend{sqlDB: sqlDB, path: cleanPath, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "backend", "backend", Name)
	return b, nil
}

// Factory builds a sqlite backend from the "path" parameter.
func Factory(ctx context.Context, cfg backend.Config) (backend.Backend, error) {
	return Open(ctx, cfg.Param("path", ""))
}

// Info describes the backend.
func (b *Backend) Info() backend.Info {
	return backend.Info{
		Name: Name,
		Capabilities: backend.Capabilities{
			Read:     true,
			Write:    true,
			Profiles: true,
		},
	}
}

// db returns the handle, or an error after Close.
func (b *Backend) db(op string) (*sql.DB, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, backend.Closed(op)
	}
	return b.sqlDB, nil
}

// ioFailure wraps a driver error, noting lock contention.
func (b *Backend) ioFailure(op string, key backend.Key, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return perrors.ForSetting(perrors.ErrIOFailure, op, key.Plugin, key.Setting, err)
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			b.logger.Warn("database is locked", "op", op, "key", key.String())
		}
	}
	return perrors.ForSetting(perrors.ErrIOFailure, op, key.Plugin, key.Setting, err)
}

// ReadValue returns the stored value for key.
func (b *Backend) ReadValue(ctx context.Context, key backend.Key, s *schema.Schema) (any, error) {
	const op = "sqlite.read"
	db, err := b.db(op)
	if err != nil {
		return nil, err
	}

	var encoded string
	err = db.QueryRowContext(ctx,
		`SELECT value FROM setting_values WHERE profile = ? AND plugin = ? AND setting = ?`,
		key.Profile, key.Plugin, key.Setting,
	).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.NotSet(op, key)
	}
	if err != nil {
		return nil, b.ioFailure(op, key, err)
	}

	var raw any
	if err := json.Unmarshal([]byte(encoded), &raw); err != nil {
		return nil, perrors.ForSetting(perrors.ErrTypeMismatch, op, key.Plugin, key.Setting, err)
	}
	return backend.Decode(op, key, s, raw)
}

// WriteValue validates and upserts value.
func (b *Backend) WriteValue(ctx context.Context, key backend.Key, s *schema.Schema, value any) error {
	const op = "sqlite.write"
	_, encoded, err := backend.Prepare(op, key, s, value)
	if err != nil {
		return err
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return perrors.ForSetting(perrors.ErrTypeMismatch, op, key.Plugin, key.Setting, err)
	}

	db, err := b.db(op)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return b.ioFailure(op, key, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO setting_values (profile, plugin, setting, value, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (profile, plugin, setting) DO UPDATE SET
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		key.Profile, key.Plugin, key.Setting, string(data), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		_ = tx.Rollback()
		return b.ioFailure(op, key, err)
	}
	if err := tx.Commit(); err != nil {
		return b.ioFailure(op, key, err)
	}
	return nil
}

// DeleteValue removes the value stored under key.
func (b *Backend) DeleteValue(ctx context.Context, key backend.Key) error {
	const op = "sqlite.delete"
	db, err := b.db(op)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`DELETE FROM setting_values WHERE profile = ? AND plugin = ? AND setting = ?`,
		key.Profile, key.Plugin, key.Setting,
	)
	if err != nil {
		return b.ioFailure(op, key, err)
	}
	return nil
}

// ListProfiles returns the profiles holding values.
func (b *Backend) ListProfiles(ctx context.Context) ([]string, error) {
	const op = "sqlite.list_profiles"
	db, err := b.db(op)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT DISTINCT profile FROM setting_values ORDER BY profile`)
	if err != nil {
		return nil, b.ioFailure(op, backend.Key{}, err)
	}
	defer rows.Close()

	profiles := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, b.ioFailure(op, backend.Key{}, err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, b.ioFailure(op, backend.Key{}, err)
	}
	return profiles, nil
}

// DeleteProfile removes every value of profile.
func (b *Backend) DeleteProfile(ctx context.Context, profile string) error {
	const op = "sqlite.delete_profile"
	db, err := b.db(op)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM setting_values WHERE profile = ?`, profile); err != nil {
		return b.ioFailure(op, backend.Key{Profile: profile}, err)
	}
	return nil
}

// Subscribe is not supported; callers re-read explicitly.
func (b *Backend) Subscribe(backend.ChangeFunc) (func(), error) {
	return nil, perrors.E(perrors.ErrUnsupported, "sqlite.subscribe", nil)
}

// Close closes the database handle.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.sqlDB.Close()
}
