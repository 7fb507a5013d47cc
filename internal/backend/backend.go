// Package backend defines the storage contract for persisted setting values
// and the registry used to pick one implementation per session.
//
// A Backend stores canonical setting values keyed by (profile, plugin,
// setting). Implementations live in subpackages: memory, ini, sqlite and
// natskv. Every implementation validates a value against its schema before
// persisting it, so a rejected write never changes stored state.
package backend

import (
	"context"
	"fmt"

	"github.com/dshills/plugreg/internal/config/schema"
	perrors "github.com/dshills/plugreg/internal/errors"
)

// DefaultProfile is the name of the default profile.
const DefaultProfile = ""

// Key identifies one stored value.
type Key struct {
	Profile string
	Plugin  string
	Setting string
}

// String returns "profile/plugin.setting", with "(default)" for the
// default profile.
func (k Key) String() string {
	p := k.Profile
	if p == DefaultProfile {
		p = "(default)"
	}
	return fmt.Sprintf("%s/%s.%s", p, k.Plugin, k.Setting)
}

// Capabilities describes the optional operations a backend supports.
type Capabilities struct {
	Read     bool
	Write    bool
	Profiles bool
	Notify   bool
}

// Info describes a backend instance.
type Info struct {
	Name         string
	Capabilities Capabilities
}

// ChangeFunc is called when a stored value changes outside this process or
// through another handle. Calls arrive on backend goroutines.
type ChangeFunc func(key Key)

// Backend is the storage contract for setting values.
type Backend interface {
	// Info describes the backend.
	Info() Info

	// ReadValue returns the canonical value stored under key, decoded with
	// s. It returns an error matching errors.ErrNotSet when nothing is
	// stored.
	ReadValue(ctx context.Context, key Key, s *schema.Schema) (any, error)

	// WriteValue validates value against s and stores it. A value failing
	// validation yields errors.ErrTypeMismatch and leaves storage untouched.
	WriteValue(ctx context.Context, key Key, s *schema.Schema, value any) error

	// DeleteValue removes the value stored under key. Deleting an absent
	// value is not an error.
	DeleteValue(ctx context.Context, key Key) error

	// ListProfiles returns the sorted names of profiles holding at least
	// one value. The default profile is reported as "".
	ListProfiles(ctx context.Context) ([]string, error)

	// DeleteProfile removes every value of a profile.
	DeleteProfile(ctx context.Context, profile string) error

	// Subscribe registers fn for change notification. Backends that
	// cannot notify return errors.ErrUnsupported.
	Subscribe(fn ChangeFunc) (cancel func(), err error)

	// Close releases resources. Further calls fail with errors.ErrClosed.
	Close() error
}

// Prepare validates value for a write to key and returns the canonical
// value together with its storage encoding.
func Prepare(op string, key Key, s *schema.Schema, value any) (canonical, encoded any, err error) {
	if s == nil {
		return nil, nil, perrors.ForSetting(perrors.ErrTypeMismatch, op, key.Plugin, key.Setting,
			fmt.Errorf("no schema"))
	}
	v, err := s.CoercePath(key.Setting, value)
	if err != nil {
		return nil, nil, perrors.ForSetting(perrors.ErrTypeMismatch, op, key.Plugin, key.Setting, err)
	}
	return v, schema.Encode(v), nil
}

// Decode converts a stored primitive into the canonical value for key.
// Stored values that no longer satisfy the schema yield
// errors.ErrTypeMismatch.
func Decode(op string, key Key, s *schema.Schema, raw any) (any, error) {
	if s == nil {
		return nil, perrors.ForSetting(perrors.ErrTypeMismatch, op, key.Plugin, key.Setting,
			fmt.Errorf("no schema"))
	}
	v, err := s.DecodePath(key.Setting, raw)
	if err != nil {
		return nil, perrors.ForSetting(perrors.ErrTypeMismatch, op, key.Plugin, key.Setting, err)
	}
	return v, nil
}

// NotSet returns the error reported for an absent value.
func NotSet(op string, key Key) error {
	return perrors.ForSetting(perrors.ErrNotSet, op, key.Plugin, key.Setting, nil)
}

// Closed returns the error reported after Close.
func Closed(op string) error {
	return perrors.E(perrors.ErrClosed, op, nil)
}

// Shared wraps b so that Close is a no-op. It lets several Contexts use one
// backend instance whose lifetime the caller manages.
func Shared(b Backend) Backend {
	return shared{b}
}

type shared struct {
	Backend
}

func (shared) Close() error { return nil }
