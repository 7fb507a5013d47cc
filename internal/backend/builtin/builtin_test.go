package builtin

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/plugreg/internal/backend"
	perrors "github.com/dshills/plugreg/internal/errors"
)

func TestRegistry_Names(t *testing.T) {
	assert.Equal(t, []string{"ini", "memory", "natskv", "sqlite"}, Registry().Names())
}

func TestRegister_Twice(t *testing.T) {
	r := Registry()
	assert.Error(t, Register(r))
}

func TestRegistry_Open(t *testing.T) {
	r := Registry()
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  backend.Config
	}{
		{"memory", backend.Config{Name: "memory"}},
		{"ini", backend.Config{Name: "ini", Params: map[string]string{"dir": t.TempDir()}}},
		{"sqlite", backend.Config{Name: "sqlite", Params: map[string]string{"path": filepath.Join(t.TempDir(), "s.db")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := r.Open(ctx, tt.cfg)
			require.NoError(t, err)
			defer b.Close()
			assert.Equal(t, tt.name, b.Info().Name)
		})
	}

	_, err := r.Open(ctx, backend.Config{Name: "gconf"})
	assert.ErrorIs(t, err, perrors.ErrBackendUnavailable)

	_, err = r.Open(ctx, backend.Config{Name: "ini"})
	assert.ErrorIs(t, err, perrors.ErrBackendUnavailable)
}
