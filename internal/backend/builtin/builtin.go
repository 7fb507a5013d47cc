// Package builtin registers the backends shipped with plugreg.
package builtin

import (
	"github.com/dshills/plugreg/internal/backend"
	"github.com/dshills/plugreg/internal/backend/ini"
	"github.com/dshills/plugreg/internal/backend/memory"
	"github.com/dshills/plugreg/internal/backend/natskv"
	"github.com/dshills/plugreg/internal/backend/sqlite"
)

// Register adds every built-in backend to r.
func Register(r *backend.Registry) error {
	for name, f := range map[string]backend.Factory{
		memory.Name: memory.Factory,
		ini.Name:    ini.Factory,
		sqlite.Name: sqlite.Factory,
		natskv.Name: natskv.Factory,
	} {
		if err := r.Register(name, f); err != nil {
			return err
		}
	}
	return nil
}

// Registry returns a new registry holding the built-in backends.
func Registry() *backend.Registry {
	r := backend.NewRegistry()
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}
