// Package registry ties descriptors, backends and integration sources into
// the object graph applications use to read and write plugin settings.
//
// # Object Graph
//
// A Context is one configuration session. It owns exactly one active
// backend, the active profile and every loaded Plugin:
//
//	Context
//	  ├── Backend (memory, ini, sqlite, natskv, ...)
//	  ├── Plugin "mock"
//	  │     ├── Setting "mock"
//	  │     └── Setting "count"
//	  └── Plugin "move"
//	        └── ...
//
// Plugins are loaded by name through the metadata loader. Loading resolves
// every declared setting, so a Plugin never exposes a half-built
// collection. Plugin.Update re-reads the descriptor and swaps in a new
// collection only when the descriptor is valid.
//
// # Value Resolution
//
// Setting.Value resolves the effective value once and caches it:
//
//  1. integrated settings, while integration is enabled, take the value of
//     the integration source when it has one
//  2. otherwise the value stored by the backend for the active profile
//  3. otherwise the declared default
//
// The cache is refreshed by Refresh, ReadSettings, profile switches and
// backend change notifications. SetValue validates against the schema,
// writes through the backend and updates the cache.
//
// # Example
//
//	ctx, err := registry.New(context.Background(), registry.Options{
//	    SearchPath: []string{"/usr/share/plugreg/metadata"},
//	    Backend:    backend.Config{Name: "ini", Params: map[string]string{"dir": dir}},
//	})
//	if err != nil {
//	    return err
//	}
//	defer ctx.Close()
//
//	p, err := ctx.LoadPlugin(context.Background(), "mock")
//	if err != nil {
//	    return err
//	}
//	s := p.Setting("mock")
//	v, _ := s.Value(context.Background())
package registry
