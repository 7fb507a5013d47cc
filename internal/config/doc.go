// Package config reads the process-level options of plugreg.
//
// Two sources feed a session's options before it is created:
//
//   - The global options file, a TOML document with one table per section.
//     The section "general" applies by default; "general_<name>" applies
//     when a configuration profile is selected.
//   - Environment variables prefixed PLUGREG_, parsed only at the command
//     boundary.
//
// An options file looks like:
//
//	[general]
//	profile = "work"
//	backend = "ini"
//	integration = true
//	plugin_list_autosort = true
//
//	[general.backend_params]
//	dir = "/home/me/.config/plugreg/settings"
//
// A user file is read first and a read-only system file fills in the keys
// it lacks. Writes always go to the user file.
//
// # Sub-packages
//
//   - binding: key, button, edge and action binding values
//   - loader: TOML loading, atomic writes, merge and clone helpers
//   - notify: change notification and observer subscriptions
//   - schema: setting types, validation and canonical encoding
//   - watcher: debounced directory watching
package config
