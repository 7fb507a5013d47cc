package binding

import (
	"fmt"
	"strings"
)

// Modifier represents a set of held modifier keys.
type Modifier uint16

const (
	// ModNone indicates no modifiers.
	ModNone Modifier = 0

	// ModShift indicates the Shift key.
	ModShift Modifier = 1 << (iota - 1)

	// ModControl indicates the Control key.
	ModControl

	// ModAlt indicates the Alt key (Mod1).
	ModAlt

	// ModMeta indicates the Meta key.
	ModMeta

	// ModSuper indicates the Super key (Mod4).
	ModSuper

	// ModHyper indicates the Hyper key.
	ModHyper

	// ModModeSwitch indicates the Mode_switch key (AltGr on some layouts).
	ModModeSwitch
)

// modifierOrder is the canonical order used when formatting modifiers.
var modifierOrder = []struct {
	mod  Modifier
	name string
}{
	{ModShift, "Shift"},
	{ModControl, "Control"},
	{ModAlt, "Alt"},
	{ModMeta, "Meta"},
	{ModSuper, "Super"},
	{ModHyper, "Hyper"},
	{ModModeSwitch, "ModeSwitch"},
}

// modifierNameMap maps modifier names (lowercase) to Modifier values.
var modifierNameMap = map[string]Modifier{
	"shift":      ModShift,
	"control":    ModControl,
	"ctrl":       ModControl,
	"primary":    ModControl,
	"alt":        ModAlt,
	"mod1":       ModAlt,
	"meta":       ModMeta,
	"super":      ModSuper,
	"mod4":       ModSuper,
	"hyper":      ModHyper,
	"modeswitch": ModModeSwitch,
}

// known reports whether every bit of m is a defined modifier.
func (m Modifier) known() bool {
	var all Modifier
	for _, entry := range modifierOrder {
		all |= entry.mod
	}
	return m&^all == 0
}

// Has returns true if m contains the specified modifier.
func (m Modifier) Has(mod Modifier) bool {
	return m&mod != 0
}

// With returns a new Modifier with the specified modifier added.
func (m Modifier) With(mod Modifier) Modifier {
	return m | mod
}

// Without returns a new Modifier with the specified modifier removed.
func (m Modifier) Without(mod Modifier) Modifier {
	return m &^ mod
}

// IsEmpty returns true if no modifiers are set.
func (m Modifier) IsEmpty() bool {
	return m == ModNone
}

// String returns the bracketed form, e.g. "<Control><Alt>".
func (m Modifier) String() string {
	var b strings.Builder
	for _, entry := range modifierOrder {
		if m.Has(entry.mod) {
			b.WriteByte('<')
			b.WriteString(entry.name)
			b.WriteByte('>')
		}
	}
	return b.String()
}

// ModifierFromName returns the Modifier for a given name (case-insensitive).
// Returns ModNone if the name is not recognized.
func ModifierFromName(name string) Modifier {
	if m, ok := modifierNameMap[strings.ToLower(name)]; ok {
		return m
	}
	return ModNone
}

// splitPrefixes consumes leading "<Name>" groups from spec and returns the
// names and the unconsumed remainder.
func splitPrefixes(spec string) ([]string, string, error) {
	var names []string
	rest := spec
	for strings.HasPrefix(rest, "<") {
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			return nil, "", fmt.Errorf("%w: unmatched '<' in %q", ErrInvalidBinding, spec)
		}
		name := strings.TrimSpace(rest[1:end])
		if name == "" {
			return nil, "", fmt.Errorf("%w: empty modifier in %q", ErrInvalidBinding, spec)
		}
		names = append(names, name)
		rest = rest[end+1:]
	}
	return names, rest, nil
}

// ParseModifiers parses a run of bracketed modifiers such as "<Shift><Alt>".
func ParseModifiers(spec string) (Modifier, error) {
	names, rest, err := splitPrefixes(strings.TrimSpace(spec))
	if err != nil {
		return ModNone, err
	}
	if rest != "" {
		return ModNone, fmt.Errorf("%w: trailing text %q", ErrInvalidBinding, rest)
	}
	var mods Modifier
	for _, name := range names {
		mod := ModifierFromName(name)
		if mod == ModNone {
			return ModNone, fmt.Errorf("%w: unknown modifier %q", ErrInvalidBinding, name)
		}
		mods = mods.With(mod)
	}
	return mods, nil
}
