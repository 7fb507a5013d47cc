package binding

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Parse errors
var (
	ErrInvalidBinding = errors.New("invalid binding")
)

// Disabled is the textual form of an unbound key or button.
const Disabled = "Disabled"

// keysymPattern matches X keysym names such as "a", "F12" or "KP_Enter".
var keysymPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Key is a keyboard binding.
type Key struct {
	Modifiers Modifier
	// Keysym is the key name; empty for a modifier-only binding.
	Keysym string
}

// IsDisabled reports whether k binds nothing.
func (k Key) IsDisabled() bool {
	return k.Modifiers.IsEmpty() && k.Keysym == ""
}

// String returns the textual form, e.g. "<Control><Alt>t".
func (k Key) String() string {
	if k.IsDisabled() {
		return Disabled
	}
	return k.Modifiers.String() + k.Keysym
}

// ParseKey parses a key specification.
//
// Supported formats:
//   - "Disabled" or "": no binding
//   - "<Control><Alt>Delete": modifiers and a keysym
//   - "<Super>": modifiers only
//   - "F12": a bare keysym
func ParseKey(spec string) (Key, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.EqualFold(spec, Disabled) {
		return Key{}, nil
	}

	names, rest, err := splitPrefixes(spec)
	if err != nil {
		return Key{}, err
	}

	var k Key
	for _, name := range names {
		mod := ModifierFromName(name)
		if mod == ModNone {
			return Key{}, fmt.Errorf("%w: unknown modifier %q", ErrInvalidBinding, name)
		}
		k.Modifiers = k.Modifiers.With(mod)
	}

	if rest != "" && !validKeysym(rest) {
		return Key{}, fmt.Errorf("%w: bad keysym %q", ErrInvalidBinding, rest)
	}
	k.Keysym = rest
	return k, nil
}

// Validate checks that k has the textual form ParseKey accepts, so that
// String and ParseKey round-trip it.
func (k Key) Validate() error {
	if !k.Modifiers.known() {
		return fmt.Errorf("%w: unknown modifier bits %#x", ErrInvalidBinding, uint16(k.Modifiers))
	}
	if k.Keysym != "" && !validKeysym(k.Keysym) {
		return fmt.Errorf("%w: bad keysym %q", ErrInvalidBinding, k.Keysym)
	}
	if k.Modifiers.IsEmpty() && strings.EqualFold(k.Keysym, Disabled) {
		return fmt.Errorf("%w: keysym %q reads back as no binding", ErrInvalidBinding, k.Keysym)
	}
	return nil
}

func validKeysym(s string) bool {
	if keysymPattern.MatchString(s) {
		return true
	}
	runes := []rune(s)
	return len(runes) == 1 && runes[0] > ' ' && runes[0] != '<' && runes[0] != '>'
}

// Button is a pointer binding, optionally restricted to screen edges.
type Button struct {
	Modifiers Modifier
	// Edges restricts the binding to the pointer being at these edges.
	Edges Edge
	// Number is the pointer button, 1-based; 0 means disabled.
	Number int
}

// IsDisabled reports whether b binds nothing.
func (b Button) IsDisabled() bool {
	return b.Number == 0
}

// String returns the textual form, e.g. "<Alt><TopLeftEdge>Button1".
func (b Button) String() string {
	if b.IsDisabled() {
		return Disabled
	}
	var s strings.Builder
	s.WriteString(b.Modifiers.String())
	for _, name := range b.Edges.Names() {
		s.WriteByte('<')
		s.WriteString(name)
		s.WriteString("Edge>")
	}
	s.WriteString("Button")
	s.WriteString(strconv.Itoa(b.Number))
	return s.String()
}

// Validate checks that b has the textual form ParseButton accepts. A
// disabled button carries no modifiers or edges.
func (b Button) Validate() error {
	switch {
	case b.Number < 0:
		return fmt.Errorf("%w: negative button %d", ErrInvalidBinding, b.Number)
	case !b.Modifiers.known():
		return fmt.Errorf("%w: unknown modifier bits %#x", ErrInvalidBinding, uint16(b.Modifiers))
	case b.Number == 0 && (!b.Modifiers.IsEmpty() || b.Edges != EdgeNone):
		return fmt.Errorf("%w: modifiers or edges without a button number", ErrInvalidBinding)
	}
	return nil
}

// ParseButton parses a button specification such as "<Super>Button1".
func ParseButton(spec string) (Button, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.EqualFold(spec, Disabled) {
		return Button{}, nil
	}

	names, rest, err := splitPrefixes(spec)
	if err != nil {
		return Button{}, err
	}

	var b Button
	for _, name := range names {
		if mod := ModifierFromName(name); mod != ModNone {
			b.Modifiers = b.Modifiers.With(mod)
			continue
		}
		if len(name) > 4 && strings.EqualFold(name[len(name)-4:], "edge") {
			if edge := EdgeFromName(name[:len(name)-4]); edge != EdgeNone {
				b.Edges |= edge
				continue
			}
		}
		return Button{}, fmt.Errorf("%w: unknown modifier %q", ErrInvalidBinding, name)
	}

	if len(rest) <= len("Button") || !strings.EqualFold(rest[:len("Button")], "Button") {
		return Button{}, fmt.Errorf("%w: expected ButtonN, got %q", ErrInvalidBinding, rest)
	}
	n, err := strconv.Atoi(rest[len("Button"):])
	if err != nil || n < 1 {
		return Button{}, fmt.Errorf("%w: bad button number in %q", ErrInvalidBinding, rest)
	}
	b.Number = n
	return b, nil
}

// Action is a composite trigger: any of its parts fires the bound action.
type Action struct {
	Key    Key
	Button Button
	// Edges fires the action when the pointer hits one of these edges.
	Edges Edge
	// EdgeButton requires this pointer button to be held at the edge; 0 for none.
	EdgeButton int
	// Bell fires the action on the system bell.
	Bell bool
}

// Action field names used by Fields and ParseActionFields.
const (
	FieldKey        = "key"
	FieldButton     = "button"
	FieldEdge       = "edge"
	FieldEdgeButton = "edgebutton"
	FieldBell       = "bell"
)

// IsDisabled reports whether no part of a is bound.
func (a Action) IsDisabled() bool {
	return a.Key.IsDisabled() && a.Button.IsDisabled() && a.Edges == EdgeNone && !a.Bell
}

// Validate checks the internal consistency of a.
func (a Action) Validate() error {
	if a.EdgeButton < 0 {
		return fmt.Errorf("%w: negative edge button %d", ErrInvalidBinding, a.EdgeButton)
	}
	if a.EdgeButton > 0 && a.Edges == EdgeNone {
		return fmt.Errorf("%w: edge button without edges", ErrInvalidBinding)
	}
	if err := a.Key.Validate(); err != nil {
		return err
	}
	return a.Button.Validate()
}

// Fields returns a as a map of primitive values.
func (a Action) Fields() map[string]any {
	return map[string]any{
		FieldKey:        a.Key.String(),
		FieldButton:     a.Button.String(),
		FieldEdge:       a.Edges.String(),
		FieldEdgeButton: int64(a.EdgeButton),
		FieldBell:       a.Bell,
	}
}

// String returns a compact single-line form of a.
func (a Action) String() string {
	return fmt.Sprintf("key=%s button=%s edge=%s edgebutton=%d bell=%t",
		a.Key, a.Button, a.Edges, a.EdgeButton, a.Bell)
}

// ParseActionFields builds an Action from a field map as produced by Fields.
// Missing fields keep their zero value.
func ParseActionFields(fields map[string]any) (Action, error) {
	var a Action
	for name, raw := range fields {
		var err error
		switch name {
		case FieldKey:
			a.Key, err = parseStringField(name, raw, ParseKey)
		case FieldButton:
			a.Button, err = parseStringField(name, raw, ParseButton)
		case FieldEdge:
			a.Edges, err = parseStringField(name, raw, ParseEdges)
		case FieldEdgeButton:
			a.EdgeButton, err = intField(raw)
		case FieldBell:
			b, ok := raw.(bool)
			if !ok {
				err = fmt.Errorf("%w: bell must be a boolean, got %T", ErrInvalidBinding, raw)
			}
			a.Bell = b
		default:
			err = fmt.Errorf("%w: unknown action field %q", ErrInvalidBinding, name)
		}
		if err != nil {
			return Action{}, err
		}
	}
	return a, a.Validate()
}

func parseStringField[T any](name string, raw any, parse func(string) (T, error)) (T, error) {
	s, ok := raw.(string)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s must be a string, got %T", ErrInvalidBinding, name, raw)
	}
	return parse(s)
}

func intField(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("%w: edgebutton must be an integer, got %v", ErrInvalidBinding, raw)
}
