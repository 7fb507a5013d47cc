package binding

import (
	"errors"
	"testing"
)

func TestModifierString(t *testing.T) {
	tests := []struct {
		mod  Modifier
		want string
	}{
		{ModNone, ""},
		{ModControl, "<Control>"},
		{ModAlt | ModControl, "<Control><Alt>"},
		{ModSuper | ModShift, "<Shift><Super>"},
	}

	for _, tt := range tests {
		if got := tt.mod.String(); got != tt.want {
			t.Errorf("Modifier(%d).String() = %q, want %q", tt.mod, got, tt.want)
		}
	}
}

func TestParseModifiers(t *testing.T) {
	mods, err := ParseModifiers("<ctrl><Mod1>")
	if err != nil {
		t.Fatalf("ParseModifiers failed: %v", err)
	}
	if mods != ModControl|ModAlt {
		t.Errorf("mods = %v, want Control|Alt", mods)
	}

	if _, err := ParseModifiers("<Bogus>"); !errors.Is(err, ErrInvalidBinding) {
		t.Errorf("expected ErrInvalidBinding, got %v", err)
	}
	if _, err := ParseModifiers("<Alt>x"); err == nil {
		t.Error("expected error for trailing text")
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		spec    string
		want    Key
		wantStr string
		wantErr bool
	}{
		{"", Key{}, "Disabled", false},
		{"Disabled", Key{}, "Disabled", false},
		{"<Control><Alt>t", Key{Modifiers: ModControl | ModAlt, Keysym: "t"}, "<Control><Alt>t", false},
		{"<Alt><Control>Delete", Key{Modifiers: ModControl | ModAlt, Keysym: "Delete"}, "<Control><Alt>Delete", false},
		{"<Super>", Key{Modifiers: ModSuper}, "<Super>", false},
		{"F12", Key{Keysym: "F12"}, "F12", false},
		{"<Alt>KP_Enter", Key{Modifiers: ModAlt, Keysym: "KP_Enter"}, "<Alt>KP_Enter", false},
		{"<Alt", Key{}, "", true},
		{"<Nope>a", Key{}, "", true},
		{"<Alt>two words", Key{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseKey(tt.spec)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidBinding) {
					t.Errorf("ParseKey(%q) error = %v, want ErrInvalidBinding", tt.spec, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKey(%q) failed: %v", tt.spec, err)
			}
			if got != tt.want {
				t.Errorf("ParseKey(%q) = %+v, want %+v", tt.spec, got, tt.want)
			}
			if got.String() != tt.wantStr {
				t.Errorf("String() = %q, want %q", got.String(), tt.wantStr)
			}
		})
	}
}

func TestParseButton(t *testing.T) {
	tests := []struct {
		spec    string
		want    Button
		wantErr bool
	}{
		{"Disabled", Button{}, false},
		{"Button1", Button{Number: 1}, false},
		{"<Super>Button3", Button{Modifiers: ModSuper, Number: 3}, false},
		{"<Alt><TopLeftEdge>Button2", Button{Modifiers: ModAlt, Edges: EdgeTopLeft, Number: 2}, false},
		{"<Alt>Button0", Button{}, true},
		{"<Alt>Key1", Button{}, true},
		{"<WeirdEdge>Button1", Button{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseButton(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseButton(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseButton(%q) = %+v, want %+v", tt.spec, got, tt.want)
			}
		})
	}

	b := Button{Modifiers: ModControl, Edges: EdgeLeft | EdgeBottomRight, Number: 1}
	round, err := ParseButton(b.String())
	if err != nil {
		t.Fatalf("ParseButton(%q) failed: %v", b.String(), err)
	}
	if round != b {
		t.Errorf("reparsed %q = %+v, want %+v", b.String(), round, b)
	}
}

func TestParseEdges(t *testing.T) {
	e, err := ParseEdges("Left | topright")
	if err != nil {
		t.Fatalf("ParseEdges failed: %v", err)
	}
	if e != EdgeLeft|EdgeTopRight {
		t.Errorf("edges = %v, want Left|TopRight", e)
	}
	if e.String() != "Left|TopRight" {
		t.Errorf("String() = %q", e.String())
	}
	if !e.Has(EdgeLeft) || e.Has(EdgeTop) {
		t.Error("Has() returned wrong result")
	}

	none, err := ParseEdges("")
	if err != nil || none != EdgeNone {
		t.Errorf("ParseEdges(\"\") = %v, %v", none, err)
	}
	if _, err := ParseEdges("Middle"); !errors.Is(err, ErrInvalidBinding) {
		t.Errorf("expected ErrInvalidBinding, got %v", err)
	}
}

func TestActionFields(t *testing.T) {
	a := Action{
		Key:        Key{Modifiers: ModAlt, Keysym: "F4"},
		Button:     Button{Number: 2},
		Edges:      EdgeTop,
		EdgeButton: 1,
		Bell:       true,
	}

	got, err := ParseActionFields(a.Fields())
	if err != nil {
		t.Fatalf("ParseActionFields failed: %v", err)
	}
	if got != a {
		t.Errorf("ParseActionFields(Fields()) = %+v, want %+v", got, a)
	}
}

func TestParseActionFields_Errors(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
	}{
		{"unknown field", map[string]any{"color": "red"}},
		{"bad key", map[string]any{"key": "<Alt"}},
		{"key not string", map[string]any{"key": 3}},
		{"bell not bool", map[string]any{"bell": "yes"}},
		{"edge button without edges", map[string]any{"edgebutton": int64(1)}},
		{"fractional edge button", map[string]any{"edge": "Left", "edgebutton": 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseActionFields(tt.fields); !errors.Is(err, ErrInvalidBinding) {
				t.Errorf("expected ErrInvalidBinding, got %v", err)
			}
		})
	}

	a, err := ParseActionFields(map[string]any{})
	if err != nil || !a.IsDisabled() {
		t.Errorf("empty fields = %+v, %v; want disabled action", a, err)
	}
}

func TestKeyValidate(t *testing.T) {
	tests := []struct {
		name    string
		key     Key
		wantErr bool
	}{
		{"disabled", Key{}, false},
		{"bare keysym", Key{Keysym: "F12"}, false},
		{"single rune", Key{Modifiers: ModControl, Keysym: "+"}, false},
		{"modifiers only", Key{Modifiers: ModSuper}, false},
		{"space in keysym", Key{Keysym: "a b"}, true},
		{"angle bracket", Key{Modifiers: ModAlt, Keysym: "<x"}, true},
		{"unknown modifier bit", Key{Modifiers: Modifier(1 << 12), Keysym: "a"}, true},
		{"bare Disabled keysym", Key{Keysym: "disabled"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%+v) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidBinding) {
					t.Errorf("expected ErrInvalidBinding, got %v", err)
				}
				return
			}
			got, err := ParseKey(tt.key.String())
			if err != nil || got != tt.key {
				t.Errorf("ParseKey(%q) = %+v, %v; want %+v", tt.key.String(), got, err, tt.key)
			}
		})
	}
}

func TestButtonValidate(t *testing.T) {
	tests := []struct {
		name    string
		button  Button
		wantErr bool
	}{
		{"disabled", Button{}, false},
		{"plain", Button{Number: 3}, false},
		{"modifiers and edges", Button{Modifiers: ModAlt, Edges: EdgeTopLeft, Number: 1}, false},
		{"negative", Button{Number: -1}, true},
		{"modifiers without number", Button{Modifiers: ModAlt}, true},
		{"edges without number", Button{Edges: EdgeLeft}, true},
		{"unknown modifier bit", Button{Modifiers: Modifier(1 << 12), Number: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.button.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%+v) error = %v, wantErr %v", tt.button, err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidBinding) {
					t.Errorf("expected ErrInvalidBinding, got %v", err)
				}
				return
			}
			got, err := ParseButton(tt.button.String())
			if err != nil || got != tt.button {
				t.Errorf("ParseButton(%q) = %+v, %v; want %+v", tt.button.String(), got, err, tt.button)
			}
		})
	}
}

func TestActionValidate_Parts(t *testing.T) {
	for _, a := range []Action{
		{Key: Key{Keysym: "a b"}},
		{Button: Button{Modifiers: ModAlt}},
	} {
		if err := a.Validate(); !errors.Is(err, ErrInvalidBinding) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidBinding", a, err)
		}
	}
}
