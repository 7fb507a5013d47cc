package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dshills/plugreg/internal/config/binding"
	perrors "github.com/dshills/plugreg/internal/errors"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    Color
		wantErr bool
	}{
		{"#ff0000", Color{Red: 0xffff, Alpha: 0xffff}, false},
		{"#00ff0080", Color{Green: 0xffff, Alpha: 0x8080}, false},
		{"#000100020003", Color{Red: 1, Green: 2, Blue: 3, Alpha: 0xffff}, false},
		{"#0001000200030004", Color{Red: 1, Green: 2, Blue: 3, Alpha: 4}, false},
		{"ff0000", Color{}, true},
		{"#ff00", Color{}, true},
		{"#gg0000", Color{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseColor(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestColor_String(t *testing.T) {
	if got := RGBA8(0x12, 0x34, 0x56, 0xff).String(); got != "#123456ff" {
		t.Errorf("String() = %q, want #123456ff", got)
	}
	if got := (Color{Red: 1, Green: 2, Blue: 3, Alpha: 4}).String(); got != "#0001000200030004" {
		t.Errorf("String() = %q, want 16-bit form", got)
	}
}

// Values must survive Encode, a JSON round trip, and Decode unchanged.
func TestEncodeDecode_JSON(t *testing.T) {
	tests := []struct {
		schema *Schema
		value  any
	}{
		{Of(TypeBool), true},
		{Of(TypeInt), -17},
		{Of(TypeFloat), 0.25},
		{Of(TypeString), "Mock Value"},
		{Of(TypeMatch), "class=Gimp | title=Foo"},
		{Of(TypeColor), Color{Red: 1, Green: 2, Blue: 3, Alpha: 4}},
		{Of(TypeKey), binding.Key{Modifiers: binding.ModControl | binding.ModAlt, Keysym: "t"}},
		{Of(TypeButton), binding.Button{Modifiers: binding.ModSuper, Number: 1}},
		{Of(TypeEdge), binding.EdgeLeft | binding.EdgeBottomRight},
		{Of(TypeBell), true},
		{Of(TypeAction), binding.Action{Key: binding.Key{Keysym: "F1"}, Edges: binding.EdgeTop, EdgeButton: 2}},
		{ListOf(Of(TypeInt)), []any{1, 2, 3}},
		{ListOf(Of(TypeColor)), []any{Color{Alpha: 0xffff}, RGBA8(1, 2, 3, 4)}},
	}

	for _, tt := range tests {
		t.Run(tt.schema.String(), func(t *testing.T) {
			data, err := json.Marshal(Encode(tt.value))
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			var raw any
			if err := json.Unmarshal(data, &raw); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			got, err := tt.schema.Decode(raw)
			if err != nil {
				t.Fatalf("Decode(%s) failed: %v", data, err)
			}
			if !Equal(got, tt.value) {
				t.Errorf("round trip = %#v, want %#v", got, tt.value)
			}
		})
	}
}

// Struct inputs are checked against the text grammar, so anything Coerce
// accepts also survives Encode and Decode.
func TestCoerce_BindingStructs(t *testing.T) {
	tests := []struct {
		name    string
		schema  *Schema
		value   any
		wantErr bool
	}{
		{"key", Of(TypeKey), binding.Key{Modifiers: binding.ModShift, Keysym: "Tab"}, false},
		{"modifier only key", Of(TypeKey), binding.Key{Modifiers: binding.ModSuper}, false},
		{"edge button", Of(TypeButton), binding.Button{Modifiers: binding.ModAlt, Edges: binding.EdgeTopLeft, Number: 1}, false},
		{"disabled button", Of(TypeButton), binding.Button{}, false},
		{"action", Of(TypeAction), binding.Action{Button: binding.Button{Modifiers: binding.ModControl, Number: 2}}, false},
		{"keysym with space", Of(TypeKey), binding.Key{Keysym: "a b"}, true},
		{"button without number", Of(TypeButton), binding.Button{Modifiers: binding.ModAlt}, true},
		{"action with bad key", Of(TypeAction), binding.Action{Key: binding.Key{Keysym: "a b"}}, true},
		{"action with bad button", Of(TypeAction), binding.Action{Button: binding.Button{Edges: binding.EdgeLeft}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.schema.Coerce(tt.value)
			if tt.wantErr {
				if !errors.Is(err, perrors.ErrTypeMismatch) {
					t.Fatalf("Coerce(%+v) = %v, want ErrTypeMismatch", tt.value, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Coerce(%+v) failed: %v", tt.value, err)
			}
			back, err := tt.schema.Decode(Encode(got))
			if err != nil {
				t.Fatalf("Decode(Encode(%+v)) failed: %v", got, err)
			}
			if !Equal(back, tt.value) {
				t.Errorf("round trip = %#v, want %#v", back, tt.value)
			}
		})
	}
}

func TestEncodeString(t *testing.T) {
	if got := EncodeString("x"); got != "x" {
		t.Errorf("EncodeString(string) = %q", got)
	}
	if got := EncodeString(binding.EdgeTop); got != "Top" {
		t.Errorf("EncodeString(edge) = %q", got)
	}
	if got := EncodeString([]any{1, 2}); got != "[1 2]" {
		t.Errorf("EncodeString(list) = %q", got)
	}
}

func TestClone(t *testing.T) {
	orig := []any{1, 2}
	c := Clone(orig).([]any)
	c[0] = 9
	if orig[0] != 1 {
		t.Error("Clone shares backing array")
	}
	if Clone("s") != "s" {
		t.Error("Clone of scalar should be identity")
	}
}
