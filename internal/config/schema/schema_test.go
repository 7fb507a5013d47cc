package schema

import (
	"errors"
	"testing"

	"github.com/dshills/plugreg/internal/config/binding"
	perrors "github.com/dshills/plugreg/internal/errors"
)

func TestParseType(t *testing.T) {
	for _, typ := range Types() {
		got, ok := ParseType(typ.String())
		if !ok || got != typ {
			t.Errorf("ParseType(%q) = %v, %v; want %v", typ.String(), got, ok, typ)
		}
	}

	if got, ok := ParseType(" Int "); !ok || got != TypeInt {
		t.Errorf("ParseType(\" Int \") = %v, %v", got, ok)
	}
	if _, ok := ParseType("object"); ok {
		t.Error("ParseType(\"object\") should fail")
	}
	if Type(200).String() != "unknown" {
		t.Error("out of range type should be unknown")
	}
	if !TypeKey.IsBinding() || TypeString.IsBinding() {
		t.Error("IsBinding returned wrong result")
	}
}

func TestSchema_Validate(t *testing.T) {
	tests := []struct {
		name    string
		schema  *Schema
		value   any
		wantErr bool
	}{
		{"bool ok", Of(TypeBool), true, false},
		{"bool wrong", Of(TypeBool), "true", true},
		{"bell ok", Of(TypeBell), false, false},
		{"int ok", Of(TypeInt), 42, false},
		{"int64 ok", Of(TypeInt), int64(-3), false},
		{"int from float", Of(TypeInt), 3.0, true},
		{"int below min", NewBuilder(TypeInt).Range(1, 10).Build(), 0, true},
		{"int at max", NewBuilder(TypeInt).Range(1, 10).Build(), 10, false},
		{"int above max", NewBuilder(TypeInt).Range(1, 10).Build(), 11, true},
		{"float ok", Of(TypeFloat), 1.5, false},
		{"float from int", Of(TypeFloat), 2, false},
		{"float range", NewBuilder(TypeFloat).Range(0, 1).Build(), 1.01, true},
		{"float string", Of(TypeFloat), "1.0", true},
		{"string ok", Of(TypeString), "Mock Value", false},
		{"string wrong", Of(TypeString), 5, true},
		{"string allowed", NewBuilder(TypeString).Allowed("a", "b").Build(), "b", false},
		{"string not allowed", NewBuilder(TypeString).Allowed("a", "b").Build(), "c", true},
		{"string extensible", NewBuilder(TypeString).Allowed("a").Extensible().Build(), "c", false},
		{"match ok", Of(TypeMatch), "class=Firefox & !(type=Dialog | type=Utility)", false},
		{"match empty", Of(TypeMatch), "", false},
		{"match unbalanced", Of(TypeMatch), "(class=a", true},
		{"match trailing op", Of(TypeMatch), "class=a &", true},
		{"match empty group", Of(TypeMatch), "class=a & ()", true},
		{"color struct", Of(TypeColor), Color{Red: 1, Alpha: 0xffff}, false},
		{"color string", Of(TypeColor), "#ff000080", false},
		{"color bad string", Of(TypeColor), "ff0000", true},
		{"color channels", Of(TypeColor), []any{0, 0, 0, 65535}, false},
		{"color channel overflow", Of(TypeColor), []any{0, 0, 0, 65536}, true},
		{"key ok", Of(TypeKey), "<Control><Alt>t", false},
		{"key struct", Of(TypeKey), binding.Key{Keysym: "a"}, false},
		{"key bad", Of(TypeKey), "<Ctl>t", true},
		{"key wrong type", Of(TypeKey), 4, true},
		{"button ok", Of(TypeButton), "<Super>Button1", false},
		{"button bad", Of(TypeButton), "<Super>Btn1", true},
		{"edge ok", Of(TypeEdge), "Left|Right", false},
		{"edge bad", Of(TypeEdge), "Centre", true},
		{"edge int strict", Of(TypeEdge), 3, true},
		{"action ok", Of(TypeAction), binding.Action{Bell: true}, false},
		{"action map", Of(TypeAction), map[string]any{"key": "<Alt>F4"}, false},
		{"action bad", Of(TypeAction), binding.Action{EdgeButton: 1}, true},
		{"list ok", ListOf(Of(TypeString)), []string{"a", "b"}, false},
		{"list any", ListOf(Of(TypeInt)), []any{1, 2, 3}, false},
		{"list bad element", ListOf(Of(TypeInt)), []any{1, "2"}, true},
		{"list element range", ListOf(NewBuilder(TypeInt).Maximum(2).Build()), []int{1, 3}, true},
		{"list not slice", ListOf(Of(TypeInt)), 1, true},
		{"list no elem", Of(TypeList), []any{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, perrors.ErrTypeMismatch) {
				t.Errorf("error %v should match ErrTypeMismatch", err)
			}
		})
	}
}

func TestSchema_CoerceCanonical(t *testing.T) {
	v, err := Of(TypeInt).Coerce(uint8(7))
	if err != nil || v != 7 {
		t.Errorf("Coerce(uint8) = %v (%T), %v; want int 7", v, v, err)
	}

	v, err = Of(TypeFloat).Coerce(3)
	if err != nil || v != 3.0 {
		t.Errorf("Coerce(int) for float = %v, %v", v, err)
	}

	v, err = Of(TypeKey).Coerce("<Alt>F4")
	if err != nil {
		t.Fatalf("Coerce key failed: %v", err)
	}
	if k, ok := v.(binding.Key); !ok || k.Keysym != "F4" || k.Modifiers != binding.ModAlt {
		t.Errorf("Coerce key = %#v", v)
	}

	v, err = ListOf(Of(TypeString)).Coerce([]string{"x"})
	if err != nil {
		t.Fatalf("Coerce list failed: %v", err)
	}
	if list, ok := v.([]any); !ok || len(list) != 1 || list[0] != "x" {
		t.Errorf("Coerce list = %#v", v)
	}
}

func TestSchema_Decode(t *testing.T) {
	// JSON and YAML decoders yield float64 for whole numbers.
	v, err := Of(TypeInt).Decode(float64(12))
	if err != nil || v != 12 {
		t.Errorf("Decode(12.0) = %v, %v; want 12", v, err)
	}
	if _, err := Of(TypeInt).Decode(12.5); err == nil {
		t.Error("Decode(12.5) should fail for int")
	}

	v, err = Of(TypeEdge).Decode(int64(binding.EdgeTop))
	if err != nil || v != binding.EdgeTop {
		t.Errorf("Decode edge bits = %v, %v", v, err)
	}
}

func TestSchema_Check(t *testing.T) {
	tests := []struct {
		name    string
		schema  *Schema
		wantErr bool
	}{
		{"plain", Of(TypeString), false},
		{"range", NewBuilder(TypeInt).Range(0, 5).Build(), false},
		{"inverted range", NewBuilder(TypeInt).Range(5, 0).Build(), true},
		{"list", ListOf(Of(TypeBool)), false},
		{"list without elem", Of(TypeList), true},
		{"nested list", ListOf(ListOf(Of(TypeInt))), true},
		{"unknown type", &Schema{Type: Type(99)}, true},
		{"negative precision", NewBuilder(TypeFloat).Precision(-1).Build(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.schema.Check(); (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchema_Zero(t *testing.T) {
	for _, typ := range Types() {
		s := Of(typ)
		if typ == TypeList {
			s = ListOf(Of(TypeInt))
		}
		if err := s.Validate(s.Zero()); err != nil {
			t.Errorf("zero value of %s fails validation: %v", typ, err)
		}
	}

	if got := NewBuilder(TypeInt).Range(3, 9).Build().Zero(); got != 3 {
		t.Errorf("Zero() with min 3 = %v", got)
	}
	if got := NewBuilder(TypeInt).Range(-9, -2.5).Build().Zero(); got != -3 {
		t.Errorf("Zero() with max -2.5 = %v", got)
	}
	if got := NewBuilder(TypeString).Allowed("on", "off").Build().Zero(); got != "on" {
		t.Errorf("Zero() with allowed list = %v", got)
	}
}

func TestSchema_NameOf(t *testing.T) {
	s := NewBuilder(TypeInt).Name(0, "Never").Name(1, "Always").Build()
	if name, ok := s.NameOf(1); !ok || name != "Always" {
		t.Errorf("NameOf(1) = %q, %v", name, ok)
	}
	if _, ok := s.NameOf(2); ok {
		t.Error("NameOf(2) should not be found")
	}
}

func TestSchema_String(t *testing.T) {
	if got := ListOf(Of(TypeColor)).String(); got != "list<color>" {
		t.Errorf("String() = %q", got)
	}
	if got := Of(TypeMatch).String(); got != "match" {
		t.Errorf("String() = %q", got)
	}
}

func TestValidationError(t *testing.T) {
	max := 10.0
	tests := []struct {
		err  *ValidationError
		want string
	}{
		{NewTypeError("mock.count", TypeInt, "x"), "mock.count: expected int, got string"},
		{NewRangeError("count", 11, nil, &max), "count: 11 outside [-inf, 10]"},
		{NewEnumError("", "c", []string{"a", "b"}), `"c" is not one of ["a" "b"]`},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
		if !errors.Is(tt.err, perrors.ErrTypeMismatch) {
			t.Errorf("%v should match ErrTypeMismatch", tt.err)
		}
	}
}
