// Package schema provides the typed value model for plugin settings.
//
// A Schema pairs a declared Type with its validation rules: numeric bounds
// for Int and Float, an allowed-value list for String, and an element
// schema for List. Values travel in two shapes:
//
//   - canonical Go values (bool, int, float64, string, Color, binding.Key,
//     binding.Button, binding.Edge, binding.Action, []any), produced by
//     Coerce and held in memory by the registry
//   - primitive values (bool, int64, float64, string, map[string]any, []any),
//     produced by Encode for storage and accepted back by Decode
package schema

import (
	"fmt"
	"math"
	"reflect"
)

// IntName attaches a display name to one value of an Int setting.
type IntName struct {
	Value int
	Name  string
}

// Schema describes the type and validation rules of a setting value.
type Schema struct {
	// Type is the declared type.
	Type Type

	// Min is the inclusive lower bound for Int and Float (nil for none).
	Min *float64

	// Max is the inclusive upper bound for Int and Float (nil for none).
	Max *float64

	// Precision is the step hint for Float values. Zero means unspecified.
	Precision float64

	// Names describes individual Int values.
	Names []IntName

	// Allowed restricts String values unless Extensible is set.
	Allowed []string

	// Extensible allows String values outside Allowed.
	Extensible bool

	// Elem is the element schema of a List.
	Elem *Schema
}

// Of returns a schema of type t with no constraints.
func Of(t Type) *Schema {
	return &Schema{Type: t}
}

// ListOf returns a list schema with the given element schema.
func ListOf(elem *Schema) *Schema {
	return &Schema{Type: TypeList, Elem: elem}
}

// Check verifies the schema itself is well formed.
func (s *Schema) Check() error {
	if !s.Type.Valid() {
		return fmt.Errorf("unknown type %d", s.Type)
	}
	if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
		return fmt.Errorf("min %v is greater than max %v", *s.Min, *s.Max)
	}
	if s.Type == TypeList {
		if s.Elem == nil {
			return fmt.Errorf("list requires an element type")
		}
		if s.Elem.Type == TypeList {
			return fmt.Errorf("nested lists are not supported")
		}
		return s.Elem.Check()
	}
	if s.Precision < 0 {
		return fmt.Errorf("precision must not be negative")
	}
	return nil
}

// Validate checks a value against the schema.
func (s *Schema) Validate(value any) error {
	_, err := s.Coerce(value)
	return err
}

// Coerce converts value to its canonical shape and validates it.
//
// Coerce accepts canonical values, any Go integer kind for Int, integers for
// Float, and the textual forms of the color and binding types.
func (s *Schema) Coerce(value any) (any, error) {
	return s.coerce("", value, false)
}

// CoercePath is Coerce with a path used in validation errors.
func (s *Schema) CoercePath(path string, value any) (any, error) {
	return s.coerce(path, value, false)
}

// Decode converts a primitive value read from storage or a descriptor into
// its canonical shape. It is more lenient than Coerce about numeric
// representations, since JSON and YAML may yield float64 for integers.
func (s *Schema) Decode(raw any) (any, error) {
	return s.coerce("", raw, true)
}

// DecodePath is Decode with a path used in validation errors.
func (s *Schema) DecodePath(path string, raw any) (any, error) {
	return s.coerce(path, raw, true)
}

func (s *Schema) coerce(path string, value any, lenient bool) (any, error) {
	v, ok := validators[s.Type]
	if !ok {
		return nil, &ValidationError{Path: path, Message: fmt.Sprintf("unknown type %d", s.Type), Value: value}
	}
	return v(s, path, value, lenient)
}

// Zero returns the canonical zero value of the schema's type.
func (s *Schema) Zero() any {
	switch s.Type {
	case TypeBool, TypeBell:
		return false
	case TypeInt:
		return int(s.clampZero(math.Ceil, math.Floor))
	case TypeFloat:
		return s.clampZero(nil, nil)
	case TypeString:
		if len(s.Allowed) > 0 && !s.Extensible {
			return s.Allowed[0]
		}
		return ""
	case TypeMatch:
		return ""
	case TypeColor:
		return Color{Alpha: 0xffff}
	case TypeKey:
		return zeroKey
	case TypeButton:
		return zeroButton
	case TypeEdge:
		return zeroEdge
	case TypeAction:
		return zeroAction
	case TypeList:
		return []any{}
	}
	return nil
}

// clampZero returns 0 moved into [Min, Max], rounding bounds when requested.
func (s *Schema) clampZero(roundMin, roundMax func(float64) float64) float64 {
	v := 0.0
	if s.Min != nil && v < *s.Min {
		v = *s.Min
		if roundMin != nil {
			v = roundMin(v)
		}
	}
	if s.Max != nil && v > *s.Max {
		v = *s.Max
		if roundMax != nil {
			v = roundMax(v)
		}
	}
	return v
}

// NameOf returns the display name of an Int value, if one is declared.
func (s *Schema) NameOf(value int) (string, bool) {
	for _, n := range s.Names {
		if n.Value == value {
			return n.Name, true
		}
	}
	return "", false
}

// Equal reports whether two canonical values are equal.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// Clone returns a copy of a canonical value that shares no mutable state.
func Clone(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, len(list))
	copy(out, list)
	return out
}

// String returns a short description such as "list<int>".
func (s *Schema) String() string {
	if s.Type == TypeList && s.Elem != nil {
		return fmt.Sprintf("list<%s>", s.Elem.Type)
	}
	return s.Type.String()
}

// Builder provides a fluent API for constructing schemas.
type Builder struct {
	schema *Schema
}

// NewBuilder creates a new schema builder for type t.
func NewBuilder(t Type) *Builder {
	return &Builder{
		schema: &Schema{Type: t},
	}
}

// Build returns the constructed schema.
func (b *Builder) Build() *Schema {
	return b.schema
}

// Minimum sets the inclusive minimum for numbers.
func (b *Builder) Minimum(min float64) *Builder {
	b.schema.Min = &min
	return b
}

// Maximum sets the inclusive maximum for numbers.
func (b *Builder) Maximum(max float64) *Builder {
	b.schema.Max = &max
	return b
}

// Range sets both bounds.
func (b *Builder) Range(min, max float64) *Builder {
	return b.Minimum(min).Maximum(max)
}

// Precision sets the float step hint.
func (b *Builder) Precision(p float64) *Builder {
	b.schema.Precision = p
	return b
}

// Allowed sets the allowed string values.
func (b *Builder) Allowed(values ...string) *Builder {
	b.schema.Allowed = values
	return b
}

// Extensible allows strings outside the allowed list.
func (b *Builder) Extensible() *Builder {
	b.schema.Extensible = true
	return b
}

// Name describes one int value.
func (b *Builder) Name(value int, name string) *Builder {
	b.schema.Names = append(b.schema.Names, IntName{Value: value, Name: name})
	return b
}

// Elem sets the list element schema.
func (b *Builder) Elem(elem *Schema) *Builder {
	b.schema.Elem = elem
	return b
}
