package schema

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/dshills/plugreg/internal/config/binding"
)

// validateFunc validates one type variant and returns the canonical value.
type validateFunc func(s *Schema, path string, value any, lenient bool) (any, error)

var validators map[Type]validateFunc

func init() {
	validators = map[Type]validateFunc{
		TypeBool:   validateBool,
		TypeBell:   validateBool,
		TypeInt:    validateInt,
		TypeFloat:  validateFloat,
		TypeString: validateString,
		TypeMatch:  validateMatch,
		TypeColor:  validateColor,
		TypeKey:    validateKey,
		TypeButton: validateButton,
		TypeEdge:   validateEdge,
		TypeAction: validateAction,
		TypeList:   validateList,
	}
}

var (
	zeroKey    = binding.Key{}
	zeroButton = binding.Button{}
	zeroEdge   = binding.EdgeNone
	zeroAction = binding.Action{}
)

func validateBool(s *Schema, path string, value any, _ bool) (any, error) {
	b, ok := value.(bool)
	if !ok {
		return nil, NewTypeError(path, s.Type, value)
	}
	return b, nil
}

func validateInt(s *Schema, path string, value any, lenient bool) (any, error) {
	n, ok := toInt64(value, lenient)
	if !ok || n < math.MinInt || n > math.MaxInt {
		return nil, NewTypeError(path, TypeInt, value)
	}
	if err := checkRange(s, path, float64(n)); err != nil {
		return nil, err
	}
	return int(n), nil
}

func validateFloat(s *Schema, path string, value any, _ bool) (any, error) {
	f, ok := toFloat64(value)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, NewTypeError(path, TypeFloat, value)
	}
	if err := checkRange(s, path, f); err != nil {
		return nil, err
	}
	return f, nil
}

func checkRange(s *Schema, path string, f float64) error {
	if (s.Min != nil && f < *s.Min) || (s.Max != nil && f > *s.Max) {
		return NewRangeError(path, f, s.Min, s.Max)
	}
	return nil
}

func validateString(s *Schema, path string, value any, _ bool) (any, error) {
	str, ok := value.(string)
	if !ok {
		return nil, NewTypeError(path, TypeString, value)
	}
	if len(s.Allowed) > 0 && !s.Extensible && !slices.Contains(s.Allowed, str) {
		return nil, NewEnumError(path, str, s.Allowed)
	}
	return str, nil
}

// validateMatch accepts window-match expressions such as
// "class=Firefox & !(type=Dialog | type=Utility)".
func validateMatch(_ *Schema, path string, value any, _ bool) (any, error) {
	str, ok := value.(string)
	if !ok {
		return nil, NewTypeError(path, TypeMatch, value)
	}
	if err := checkMatch(str); err != nil {
		return nil, NewFormatError(path, str, err)
	}
	return str, nil
}

func checkMatch(expr string) error {
	depth := 0
	expectTerm := true
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil
	}
	for i := 0; i < len(trimmed); i++ {
		switch c := trimmed[i]; c {
		case '\\':
			i++
			expectTerm = false
		case '(':
			depth++
			expectTerm = true
		case ')':
			if depth == 0 {
				return fmt.Errorf("unbalanced ')' at offset %d", i)
			}
			if expectTerm {
				return fmt.Errorf("empty term before offset %d", i)
			}
			depth--
		case '&', '|':
			if expectTerm {
				return fmt.Errorf("operator %q without left operand at offset %d", c, i)
			}
			expectTerm = true
		case ' ', '\t', '!':
		default:
			expectTerm = false
		}
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced '('")
	}
	if expectTerm {
		return fmt.Errorf("expression ends with an operator")
	}
	return nil
}

func validateColor(_ *Schema, path string, value any, _ bool) (any, error) {
	switch v := value.(type) {
	case Color:
		return v, nil
	case string:
		c, err := ParseColor(v)
		if err != nil {
			return nil, NewFormatError(path, v, err)
		}
		return c, nil
	case []any:
		c, err := colorFromChannels(v)
		if err != nil {
			return nil, NewFormatError(path, v, err)
		}
		return c, nil
	case map[string]any:
		c, err := colorFromChannels([]any{v["red"], v["green"], v["blue"], alphaOrOpaque(v)})
		if err != nil {
			return nil, NewFormatError(path, v, err)
		}
		return c, nil
	}
	return nil, NewTypeError(path, TypeColor, value)
}

func alphaOrOpaque(m map[string]any) any {
	if a, ok := m["alpha"]; ok {
		return a
	}
	return int64(0xffff)
}

func validateKey(_ *Schema, path string, value any, _ bool) (any, error) {
	switch v := value.(type) {
	case binding.Key:
		if err := v.Validate(); err != nil {
			return nil, NewFormatError(path, v, err)
		}
		return v, nil
	case string:
		k, err := binding.ParseKey(v)
		if err != nil {
			return nil, NewFormatError(path, v, err)
		}
		return k, nil
	}
	return nil, NewTypeError(path, TypeKey, value)
}

func validateButton(_ *Schema, path string, value any, _ bool) (any, error) {
	switch v := value.(type) {
	case binding.Button:
		if err := v.Validate(); err != nil {
			return nil, NewFormatError(path, v, err)
		}
		return v, nil
	case string:
		b, err := binding.ParseButton(v)
		if err != nil {
			return nil, NewFormatError(path, v, err)
		}
		return b, nil
	}
	return nil, NewTypeError(path, TypeButton, value)
}

func validateEdge(_ *Schema, path string, value any, lenient bool) (any, error) {
	switch v := value.(type) {
	case binding.Edge:
		return v, nil
	case string:
		e, err := binding.ParseEdges(v)
		if err != nil {
			return nil, NewFormatError(path, v, err)
		}
		return e, nil
	}
	if n, ok := toInt64(value, lenient); ok && lenient && n >= 0 && n <= 0xff {
		return binding.Edge(n), nil
	}
	return nil, NewTypeError(path, TypeEdge, value)
}

func validateAction(_ *Schema, path string, value any, _ bool) (any, error) {
	switch v := value.(type) {
	case binding.Action:
		if err := v.Validate(); err != nil {
			return nil, NewFormatError(path, v, err)
		}
		return v, nil
	case map[string]any:
		a, err := binding.ParseActionFields(v)
		if err != nil {
			return nil, NewFormatError(path, v, err)
		}
		return a, nil
	}
	return nil, NewTypeError(path, TypeAction, value)
}

func validateList(s *Schema, path string, value any, lenient bool) (any, error) {
	if s.Elem == nil {
		return nil, &ValidationError{Path: path, Message: "list has no element type", Value: value}
	}
	items, ok := toSlice(value)
	if !ok {
		return nil, NewTypeError(path, TypeList, value)
	}
	out := make([]any, len(items))
	for i, item := range items {
		v, err := s.Elem.coerce(fmt.Sprintf("%s[%d]", path, i), item, lenient)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// toSlice converts any slice type to []any.
func toSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		return spread(v), true
	case []int:
		return spread(v), true
	case []int64:
		return spread(v), true
	case []float64:
		return spread(v), true
	case []bool:
		return spread(v), true
	case []Color:
		return spread(v), true
	case []binding.Key:
		return spread(v), true
	case []binding.Button:
		return spread(v), true
	case []binding.Action:
		return spread(v), true
	case []map[string]any:
		return spread(v), true
	}
	return nil, false
}

func spread[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// toInt64 converts Go integer kinds to int64. When lenient, integral
// float64 values are accepted as well.
func toInt64(value any, lenient bool) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), v <= math.MaxInt64
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), v <= math.MaxInt64
	case float64:
		if lenient && v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int64(v), true
		}
	}
	return 0, false
}

// toFloat64 converts numeric kinds to float64.
func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	if n, ok := toInt64(value, false); ok {
		return float64(n), true
	}
	return 0, false
}
