package registry

import (
	"context"
	"fmt"

	"github.com/dshills/plugreg/internal/config/binding"
	"github.com/dshills/plugreg/internal/config/schema"
	perrors "github.com/dshills/plugreg/internal/errors"
)

// typed returns the value of s as T when the declared type is one of
// types.
func typed[T any](ctx context.Context, s *Setting, op string, types ...schema.Type) (T, error) {
	var zero T
	ok := false
	for _, t := range types {
		if s.Type() == t {
			ok = true
			break
		}
	}
	if !ok {
		return zero, perrors.ForSetting(perrors.ErrTypeMismatch, op, s.plugin.name, s.desc.Name,
			fmt.Errorf("setting is of type %s", s.Type()))
	}
	v, err := s.Value(ctx)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, perrors.ForSetting(perrors.ErrTypeMismatch, op, s.plugin.name, s.desc.Name,
			fmt.Errorf("value has type %T", v))
	}
	return out, nil
}

// Bool returns the value of a Bool or Bell setting.
func (s *Setting) Bool(ctx context.Context) (bool, error) {
	return typed[bool](ctx, s, "registry.bool", schema.TypeBool, schema.TypeBell)
}

// Int returns the value of an Int setting.
func (s *Setting) Int(ctx context.Context) (int, error) {
	return typed[int](ctx, s, "registry.int", schema.TypeInt)
}

// Float returns the value of a Float setting.
func (s *Setting) Float(ctx context.Context) (float64, error) {
	return typed[float64](ctx, s, "registry.float", schema.TypeFloat)
}

// String returns the value of a String or Match setting.
func (s *Setting) String(ctx context.Context) (string, error) {
	return typed[string](ctx, s, "registry.string", schema.TypeString, schema.TypeMatch)
}

// Color returns the value of a Color setting.
func (s *Setting) Color(ctx context.Context) (schema.Color, error) {
	return typed[schema.Color](ctx, s, "registry.color", schema.TypeColor)
}

// Key returns the value of a Key setting.
func (s *Setting) Key(ctx context.Context) (binding.Key, error) {
	return typed[binding.Key](ctx, s, "registry.key", schema.TypeKey)
}

// Button returns the value of a Button setting.
func (s *Setting) Button(ctx context.Context) (binding.Button, error) {
	return typed[binding.Button](ctx, s, "registry.button", schema.TypeButton)
}

// Edge returns the value of an Edge setting.
func (s *Setting) Edge(ctx context.Context) (binding.Edge, error) {
	return typed[binding.Edge](ctx, s, "registry.edge", schema.TypeEdge)
}

// Action returns the value of an Action setting.
func (s *Setting) Action(ctx context.Context) (binding.Action, error) {
	return typed[binding.Action](ctx, s, "registry.action", schema.TypeAction)
}

// List returns the value of a List setting.
func (s *Setting) List(ctx context.Context) ([]any, error) {
	return typed[[]any](ctx, s, "registry.list", schema.TypeList)
}
