package schema

import "strings"

// Type is the declared type of a setting. Each variant has its own
// validation function.
type Type uint8

const (
	// TypeBool represents a boolean value.
	TypeBool Type = iota
	// TypeInt represents an integer value.
	TypeInt
	// TypeFloat represents a floating-point value.
	TypeFloat
	// TypeString represents a text value.
	TypeString
	// TypeColor represents a four-channel color.
	TypeColor
	// TypeAction represents a composite key/button/edge/bell trigger.
	TypeAction
	// TypeKey represents a keyboard binding.
	TypeKey
	// TypeButton represents a pointer binding.
	TypeButton
	// TypeEdge represents a set of screen edges.
	TypeEdge
	// TypeBell represents a bell trigger flag.
	TypeBell
	// TypeMatch represents a window-match expression.
	TypeMatch
	// TypeList represents an ordered sequence of one element type.
	TypeList

	typeCount
)

var typeNames = [typeCount]string{
	TypeBool:   "bool",
	TypeInt:    "int",
	TypeFloat:  "float",
	TypeString: "string",
	TypeColor:  "color",
	TypeAction: "action",
	TypeKey:    "key",
	TypeButton: "button",
	TypeEdge:   "edge",
	TypeBell:   "bell",
	TypeMatch:  "match",
	TypeList:   "list",
}

// String returns the descriptor name of the type.
func (t Type) String() string {
	if t < typeCount {
		return typeNames[t]
	}
	return "unknown"
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return t < typeCount
}

// IsBinding reports whether t is one of the bound-capability types.
func (t Type) IsBinding() bool {
	switch t {
	case TypeAction, TypeKey, TypeButton, TypeEdge, TypeBell:
		return true
	}
	return false
}

// ParseType returns the Type for a descriptor name (case-insensitive).
func ParseType(name string) (Type, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range typeNames {
		if n == name {
			return Type(t), true
		}
	}
	return 0, false
}

// Types returns every known type in declaration order.
func Types() []Type {
	types := make([]Type, 0, typeCount)
	for t := Type(0); t < typeCount; t++ {
		types = append(types, t)
	}
	return types
}
