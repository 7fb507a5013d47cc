// Package binding provides the structured binding descriptors used by the
// bound-capability setting types.
//
// This package defines:
//
//   - Modifier: a set of held modifier keys (Shift, Control, Alt, ...)
//   - Edge: a set of screen edges and corners
//   - Key: a keyboard binding such as "<Control><Alt>t"
//   - Button: a pointer binding such as "<Super>Button1"
//   - Action: a composite of key, button, edge and bell triggers
//
// # Binding Specifications
//
// Modifiers are written as angle-bracket prefixes in a fixed order:
//
//   - Keys: "<Control><Alt>Delete", "<Super>", "F12"
//   - Buttons: "<Alt>Button1", "<TopLeftEdge>Button3"
//   - Edges: "Left|TopRight"
//
// The literal "Disabled" (or an empty string) denotes an unbound key or
// button.
package binding
