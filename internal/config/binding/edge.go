package binding

import (
	"fmt"
	"strings"
)

// Edge represents a set of screen edges and corners.
type Edge uint8

const (
	// EdgeLeft is the left screen edge.
	EdgeLeft Edge = 1 << iota
	// EdgeRight is the right screen edge.
	EdgeRight
	// EdgeTop is the top screen edge.
	EdgeTop
	// EdgeBottom is the bottom screen edge.
	EdgeBottom
	// EdgeTopLeft is the top-left corner.
	EdgeTopLeft
	// EdgeTopRight is the top-right corner.
	EdgeTopRight
	// EdgeBottomLeft is the bottom-left corner.
	EdgeBottomLeft
	// EdgeBottomRight is the bottom-right corner.
	EdgeBottomRight

	// EdgeNone is the empty edge set.
	EdgeNone Edge = 0
)

var edgeOrder = []struct {
	edge Edge
	name string
}{
	{EdgeLeft, "Left"},
	{EdgeRight, "Right"},
	{EdgeTop, "Top"},
	{EdgeBottom, "Bottom"},
	{EdgeTopLeft, "TopLeft"},
	{EdgeTopRight, "TopRight"},
	{EdgeBottomLeft, "BottomLeft"},
	{EdgeBottomRight, "BottomRight"},
}

// EdgeFromName returns the Edge for a name like "TopLeft" (case-insensitive).
// Returns EdgeNone if the name is not recognized.
func EdgeFromName(name string) Edge {
	for _, entry := range edgeOrder {
		if strings.EqualFold(entry.name, name) {
			return entry.edge
		}
	}
	return EdgeNone
}

// Has returns true if e contains every edge of other.
func (e Edge) Has(other Edge) bool {
	return e&other == other && other != EdgeNone
}

// Names returns the names of the edges in e, in canonical order.
func (e Edge) Names() []string {
	var names []string
	for _, entry := range edgeOrder {
		if e&entry.edge != 0 {
			names = append(names, entry.name)
		}
	}
	return names
}

// String returns the pipe-separated form, e.g. "Left|TopRight".
func (e Edge) String() string {
	return strings.Join(e.Names(), "|")
}

// ParseEdges parses a pipe-separated edge list. An empty string yields EdgeNone.
func ParseEdges(spec string) (Edge, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return EdgeNone, nil
	}
	var result Edge
	for _, part := range strings.Split(spec, "|") {
		part = strings.TrimSpace(part)
		edge := EdgeFromName(part)
		if edge == EdgeNone {
			return EdgeNone, fmt.Errorf("%w: unknown edge %q", ErrInvalidBinding, part)
		}
		result |= edge
	}
	return result, nil
}
