package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is a four-channel color with 16 bits per channel.
type Color struct {
	Red   uint16
	Green uint16
	Blue  uint16
	Alpha uint16
}

// RGBA8 builds a Color from 8-bit channels.
func RGBA8(r, g, b, a uint8) Color {
	return Color{
		Red:   uint16(r) * 257,
		Green: uint16(g) * 257,
		Blue:  uint16(b) * 257,
		Alpha: uint16(a) * 257,
	}
}

// is8Bit reports whether every channel is exactly representable in 8 bits.
func (c Color) is8Bit() bool {
	return c.Red%257 == 0 && c.Green%257 == 0 && c.Blue%257 == 0 && c.Alpha%257 == 0
}

// String returns "#rrggbbaa" when lossless, otherwise "#rrrrggggbbbbaaaa".
func (c Color) String() string {
	if c.is8Bit() {
		return fmt.Sprintf("#%02x%02x%02x%02x", c.Red/257, c.Green/257, c.Blue/257, c.Alpha/257)
	}
	return fmt.Sprintf("#%04x%04x%04x%04x", c.Red, c.Green, c.Blue, c.Alpha)
}

// ParseColor parses "#rrggbb", "#rrggbbaa", "#rrrrggggbbbb" or
// "#rrrrggggbbbbaaaa". Missing alpha means fully opaque.
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "#") {
		return Color{}, fmt.Errorf("color %q must start with '#'", s)
	}
	hex := s[1:]

	var width int
	switch len(hex) {
	case 6, 8:
		width = 2
	case 12, 16:
		width = 4
	default:
		return Color{}, fmt.Errorf("color %q has invalid length", s)
	}

	channels := [4]uint16{0, 0, 0, 0xffff}
	for i := 0; i*width < len(hex); i++ {
		n, err := strconv.ParseUint(hex[i*width:(i+1)*width], 16, 16)
		if err != nil {
			return Color{}, fmt.Errorf("color %q: invalid hex digits", s)
		}
		if width == 2 {
			n *= 257
		}
		channels[i] = uint16(n)
	}
	return Color{Red: channels[0], Green: channels[1], Blue: channels[2], Alpha: channels[3]}, nil
}

// colorFromChannels builds a Color from a four-element sequence, checking
// that every channel lies in 0..65535.
func colorFromChannels(values []any) (Color, error) {
	if len(values) != 4 {
		return Color{}, fmt.Errorf("color needs 4 channels, got %d", len(values))
	}
	var ch [4]uint16
	for i, v := range values {
		n, ok := toInt64(v, true)
		if !ok {
			return Color{}, fmt.Errorf("channel %d is not an integer", i)
		}
		if n < 0 || n > 0xffff {
			return Color{}, fmt.Errorf("channel %d value %d outside 0..65535", i, n)
		}
		ch[i] = uint16(n)
	}
	return Color{Red: ch[0], Green: ch[1], Blue: ch[2], Alpha: ch[3]}, nil
}
