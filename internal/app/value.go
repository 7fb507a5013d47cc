package app

import (
	"github.com/dshills/plugreg/internal/config/loader"
	"github.com/dshills/plugreg/internal/config/schema"
)

// ParseValue converts a command line argument into a value of s.
//
// The argument is first read as a TOML value, so numbers, booleans,
// arrays and inline tables keep their type. Anything that is not valid
// TOML is taken as a bare string, which covers colors, bindings and
// match expressions.
func ParseValue(s *schema.Schema, arg string) (any, error) {
	doc, err := loader.Parse("argument", []byte("v = "+arg))
	raw, parsed := doc["v"]
	if err != nil || !parsed {
		return s.Decode(arg)
	}

	v, err := s.Decode(raw)
	if err != nil {
		// "5" or "true" given for a string setting.
		if v, err2 := s.Decode(arg); err2 == nil {
			return v, nil
		}
	}
	return v, err
}
