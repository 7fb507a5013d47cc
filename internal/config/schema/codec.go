package schema

import (
	"fmt"

	"github.com/dshills/plugreg/internal/config/binding"
)

// Encode converts a canonical value into primitives suitable for TOML,
// JSON, YAML or SQL storage. Decode reverses it.
func Encode(value any) any {
	switch v := value.(type) {
	case int:
		return int64(v)
	case Color:
		return v.String()
	case binding.Key:
		return v.String()
	case binding.Button:
		return v.String()
	case binding.Edge:
		return v.String()
	case binding.Action:
		return v.Fields()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Encode(item)
		}
		return out
	}
	return value
}

// EncodeString returns a human-readable form of a canonical value.
func EncodeString(value any) string {
	switch v := value.(type) {
	case binding.Action:
		return v.String()
	case string:
		return v
	}
	return fmt.Sprint(Encode(value))
}
