package natskv

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/plugreg/internal/backend"
	perrors "github.com/dshills/plugreg/internal/errors"
)

// defaultToken names the default profile in bucket keys.
const defaultToken = "_default"

// tokenPattern is the subset of NATS KV key characters allowed in one key
// token. Dots separate tokens and so are excluded.
var tokenPattern = regexp.MustCompile(`^[-/_=a-zA-Z0-9]+$`)

// encodeKey maps a key to "<profile|_default>.<plugin>.<setting>".
func encodeKey(op string, key backend.Key) (string, error) {
	profile, err := profileToken(op, key.Profile)
	if err != nil {
		return "", err
	}
	for _, part := range []string{key.Plugin, key.Setting} {
		if !tokenPattern.MatchString(part) {
			return "", perrors.ForSetting(perrors.ErrMalformed, op, key.Plugin, key.Setting,
				fmt.Errorf("%q cannot be stored in a bucket key", part))
		}
	}
	return profile + "." + key.Plugin + "." + key.Setting, nil
}

// decodeKey reverses encodeKey.
func decodeKey(s string) (backend.Key, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return backend.Key{}, false
	}
	profile := parts[0]
	if profile == defaultToken {
		profile = backend.DefaultProfile
	}
	return backend.Key{Profile: profile, Plugin: parts[1], Setting: parts[2]}, true
}

func profileToken(op, profile string) (string, error) {
	if profile == backend.DefaultProfile {
		return defaultToken, nil
	}
	if profile == defaultToken || !tokenPattern.MatchString(profile) {
		return "", perrors.Errorf(perrors.ErrMalformed, op, "invalid profile name %q", profile)
	}
	return profile, nil
}
