package automation

import (
	"strconv"

	"github.com/spf13/cast"
	"gorm.io/datatypes"
)

// Config is a read-only view over a rule's trigger_config or action_config.
// Values are compared as strings, so an id stored as 12, 12.0 or "12" reads
// back as "12". Missing keys read as "".
type Config map[string]interface{}

// ConfigOf wraps a persisted JSON map. A nil map is valid and empty.
func ConfigOf(m datatypes.JSONMap) Config {
	return Config(m)
}

// String returns the normalized value for key.
func (c Config) String(key string) string {
	if c == nil {
		return ""
	}
	return normalize(c[key])
}

// Has reports whether key carries a non-empty value.
func (c Config) Has(key string) bool {
	return c.String(key) != ""
}

// Uint parses key as a positive id.
func (c Config) Uint(key string) (uint, bool) {
	if c == nil {
		return 0, false
	}
	n, err := cast.ToUintE(c[key])
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// Int parses key as a signed integer, falling back to def.
func (c Config) Int(key string, def int) int {
	if c.String(key) == "" {
		return def
	}
	n, err := cast.ToIntE(c[key])
	if err != nil {
		return def
	}
	return n
}

func normalize(v interface{}) string {
	return cast.ToString(v)
}

// idString renders an id the way Config does; zero means "none".
func idString(id uint) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(id), 10)
}

// valuesOf flattens an item's field map into normalized strings.
func valuesOf(m datatypes.JSONMap) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}
