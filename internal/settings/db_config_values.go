package settings

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DBConfigInt returns an integer setting, accepting numbers, numeric strings and
// {"value": ...} wrappers.
func DBConfigInt(key string) (int, bool) {
	raw, ok := DBConfigValue(key)
	if !ok {
		return 0, false
	}
	return parseInt(raw)
}

// IntOr returns the integer setting for key, or def when unset or malformed.
func IntOr(key string, def int) int {
	if v, ok := DBConfigInt(key); ok {
		return v
	}
	return def
}

func parseInt(raw json.RawMessage) (int, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return 0, false
	}
	var n int
	if errUnmarshal := json.Unmarshal([]byte(trimmed), &n); errUnmarshal == nil {
		return n, true
	}
	var f float64
	if errUnmarshal := json.Unmarshal([]byte(trimmed), &f); errUnmarshal == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	}
	var s string
	if errUnmarshal := json.Unmarshal([]byte(trimmed), &s); errUnmarshal == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(s))
		if errParse == nil {
			return parsed, true
		}
	}
	var wrapper struct {
		Value json.RawMessage `json:"value"`
	}
	if errUnmarshal := json.Unmarshal([]byte(trimmed), &wrapper); errUnmarshal == nil && len(wrapper.Value) > 0 {
		return parseInt(wrapper.Value)
	}
	return 0, false
}
