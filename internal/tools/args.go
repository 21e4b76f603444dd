package tools

import (
	"encoding/json"
	"math"

	"github.com/shakram02/go-mcp-db-gateway/internal/errs"
)

// Args is the argument mapping of one invocation.
type Args map[string]any

// missing returns the required names that are absent, null or an empty
// string, in the order given.
func (a Args) missing(required []string) []string {
	var out []string
	for _, name := range required {
		v, ok := a[name]
		if !ok || v == nil {
			out = append(out, name)
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			out = append(out, name)
		}
	}
	return out
}

// String returns a string argument or "" if absent.
func (a Args) String(key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errs.New(errs.Validation, "'%s' must be a string", key)
	}
	return s, nil
}

// Int returns an integer argument or def if absent. JSON numbers arrive as
// float64 and must be whole.
func (a Args) Int(key string, def int64) (int64, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, errs.New(errs.Validation, "'%s' must be an integer", key)
		}
		return int64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, errs.New(errs.Validation, "'%s' must be an integer", key)
		}
		return i, nil
	default:
		return 0, errs.New(errs.Validation, "'%s' must be an integer", key)
	}
}

// Bool returns a boolean argument or def if absent.
func (a Args) Bool(key string, def bool) (bool, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, errs.New(errs.Validation, "'%s' must be a boolean", key)
	}
	return b, nil
}

// Object returns a mapping argument, or nil if absent.
func (a Args) Object(key string) (map[string]any, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errs.New(errs.Validation, "'%s' must be an object", key)
	}
	return m, nil
}
