package broker

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Candidates is an ordered list of field paths that may carry the same value
// in different upstream deployments. Paths may be dotted ("data.token").
// Resolution always takes the first candidate that is present and non-null.
type Candidates []string

// Lookup walks a dotted path through nested JSON objects.
func Lookup(v any, path string) (any, bool) {
	cur := v
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// First returns the value of the first present, non-null candidate.
func (c Candidates) First(v any) (any, bool) {
	for _, path := range c {
		if got, ok := Lookup(v, path); ok {
			return got, true
		}
	}
	return nil, false
}

// String returns the first non-null candidate rendered as a trimmed string.
// Numbers are formatted without exponent so ids survive.
func (c Candidates) String(v any) (string, bool) {
	got, ok := c.First(v)
	if !ok {
		return "", false
	}
	s, ok := asString(got)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Number returns the first non-null candidate as a finite float.
func (c Candidates) Number(v any) (float64, bool) {
	got, ok := c.First(v)
	if !ok {
		return 0, false
	}
	return AsNumber(got)
}

// NonEmptyString returns the first candidate that renders as a non-empty
// string. Blank placeholders do not stop the search.
func (c Candidates) NonEmptyString(v any) (string, bool) {
	for _, path := range c {
		got, ok := Lookup(v, path)
		if !ok {
			continue
		}
		if s, ok := asString(got); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// PositiveNumber returns the first candidate holding a number above zero.
// Zero, negative and unparsable values fall through to the next candidate.
func (c Candidates) PositiveNumber(v any) (float64, bool) {
	for _, path := range c {
		got, ok := Lookup(v, path)
		if !ok {
			continue
		}
		if f, ok := AsNumber(got); ok && f > 0 {
			return f, true
		}
	}
	return 0, false
}

// Bool returns the first non-null candidate when it is a JSON boolean.
func (c Candidates) Bool(v any) (bool, bool) {
	got, ok := c.First(v)
	if !ok {
		return false, false
	}
	b, ok := got.(bool)
	return b, ok
}

// Array returns the first candidate holding a JSON array. Unlike First, a
// present value of the wrong type does not stop the search.
func (c Candidates) Array(v any) ([]any, bool) {
	for _, path := range c {
		got, ok := Lookup(v, path)
		if !ok {
			continue
		}
		if arr, ok := got.([]any); ok {
			return arr, true
		}
	}
	return nil, false
}

// AsNumber converts a decoded JSON scalar to a finite float64.
func AsNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		p, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	default:
		return "", false
	}
}
