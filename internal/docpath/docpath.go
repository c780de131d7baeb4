// Package docpath reads and writes dot-delimited paths inside nested documents.
//
// A path such as "output.structure.sites.0.abc" walks maps by key and slices by
// integer index. Reads never panic: a missing key, an out-of-range index or a
// type mismatch along the way reports "not found".
package docpath

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Accessor abstracts nested-key access so callers can be tested against
// alternative document representations.
type Accessor interface {
	Get(doc map[string]any, path string) (any, bool)
	Set(doc map[string]any, path string, value any) error
}

// Dot is the default Accessor using "." as the segment separator.
var Dot Accessor = dotAccessor{}

type dotAccessor struct{}

func (dotAccessor) Get(doc map[string]any, path string) (any, bool) { return Get(doc, path) }

func (dotAccessor) Set(doc map[string]any, path string, value any) error {
	return Set(doc, path, value)
}

// Split breaks a path into its segments. An empty path has no segments.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Get returns the value at path. The empty path returns doc itself.
func Get(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, seg := range Split(path) {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		case []map[string]any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// Set assigns value at path, creating intermediate maps as needed. Integer
// segments index into existing slices; they never grow a slice.
func Set(doc map[string]any, path string, value any) error {
	segs := Split(path)
	if len(segs) == 0 {
		return eris.New("docpath: empty path")
	}
	var cur any = doc
	for i, seg := range segs {
		last := i == len(segs)-1
		switch node := cur.(type) {
		case map[string]any:
			if last {
				node[seg] = value
				return nil
			}
			next, ok := node[seg]
			if !ok || next == nil {
				m := make(map[string]any)
				node[seg] = m
				next = m
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return eris.Errorf("docpath: index %q out of range at %s", seg, strings.Join(segs[:i+1], "."))
			}
			if last {
				node[idx] = value
				return nil
			}
			cur = node[idx]
		default:
			return eris.Errorf("docpath: cannot descend into %T at %s", cur, strings.Join(segs[:i], "."))
		}
	}
	return nil
}

// String returns the string at path.
func String(doc map[string]any, path string) (string, bool) {
	v, ok := Get(doc, path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Float returns the number at path as a float64, accepting any numeric type.
func Float(doc map[string]any, path string) (float64, bool) {
	v, ok := Get(doc, path)
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// ToFloat converts a decoded numeric value to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Bool returns the boolean at path.
func Bool(doc map[string]any, path string) (bool, bool) {
	v, ok := Get(doc, path)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Map returns the nested document at path.
func Map(doc map[string]any, path string) (map[string]any, bool) {
	v, ok := Get(doc, path)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// Slice returns the list at path.
func Slice(doc map[string]any, path string) ([]any, bool) {
	v, ok := Get(doc, path)
	if !ok {
		return nil, false
	}
	return ToSlice(v)
}

// ToSlice normalises the list shapes produced by decoding and by Go callers.
func ToSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []float64:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	default:
		return nil, false
	}
}

// Strings returns the list of strings at path, skipping non-string members.
func Strings(doc map[string]any, path string) ([]string, bool) {
	items, ok := Slice(doc, path)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

// Time returns the timestamp at path. Both time.Time values and RFC 3339
// strings (the form a time takes after a JSON round trip) are accepted.
func Time(doc map[string]any, path string) (time.Time, bool) {
	v, ok := Get(doc, path)
	if !ok {
		return time.Time{}, false
	}
	return ToTime(v)
}

// ToTime converts a stored timestamp value to time.Time in UTC.
func ToTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999", "2006-01-02T15:04:05.999999"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}
