// Package bundle provides safe accessors over loosely-shaped JSON intake data.
package bundle

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Bundle is a decoded JSON object whose field names and shapes vary by producer.
type Bundle map[string]any

// Decode parses a JSON object into a Bundle. Numbers stay float64.
func Decode(data []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if b == nil {
		b = Bundle{}
	}
	return b, nil
}

// Lookup walks a dotted path ("diagnosisData.expertAnalysis.primaryDiagnosis").
func (b Bundle) Lookup(path string) (any, bool) {
	return lookup(map[string]any(b), path)
}

func lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// FirstString returns the first non-empty scalar found under paths.
func (b Bundle) FirstString(paths ...string) (string, bool) {
	for _, p := range paths {
		v, ok := b.Lookup(p)
		if !ok {
			continue
		}
		if s := Text(v); s != "" {
			return s, true
		}
	}
	return "", false
}

// FirstList returns the first non-empty list found under paths.
func (b Bundle) FirstList(paths ...string) ([]string, bool) {
	for _, p := range paths {
		v, ok := b.Lookup(p)
		if !ok {
			continue
		}
		if l := List(v); len(l) > 0 {
			return l, true
		}
	}
	return nil, false
}

// FirstMap returns the first object found under paths.
func (b Bundle) FirstMap(paths ...string) (map[string]any, bool) {
	for _, p := range paths {
		v, ok := b.Lookup(p)
		if !ok {
			continue
		}
		if m, ok := v.(map[string]any); ok && len(m) > 0 {
			return m, true
		}
	}
	return nil, false
}

// Slice returns the array under path, wrapping a lone object as a single element.
func (b Bundle) Slice(path string) []any {
	v, ok := b.Lookup(path)
	if !ok {
		return nil
	}
	switch x := v.(type) {
	case []any:
		return x
	case map[string]any:
		return []any{x}
	}
	return nil
}

// Paths joins every group alias with every field alias.
func Paths(groups []string, fields ...string) []string {
	out := make([]string, 0, len(groups)*len(fields))
	for _, f := range fields {
		for _, g := range groups {
			out = append(out, g+"."+f)
		}
	}
	return out
}

// textKeys are tried in order when a scalar is expected but an object is found.
var textKeys = []string{"condition", "name", "text", "label", "value", "display", "description"}

// Text renders a scalar-like value as trimmed text; unknown shapes yield "".
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case map[string]any:
		for _, k := range textKeys {
			if s := Text(x[k]); s != "" {
				return s
			}
		}
	case []any:
		parts := List(x)
		return strings.Join(parts, ", ")
	}
	return ""
}

// List renders a list-like value. Strings are split on commas, semicolons and newlines.
func List(v any) []string {
	var out []string
	switch x := v.(type) {
	case string:
		for _, part := range strings.FieldsFunc(x, func(r rune) bool {
			return r == ',' || r == ';' || r == '\n'
		}) {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	case []any:
		for _, item := range x {
			if s := Text(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range x {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Field reads the first non-empty alias from a single object.
func Field(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := Text(m[k]); s != "" {
			return s
		}
	}
	return ""
}
