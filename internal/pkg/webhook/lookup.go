package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Payload is a decoded webhook body. Numbers are kept as json.Number so that
// long numeric identifiers and phone numbers survive without float rounding.
type Payload map[string]any

// ParsePayload decodes a raw body into a JSON object.
func ParsePayload(body []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrInvalidPayload)
	}
	return Payload(out), nil
}

// Lookup resolves a dotted path. An exact top-level key wins over traversal so
// that keys containing dots or spaces ("Nome do Produto") are reachable.
// Numeric segments index into arrays.
func (p Payload) Lookup(path string) (any, bool) {
	if p == nil {
		return nil, false
	}
	if v, ok := p[path]; ok {
		return v, v != nil
	}
	var cur any = map[string]any(p)
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// Has reports whether path resolves to a non-null value.
func (p Payload) Has(path string) bool {
	_, ok := p.Lookup(path)
	return ok
}

// IsObject reports whether path resolves to a JSON object.
func (p Payload) IsObject(path string) bool {
	v, ok := p.Lookup(path)
	if !ok {
		return false
	}
	_, isMap := v.(map[string]any)
	return isMap
}

// String returns the trimmed string form of the value at path. Objects and
// arrays are not stringified.
func (p Payload) String(path string) string {
	v, ok := p.Lookup(path)
	if !ok {
		return ""
	}
	return scalarString(v)
}

// FirstString returns the first non-empty value among paths.
func (p Payload) FirstString(paths ...string) string {
	for _, path := range paths {
		if s := p.String(path); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
