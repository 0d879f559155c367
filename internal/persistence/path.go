package persistence

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Path addresses a child document (Root/Key) or one of its fields
// (Root/Key/Field).
type Path struct {
	Root  string
	Key   string
	Field string
}

func ParsePath(s string) (Path, error) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
		}
	}
	switch len(parts) {
	case 2:
		return Path{Root: parts[0], Key: parts[1]}, nil
	case 3:
		return Path{Root: parts[0], Key: parts[1], Field: parts[2]}, nil
	default:
		return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, s)
	}
}

func (p Path) String() string {
	if p.Field == "" {
		return p.Root + "/" + p.Key
	}
	return p.Root + "/" + p.Key + "/" + p.Field
}

// Join builds a path string from its segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Write is one validated entry of a multi-path update.
type Write struct {
	Path  Path
	Value json.RawMessage
}

// Plan validates a multi-path update and orders it deterministically.
// A path may not be written together with one of its own fields.
func Plan(values map[string]json.RawMessage) ([]Write, error) {
	writes := make([]Write, 0, len(values))
	whole := make(map[string]bool)
	for raw, v := range values {
		p, err := ParsePath(raw)
		if err != nil {
			return nil, err
		}
		if !IsNull(v) && !json.Valid(v) {
			return nil, fmt.Errorf("%w: %q holds invalid JSON", ErrInvalidPath, raw)
		}
		if p.Field == "" {
			whole[p.Root+"/"+p.Key] = true
		}
		writes = append(writes, Write{Path: p, Value: v})
	}
	for _, w := range writes {
		if w.Path.Field != "" && whole[w.Path.Root+"/"+w.Path.Key] {
			return nil, fmt.Errorf("%w: %q overlaps another write", ErrInvalidPath, w.Path)
		}
	}
	sort.Slice(writes, func(i, j int) bool {
		return writes[i].Path.String() < writes[j].Path.String()
	})
	return writes, nil
}

// Apply computes the new body of the child addressed by w given its current
// body (nil when absent). A nil result means the child no longer exists.
func Apply(current json.RawMessage, w Write) (json.RawMessage, error) {
	if w.Path.Field == "" {
		if IsNull(w.Value) {
			return nil, nil
		}
		return append(json.RawMessage(nil), w.Value...), nil
	}

	fields := map[string]json.RawMessage{}
	if len(current) > 0 {
		if err := json.Unmarshal(current, &fields); err != nil {
			return nil, fmt.Errorf("merge field %q into %s: %w", w.Path.Field, w.Path.Key, err)
		}
	}
	if IsNull(w.Value) {
		delete(fields, w.Path.Field)
	} else {
		fields[w.Path.Field] = w.Value
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return json.Marshal(fields)
}
