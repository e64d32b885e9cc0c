package repository

import (
	"encoding/json"
	"reflect"
)

// Filter selects records whose JSON fields equal every given value.
// An empty Filter matches every record.
type Filter map[string]any

// Fields is a partial record keyed by JSON field name
type Fields map[string]any

// matcher holds a filter normalized to the shape decoded JSON takes
type matcher map[string]any

func (f Filter) compile() (matcher, error) {
	if len(f) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	var m matcher
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// match reports whether a raw document satisfies the matcher. A field absent
// from the document compares as null.
func (m matcher) match(doc json.RawMessage) (bool, error) {
	if len(m) == 0 {
		return true, nil
	}
	var fields map[string]any
	if err := json.Unmarshal(doc, &fields); err != nil {
		return false, err
	}
	for k, want := range m {
		if !reflect.DeepEqual(fields[k], want) {
			return false, nil
		}
	}
	return true, nil
}
