package service

import (
	"net/http"
	"slices"
	"strings"
)

type fieldEntry struct {
	name   string
	values []string
}

// FieldMap is an ordered multimap of request or response fields.
//
// Names compare case-insensitively. A name keeps the spelling it was first
// added with. The zero value is not usable; create one with NewFieldMap.
type FieldMap struct {
	entries []fieldEntry
	index   map[string]int
}

// NewFieldMap returns an empty field map.
func NewFieldMap() *FieldMap {
	return &FieldMap{index: make(map[string]int)}
}

// FromHTTPHeader copies h into a new field map, ordering names lexically
// since http.Header does not preserve arrival order.
func FromHTTPHeader(h http.Header) *FieldMap {
	fm := NewFieldMap()
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		for _, v := range h[k] {
			fm.Add(k, v)
		}
	}
	return fm
}

func fold(name string) string {
	return strings.ToLower(name)
}

// Add appends value to the values stored under name.
func (fm *FieldMap) Add(name, value string) {
	key := fold(name)
	if i, ok := fm.index[key]; ok {
		fm.entries[i].values = append(fm.entries[i].values, value)
		return
	}
	fm.index[key] = len(fm.entries)
	fm.entries = append(fm.entries, fieldEntry{name: name, values: []string{value}})
}

// Set replaces the values stored under name with value.
func (fm *FieldMap) Set(name, value string) {
	key := fold(name)
	if i, ok := fm.index[key]; ok {
		fm.entries[i].values = []string{value}
		return
	}
	fm.Add(name, value)
}

// Values returns the values stored under name in insertion order.
// The returned slice must not be modified.
func (fm *FieldMap) Values(name string) []string {
	if fm == nil {
		return nil
	}
	if i, ok := fm.index[fold(name)]; ok {
		return fm.entries[i].values
	}
	return nil
}

// Keys returns the field names in first-insertion order.
func (fm *FieldMap) Keys() []string {
	if fm == nil {
		return nil
	}
	keys := make([]string, len(fm.entries))
	for i, e := range fm.entries {
		keys[i] = e.name
	}
	return keys
}

// Len returns the number of distinct names.
func (fm *FieldMap) Len() int {
	if fm == nil {
		return 0
	}
	return len(fm.entries)
}

// Clone returns a deep copy of fm.
func (fm *FieldMap) Clone() *FieldMap {
	out := NewFieldMap()
	if fm == nil {
		return out
	}
	for _, e := range fm.entries {
		for _, v := range e.values {
			out.Add(e.name, v)
		}
	}
	return out
}

// HTTPHeader converts fm into an http.Header.
func (fm *FieldMap) HTTPHeader() http.Header {
	h := make(http.Header, fm.Len())
	if fm == nil {
		return h
	}
	for _, e := range fm.entries {
		for _, v := range e.values {
			h.Add(e.name, v)
		}
	}
	return h
}
