package writer

import (
	"bytes"
	"encoding/json"
)

// Layout is the ordered set of metadata column names shared by all
// records of a shard.
type Layout struct {
	names []string
	index map[string]int
}

// NewLayout returns a layout for names.
func NewLayout(names []string) *Layout {
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	return &Layout{names: names, index: index}
}

// Names returns the column names.
func (l *Layout) Names() []string {
	return l.names
}

// Index returns the position of name, or -1.
func (l *Layout) Index(name string) int {
	if i, ok := l.index[name]; ok {
		return i
	}
	return -1
}

// NewRecord returns an empty record; every value starts out nil.
func (l *Layout) NewRecord() *Record {
	return &Record{layout: l, values: make([]any, len(l.names))}
}

// Record is one sample's metadata, positional over its layout.
type Record struct {
	layout *Layout
	values []any
}

// Set stores v under name. It reports false if the layout has no such
// column.
func (r *Record) Set(name string, v any) bool {
	i := r.layout.Index(name)
	if i < 0 {
		return false
	}
	r.values[i] = v
	return true
}

// SetAt stores v at position i.
func (r *Record) SetAt(i int, v any) {
	r.values[i] = v
}

// Get returns the value stored under name.
func (r *Record) Get(name string) any {
	i := r.layout.Index(name)
	if i < 0 {
		return nil
	}
	return r.values[i]
}

// Has reports whether the layout has a column called name.
func (r *Record) Has(name string) bool {
	return r.layout.Index(name) >= 0
}

// Values returns the positional values.
func (r *Record) Values() []any {
	return r.values
}

// MarshalJSON encodes the record as an object in column order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range r.layout.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
