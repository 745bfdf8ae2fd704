package types

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Record is the output of a projection: a set of named values that keeps
// the order in which members were declared.
type Record struct {
	Keys   []string
	Values map[string]interface{}
}

// NewRecord returns an empty record with room for n members.
func NewRecord(n int) *Record {
	return &Record{
		Keys:   make([]string, 0, n),
		Values: make(map[string]interface{}, n),
	}
}

// Set adds or replaces a member. New members are appended to the key order.
func (r *Record) Set(key string, value interface{}) {
	if _, ok := r.Values[key]; !ok {
		r.Keys = append(r.Keys, key)
	}
	r.Values[key] = value
}

// Get retrieves a value by key.
func (r *Record) Get(key string) (interface{}, bool) {
	value, ok := r.Values[key]
	return value, ok
}

// Len returns the number of members.
func (r *Record) Len() int {
	return len(r.Keys)
}

// MarshalJSON preserves key order during marshaling.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(key))
		buf.WriteByte(':')
		valueBytes, err := json.Marshal(r.Values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(valueBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
