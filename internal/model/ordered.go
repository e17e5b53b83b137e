package model

import (
	"bytes"
	"encoding/json"
	"iter"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Ordered is a string-keyed map that remembers insertion order. JSON and
// YAML encoding preserve that order, and decoding rejects duplicate keys.
// The zero value is an empty map ready to use.
type Ordered[V any] struct {
	keys   []string
	values map[string]V
}

// NewOrdered returns an empty Ordered map with room for n entries.
func NewOrdered[V any](n int) *Ordered[V] {
	return &Ordered[V]{
		keys:   make([]string, 0, n),
		values: make(map[string]V, n),
	}
}

// Set stores v under key. A new key is appended; an existing key keeps its position.
func (o *Ordered[V]) Set(key string, v V) {
	if o.values == nil {
		o.values = make(map[string]V)
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Get returns the value stored under key.
func (o Ordered[V]) Get(key string) (V, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Has reports whether key is present.
func (o Ordered[V]) Has(key string) bool {
	_, ok := o.values[key]
	return ok
}

// Len returns the number of entries.
func (o Ordered[V]) Len() int {
	return len(o.keys)
}

// Keys returns a copy of the keys in insertion order.
func (o Ordered[V]) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// All iterates entries in insertion order.
func (o Ordered[V]) All() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		for _, k := range o.keys {
			if !yield(k, o.values[k]) {
				return
			}
		}
	}
}

// MarshalJSON writes the entries as a JSON object in insertion order.
func (o Ordered[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, eris.Wrapf(err, "model: marshal key %q", k)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, eris.Wrapf(err, "model: marshal value for %q", k)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping key order. JSON null yields an empty map.
func (o *Ordered[V]) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return eris.Wrap(err, "model: read object")
	}
	if tok == nil {
		*o = Ordered[V]{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return eris.New("model: expected a JSON object")
	}

	out := Ordered[V]{values: make(map[string]V)}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "model: read key")
		}
		key, ok := kt.(string)
		if !ok {
			return eris.New("model: object key is not a string")
		}
		if _, dup := out.values[key]; dup {
			return eris.Errorf("model: duplicate key %q", key)
		}
		var v V
		if err := dec.Decode(&v); err != nil {
			return eris.Wrapf(err, "model: decode value for %q", key)
		}
		out.keys = append(out.keys, key)
		out.values[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return eris.Wrap(err, "model: read object end")
	}

	*o = out
	return nil
}

// UnmarshalYAML reads a YAML mapping, keeping key order.
func (o *Ordered[V]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*o = Ordered[V]{}
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return eris.Errorf("model: expected a YAML mapping at line %d", node.Line)
	}

	out := Ordered[V]{values: make(map[string]V, len(node.Content)/2)}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		if _, dup := out.values[key]; dup {
			return eris.Errorf("model: duplicate key %q", key)
		}
		var v V
		if err := node.Content[i+1].Decode(&v); err != nil {
			return eris.Wrapf(err, "model: decode value for %q", key)
		}
		out.keys = append(out.keys, key)
		out.values[key] = v
	}

	*o = out
	return nil
}
