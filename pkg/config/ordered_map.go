package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// OrderedMap is a string-keyed map that remembers insertion order.
//
// Nested objects decode into *OrderedMap, arrays into []any and numbers into
// json.Number, so a value can be re-emitted with the exact key order it was
// written in. A nil *OrderedMap behaves as an empty map for reads.
type OrderedMap struct {
	keys   []string
	values map[string]any
}

// NewOrderedMap creates an empty ordered map.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]any)}
}

// OrderedMapFromMap builds an ordered map from m with keys sorted.
func OrderedMapFromMap(m map[string]any) *OrderedMap {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := NewOrderedMap()
	for _, k := range keys {
		v := m[k]
		if nested, ok := v.(map[string]any); ok {
			v = OrderedMapFromMap(nested)
		}
		out.Set(k, v)
	}
	return out
}

// Set stores a value. Existing keys keep their original position.
func (m *OrderedMap) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value stored under key.
func (m *OrderedMap) Get(key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Delete removes key from the map.
func (m *OrderedMap) Delete(key string) {
	if m == nil {
		return
	}
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (m *OrderedMap) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of entries.
func (m *OrderedMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Merge copies every entry of other into m, overwriting existing values.
func (m *OrderedMap) Merge(other *OrderedMap) {
	for _, k := range other.Keys() {
		v, _ := other.Get(k)
		m.Set(k, v)
	}
}

// Clone returns a deep copy.
func (m *OrderedMap) Clone() *OrderedMap {
	if m == nil {
		return nil
	}
	out := NewOrderedMap()
	for _, k := range m.keys {
		out.Set(k, cloneValue(m.values[k]))
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case *OrderedMap:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

// MarshalJSON emits the entries in insertion order.
func (m *OrderedMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal key %q: %w", k, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping key order at every depth.
func (m *OrderedMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	decoded, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}

func decodeObject(dec *json.Decoder) (*OrderedMap, error) {
	out := NewOrderedMap()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}

		val, err := decodeValue(dec)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out.Set(key, val)
	}

	// closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			list := make([]any, 0)
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	default:
		return t, nil
	}
}

// UnmarshalYAML decodes a YAML mapping keeping key order at every depth.
func (m *OrderedMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	decoded, err := decodeYAMLMapping(node)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}

func decodeYAMLMapping(node *yaml.Node) (*OrderedMap, error) {
	out := NewOrderedMap()
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		val, err := decodeYAMLValue(valNode)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", keyNode.Value, err)
		}
		out.Set(keyNode.Value, val)
	}
	return out, nil
}

func decodeYAMLValue(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.MappingNode:
		return decodeYAMLMapping(node)
	case yaml.SequenceNode:
		list := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			v, err := decodeYAMLValue(item)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case yaml.AliasNode:
		return decodeYAMLValue(node.Alias)
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!int", "!!float":
			return json.Number(node.Value), nil
		case "!!null":
			return nil, nil
		}
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node", node.Line)
	}
}

// MarshalYAML emits a mapping node with keys in insertion order.
func (m *OrderedMap) MarshalYAML() (any, error) {
	return m.yamlNode()
}

func (m *OrderedMap) yamlNode() (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.Keys() {
		valNode, err := toYAMLNode(m.values[k])
		if err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			valNode,
		)
	}
	return node, nil
}

func toYAMLNode(v any) (*yaml.Node, error) {
	switch val := v.(type) {
	case *OrderedMap:
		return val.yamlNode()
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range val {
			child, err := toYAMLNode(item)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil
	case json.Number:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: val.String()}, nil
	default:
		node := &yaml.Node{}
		if err := node.Encode(val); err != nil {
			return nil, err
		}
		return node, nil
	}
}

// ToPlain converts the map to map[string]any, recursively. Key order is lost.
func (m *OrderedMap) ToPlain() map[string]any {
	out := make(map[string]any, m.Len())
	for _, k := range m.Keys() {
		out[k] = toPlainValue(m.values[k])
	}
	return out
}

func toPlainValue(v any) any {
	switch val := v.(type) {
	case *OrderedMap:
		return val.ToPlain()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toPlainValue(item)
		}
		return out
	default:
		return val
	}
}
