package wire

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Change is one serialized position field.
type Change struct {
	Field string
	Value string
}

// Changes is an ordered field → value map. It encodes as a JSON or YAML
// object whose keys keep their slice order.
type Changes []Change

// MarshalJSON writes the changes as an object in slice order.
func (c Changes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ch := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ch.Field)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(ch.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object keeping its key order.
func (c *Changes) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*c = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("changes must be a JSON object")
	}

	out := Changes{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errors.Errorf("unexpected changes key %v", tok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return errors.Wrapf(err, "changes[%s]", key)
		}
		out = append(out, Change{Field: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}

// MarshalYAML writes the changes as a mapping node in slice order.
func (c Changes) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, ch := range c {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: ch.Field},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: ch.Value},
		)
	}
	return node, nil
}

// UnmarshalYAML reads a mapping node keeping its key order.
func (c *Changes) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.Errorf("line %d: changes must be a mapping", node.Line)
	}
	out := make(Changes, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out = append(out, Change{Field: node.Content[i].Value, Value: node.Content[i+1].Value})
	}
	*c = out
	return nil
}
