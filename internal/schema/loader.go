package schema

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// KeyList is a primary key declaration. In YAML it may be written either as
// a single column name or as a list of names.
type KeyList []string

// UnmarshalYAML accepts a scalar or a sequence.
func (k *KeyList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value == "" {
			*k = nil
			return nil
		}
		*k = KeyList{value.Value}
		return nil
	case yaml.SequenceNode:
		var keys []string
		if err := value.Decode(&keys); err != nil {
			return err
		}
		*k = keys
		return nil
	default:
		return fmt.Errorf("line %d: primary_keys must be a column name or a list", value.Line)
	}
}

// tableFields are the keys a table body may carry.
var tableFields = map[string]bool{"columns": true, "primary_keys": true, "create_sql": true}

type registryFile struct {
	Tables yaml.Node `yaml:"tables"`
}

// LoadFile reads a registry from a YAML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML registry document. Tables keep the order in which
// they appear in the document.
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	node := &file.Tables
	if node.Kind == 0 {
		return nil, fmt.Errorf("parse registry: no tables declared")
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse registry: line %d: tables must be a mapping", node.Line)
	}

	tables := make([]Table, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name, body := node.Content[i], node.Content[i+1]
		if err := checkFields(body); err != nil {
			return nil, fmt.Errorf("parse registry: table %s: %w", name.Value, err)
		}
		var t Table
		if err := body.Decode(&t); err != nil {
			return nil, fmt.Errorf("parse registry: table %s: %w", name.Value, err)
		}
		t.Name = name.Value
		tables = append(tables, t)
	}
	return NewRegistry(tables...)
}

// checkFields rejects keys a table body does not define. Node.Decode ignores
// them, unlike a Decoder with KnownFields set.
func checkFields(body *yaml.Node) error {
	if body.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: table must be a mapping", body.Line)
	}
	for i := 0; i+1 < len(body.Content); i += 2 {
		key := body.Content[i]
		if !tableFields[key.Value] {
			return fmt.Errorf("line %d: unknown field %q", key.Line, key.Value)
		}
	}
	return nil
}
