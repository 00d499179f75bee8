package filter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Specs is a named set of filter specs that remembers configuration order.
// It decodes from a JSON object or a YAML mapping.
type Specs struct {
	names []string
	specs map[string]Spec
}

// NewSpecs returns an empty set.
func NewSpecs() Specs {
	return Specs{specs: make(map[string]Spec)}
}

// Set adds or replaces a spec. A replaced spec keeps its position.
func (s *Specs) Set(name string, spec Spec) {
	if s.specs == nil {
		s.specs = make(map[string]Spec)
	}
	if _, exists := s.specs[name]; !exists {
		s.names = append(s.names, name)
	}
	s.specs[name] = spec
}

// Get returns the spec stored under name.
func (s Specs) Get(name string) (Spec, bool) {
	spec, ok := s.specs[name]
	return spec, ok
}

// Names returns filter names in configuration order.
func (s Specs) Names() []string {
	return append([]string(nil), s.names...)
}

// Len returns the number of specs.
func (s Specs) Len() int {
	return len(s.names)
}

// Compile validates the specs and returns them in configuration order.
func (s Specs) Compile() ([]Filter, error) {
	return compile(s.names, s.specs)
}

// UnmarshalJSON decodes the object token by token so key order survives.
func (s *Specs) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	out := NewSpecs()
	if tok == nil {
		*s = out
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("filters must be a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("filter name must be a string, got %v", tok)
		}
		var spec Spec
		if err := dec.Decode(&spec); err != nil {
			return fmt.Errorf("filter '%s': %w", name, err)
		}
		out.Set(name, spec)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*s = out
	return nil
}

// MarshalJSON encodes the object with keys in configuration order.
func (s Specs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range s.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(s.specs[name])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML decodes a mapping node in document order.
func (s *Specs) UnmarshalYAML(node *yaml.Node) error {
	out := NewSpecs()
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*s = out
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("filters must be a mapping (line %d)", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		var name string
		if err := node.Content[i].Decode(&name); err != nil {
			return fmt.Errorf("filter name (line %d): %w", node.Content[i].Line, err)
		}
		var spec Spec
		if err := node.Content[i+1].Decode(&spec); err != nil {
			return fmt.Errorf("filter '%s': %w", name, err)
		}
		out.Set(name, spec)
	}

	*s = out
	return nil
}
