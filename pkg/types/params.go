package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Param is one named decay parameter.
type Param struct {
	Name  string
	Value float64
}

// Params is an ordered name -> value mapping. Order is preserved from the
// source document and is significant: it is the positional order in which
// values are bound to a compiled decay formula.
type Params []Param

// Names returns the parameter names in order.
func (p Params) Names() []string {
	out := make([]string, len(p))
	for i, kv := range p {
		out[i] = kv.Name
	}
	return out
}

// Values returns the parameter values in order.
func (p Params) Values() []float64 {
	out := make([]float64, len(p))
	for i, kv := range p {
		out[i] = kv.Value
	}
	return out
}

// Get returns the value for name and whether it was present.
func (p Params) Get(name string) (float64, bool) {
	for _, kv := range p {
		if kv.Name == name {
			return kv.Value, true
		}
	}
	return 0, false
}

// UnmarshalJSON decodes a JSON object while keeping key order.
func (p *Params) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("decay_params: want object, got %v", tok)
	}
	var out Params
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name := tok.(string)
		var v float64
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("decay_params.%s: %w", name, err)
		}
		out = append(out, Param{Name: name, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}

// MarshalJSON encodes p as a JSON object in order.
func (p Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(kv.Value)
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

// UnmarshalYAML decodes a YAML mapping while keeping key order.
func (p *Params) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("decay_params: line %d: want mapping", node.Line)
	}
	out := make(Params, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var v float64
		if err := node.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("decay_params.%s: %w", node.Content[i].Value, err)
		}
		out = append(out, Param{Name: node.Content[i].Value, Value: v})
	}
	*p = out
	return nil
}
