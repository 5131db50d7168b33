package codec

import (
	"errors"
	"fmt"
	"io"

	"vouchgraph/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// ContentType is the HTTP media type of the encoding
func (c *YAMLCodec) ContentType() string {
	return "application/yaml"
}

// Parse imports graph data from YAML. An empty document is an empty graph.
func (c *YAMLCodec) Parse(r io.Reader) (domain.GraphData, error) {
	var g domain.GraphData
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&g); err != nil && !errors.Is(err, io.EOF) {
		return domain.GraphData{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return normalize(g), nil
}

// Export exports graph data to YAML
func (c *YAMLCodec) Export(g domain.GraphData, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if err := encoder.Encode(normalize(g)); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return encoder.Close()
}
