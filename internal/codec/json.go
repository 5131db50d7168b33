package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"vouchgraph/internal/domain"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// ContentType is the HTTP media type of the encoding
func (c *JSONCodec) ContentType() string {
	return "application/json"
}

// Parse imports graph data from JSON. Link endpoints may be bare ids or
// node objects.
func (c *JSONCodec) Parse(r io.Reader) (domain.GraphData, error) {
	var g domain.GraphData
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&g); err != nil {
		return domain.GraphData{}, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return normalize(g), nil
}

// Export exports graph data to JSON
func (c *JSONCodec) Export(g domain.GraphData, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(normalize(g)); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
