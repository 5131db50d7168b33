// Package codec converts vouch graphs to and from export formats.
package codec

import (
	"io"
	"sort"

	"vouchgraph/internal/domain"
)

// Codec reads and writes one export format
type Codec interface {
	Parse(r io.Reader) (domain.GraphData, error)
	Export(g domain.GraphData, w io.Writer) error
	Format() string
	ContentType() string
}

var registry = map[string]Codec{}

func register(c Codec) {
	registry[c.Format()] = c
}

func init() {
	register(NewJSONCodec())
	register(NewYAMLCodec())
}

// ByFormat returns the codec for a format name such as "json" or "yaml"
func ByFormat(format string) (Codec, bool) {
	if format == "yml" {
		format = "yaml"
	}
	c, ok := registry[format]
	return c, ok
}

// Formats lists the registered format names
func Formats() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalize replaces nil slices so exports always carry both lists
func normalize(g domain.GraphData) domain.GraphData {
	if g.Nodes == nil {
		g.Nodes = []domain.VouchNode{}
	}
	if g.Links == nil {
		g.Links = []domain.VouchLink{}
	}
	return g
}
