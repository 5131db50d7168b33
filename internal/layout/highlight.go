package layout

// Styling constants
const (
	SelectedRadiusIncrease    = 5
	HighlightedRadiusIncrease = 2
	HighlightFill             = "yellow"

	LinkColor            = "#999"
	LinkHighlightColor   = "red"
	LinkWidth            = 1.0
	LinkHighlightWidth   = 3.0
	LinkOpacity          = 0.6
	LinkHighlightOpacity = 1.0

	hitAreaIncrease = 10
	minHitRadius    = 25
)

// NodeStyle is the rendered appearance of one node
type NodeStyle struct {
	Radius      float64 `json:"r"`
	Fill        string  `json:"fill"`
	Highlighted bool    `json:"highlighted"`
}

// LinkStyle is the rendered appearance of one link
type LinkStyle struct {
	Stroke      string  `json:"stroke"`
	Width       float64 `json:"width"`
	Opacity     float64 `json:"opacity"`
	Highlighted bool    `json:"highlighted"`
}

// Styles holds node styles by id and link styles in bound link order
type Styles struct {
	Nodes map[string]NodeStyle `json:"nodes"`
	Links []LinkStyle          `json:"links"`
}

// Highlight styles the selected node, its one-hop neighbours and the links
// between them; everything else gets default styling. It only reads its
// arguments.
func Highlight(bodies []*Body, links []*Link, selectedID string) Styles {
	neighbours := make(map[string]bool)
	st := Styles{
		Nodes: make(map[string]NodeStyle, len(bodies)),
		Links: make([]LinkStyle, len(links)),
	}

	for i, l := range links {
		incident := selectedID != "" && (l.Source.ID == selectedID || l.Target.ID == selectedID)
		if incident {
			neighbours[l.Source.ID] = true
			neighbours[l.Target.ID] = true
			st.Links[i] = LinkStyle{Stroke: LinkHighlightColor, Width: LinkHighlightWidth, Opacity: LinkHighlightOpacity, Highlighted: true}
			continue
		}
		st.Links[i] = LinkStyle{Stroke: LinkColor, Width: LinkWidth, Opacity: LinkOpacity}
	}

	for _, b := range bodies {
		style := NodeStyle{Radius: b.Radius(), Fill: b.Node.Color}
		switch {
		case selectedID != "" && b.ID == selectedID:
			style = NodeStyle{Radius: b.Radius() + SelectedRadiusIncrease, Fill: HighlightFill, Highlighted: true}
		case neighbours[b.ID]:
			style = NodeStyle{Radius: b.Radius() + HighlightedRadiusIncrease, Fill: HighlightFill, Highlighted: true}
		}
		st.Nodes[b.ID] = style
	}
	return st
}

// hitRadius is the clickable radius around a node
func hitRadius(b *Body) float64 {
	r := b.Radius() + hitAreaIncrease
	if r < minHitRadius {
		return minHitRadius
	}
	return r
}
