package domain

// GraphData is a snapshot of the vouch graph.
// Nodes are in address-discovery order, links in event order.
type GraphData struct {
	Nodes []VouchNode `json:"nodes" yaml:"nodes"`
	Links []VouchLink `json:"links" yaml:"links"`
}

// NewGraphData creates an empty graph with initialized collections
func NewGraphData() GraphData {
	return GraphData{
		Nodes: make([]VouchNode, 0),
		Links: make([]VouchLink, 0),
	}
}

// Clone returns a copy that shares no mutable state with g
func (g GraphData) Clone() GraphData {
	out := GraphData{
		Nodes: make([]VouchNode, len(g.Nodes)),
		Links: make([]VouchLink, len(g.Links)),
	}
	copy(out.Links, g.Links)
	for i, n := range g.Nodes {
		if n.ProfileImageURL != nil {
			url := *n.ProfileImageURL
			n.ProfileImageURL = &url
		}
		out.Nodes[i] = n
	}
	return out
}

// IsEmpty reports whether the graph has no nodes
func (g GraphData) IsEmpty() bool {
	return len(g.Nodes) == 0
}

// NodeByID finds a node by id
func (g GraphData) NodeByID(id string) (VouchNode, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return VouchNode{}, false
}

// NodeIndex maps node ids to their position in Nodes
func (g GraphData) NodeIndex() map[string]int {
	idx := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		idx[n.ID] = i
	}
	return idx
}

// IncidentCounts returns the number of links touching each node id.
// A self-link counts twice, once per endpoint.
func (g GraphData) IncidentCounts() map[string]int {
	counts := make(map[string]int, len(g.Nodes))
	for _, l := range g.Links {
		counts[l.Source.ID]++
		counts[l.Target.ID]++
	}
	return counts
}

// RecomputeSizes sets every node's size from its incident link count
func (g *GraphData) RecomputeSizes() {
	counts := g.IncidentCounts()
	for i := range g.Nodes {
		g.Nodes[i].Size = NodeBaseSize + NodeSizePerLink*counts[g.Nodes[i].ID]
	}
}
