package domain

import "sort"

// Direction of a connection relative to the selected node
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// NodeConnection is one link incident to a selected node, seen from that node
type NodeConnection struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Timestamp int64     `json:"timestamp"`
	Direction Direction `json:"direction"`
}

// ConnectionsOf lists every link incident to id, most recent first.
// Links with equal timestamps keep their original order.
func ConnectionsOf(g GraphData, id string) []NodeConnection {
	if id == "" {
		return []NodeConnection{}
	}

	names := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		names[n.ID] = n.Name
	}
	nameOf := func(other string) string {
		if name, ok := names[other]; ok {
			return name
		}
		return other
	}

	conns := make([]NodeConnection, 0)
	for _, l := range g.Links {
		switch id {
		case l.Source.ID:
			conns = append(conns, NodeConnection{
				ID:        l.Target.ID,
				Name:      nameOf(l.Target.ID),
				Value:     l.Value,
				Timestamp: l.Timestamp,
				Direction: DirectionOutgoing,
			})
		case l.Target.ID:
			conns = append(conns, NodeConnection{
				ID:        l.Source.ID,
				Name:      nameOf(l.Source.ID),
				Value:     l.Value,
				Timestamp: l.Timestamp,
				Direction: DirectionIncoming,
			})
		}
	}

	sort.SliceStable(conns, func(i, j int) bool {
		return conns[i].Timestamp > conns[j].Timestamp
	})
	return conns
}
