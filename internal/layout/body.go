package layout

import (
	"vouchgraph/internal/domain"
)

// Body is the simulation state of one node
type Body struct {
	ID     string
	Node   domain.VouchNode
	X, Y   float64
	VX, VY float64

	// FixedX and FixedY hold a user-pinned position
	FixedX, FixedY *float64

	index  int
	placed bool
}

// Radius is the rendered radius of the node
func (b *Body) Radius() float64 {
	return float64(b.Node.Size)
}

// Fixed reports whether the body is pinned
func (b *Body) Fixed() bool {
	return b.FixedX != nil && b.FixedY != nil
}

// Fix pins the body at x, y
func (b *Body) Fix(x, y float64) {
	b.FixedX, b.FixedY = &x, &y
	b.X, b.Y = x, y
	b.VX, b.VY = 0, 0
	b.placed = true
}

// Release unpins the body
func (b *Body) Release() {
	b.FixedX, b.FixedY = nil, nil
}

// Position returns the body's current position
func (b *Body) Position() domain.NodePosition {
	return domain.NodePosition{NodeID: b.ID, X: b.X, Y: b.Y, Pinned: b.Fixed()}
}

// Link is a vouch link bound to the bodies it connects
type Link struct {
	Source *Body
	Target *Body
	Data   domain.VouchLink
}

// arena is the engine-owned copy of a graph
type arena struct {
	bodies  []*Body
	index   map[string]*Body
	links   []*Link
	dropped int
}

// bind copies g into a fresh arena. Pins fix their bodies, and bodies that
// existed in prev keep their last position. Links with an endpoint missing
// from g are dropped.
func bind(g domain.GraphData, pins domain.PinSet, prev map[string]*Body) arena {
	a := arena{
		bodies: make([]*Body, 0, len(g.Nodes)),
		index:  make(map[string]*Body, len(g.Nodes)),
		links:  make([]*Link, 0, len(g.Links)),
	}

	for _, n := range g.Clone().Nodes {
		if _, dup := a.index[n.ID]; dup {
			continue
		}
		b := &Body{ID: n.ID, Node: n, index: len(a.bodies)}
		if old, ok := prev[n.ID]; ok && old.placed {
			b.X, b.Y, b.placed = old.X, old.Y, true
		}
		if pin, ok := pins.Lookup(n.ID); ok {
			b.Fix(pin.X, pin.Y)
		}
		a.bodies = append(a.bodies, b)
		a.index[n.ID] = b
	}

	for _, l := range g.Links {
		src, ok := a.index[l.Source.ID]
		if !ok {
			a.dropped++
			continue
		}
		dst, ok := a.index[l.Target.ID]
		if !ok {
			a.dropped++
			continue
		}
		a.links = append(a.links, &Link{Source: src, Target: dst, Data: l})
	}
	return a
}
