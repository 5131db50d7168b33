package domain

// NodePosition is a laid-out coordinate for one node. Pinned positions were
// placed by the user and hold the node in place across refreshes.
type NodePosition struct {
	NodeID string  `json:"id" yaml:"id"`
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Pinned bool    `json:"pinned" yaml:"pinned"`
}

// NewPin creates a user-pinned position
func NewPin(nodeID string, x, y float64) NodePosition {
	return NodePosition{NodeID: NormalizeAddress(nodeID), X: x, Y: y, Pinned: true}
}

// PinSet indexes pinned positions by node id
type PinSet map[string]NodePosition

// Lookup returns the pin for id if one exists
func (p PinSet) Lookup(id string) (NodePosition, bool) {
	pos, ok := p[id]
	return pos, ok && pos.Pinned
}
