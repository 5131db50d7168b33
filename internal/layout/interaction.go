package layout

import (
	"math"

	"go.uber.org/zap"

	"vouchgraph/internal/domain"
)

// DragThreshold is the pointer travel in screen pixels that turns a press
// into a drag
const DragThreshold = 3.0

// InteractionKind classifies the outcome of a pointer gesture
type InteractionKind string

const (
	InteractionNone   InteractionKind = "none"
	InteractionSelect InteractionKind = "select"
	InteractionClear  InteractionKind = "clear"
	InteractionPin    InteractionKind = "pin"
	InteractionPan    InteractionKind = "pan"
)

// Interaction is what a completed gesture did
type Interaction struct {
	Kind   InteractionKind `json:"kind"`
	NodeID string          `json:"nodeId,omitempty"`
	X      float64         `json:"x,omitempty"`
	Y      float64         `json:"y,omitempty"`
}

type gesture struct {
	body           *Body
	startX, startY float64
	lastX, lastY   float64
	dragging       bool
}

// Press starts a gesture at screen point (x, y)
func (e *Engine) Press(x, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gesture = &gesture{
		body:   e.hitLocked(x, y),
		startX: x, startY: y,
		lastX: x, lastY: y,
	}
}

// Move continues a gesture. Dragging a node pins it under the pointer;
// dragging the background pans.
func (e *Engine) Move(x, y float64) {
	e.mu.Lock()
	g := e.gesture
	if g == nil {
		e.mu.Unlock()
		return
	}

	started := false
	if !g.dragging && math.Hypot(x-g.startX, y-g.startY) >= DragThreshold {
		g.dragging = true
		started = g.body != nil
	}
	if !g.dragging {
		e.mu.Unlock()
		return
	}

	if g.body == nil {
		e.transform = e.transform.Translate(x-g.lastX, y-g.lastY)
		g.lastX, g.lastY = x, y
		e.mu.Unlock()
		return
	}

	wx, wy := e.transform.Invert(x, y)
	g.body.Fix(wx, wy)
	g.lastX, g.lastY = x, y
	if started && e.sim != nil {
		e.sim.SetAlphaTarget(DragAlphaTarget)
	}
	frozen := e.frozen
	restart := !frozen && (started || !e.running())
	var positions []domain.NodePosition
	onTick := e.onTick
	if frozen && onTick != nil {
		positions = e.positionsLocked()
	}
	e.mu.Unlock()

	if restart {
		e.reheat()
	}
	if positions != nil {
		onTick(positions)
	}
}

// Release ends a gesture. A gesture that never reached DragThreshold is a
// click: it selects the node under the pointer or clears the selection on
// the background. A drag never selects.
func (e *Engine) Release(x, y float64) Interaction {
	e.Move(x, y)

	e.mu.Lock()
	g := e.gesture
	e.gesture = nil
	if g == nil {
		e.mu.Unlock()
		return Interaction{Kind: InteractionNone}
	}

	if !g.dragging {
		e.mu.Unlock()
		if g.body == nil {
			return Interaction{Kind: InteractionClear}
		}
		return Interaction{Kind: InteractionSelect, NodeID: g.body.ID}
	}

	if g.body == nil {
		e.mu.Unlock()
		return Interaction{Kind: InteractionPan}
	}

	if e.sim != nil {
		e.sim.SetAlphaTarget(0)
	}
	pin := domain.NewPin(g.body.ID, g.body.X, g.body.Y)
	onPin := e.onPin
	e.mu.Unlock()

	e.logger.Debug("Node pinned", zap.String("node", pin.NodeID),
		zap.Float64("x", pin.X), zap.Float64("y", pin.Y))
	if onPin != nil {
		onPin(pin)
	}
	return Interaction{Kind: InteractionPin, NodeID: pin.NodeID, X: pin.X, Y: pin.Y}
}

// Zoom scales the view by factor around screen point (cx, cy)
func (e *Engine) Zoom(factor, cx, cy float64) Transform {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transform = e.transform.ScaleBy(factor, cx, cy)
	return e.transform
}

// Pan shifts the view by a screen-space delta
func (e *Engine) Pan(dx, dy float64) Transform {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.transform = e.transform.Translate(dx, dy)
	return e.transform
}

// NodeAt returns the id of the node under screen point (x, y)
func (e *Engine) NodeAt(x, y float64) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if b := e.hitLocked(x, y); b != nil {
		return b.ID, true
	}
	return "", false
}

// hitLocked returns the topmost body whose hit area contains the screen
// point. Later bodies are drawn on top.
func (e *Engine) hitLocked(x, y float64) *Body {
	wx, wy := e.transform.Invert(x, y)
	bodies := e.arena.bodies
	for i := len(bodies) - 1; i >= 0; i-- {
		b := bodies[i]
		if math.Hypot(wx-b.X, wy-b.Y) <= hitRadius(b) {
			return b
		}
	}
	return nil
}
