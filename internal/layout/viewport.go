package layout

import (
	"fmt"
	"math"
)

// Zoom bounds
const (
	MinScale = 0.1
	MaxScale = 4.0

	// initialZoomNodes is the node count above which graphs start zoomed out
	initialZoomNodes = 50
	minInitialScale  = 0.5
)

// Transform maps world coordinates to screen coordinates:
// screen = world*K + (X, Y)
type Transform struct {
	K float64 `json:"k"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Identity is the transform that leaves coordinates unchanged
var Identity = Transform{K: 1}

// InitialTransform zooms out graphs with more than 50 nodes by
// max(0.5, 50/n) around the viewport center
func InitialTransform(n int, width, height float64) Transform {
	if n <= initialZoomNodes {
		return Identity
	}
	k := math.Max(minInitialScale, float64(initialZoomNodes)/float64(n))
	return Transform{
		K: k,
		X: width/2 - k*width/2,
		Y: height/2 - k*height/2,
	}
}

// Apply maps a world point to the screen
func (t Transform) Apply(x, y float64) (float64, float64) {
	return x*t.K + t.X, y*t.K + t.Y
}

// Invert maps a screen point to the world
func (t Transform) Invert(x, y float64) (float64, float64) {
	return (x - t.X) / t.K, (y - t.Y) / t.K
}

// ScaleBy multiplies the scale by factor, clamped to [MinScale, MaxScale],
// keeping the world point under (cx, cy) fixed on screen
func (t Transform) ScaleBy(factor, cx, cy float64) Transform {
	if factor <= 0 || math.IsNaN(factor) {
		return t
	}
	k := math.Max(MinScale, math.Min(MaxScale, t.K*factor))
	wx, wy := t.Invert(cx, cy)
	return Transform{K: k, X: cx - wx*k, Y: cy - wy*k}
}

// Translate shifts the transform by a screen-space delta
func (t Transform) Translate(dx, dy float64) Transform {
	return Transform{K: t.K, X: t.X + dx, Y: t.Y + dy}
}

// String renders the transform as an SVG transform attribute value
func (t Transform) String() string {
	return fmt.Sprintf("translate(%g,%g) scale(%g)", t.X, t.Y, t.K)
}
