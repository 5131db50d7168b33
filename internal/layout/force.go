package layout

import (
	"math"
	"math/rand"
)

// Force contributes velocity to bodies on every tick
type Force interface {
	Initialize(bodies []*Body, rng *rand.Rand)
	Apply(alpha float64)
}

// jiggle returns a tiny random offset used to separate coincident bodies
func jiggle(rng *rand.Rand) float64 {
	return (rng.Float64() - 0.5) * 1e-6
}

// LinkForce pulls linked bodies toward Distance apart. Each link's strength
// is the inverse of the smaller endpoint degree, and the correction is split
// between endpoints in proportion to their degrees.
type LinkForce struct {
	Links      []*Link
	Distance   float64
	Iterations int

	strengths []float64
	biases    []float64
	rng       *rand.Rand
}

// NewLinkForce creates a link force with the given target distance
func NewLinkForce(links []*Link, distance float64) *LinkForce {
	return &LinkForce{Links: links, Distance: distance, Iterations: 1}
}

func (f *LinkForce) Initialize(bodies []*Body, rng *rand.Rand) {
	f.rng = rng
	count := make(map[*Body]int, len(bodies))
	for _, l := range f.Links {
		count[l.Source]++
		count[l.Target]++
	}
	f.strengths = make([]float64, len(f.Links))
	f.biases = make([]float64, len(f.Links))
	for i, l := range f.Links {
		s, t := count[l.Source], count[l.Target]
		f.biases[i] = float64(s) / float64(s+t)
		f.strengths[i] = 1 / float64(min(s, t))
	}
}

func (f *LinkForce) Apply(alpha float64) {
	for k := 0; k < f.Iterations; k++ {
		for i, l := range f.Links {
			src, dst := l.Source, l.Target
			x := dst.X + dst.VX - src.X - src.VX
			y := dst.Y + dst.VY - src.Y - src.VY
			if x == 0 {
				x = jiggle(f.rng)
			}
			if y == 0 {
				y = jiggle(f.rng)
			}
			d := math.Sqrt(x*x + y*y)
			d = (d - f.Distance) / d * alpha * f.strengths[i]
			x *= d
			y *= d

			b := f.biases[i]
			dst.VX -= x * b
			dst.VY -= y * b
			src.VX += x * (1 - b)
			src.VY += y * (1 - b)
		}
	}
}

// ManyBodyForce applies inverse-distance repulsion (negative Strength)
// between every pair of bodies closer than DistanceMax
type ManyBodyForce struct {
	Strength    float64
	DistanceMin float64
	DistanceMax float64

	bodies []*Body
	rng    *rand.Rand
}

// NewManyBodyForce creates a many-body force
func NewManyBodyForce(strength, distanceMax float64) *ManyBodyForce {
	return &ManyBodyForce{Strength: strength, DistanceMin: 1, DistanceMax: distanceMax}
}

func (f *ManyBodyForce) Initialize(bodies []*Body, rng *rand.Rand) {
	f.bodies = bodies
	f.rng = rng
}

func (f *ManyBodyForce) Apply(alpha float64) {
	min2 := f.DistanceMin * f.DistanceMin
	max2 := f.DistanceMax * f.DistanceMax
	for _, bi := range f.bodies {
		for _, bj := range f.bodies {
			if bi == bj {
				continue
			}
			x := bj.X - bi.X
			y := bj.Y - bi.Y
			l := x*x + y*y
			if l >= max2 {
				continue
			}
			if x == 0 {
				x = jiggle(f.rng)
				l += x * x
			}
			if y == 0 {
				y = jiggle(f.rng)
				l += y * y
			}
			if l < min2 {
				l = math.Sqrt(min2 * l)
			}
			bi.VX += x * f.Strength * alpha / l
			bi.VY += y * f.Strength * alpha / l
		}
	}
}

// CenterForce translates all bodies so their mean position is (X, Y)
type CenterForce struct {
	X, Y     float64
	Strength float64

	bodies []*Body
}

// NewCenterForce creates a center force at x, y
func NewCenterForce(x, y float64) *CenterForce {
	return &CenterForce{X: x, Y: y, Strength: 1}
}

func (f *CenterForce) Initialize(bodies []*Body, _ *rand.Rand) {
	f.bodies = bodies
}

func (f *CenterForce) Apply(float64) {
	n := len(f.bodies)
	if n == 0 {
		return
	}
	var sx, sy float64
	for _, b := range f.bodies {
		sx += b.X
		sy += b.Y
	}
	sx = (sx/float64(n) - f.X) * f.Strength
	sy = (sy/float64(n) - f.Y) * f.Strength
	for _, b := range f.bodies {
		b.X -= sx
		b.Y -= sy
	}
}

// CollideForce pushes apart bodies whose radii plus Margin overlap
type CollideForce struct {
	Margin     float64
	Strength   float64
	Iterations int

	bodies []*Body
	rng    *rand.Rand
}

// NewCollideForce creates a collision force with the given margin
func NewCollideForce(margin float64) *CollideForce {
	return &CollideForce{Margin: margin, Strength: 1, Iterations: 1}
}

func (f *CollideForce) Initialize(bodies []*Body, rng *rand.Rand) {
	f.bodies = bodies
	f.rng = rng
}

func (f *CollideForce) Apply(float64) {
	for k := 0; k < f.Iterations; k++ {
		for i, bi := range f.bodies {
			ri := bi.Radius() + f.Margin
			ri2 := ri * ri
			xi := bi.X + bi.VX
			yi := bi.Y + bi.VY
			for _, bj := range f.bodies[i+1:] {
				rj := bj.Radius() + f.Margin
				r := ri + rj
				x := xi - bj.X - bj.VX
				y := yi - bj.Y - bj.VY
				l := x*x + y*y
				if l >= r*r {
					continue
				}
				if x == 0 {
					x = jiggle(f.rng)
					l += x * x
				}
				if y == 0 {
					y = jiggle(f.rng)
					l += y * y
				}
				l = math.Sqrt(l)
				l = (r - l) / l * f.Strength
				x *= l
				y *= l
				share := rj * rj / (ri2 + rj*rj)
				bi.VX += x * share
				bi.VY += y * share
				bj.VX -= x * (1 - share)
				bj.VY -= y * (1 - share)
			}
		}
	}
}
