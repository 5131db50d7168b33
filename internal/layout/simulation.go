package layout

import (
	"math"
	"math/rand"
)

// Simulation defaults
const (
	DefaultAlphaMin      = 0.001
	DefaultVelocityDecay = 0.4
	ReheatAlpha          = 0.3
	DragAlphaTarget      = 0.3

	initialRadius = 10.0
)

var initialAngle = math.Pi * (3 - math.Sqrt(5))

type namedForce struct {
	name  string
	force Force
}

// Simulation integrates forces over a set of bodies inside a bounded
// viewport
type Simulation struct {
	bodies []*Body
	forces []namedForce
	rng    *rand.Rand

	alpha         float64
	alphaMin      float64
	alphaDecay    float64
	alphaTarget   float64
	velocityDecay float64

	width, height float64
}

// NewSimulation creates a simulation and places any unplaced bodies on a
// phyllotaxis spiral around the viewport center
func NewSimulation(bodies []*Body, width, height float64, seed int64) *Simulation {
	s := &Simulation{
		bodies:        bodies,
		rng:           rand.New(rand.NewSource(seed)),
		alpha:         1,
		alphaMin:      DefaultAlphaMin,
		alphaDecay:    1 - math.Pow(DefaultAlphaMin, 1.0/300),
		velocityDecay: DefaultVelocityDecay,
		width:         width,
		height:        height,
	}
	s.place()
	return s
}

func (s *Simulation) place() {
	cx, cy := s.width/2, s.height/2
	for i, b := range s.bodies {
		if b.Fixed() {
			b.X, b.Y = *b.FixedX, *b.FixedY
		}
		if !b.placed || math.IsNaN(b.X) || math.IsNaN(b.Y) {
			r := initialRadius * math.Sqrt(0.5+float64(i))
			a := float64(i) * initialAngle
			b.X = cx + r*math.Cos(a)
			b.Y = cy + r*math.Sin(a)
			b.placed = true
		}
		if math.IsNaN(b.VX) || math.IsNaN(b.VY) {
			b.VX, b.VY = 0, 0
		}
	}
}

// SetForce installs f under name, replacing any force with that name
func (s *Simulation) SetForce(name string, f Force) {
	f.Initialize(s.bodies, s.rng)
	for i := range s.forces {
		if s.forces[i].name == name {
			s.forces[i].force = f
			return
		}
	}
	s.forces = append(s.forces, namedForce{name: name, force: f})
}

// Force returns the force installed under name
func (s *Simulation) Force(name string) Force {
	for _, nf := range s.forces {
		if nf.name == name {
			return nf.force
		}
	}
	return nil
}

// Tick advances the simulation n steps
func (s *Simulation) Tick(n int) {
	for k := 0; k < n; k++ {
		s.alpha += (s.alphaTarget - s.alpha) * s.alphaDecay

		for _, nf := range s.forces {
			nf.force.Apply(s.alpha)
		}

		for _, b := range s.bodies {
			if b.Fixed() {
				b.X, b.VX = *b.FixedX, 0
				b.Y, b.VY = *b.FixedY, 0
			} else {
				b.VX *= 1 - s.velocityDecay
				b.VY *= 1 - s.velocityDecay
				b.X += b.VX
				b.Y += b.VY
			}
		}
		s.clamp()
	}
}

// clamp keeps every body fully inside the viewport
func (s *Simulation) clamp() {
	for _, b := range s.bodies {
		r := b.Radius()
		if math.IsNaN(b.X) || math.IsNaN(b.Y) {
			b.X, b.Y = s.width/2, s.height/2
			b.VX, b.VY = 0, 0
		}
		b.X = math.Max(r, math.Min(s.width-r, b.X))
		b.Y = math.Max(r, math.Min(s.height-r, b.Y))
	}
}

// Alpha returns the current temperature
func (s *Simulation) Alpha() float64 { return s.alpha }

// SetAlpha reheats or cools the simulation
func (s *Simulation) SetAlpha(alpha float64) { s.alpha = alpha }

// SetAlphaTarget sets the temperature the simulation decays toward
func (s *Simulation) SetAlphaTarget(target float64) { s.alphaTarget = target }

// Settled reports whether the simulation has cooled below alphaMin
func (s *Simulation) Settled() bool {
	return s.alpha < s.alphaMin
}

// Resize changes the viewport bounds
func (s *Simulation) Resize(width, height float64) {
	s.width, s.height = width, height
}

// WarmupTicks returns how many synchronous ticks a graph of n nodes is
// fast-forwarded before display
func WarmupTicks(n int) int {
	switch {
	case n > 100:
		return 300
	case n > 50:
		return 200
	case n > 10:
		return 100
	default:
		return 50
	}
}
