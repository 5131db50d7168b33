package layout

import (
	"sync"
	"time"

	"github.com/bep/debounce"
	"go.uber.org/zap"

	"vouchgraph/internal/domain"
)

// State is the engine's position in its render cycle
type State string

const (
	StateIdle       State = "idle"
	StateBinding    State = "binding"
	StateSimulating State = "simulating"
	StateRendered   State = "rendered"
)

// Force parameters
const (
	LinkDistance     = 100.0
	ChargeStrength   = -400.0
	ChargeMaxDist    = 500.0
	CollisionMargin  = 5.0
	resizeReheatTick = 50
)

// Config tunes an Engine
type Config struct {
	Width  float64
	Height float64
	// Graphs with more nodes than this are fast-forwarded and frozen
	LargeGraphThreshold int
	// WarmupTicks overrides the size-based warmup schedule when positive
	WarmupTicks    int
	TickInterval   time.Duration
	SettleTimeout  time.Duration
	ResizeDebounce time.Duration
	Seed           int64
}

// DefaultConfig returns the standard engine configuration
func DefaultConfig() Config {
	return Config{
		Width:               800,
		Height:              600,
		LargeGraphThreshold: 100,
		TickInterval:        16 * time.Millisecond,
		SettleTimeout:       3 * time.Second,
		ResizeDebounce:      200 * time.Millisecond,
		Seed:                1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Width <= 0 {
		c.Width = d.Width
	}
	if c.Height <= 0 {
		c.Height = d.Height
	}
	if c.LargeGraphThreshold <= 0 {
		c.LargeGraphThreshold = d.LargeGraphThreshold
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.SettleTimeout <= 0 {
		c.SettleTimeout = d.SettleTimeout
	}
	if c.ResizeDebounce <= 0 {
		c.ResizeDebounce = d.ResizeDebounce
	}
	return c
}

// Engine lays out one graph at a time. Load replaces the graph and stops any
// running simulation first, so at most one simulation is ever live.
type Engine struct {
	// lifecycle serializes Load, Stop and simulation restarts
	lifecycle sync.Mutex

	mu        sync.RWMutex
	cfg       Config
	logger    *zap.Logger
	state     State
	arena     arena
	sim       *Simulation
	frozen    bool
	transform Transform
	width     float64
	height    float64
	gesture   *gesture

	stop chan struct{}
	done chan struct{}

	onTick   func([]domain.NodePosition)
	onPin    func(domain.NodePosition)
	onSettle func()

	debounced func(func())
	pendingW  float64
	pendingH  float64
}

// NewEngine creates an idle engine
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:       cfg,
		logger:    logger,
		state:     StateIdle,
		transform: Identity,
		width:     cfg.Width,
		height:    cfg.Height,
		arena:     arena{index: map[string]*Body{}},
		debounced: debounce.New(cfg.ResizeDebounce),
	}
}

// OnTick registers a callback receiving positions after every live tick
func (e *Engine) OnTick(fn func([]domain.NodePosition)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTick = fn
}

// OnPin registers a callback receiving the position of every dragged node
func (e *Engine) OnPin(fn func(domain.NodePosition)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onPin = fn
}

// OnSettle registers a callback invoked when the live simulation stops
func (e *Engine) OnSettle(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onSettle = fn
}

// Load binds g into a fresh arena and starts laying it out. Pinned nodes are
// fixed at their pins. Nodes that were already laid out keep their place.
func (e *Engine) Load(g domain.GraphData, pins domain.PinSet) {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.stopLocked()

	e.mu.Lock()
	e.state = StateBinding
	e.gesture = nil
	a := bind(g, pins, e.arena.index)
	e.arena = a
	if a.dropped > 0 {
		e.logger.Debug("Dropped dangling links", zap.Int("count", a.dropped))
	}

	e.sim = e.newSimulation(a)
	e.transform = InitialTransform(len(a.bodies), e.width, e.height)
	e.state = StateSimulating

	n := len(a.bodies)
	e.sim.Tick(e.warmupTicks(n))
	e.frozen = n > e.cfg.LargeGraphThreshold

	if n == 0 || e.frozen {
		e.state = StateRendered
		e.mu.Unlock()
		e.logger.Info("Layout computed",
			zap.Int("nodes", n), zap.Int("links", len(a.links)), zap.Bool("frozen", e.frozen))
		return
	}

	e.sim.SetAlpha(ReheatAlpha)
	e.startLocked()
	e.mu.Unlock()

	e.logger.Info("Layout started",
		zap.Int("nodes", n), zap.Int("links", len(a.links)))
}

func (e *Engine) newSimulation(a arena) *Simulation {
	sim := NewSimulation(a.bodies, e.width, e.height, e.cfg.Seed)
	sim.SetForce("link", NewLinkForce(a.links, LinkDistance))
	sim.SetForce("charge", NewManyBodyForce(ChargeStrength, ChargeMaxDist))
	sim.SetForce("center", NewCenterForce(e.width/2, e.height/2))
	sim.SetForce("collide", NewCollideForce(CollisionMargin))
	return sim
}

func (e *Engine) warmupTicks(n int) int {
	if e.cfg.WarmupTicks > 0 && n > e.cfg.LargeGraphThreshold {
		return e.cfg.WarmupTicks
	}
	return WarmupTicks(n)
}

// Stop halts the live simulation and waits for it to exit
func (e *Engine) Stop() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	e.stopLocked()
}

// stopLocked requires lifecycle and must not hold mu
func (e *Engine) stopLocked() {
	e.mu.Lock()
	stop, done := e.stop, e.done
	e.stop, e.done = nil, nil
	e.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// startLocked requires lifecycle and mu
func (e *Engine) startLocked() {
	stop := make(chan struct{})
	done := make(chan struct{})
	e.stop, e.done = stop, done
	go e.run(e.sim, stop, done)
}

// running requires mu
func (e *Engine) running() bool {
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// reheat restarts a settled live simulation
func (e *Engine) reheat() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sim == nil || e.frozen || len(e.arena.bodies) == 0 {
		return
	}
	if e.sim.Alpha() < ReheatAlpha {
		e.sim.SetAlpha(ReheatAlpha)
	}
	if !e.running() {
		e.state = StateSimulating
		e.startLocked()
	}
}

func (e *Engine) run(sim *Simulation, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(e.cfg.SettleTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-stop:
			return
		case <-deadline.C:
			e.mu.RLock()
			held := e.gesture != nil
			e.mu.RUnlock()
			if held {
				deadline.Reset(e.cfg.SettleTimeout)
				continue
			}
			e.settle(sim)
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.sim != sim {
				e.mu.Unlock()
				return
			}
			sim.Tick(1)
			positions := e.positionsLocked()
			settled := sim.Settled() && e.gesture == nil
			onTick := e.onTick
			e.mu.Unlock()

			if onTick != nil {
				onTick(positions)
			}
			if settled {
				e.settle(sim)
				return
			}
		}
	}
}

func (e *Engine) settle(sim *Simulation) {
	e.mu.Lock()
	if e.sim != sim {
		e.mu.Unlock()
		return
	}
	e.state = StateRendered
	onSettle := e.onSettle
	e.mu.Unlock()

	if onSettle != nil {
		onSettle()
	}
}

// Resize schedules a viewport change. Bursts of calls are debounced and
// only the last size is applied.
func (e *Engine) Resize(width, height float64) {
	e.mu.Lock()
	e.pendingW, e.pendingH = width, height
	e.mu.Unlock()

	e.debounced(func() {
		e.mu.RLock()
		w, h := e.pendingW, e.pendingH
		e.mu.RUnlock()
		e.ApplyResize(w, h)
	})
}

// ApplyResize changes the viewport immediately, retargets the centering
// force and reheats the layout
func (e *Engine) ApplyResize(width, height float64) {
	if width <= 0 || height <= 0 {
		return
	}

	e.mu.Lock()
	e.width, e.height = width, height
	if e.sim == nil {
		e.mu.Unlock()
		return
	}
	e.sim.Resize(width, height)
	e.sim.SetForce("center", NewCenterForce(width/2, height/2))
	frozen := e.frozen
	if frozen {
		e.sim.SetAlpha(ReheatAlpha)
		e.sim.Tick(resizeReheatTick)
	}
	e.mu.Unlock()

	e.logger.Debug("Viewport resized", zap.Float64("width", width), zap.Float64("height", height))
	if !frozen {
		e.reheat()
	}
}

// State returns the engine's render cycle state
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Size returns the viewport dimensions
func (e *Engine) Size() (float64, float64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.width, e.height
}

// Transform returns the current zoom transform
func (e *Engine) Transform() Transform {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.transform
}

// Positions returns the current position of every node
func (e *Engine) Positions() []domain.NodePosition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.positionsLocked()
}

func (e *Engine) positionsLocked() []domain.NodePosition {
	out := make([]domain.NodePosition, 0, len(e.arena.bodies))
	for _, b := range e.arena.bodies {
		out = append(out, b.Position())
	}
	return out
}

// LinkCount returns the number of bound links
func (e *Engine) LinkCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.arena.links)
}

// Highlight styles the loaded graph for a selection
func (e *Engine) Highlight(selectedID string) Styles {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Highlight(e.arena.bodies, e.arena.links, selectedID)
}

// Unpin releases a pinned node and lets the layout move it again
func (e *Engine) Unpin(id string) bool {
	e.mu.Lock()
	b, ok := e.arena.index[domain.NormalizeAddress(id)]
	if ok {
		ok = b.Fixed()
		b.Release()
	}
	e.mu.Unlock()

	if ok {
		e.reheat()
	}
	return ok
}
