package layout

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vouchgraph/internal/domain"
)

func testGraph(n int) domain.GraphData {
	g := domain.NewGraphData()
	for i := 0; i < n; i++ {
		node := domain.NewVouchNode(fmt.Sprintf("0x%04d", i))
		node.Name = fmt.Sprintf("user%d", i)
		g.Nodes = append(g.Nodes, node)
	}
	for i := 1; i < n; i++ {
		g.Links = append(g.Links, domain.NewVouchLink(fmt.Sprintf("0x%04d", i), "0x0000", "1000000", int64(i)))
	}
	g.RecomputeSizes()
	return g
}

func testConfig() Config {
	return Config{
		Width:               800,
		Height:              600,
		LargeGraphThreshold: 100,
		TickInterval:        time.Millisecond,
		SettleTimeout:       200 * time.Millisecond,
		ResizeDebounce:      10 * time.Millisecond,
		Seed:                1,
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(testConfig(), zap.NewNop())
	t.Cleanup(e.Stop)
	return e
}

func TestBind(t *testing.T) {
	g := testGraph(3)
	g.Links = append(g.Links, domain.NewVouchLink("0x0001", "0xmissing", "1", 1))
	g.Links = append(g.Links, domain.NewVouchLink("0xmissing", "0x0002", "1", 1))

	a := bind(g, nil, nil)

	require.Len(t, a.bodies, 3)
	assert.Len(t, a.links, 2)
	assert.Equal(t, 2, a.dropped)
	for _, l := range a.links {
		assert.Same(t, a.index[l.Source.ID], l.Source)
		assert.Same(t, a.index[l.Target.ID], l.Target)
	}

	t.Run("arena does not alias input", func(t *testing.T) {
		url := "https://img/x.png"
		g.Nodes[0].ProfileImageURL = &url
		a := bind(g, nil, nil)

		a.bodies[0].Node.Name = "changed"
		*a.bodies[0].Node.ProfileImageURL = "changed"

		assert.Equal(t, "user0", g.Nodes[0].Name)
		assert.Equal(t, "https://img/x.png", *g.Nodes[0].ProfileImageURL)
	})

	t.Run("pins fix bodies", func(t *testing.T) {
		pins := domain.PinSet{"0x0001": domain.NewPin("0x0001", 42, 43)}
		a := bind(g, pins, nil)

		b := a.index["0x0001"]
		require.True(t, b.Fixed())
		assert.Equal(t, 42.0, b.X)
		assert.False(t, a.index["0x0000"].Fixed())
	})

	t.Run("previous positions are kept", func(t *testing.T) {
		prev := bind(g, nil, nil)
		prev.index["0x0002"].X = 321
		prev.index["0x0002"].Y = 123
		prev.index["0x0002"].placed = true

		a := bind(g, nil, prev.index)
		assert.Equal(t, 321.0, a.index["0x0002"].X)
		assert.False(t, a.index["0x0001"].placed)
	})
}

func TestSimulation(t *testing.T) {
	t.Run("initial placement is distinct", func(t *testing.T) {
		a := bind(testGraph(20), nil, nil)
		NewSimulation(a.bodies, 800, 600, 1)

		seen := map[[2]float64]bool{}
		for _, b := range a.bodies {
			key := [2]float64{b.X, b.Y}
			assert.False(t, seen[key])
			seen[key] = true
		}
	})

	t.Run("bodies stay inside the viewport", func(t *testing.T) {
		a := bind(testGraph(30), nil, nil)
		sim := NewSimulation(a.bodies, 400, 300, 1)
		sim.SetForce("link", NewLinkForce(a.links, LinkDistance))
		sim.SetForce("charge", NewManyBodyForce(ChargeStrength, ChargeMaxDist))
		sim.SetForce("center", NewCenterForce(200, 150))
		sim.SetForce("collide", NewCollideForce(CollisionMargin))

		sim.Tick(310)

		for _, b := range a.bodies {
			r := b.Radius()
			assert.False(t, math.IsNaN(b.X))
			assert.GreaterOrEqual(t, b.X, r)
			assert.LessOrEqual(t, b.X, 400-r)
			assert.GreaterOrEqual(t, b.Y, r)
			assert.LessOrEqual(t, b.Y, 300-r)
		}
		assert.True(t, sim.Settled())
	})

	t.Run("link force pulls toward distance", func(t *testing.T) {
		a := bind(testGraph(2), nil, nil)
		sim := NewSimulation(a.bodies, 2000, 2000, 1)
		a.bodies[0].X, a.bodies[0].Y = 500, 1000
		a.bodies[1].X, a.bodies[1].Y = 1500, 1000
		sim.SetForce("link", NewLinkForce(a.links, LinkDistance))

		sim.Tick(300)

		d := math.Hypot(a.bodies[0].X-a.bodies[1].X, a.bodies[0].Y-a.bodies[1].Y)
		assert.InDelta(t, LinkDistance, d, 5)
	})

	t.Run("collide separates overlapping bodies", func(t *testing.T) {
		a := bind(testGraph(2), nil, nil)
		sim := NewSimulation(a.bodies, 1000, 1000, 1)
		a.bodies[0].X, a.bodies[0].Y = 500, 500
		a.bodies[1].X, a.bodies[1].Y = 501, 500
		sim.SetForce("collide", NewCollideForce(CollisionMargin))

		sim.Tick(100)

		d := math.Hypot(a.bodies[0].X-a.bodies[1].X, a.bodies[0].Y-a.bodies[1].Y)
		minDist := a.bodies[0].Radius() + a.bodies[1].Radius() + 2*CollisionMargin
		assert.Greater(t, d, minDist*0.9)
	})

	t.Run("center force recenters", func(t *testing.T) {
		a := bind(testGraph(3), nil, nil)
		sim := NewSimulation(a.bodies, 1000, 1000, 1)
		sim.SetForce("center", NewCenterForce(500, 500))
		for _, b := range a.bodies {
			b.X += 100
		}

		sim.Tick(1)

		var sx, sy float64
		for _, b := range a.bodies {
			sx += b.X
			sy += b.Y
		}
		assert.InDelta(t, 500, sx/3, 1e-6)
		assert.InDelta(t, 500, sy/3, 1e-6)
	})

	t.Run("fixed bodies do not move", func(t *testing.T) {
		a := bind(testGraph(5), domain.PinSet{"0x0000": domain.NewPin("0x0000", 100, 100)}, nil)
		sim := NewSimulation(a.bodies, 800, 600, 1)
		sim.SetForce("charge", NewManyBodyForce(ChargeStrength, ChargeMaxDist))

		sim.Tick(50)

		assert.Equal(t, 100.0, a.index["0x0000"].X)
		assert.Equal(t, 100.0, a.index["0x0000"].Y)
	})
}

func TestWarmupTicks(t *testing.T) {
	assert.Equal(t, 50, WarmupTicks(10))
	assert.Equal(t, 100, WarmupTicks(11))
	assert.Equal(t, 200, WarmupTicks(51))
	assert.Equal(t, 300, WarmupTicks(101))
}

func TestTransform(t *testing.T) {
	t.Run("small graphs are not zoomed", func(t *testing.T) {
		assert.Equal(t, Identity, InitialTransform(50, 800, 600))
	})

	t.Run("large graphs zoom out around center", func(t *testing.T) {
		tr := InitialTransform(80, 800, 600)
		assert.InDelta(t, 0.625, tr.K, 1e-9)
		x, y := tr.Apply(400, 300)
		assert.InDelta(t, 400, x, 1e-9)
		assert.InDelta(t, 300, y, 1e-9)

		assert.Equal(t, 0.5, InitialTransform(1000, 800, 600).K)
	})

	t.Run("invert round trips", func(t *testing.T) {
		tr := Transform{K: 2, X: 10, Y: -5}
		x, y := tr.Invert(tr.Apply(3, 4))
		assert.InDelta(t, 3, x, 1e-9)
		assert.InDelta(t, 4, y, 1e-9)
	})

	t.Run("scale is clamped and anchored", func(t *testing.T) {
		tr := Identity.ScaleBy(100, 200, 100)
		assert.Equal(t, MaxScale, tr.K)
		x, y := tr.Apply(200, 100)
		assert.InDelta(t, 200, x, 1e-9)
		assert.InDelta(t, 100, y, 1e-9)

		assert.Equal(t, MinScale, Identity.ScaleBy(0.001, 0, 0).K)
		assert.Equal(t, Identity, Identity.ScaleBy(-1, 0, 0))
	})
}

func TestHighlight(t *testing.T) {
	// 0x0001 -> 0x0000 <- 0x0002, plus 0x0003 -> 0x0000
	a := bind(testGraph(4), nil, nil)
	a.links = append(a.links, &Link{Source: a.index["0x0001"], Target: a.index["0x0002"]})

	t.Run("no selection is default styling", func(t *testing.T) {
		st := Highlight(a.bodies, a.links, "")
		for _, b := range a.bodies {
			assert.Equal(t, NodeStyle{Radius: b.Radius(), Fill: b.Node.Color}, st.Nodes[b.ID])
		}
		for _, l := range st.Links {
			assert.Equal(t, LinkStyle{Stroke: LinkColor, Width: LinkWidth, Opacity: LinkOpacity}, l)
		}
	})

	t.Run("selection highlights one hop", func(t *testing.T) {
		st := Highlight(a.bodies, a.links, "0x0001")

		sel := st.Nodes["0x0001"]
		assert.Equal(t, a.index["0x0001"].Radius()+SelectedRadiusIncrease, sel.Radius)
		assert.Equal(t, HighlightFill, sel.Fill)

		for _, id := range []string{"0x0000", "0x0002"} {
			n := st.Nodes[id]
			assert.Equal(t, a.index[id].Radius()+HighlightedRadiusIncrease, n.Radius, id)
			assert.True(t, n.Highlighted)
		}
		assert.False(t, st.Nodes["0x0003"].Highlighted)

		assert.True(t, st.Links[0].Highlighted)
		assert.Equal(t, LinkHighlightColor, st.Links[0].Stroke)
		assert.Equal(t, LinkHighlightWidth, st.Links[0].Width)
		assert.False(t, st.Links[1].Highlighted)
		assert.True(t, st.Links[3].Highlighted)
	})

	t.Run("idempotent and side-effect free", func(t *testing.T) {
		before := make([]Body, len(a.bodies))
		for i, b := range a.bodies {
			before[i] = *b
		}
		first := Highlight(a.bodies, a.links, "0x0002")
		second := Highlight(a.bodies, a.links, "0x0002")

		assert.Equal(t, first, second)
		for i, b := range a.bodies {
			assert.Equal(t, before[i], *b)
		}
	})
}

func TestEngineLoad(t *testing.T) {
	t.Run("small graph settles live", func(t *testing.T) {
		e := newTestEngine(t)
		var mu sync.Mutex
		ticks := 0
		settled := make(chan struct{})
		e.OnTick(func([]domain.NodePosition) {
			mu.Lock()
			ticks++
			mu.Unlock()
		})
		e.OnSettle(func() { close(settled) })

		e.Load(testGraph(5), nil)

		select {
		case <-settled:
		case <-time.After(2 * time.Second):
			t.Fatal("simulation did not settle")
		}
		assert.Equal(t, StateRendered, e.State())
		mu.Lock()
		assert.Positive(t, ticks)
		mu.Unlock()
		assert.Len(t, e.Positions(), 5)
	})

	t.Run("large graph is frozen synchronously", func(t *testing.T) {
		e := newTestEngine(t)
		e.OnTick(func([]domain.NodePosition) {
			t.Error("frozen graphs do not tick")
		})

		e.Load(testGraph(120), nil)

		assert.Equal(t, StateRendered, e.State())
		assert.Less(t, e.Transform().K, 1.0)
		assert.Len(t, e.Positions(), 120)
		assert.Equal(t, 119, e.LinkCount())
	})

	t.Run("empty graph", func(t *testing.T) {
		e := newTestEngine(t)
		e.Load(domain.NewGraphData(), nil)
		assert.Equal(t, StateRendered, e.State())
		assert.Empty(t, e.Positions())
	})

	t.Run("reload replaces the simulation", func(t *testing.T) {
		e := newTestEngine(t)
		e.Load(testGraph(5), nil)
		e.Load(testGraph(3), nil)
		e.Stop()

		assert.Len(t, e.Positions(), 3)
		e.mu.RLock()
		assert.Nil(t, e.done)
		e.mu.RUnlock()
	})

	t.Run("input graph is never mutated", func(t *testing.T) {
		g := testGraph(8)
		before := g.Clone()
		e := newTestEngine(t)

		e.Load(g, nil)
		e.Stop()

		assert.Equal(t, before, g)
	})
}

// bodyScreen returns the screen position of a node
func bodyScreen(t *testing.T, e *Engine, id string) (float64, float64) {
	t.Helper()
	e.mu.RLock()
	defer e.mu.RUnlock()
	b, ok := e.arena.index[id]
	require.True(t, ok)
	return e.transform.Apply(b.X, b.Y)
}

func TestInteraction(t *testing.T) {
	newFrozen := func(t *testing.T) *Engine {
		cfg := testConfig()
		cfg.LargeGraphThreshold = 1
		e := NewEngine(cfg, zap.NewNop())
		t.Cleanup(e.Stop)
		e.Load(testGraph(3), nil)

		e.mu.Lock()
		defer e.mu.Unlock()
		for i, b := range e.arena.bodies {
			b.X = 100 + float64(i)*200
			b.Y = 100 + float64(i)*150
		}
		return e
	}

	t.Run("click selects node", func(t *testing.T) {
		e := newFrozen(t)
		x, y := bodyScreen(t, e, "0x0002")

		e.Press(x, y)
		e.Move(x+1, y+1)
		got := e.Release(x+1, y)

		assert.Equal(t, Interaction{Kind: InteractionSelect, NodeID: "0x0002"}, got)
	})

	t.Run("background click clears", func(t *testing.T) {
		e := newFrozen(t)

		e.Press(5, 5)
		assert.Equal(t, InteractionClear, e.Release(5, 5).Kind)
	})

	t.Run("drag pins and never selects", func(t *testing.T) {
		e := newFrozen(t)
		var pinned []domain.NodePosition
		e.OnPin(func(p domain.NodePosition) { pinned = append(pinned, p) })
		x, y := bodyScreen(t, e, "0x0001")

		e.Press(x, y)
		e.Move(x+10, y)
		got := e.Release(x+20, y+5)

		assert.Equal(t, InteractionPin, got.Kind)
		assert.Equal(t, "0x0001", got.NodeID)
		require.Len(t, pinned, 1)
		wx, wy := e.Transform().Invert(x+20, y+5)
		assert.InDelta(t, wx, pinned[0].X, 1e-9)
		assert.InDelta(t, wy, pinned[0].Y, 1e-9)

		for _, p := range e.Positions() {
			assert.Equal(t, p.NodeID == "0x0001", p.Pinned, p.NodeID)
		}

		assert.True(t, e.Unpin("0x0001"))
		assert.False(t, e.Unpin("0x0001"))
	})

	t.Run("background drag pans", func(t *testing.T) {
		e := newFrozen(t)
		before := e.Transform()

		e.Press(5, 5)
		e.Move(25, 15)
		got := e.Release(25, 15)

		assert.Equal(t, InteractionPan, got.Kind)
		assert.InDelta(t, before.X+20, e.Transform().X, 1e-9)
		assert.InDelta(t, before.Y+10, e.Transform().Y, 1e-9)
	})

	t.Run("release without press", func(t *testing.T) {
		e := newFrozen(t)
		assert.Equal(t, InteractionNone, e.Release(1, 1).Kind)
	})

	t.Run("zoom", func(t *testing.T) {
		e := newFrozen(t)
		tr := e.Zoom(2, 400, 300)
		assert.Equal(t, 2.0, tr.K)
		tr = e.Pan(10, 0)
		assert.Equal(t, 2.0, tr.K)
	})
}

func TestResize(t *testing.T) {
	t.Run("debounced resize applies the last size", func(t *testing.T) {
		e := newTestEngine(t)
		e.Load(testGraph(5), nil)

		e.Resize(300, 200)
		e.Resize(1000, 900)

		require.Eventually(t, func() bool {
			w, h := e.Size()
			return w == 1000 && h == 900
		}, time.Second, 5*time.Millisecond)

		e.mu.RLock()
		center := e.sim.Force("center").(*CenterForce)
		e.mu.RUnlock()
		assert.Equal(t, 500.0, center.X)
		assert.Equal(t, 450.0, center.Y)
	})

	t.Run("frozen graph stays in bounds", func(t *testing.T) {
		cfg := testConfig()
		cfg.LargeGraphThreshold = 1
		e := NewEngine(cfg, zap.NewNop())
		e.Load(testGraph(10), nil)

		e.ApplyResize(200, 150)

		e.mu.RLock()
		defer e.mu.RUnlock()
		for _, b := range e.arena.bodies {
			assert.LessOrEqual(t, b.X, 200-b.Radius())
			assert.LessOrEqual(t, b.Y, 150-b.Radius())
		}
	})
}

func TestRender(t *testing.T) {
	g := testGraph(3)
	url := "https://img/a.png?x=1&y=2"
	g.Nodes[1].ProfileImageURL = &url
	g.Nodes[2].Name = "<b>eve</b>"

	cfg := testConfig()
	cfg.LargeGraphThreshold = 1
	e := NewEngine(cfg, zap.NewNop())
	e.Load(g, nil)

	var buf bytes.Buffer
	require.NoError(t, e.Render(&buf, "0x0001"))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, `<marker id="arrow"`)
	assert.Contains(t, out, `marker-end="url(#arrow)"`)
	assert.Contains(t, out, "$1.00")
	assert.Contains(t, out, `fill="yellow"`)
	assert.Contains(t, out, `stroke="red"`)
	assert.Contains(t, out, "a.png?x=1&amp;y=2")
	assert.Contains(t, out, `clip-path="url(#clip-1)"`)
	assert.Contains(t, out, "&lt;b&gt;eve&lt;/b&gt;")
	assert.NotContains(t, out, "<b>eve")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "</svg>"))
}

func TestLiveDrag(t *testing.T) {
	newLive := func(t *testing.T) (*Engine, func() int) {
		cfg := testConfig()
		cfg.SettleTimeout = 150 * time.Millisecond
		e := NewEngine(cfg, zap.NewNop())
		t.Cleanup(e.Stop)

		var mu sync.Mutex
		ticks := 0
		e.OnTick(func([]domain.NodePosition) {
			mu.Lock()
			ticks++
			mu.Unlock()
		})
		e.Load(testGraph(3), domain.PinSet{"0x0002": domain.NewPin("0x0002", 100, 100)})
		return e, func() int {
			mu.Lock()
			defer mu.Unlock()
			return ticks
		}
	}

	t.Run("drag outlives the settle timeout", func(t *testing.T) {
		e, ticks := newLive(t)
		x, y := bodyScreen(t, e, "0x0002")

		e.Press(x, y)
		e.Move(x+10, y)
		time.Sleep(400 * time.Millisecond)
		assert.Equal(t, StateSimulating, e.State())

		before := ticks()
		e.Move(x+20, y)
		e.Move(x+30, y)
		assert.Eventually(t, func() bool { return ticks() > before },
			time.Second, 5*time.Millisecond)

		got := e.Release(x+30, y)
		assert.Equal(t, InteractionPin, got.Kind)
		assert.Eventually(t, func() bool { return e.State() == StateRendered },
			2*time.Second, 5*time.Millisecond)
	})

	t.Run("drag after settle restarts ticking", func(t *testing.T) {
		e, ticks := newLive(t)
		require.Eventually(t, func() bool { return e.State() == StateRendered },
			2*time.Second, 5*time.Millisecond)
		x, y := bodyScreen(t, e, "0x0002")

		before := ticks()
		e.Press(x, y)
		e.Move(x+10, y)
		assert.Eventually(t, func() bool { return ticks() > before },
			time.Second, 5*time.Millisecond)
		assert.Equal(t, InteractionPin, e.Release(x+15, y).Kind)
	})
}
