package layout

import (
	"fmt"
	"html"
	"io"
	"math"

	svg "github.com/ajstarks/svgo"
)

const (
	labelFontSize = 10
	labelColor    = "#333"
	// approximate glyph advance for the label font
	labelCharWidth = 6
)

// Render writes the laid-out graph as an SVG document, styled for the
// selection
func (e *Engine) Render(w io.Writer, selectedID string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ew := &errWriter{w: w}
	width, height := round(e.width), round(e.height)
	styles := Highlight(e.arena.bodies, e.arena.links, selectedID)

	canvas := svg.New(ew)
	canvas.Start(width, height)
	canvas.Rect(0, 0, width, height, `class="background"`, `fill="transparent"`)

	canvas.Def()
	canvas.Marker("arrow", 25, 0, 6, 6, `viewBox="0 -5 10 10"`, `orient="auto"`)
	canvas.Path("M0,-5L10,0L0,5", `fill="#999"`)
	canvas.MarkerEnd()
	canvas.DefEnd()

	canvas.Gtransform(e.transform.String())

	canvas.Group(`class="links"`)
	for i, l := range e.arena.links {
		st := styles.Links[i]
		canvas.Line(round(l.Source.X), round(l.Source.Y), round(l.Target.X), round(l.Target.Y),
			attr("stroke", st.Stroke),
			attr("stroke-width", fmt.Sprintf("%g", st.Width)),
			attr("stroke-opacity", fmt.Sprintf("%g", st.Opacity)),
			`marker-end="url(#arrow)"`)
	}
	canvas.Gend()

	canvas.Group(`class="link-labels"`)
	for _, l := range e.arena.links {
		mx := round((l.Source.X + l.Target.X) / 2)
		my := round((l.Source.Y + l.Target.Y) / 2)
		textW := labelCharWidth*len(l.Data.Value) + 6
		textH := labelFontSize + 2
		canvas.Roundrect(mx-textW/2, my-textH+2, textW, textH, 3, 3, `fill="white"`, `opacity="0.8"`)
		canvas.Text(mx, my, l.Data.Value,
			attr("font-size", fmt.Sprint(labelFontSize)), attr("fill", labelColor), `text-anchor="middle"`)
	}
	canvas.Gend()

	canvas.Group(`class="nodes"`)
	for i, b := range e.arena.bodies {
		st := styles.Nodes[b.ID]
		r := round(st.Radius)

		canvas.Gtransform(fmt.Sprintf("translate(%d,%d)", round(b.X), round(b.Y)))
		canvas.Title(fmt.Sprintf("%s\nVouches Given: %d\nVouches Received: %d",
			b.Node.Name, b.Node.VouchesGiven, b.Node.VouchesReceived))
		canvas.Circle(0, 0, round(hitRadius(b)), `class="node-hitarea"`, `fill="transparent"`,
			attr("data-id", b.ID))
		canvas.Circle(0, 0, r, `class="node-circle"`, attr("fill", st.Fill),
			`stroke="#fff"`, `stroke-width="1.5"`)

		if b.Node.ProfileImageURL != nil && *b.Node.ProfileImageURL != "" {
			clipID := fmt.Sprintf("clip-%d", i)
			inner := round(b.Radius()) - 2
			canvas.ClipPath(attr("id", clipID))
			canvas.Circle(0, 0, inner)
			canvas.ClipEnd()
			canvas.Image(-inner, -inner, inner*2, inner*2, html.EscapeString(*b.Node.ProfileImageURL),
				attr("clip-path", fmt.Sprintf("url(#%s)", clipID)))
		}

		canvas.Text(0, round(b.Radius())+10, b.Node.Name,
			`text-anchor="middle"`, attr("font-size", fmt.Sprint(labelFontSize)), attr("fill", labelColor))
		canvas.Gend()
	}
	canvas.Gend()

	canvas.Gend()
	canvas.End()
	return ew.err
}

// attr formats an escaped SVG attribute
func attr(name, value string) string {
	return fmt.Sprintf(`%s="%s"`, name, html.EscapeString(value))
}

func round(v float64) int {
	return int(math.Round(v))
}

// errWriter records the first write error and drops later writes
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) Write(p []byte) (int, error) {
	if ew.err != nil {
		return len(p), nil
	}
	n, err := ew.w.Write(p)
	if err != nil {
		ew.err = err
		return len(p), nil
	}
	return n, nil
}
