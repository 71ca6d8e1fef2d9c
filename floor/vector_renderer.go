package floor

import (
	"image/color"
	"image/png"
	"io"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// DefaultVectorScale is the canvas size, in millimeters, of one world meter
const DefaultVectorScale = 10.0

// VectorRenderer draws a top-down debug view of the scene, the pins and the last
// evaluation's debug geometry. Plan axes are world X to the right and world -Z up.
type VectorRenderer struct {
	Surfaces          []Surface
	Evaluation        *Evaluation
	Pins              []Marker // used when Evaluation is nil
	Scale             float64  // canvas mm per world meter
	Padding           float64  // meters
	GridSpacing       float64  // meters; 0 disables the grid
	SimplifyTolerance float64  // meters; boundary outlines are simplified before drawing
	Resolution        canvas.Resolution
}

// NewVectorRenderer creates a vector renderer with settings from cfg
func NewVectorRenderer(surfaces []Surface, eval *Evaluation, cfg RenderConfig) *VectorRenderer {
	r := &VectorRenderer{
		Surfaces:          surfaces,
		Evaluation:        eval,
		Scale:             DefaultVectorScale,
		Padding:           cfg.Padding,
		GridSpacing:       cfg.GridSpacing,
		SimplifyTolerance: 0.01,
		Resolution:        canvas.DPI(300),
	}
	if cfg.Resolution > 0 {
		r.Resolution = canvas.DPI(cfg.Resolution)
	}
	return r
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the debug view as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer) error {
	bound := r.planBound()
	width, height := r.canvasSize(bound)

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, bound, width, height)

	return svgRenderer.Close()
}

// RenderToPNG rasterizes the debug view and writes it as a PNG
func (r *VectorRenderer) RenderToPNG(w io.Writer) error {
	bound := r.planBound()
	width, height := r.canvasSize(bound)

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, bound, width, height)

	return png.Encode(w, rast)
}

func (r *VectorRenderer) canvasSize(bound orb.Bound) (float64, float64) {
	width := (bound.Max[0]-bound.Min[0])*r.Scale + 2*r.Padding*r.Scale
	height := (bound.Max[1]-bound.Min[1])*r.Scale + 2*r.Padding*r.Scale
	if width <= 0 {
		width = r.Scale
	}
	if height <= 0 {
		height = r.Scale
	}
	return width, height
}

func (r *VectorRenderer) pins() []Marker {
	if r.Evaluation != nil {
		return r.Evaluation.Pins
	}
	return r.Pins
}

// planBound returns the plan-view bounds of everything that will be drawn.
// An empty scene yields a 1 m square around the origin.
func (r *VectorRenderer) planBound() orb.Bound {
	var points []orb.Point
	for _, s := range r.Surfaces {
		points = append(points, planOutline(s, 0)...)
	}
	for _, pin := range r.pins() {
		points = append(points, planPoint(pin.Position()))
	}
	if r.Evaluation != nil {
		for _, am := range r.Evaluation.Debug.Markers {
			points = append(points, planPoint(am.Marker.World))
		}
	}
	if len(points) == 0 {
		return orb.Bound{Min: orb.Point{-0.5, -0.5}, Max: orb.Point{0.5, 0.5}}
	}
	return orb.MultiPoint(points).Bound()
}

func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, bound orb.Bound, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(p orb.Point) (float64, float64) {
		x := (p[0]-bound.Min[0])*r.Scale + r.Padding*r.Scale
		// plan z grows toward the viewer, so flip it to put -Z at the top
		y := (bound.Max[1]-p[1])*r.Scale + r.Padding*r.Scale
		return x, y
	}
	tracePath := func(points []orb.Point, closed bool) *canvas.Path {
		cp := &canvas.Path{}
		for i, pt := range points {
			cx, cy := toCanvas(pt)
			if i == 0 {
				cp.MoveTo(cx, cy)
			} else {
				cp.LineTo(cx, cy)
			}
		}
		if closed {
			cp.Close()
		}
		return cp
	}

	// Horizontal surfaces first (filled), lowest first so upper floors draw on top
	floorStyle := canvas.DefaultStyle
	floorStyle.Fill = canvas.Paint{Color: ColorHorizontal}
	floorStyle.Stroke = canvas.Paint{Color: ColorSurfaceBorder}
	floorStyle.StrokeWidth = 0.3

	for _, s := range sortedByElevation(r.Surfaces) {
		if s.Alignment != AlignmentHorizontal {
			continue
		}
		outline := planOutline(s, r.SimplifyTolerance)
		if len(outline) < 3 {
			continue
		}
		renderer.RenderPath(tracePath(outline, true), floorStyle, canvas.Identity)
	}

	// Walls (stroked along their plan footprint)
	wallStyle := canvas.DefaultStyle
	wallStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	wallStyle.Stroke = canvas.Paint{Color: ColorVertical}
	wallStyle.StrokeWidth = 1.0

	for _, s := range r.Surfaces {
		if s.Alignment != AlignmentVertical {
			continue
		}
		world := s.WorldBoundary()
		if len(world) == 0 {
			continue
		}
		renderer.RenderPath(tracePath(verticalFootprint(world), false), wallStyle, canvas.Identity)
	}

	if r.GridSpacing > 0 {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
		gridStyle.StrokeWidth = 0.2
		gridStyle.Dashes = []float64{1.0, 1.0}

		for x := math.Ceil(bound.Min[0]/r.GridSpacing) * r.GridSpacing; x <= bound.Max[0]; x += r.GridSpacing {
			renderer.RenderPath(tracePath([]orb.Point{{x, bound.Min[1]}, {x, bound.Max[1]}}, false), gridStyle, canvas.Identity)
		}
		for z := math.Ceil(bound.Min[1]/r.GridSpacing) * r.GridSpacing; z <= bound.Max[1]; z += r.GridSpacing {
			renderer.RenderPath(tracePath([]orb.Point{{bound.Min[0], z}, {bound.Max[0], z}}, false), gridStyle, canvas.Identity)
		}
	}

	if r.Evaluation != nil {
		segStyle := canvas.DefaultStyle
		segStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		segStyle.Stroke = canvas.Paint{Color: ColorSegment}
		segStyle.StrokeWidth = 0.4

		for _, seg := range r.Evaluation.Debug.Segments {
			path := tracePath([]orb.Point{planPoint(seg.From), planPoint(seg.To)}, false)
			renderer.RenderPath(path, segStyle, canvas.Identity)
		}

		for _, am := range r.Evaluation.Debug.Markers {
			cx, cy := toCanvas(planPoint(am.Marker.World))
			renderer.RenderPath(canvas.Circle(0.8).Translate(cx, cy), dotStyle(MarkerColor(am.Marker.Kind)), canvas.Identity)
		}
	}

	for _, pin := range r.pins() {
		cx, cy := toCanvas(planPoint(pin.Position()))
		style := dotStyle(StateColor(pin.State))
		style.Stroke = canvas.Paint{Color: canvas.Black}
		style.StrokeWidth = 0.3
		renderer.RenderPath(canvas.Circle(1.5).Translate(cx, cy), style, canvas.Identity)
	}
}

func dotStyle(c color.RGBA) canvas.Style {
	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: c}
	style.Stroke = canvas.Paint{Color: canvas.Transparent}
	return style
}

// planOutline returns a surface's boundary projected onto the plan, open (the
// first point is not repeated). A positive tolerance runs Douglas-Peucker over the
// outline first; outlines that would collapse below three points are kept as is.
func planOutline(s Surface, tolerance float64) []orb.Point {
	world := s.WorldBoundary()
	ring := make(orb.Ring, len(world))
	for i, v := range world {
		ring[i] = planPoint(v)
	}

	if tolerance > 0 && len(ring) > 3 {
		closed := append(ring.Clone(), ring[0])
		if simplified, ok := simplify.DouglasPeucker(tolerance).Simplify(closed).(orb.Ring); ok && len(simplified) >= 4 {
			ring = simplified[:len(simplified)-1]
		}
	}
	return ring
}

// sortedByElevation returns a copy of surfaces ordered by plane height
func sortedByElevation(surfaces []Surface) []Surface {
	out := append([]Surface(nil), surfaces...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Transform.Position().Y < out[j].Transform.Position().Y
	})
	return out
}
