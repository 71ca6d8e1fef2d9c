package floor

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const maxRasterSize = 4000

// RasterRenderer draws the top-down debug view into an RGBA image with a verdict
// caption and a legend. Plan axes match VectorRenderer.
type RasterRenderer struct {
	Surfaces   []Surface
	Evaluation *Evaluation
	Pins       []Marker // used when Evaluation is nil
	Scale      float64  // pixels per meter
	Padding    int      // pixels
}

// NewRasterRenderer creates a raster renderer with settings from cfg
func NewRasterRenderer(surfaces []Surface, eval *Evaluation, cfg RenderConfig) *RasterRenderer {
	scale := cfg.PixelsPerMeter
	if scale <= 0 {
		scale = 100
	}
	return &RasterRenderer{
		Surfaces:   surfaces,
		Evaluation: eval,
		Scale:      scale,
		Padding:    int(cfg.Padding * scale),
	}
}

func (r *RasterRenderer) pins() []Marker {
	if r.Evaluation != nil {
		return r.Evaluation.Pins
	}
	return r.Pins
}

// Render draws the debug view
func (r *RasterRenderer) Render() *image.RGBA {
	vr := &VectorRenderer{Surfaces: r.Surfaces, Evaluation: r.Evaluation, Pins: r.Pins}
	bound := vr.planBound()
	minX, minZ := bound.Min[0], bound.Min[1]
	maxX, maxZ := bound.Max[0], bound.Max[1]

	scale := r.Scale
	width := int((maxX-minX)*scale) + 2*r.Padding
	height := int((maxZ-minZ)*scale) + 2*r.Padding

	// Limit size
	if width > maxRasterSize {
		scale *= float64(maxRasterSize) / float64(width)
		width = maxRasterSize
		height = int((maxZ-minZ)*scale) + 2*r.Padding
	}
	if height > maxRasterSize {
		scale *= float64(maxRasterSize) / float64(height)
		height = maxRasterSize
		width = int((maxX-minX)*scale) + 2*r.Padding
	}
	if width <= 0 {
		width = 2*r.Padding + 1
	}
	if height <= 0 {
		height = 2*r.Padding + 1
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}

	toImage := func(p orb.Point) (int, int) {
		x := int((p[0]-minX)*scale) + r.Padding
		y := int((maxZ-p[1])*scale) + r.Padding
		return x, y
	}
	toPlan := func(x, y int) orb.Point {
		return orb.Point{
			float64(x-r.Padding)/scale + minX,
			maxZ - float64(y-r.Padding)/scale,
		}
	}

	// First pass: horizontal surfaces, lowest first
	for _, s := range sortedByElevation(r.Surfaces) {
		if s.Alignment != AlignmentHorizontal {
			continue
		}
		outline := planOutline(s, 0)
		if len(outline) < 3 {
			continue
		}
		ring := append(orb.Ring(outline), outline[0])
		b := ring.Bound()
		x0, y0 := toImage(orb.Point{b.Min[0], b.Max[1]})
		x1, y1 := toImage(orb.Point{b.Max[0], b.Min[1]})
		for y := max(y0, 0); y <= min(y1, height-1); y++ {
			for x := max(x0, 0); x <= min(x1, width-1); x++ {
				if planar.RingContains(ring, toPlan(x, y)) {
					img.Set(x, y, ColorHorizontal)
				}
			}
		}
		for i := range outline {
			ax, ay := toImage(outline[i])
			bx, by := toImage(outline[(i+1)%len(outline)])
			drawLine(img, ax, ay, bx, by, 0, ColorSurfaceBorder)
		}
	}

	// Second pass: walls
	for _, s := range r.Surfaces {
		if s.Alignment != AlignmentVertical {
			continue
		}
		world := s.WorldBoundary()
		if len(world) == 0 {
			continue
		}
		fp := verticalFootprint(world)
		ax, ay := toImage(fp[0])
		bx, by := toImage(fp[1])
		drawLine(img, ax, ay, bx, by, 1, ColorVertical)
	}

	// Third pass: debug geometry and pins
	if r.Evaluation != nil {
		for _, seg := range r.Evaluation.Debug.Segments {
			ax, ay := toImage(planPoint(seg.From))
			bx, by := toImage(planPoint(seg.To))
			drawLine(img, ax, ay, bx, by, 0, ColorSegment)
		}
		for _, am := range r.Evaluation.Debug.Markers {
			ix, iy := toImage(planPoint(am.Marker.World))
			if am.Marker.Kind == MarkerBlockingWall {
				drawSquare(img, ix, iy, 8, MarkerColor(am.Marker.Kind))
			} else {
				drawCircle(img, ix, iy, 4, MarkerColor(am.Marker.Kind))
			}
		}
	}
	for _, pin := range r.pins() {
		ix, iy := toImage(planPoint(pin.Position()))
		drawCircle(img, ix, iy, 8, color.RGBA{0, 0, 0, 255})
		drawCircle(img, ix, iy, 6, StateColor(pin.State))
	}

	r.drawCaption(img)
	drawLegend(img, width, height)

	return img
}

// drawCaption writes the verdict message in the top-left corner
func (r *RasterRenderer) drawCaption(img *image.RGBA) {
	text := "Place two pins"
	if r.Evaluation != nil {
		v := r.Evaluation.Verdict
		text = fmt.Sprintf("%s: %s", v.Kind, v.Message())
	} else if n := len(r.pins()); n == 1 {
		text = "Place one more pin"
	}
	drawText(img, 10, 18, text, color.RGBA{0, 0, 0, 255})
}

// EncodePNG renders and writes a PNG to w
func (r *RasterRenderer) EncodePNG(w io.Writer) error {
	return png.Encode(w, r.Render())
}

// SavePNG renders and saves a PNG file
func (r *RasterRenderer) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return r.EncodePNG(f)
}

// drawLegend lists the marker colors along the bottom-left corner
func drawLegend(img *image.RGBA, width, height int) {
	entries := []struct {
		label string
		c     color.RGBA
	}{
		{"same floor", ColorSameFloor},
		{"different floor", ColorDifferent},
		{"projection", ColorProjection},
		{"blocking wall", ColorBlockingWall},
	}

	y := height - 10 - 18*(len(entries)-1)
	for _, e := range entries {
		for dy := 0; dy < 12; dy++ {
			for dx := 0; dx < 12; dx++ {
				setPixel(img, 10+dx, y+dy-10, e.c)
			}
		}
		drawText(img, 28, y, e.label, color.RGBA{0, 0, 0, 255})
		y += 18
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				setPixel(img, cx+dx, cy+dy, c)
			}
		}
	}
}

// drawSquare draws a filled square
func drawSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	half := size / 2
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			setPixel(img, cx+dx, cy+dy, c)
		}
	}
}

// drawLine draws a line with the given half-thickness in pixels
func drawLine(img *image.RGBA, x0, y0, x1, y1, half int, c color.RGBA) {
	steps := int(math.Max(math.Abs(float64(x1-x0)), math.Abs(float64(y1-y0))))
	if steps == 0 {
		drawSquare(img, x0, y0, 2*half, c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := x0 + int(math.Round(t*float64(x1-x0)))
		y := y0 + int(math.Round(t*float64(y1-y0)))
		if half == 0 {
			setPixel(img, x, y, c)
			continue
		}
		drawSquare(img, x, y, 2*half, c)
	}
}
