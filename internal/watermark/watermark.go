package watermark

import (
	"image"
	"image/color"
	"math"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
)

const (
	// angleDegrees is the fixed rotation of every tile.
	angleDegrees = -30.0
	// labelAlpha keeps the overlay legible without obscuring content.
	labelAlpha = 46
	// padX/padY separate tiles at the natural pitch; planPlacement tightens
	// the pitch and shrinks the tile on surfaces too small for it.
	padX = 28
	padY = 64

	timeLayout = "2006-01-02 15:04:05"
)

// Label is the exact text stamped onto a surface. It is recomputed at every
// stamp; caching it would freeze the render moment, which is a correctness
// bug here, not a performance win.
func Label(viewerIdentity string, ts time.Time) string {
	return viewerIdentity + " • " + ts.Local().Format(timeLayout)
}

// Stamp overlays the tiled viewer label across the whole surface, in place.
// It is a pure function of (identity, timestamp, surface dimensions):
// stamping the same surface twice with the same inputs is byte-identical,
// and a different timestamp always changes the output.
//
// Every axis-aligned window of half the surface width and half the surface
// height contains at least one complete label instance, so a quarter-page
// screenshot crop cannot dodge the identity.
//
// Callers must stamp after content paint and before the surface is shown;
// the session controller's paint path enforces that ordering.
func Stamp(dst *image.RGBA, viewerIdentity string, ts time.Time) {
	b := dst.Bounds()
	p := planPlacement(b, renderLabelTile(Label(viewerIdentity, ts)))
	tb := p.tile.Bounds()
	for _, a := range p.anchors(b) {
		m := f64.Aff3{
			p.cos, -p.sin, float64(a.X),
			p.sin, p.cos, float64(a.Y),
		}
		xdraw.BiLinear.Transform(dst, m, p.tile, tb, xdraw.Over, nil)
	}
}

// placement fixes the tile raster and anchor pitch for one surface. The
// invariant it maintains: the rotated tile's bounding box never exceeds a
// quarter of either surface dimension, and the pitch never exceeds half the
// surface extent minus that box, so any half-by-half crop window holds one
// whole tile.
type placement struct {
	tile         *image.RGBA
	sin, cos     float64
	stepX, stepY int
	// Rotated bounding-box extents around the anchor point.
	extW, upY, downY int
}

func planPlacement(bounds image.Rectangle, tile *image.RGBA) placement {
	sin, cos := math.Sincos(angleDegrees * math.Pi / 180)
	sa := math.Abs(sin)

	w, h := float64(tile.Bounds().Dx()), float64(tile.Bounds().Dy())
	extW, extH := w*cos+h*sa, w*sa+h*cos

	// Long identities on narrow or low-zoom surfaces: shrink the tile until
	// its rotated box fits the quarter-dimension bound.
	scale := 1.0
	if limit := float64(bounds.Dx()) / 4; limit > 0 && extW*scale > limit {
		scale = limit / extW
	}
	if limit := float64(bounds.Dy()) / 4; limit > 0 && extH*scale > limit {
		scale = limit / extH
	}
	if scale < 1 {
		tile = scaleTile(tile, scale)
		w, h = float64(tile.Bounds().Dx()), float64(tile.Bounds().Dy())
		extW, extH = w*cos+h*sa, w*sa+h*cos
	}

	p := placement{
		tile:  tile,
		sin:   sin,
		cos:   cos,
		stepX: tile.Bounds().Dx() + padX,
		stepY: tile.Bounds().Dy() + padY,
		extW:  int(math.Ceil(extW)),
		upY:   int(math.Ceil(w * sa)),
		downY: int(math.Ceil(h * cos)),
	}
	if max := bounds.Dx()/2 - p.extW; p.stepX > max && max > 0 {
		p.stepX = max
	}
	if max := bounds.Dy()/2 - (p.upY + p.downY); p.stepY > max && max > 0 {
		p.stepY = max
	}
	if p.stepX < 1 {
		p.stepX = 1
	}
	if p.stepY < 1 {
		p.stepY = 1
	}
	return p
}

// anchors returns the staggered anchor grid, overscanning one pitch in every
// direction so rotation never leaves an unstamped margin.
func (p placement) anchors(bounds image.Rectangle) []image.Point {
	var out []image.Point
	row := 0
	for y := bounds.Min.Y - p.stepY; y < bounds.Max.Y+p.stepY; y += p.stepY {
		xOff := 0
		if row%2 == 1 {
			xOff = p.stepX / 2
		}
		for x := bounds.Min.X - p.stepX + xOff; x < bounds.Max.X+p.stepX; x += p.stepX {
			out = append(out, image.Point{X: x, Y: y})
		}
		row++
	}
	return out
}

// tileBox is the axis-aligned bounding box of the rotated tile anchored at a.
func (p placement) tileBox(a image.Point) image.Rectangle {
	return image.Rect(a.X, a.Y-p.upY, a.X+p.extW, a.Y+p.downY)
}

func scaleTile(tile *image.RGBA, scale float64) *image.RGBA {
	w := int(math.Max(1, math.Floor(float64(tile.Bounds().Dx())*scale)))
	h := int(math.Max(1, math.Floor(float64(tile.Bounds().Dy())*scale)))
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(out, out.Bounds(), tile, tile.Bounds(), xdraw.Src, nil)
	return out
}

// renderLabelTile rasterizes one instance of the label at low opacity.
func renderLabelTile(label string) *image.RGBA {
	face := basicfont.Face7x13
	w := font.MeasureString(face, label).Ceil()
	if w < 1 {
		w = 1
	}
	h := face.Height + 4
	tile := image.NewRGBA(image.Rect(0, 0, w+2, h))
	d := font.Drawer{
		Dst:  tile,
		Src:  image.NewUniform(color.NRGBA{R: 40, G: 40, B: 40, A: labelAlpha}),
		Face: face,
		Dot:  fixed.P(1, face.Ascent+2),
	}
	d.DrawString(label)
	return tile
}
