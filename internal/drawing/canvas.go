package drawing

import (
	"image"
	"math"

	"golang.org/x/image/vector"
)

// capSegments is the number of polygon edges used for each round cap.
const capSegments = 12

// Canvas is the ink layer of the surface: one coverage value per pixel.
// Strokes have round caps.
type Canvas struct {
	ink  *image.Alpha
	rast *vector.Rasterizer
}

func newCanvas(w, h int) *Canvas {
	return &Canvas{
		ink:  image.NewAlpha(image.Rect(0, 0, w, h)),
		rast: vector.NewRasterizer(w, h),
	}
}

func (c *Canvas) clear() {
	clear(c.ink.Pix)
}

// rgba renders the ink as opaque black on a transparent background.
func (c *Canvas) rgba() []uint8 {
	pix := make([]uint8, len(c.ink.Pix)*4)
	for i, a := range c.ink.Pix {
		pix[i*4+3] = a
	}
	return pix
}

// stroke paints a line from a to b as a capsule: a rectangle of the given
// width with a half disc at each end. A zero-length stroke paints a dot.
func (c *Canvas) stroke(a, b Point, width float64) {
	r := width / 2
	dx, dy := b.X-a.X, b.Y-a.Y

	theta := 0.0
	if l := math.Hypot(dx, dy); l > 0 {
		// angle of the left normal (-dy, dx)
		theta = math.Atan2(dx/l, -dy/l)
	}

	b0 := c.ink.Bounds()
	c.rast.Reset(b0.Dx(), b0.Dy())

	first := true
	arc := func(center Point, from float64) {
		for i := 0; i <= capSegments; i++ {
			phi := from - math.Pi*float64(i)/capSegments
			x := float32(center.X + r*math.Cos(phi))
			y := float32(center.Y + r*math.Sin(phi))
			if first {
				c.rast.MoveTo(x, y)
				first = false
				continue
			}
			c.rast.LineTo(x, y)
		}
	}
	arc(b, theta)
	arc(a, theta-math.Pi)
	c.rast.ClosePath()

	c.rast.Draw(c.ink, b0, image.Opaque, image.Point{})
}
