package render

import (
	"fmt"
	"image"
	"io"

	"github.com/gogpu/gg"
	"gonum.org/v1/gonum/spatial/r2"
)

// DefaultStrokeWidth is the line width of every outline, in pixels.
const DefaultStrokeWidth = 2

var (
	White = gg.White
	Black = gg.Black
	Grey  = gg.RGB(0.5, 0.5, 0.5)
)

// Canvas is a white gg drawing context with the stroke primitives the
// scene needs. Coordinates are pixels; shapes outside the bounds are clipped.
//
// The first failed stroke is kept and returned by EncodePNG.
type Canvas struct {
	dc  *gg.Context
	err error
}

// NewCanvas returns a white canvas.
func NewCanvas(width, height int) *Canvas {
	dc := gg.NewContext(width, height)
	dc.ClearWithColor(White)
	dc.SetLineWidth(DefaultStrokeWidth)
	return &Canvas{dc: dc}
}

// SetStrokeWidth changes the width of the following strokes.
func (c *Canvas) SetStrokeWidth(w float64) {
	c.dc.SetLineWidth(w)
}

// Image returns a copy of the pixels drawn so far.
func (c *Canvas) Image() image.Image {
	return c.dc.Image()
}

// SetPixel colours a single pixel if it is inside the image.
func (c *Canvas) SetPixel(x, y int, col gg.RGBA) {
	c.dc.SetPixel(x, y, col)
}

func (c *Canvas) stroke(col gg.RGBA) {
	c.dc.SetColor(col)
	if err := c.dc.Stroke(); err != nil && c.err == nil {
		c.err = fmt.Errorf("stroke: %w", err)
	}
}

// Line strokes a segment.
func (c *Canvas) Line(a, b r2.Vec, col gg.RGBA) {
	c.dc.DrawLine(a.X, a.Y, b.X, b.Y)
	c.stroke(col)
}

// DashedLine strokes a segment with dash and gap lengths in pixels.
func (c *Canvas) DashedLine(a, b r2.Vec, dash, gap float64, col gg.RGBA) {
	c.dc.SetDash(dash, gap)
	c.Line(a, b, col)
	c.dc.ClearDash()
}

// Circle strokes a circle outline.
func (c *Canvas) Circle(center r2.Vec, radius float64, col gg.RGBA) {
	if radius <= 0 {
		return
	}
	c.dc.DrawCircle(center.X, center.Y, radius)
	c.stroke(col)
}

// Ellipse strokes an axis-aligned ellipse outline.
func (c *Canvas) Ellipse(center r2.Vec, rx, ry float64, col gg.RGBA) {
	if rx <= 0 || ry <= 0 {
		return
	}
	c.dc.DrawEllipse(center.X, center.Y, rx, ry)
	c.stroke(col)
}

// EncodePNG writes the canvas as PNG.
func (c *Canvas) EncodePNG(w io.Writer) error {
	if c.err != nil {
		return c.err
	}
	if err := c.dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// WritePNG writes the canvas to a PNG file.
func (c *Canvas) WritePNG(path string) error {
	if c.err != nil {
		return c.err
	}
	if err := c.dc.SavePNG(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
