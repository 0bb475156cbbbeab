// Package render draws the linkage and its reachable workspace to images.
package render

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/spatial/r2"
)

// View maps solver coordinates (origin at the left motor pivot) to image
// pixels and back. The baseboard is centred horizontally at half height.
type View struct {
	Width, Height int
	Scale         float64

	toPixel  mgl64.Mat3
	toSolver mgl64.Mat3
}

// NewView builds the transform for a mechanism of the given span.
// scale is pixels per length unit; 0 means 1.
func NewView(span float64, width, height int, scale float64) (*View, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("view size must be positive, got %dx%d", width, height)
	}
	if scale == 0 {
		scale = 1
	}
	if scale < 0 {
		return nil, fmt.Errorf("view scale must be positive, got %g", scale)
	}

	offX := float64(width)/2 - span*scale/2
	offY := float64(height) / 2
	m := mgl64.Translate2D(offX, offY).Mul3(mgl64.Scale2D(scale, scale))

	return &View{
		Width:    width,
		Height:   height,
		Scale:    scale,
		toPixel:  m,
		toSolver: m.Inv(),
	}, nil
}

// ToPixel converts a solver point to image coordinates.
func (v *View) ToPixel(p r2.Vec) r2.Vec {
	q := v.toPixel.Mul3x1(mgl64.Vec3{p.X, p.Y, 1})
	return r2.Vec{X: q[0], Y: q[1]}
}

// ToSolver converts image (canvas) coordinates to the solver frame.
// Pointer input goes through here before SolveInverse.
func (v *View) ToSolver(p r2.Vec) r2.Vec {
	q := v.toSolver.Mul3x1(mgl64.Vec3{p.X, p.Y, 1})
	return r2.Vec{X: q[0], Y: q[1]}
}

// Offset is the pixel position of the left motor pivot.
func (v *View) Offset() r2.Vec {
	return v.ToPixel(r2.Vec{})
}
