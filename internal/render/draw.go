package render

import (
	"math"

	"github.com/cjeanneret/MBot/internal/logic/kinematics"
	"github.com/cjeanneret/MBot/internal/logic/workspace"
	"gonum.org/v1/gonum/spatial/r2"
)

// Radii of the drawn markers, in length units.
const (
	EffectorRadius = 20
	MotorRadius    = 40
)

// DrawWorkspace plots every reachable effector position in grey.
func DrawWorkspace(c *Canvas, v *View, m *workspace.Map) {
	if m == nil {
		return
	}
	for _, s := range m.Samples {
		p := v.ToPixel(s.Point)
		c.SetPixel(int(math.Round(p.X)), int(math.Round(p.Y)), Grey)
	}
}

// DrawPose draws the baseboard (dashed), both active and passive arms, the
// effector and motor markers, and the reachability ellipse.
func DrawPose(c *Canvas, v *View, mech kinematics.Mechanism, pose kinematics.Pose) {
	left, right := mech.Pivots()
	a := v.ToPixel(left)
	e := v.ToPixel(right)
	b := v.ToPixel(pose.JointA)
	d := v.ToPixel(pose.JointB)
	eff := v.ToPixel(pose.EndEffector)

	c.DashedLine(a, e, 10, 4, Black)

	c.Line(a, b, Black)
	c.Line(d, e, Black)

	c.Line(b, eff, Black)
	c.Line(d, eff, Black)
	c.Circle(eff, EffectorRadius*v.Scale, Black)

	c.Circle(a, MotorRadius*v.Scale, Black)
	c.Circle(e, MotorRadius*v.Scale, Black)

	DrawOutline(c, v, mech)
}

// DrawOutline draws the ellipse spanning the baseboard with the mechanism's
// workspace height, a rough hint of the reachable area.
func DrawOutline(c *Canvas, v *View, mech kinematics.Mechanism) {
	height := mech.WorkspaceHeight()
	if height <= 0 {
		return
	}
	center := v.ToPixel(r2.Vec{X: mech.Span / 2})
	c.Ellipse(center, mech.Span/2*v.Scale, height*v.Scale, Black)
}

// Scene renders the workspace raster with the pose on top. pose may be nil.
func Scene(v *View, mech kinematics.Mechanism, m *workspace.Map, pose *kinematics.Pose) *Canvas {
	c := NewCanvas(v.Width, v.Height)
	DrawWorkspace(c, v, m)
	if pose != nil {
		DrawPose(c, v, mech, *pose)
	} else {
		DrawOutline(c, v, mech)
	}
	return c
}
