package kinematics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Default tolerances, in the mechanism's length units unless stated.
const (
	// DefaultArmLengthTolerance is the largest accepted difference between a
	// computed joint-to-effector distance and the passive arm length.
	DefaultArmLengthTolerance = 1.0

	// DefaultEffectorTolerance is what callers should use when comparing an
	// inverse-solve target with the effector the solver recomputed.
	DefaultEffectorTolerance = 1e-3

	// DefaultSingularityTolerance is the smallest accepted distance of
	// c/(2*passive) from 1. Closer than that the passive arms are collinear.
	DefaultSingularityTolerance = 1e-9

	// DefaultClearanceTolerance is the smallest accepted gap between the
	// effector and a motor pivot, and between the effector and the height
	// of either passive joint. On a pivot the matching motor angle is
	// undetermined; level with a joint the elbow can flip.
	DefaultClearanceTolerance = 1e-3
)

// Mechanism holds the fixed geometry of the linkage.
//
// The left motor pivot is the origin, the right motor pivot is (Span, 0),
// the baseboard is the x-axis.
type Mechanism struct {
	Span          float64 // distance between the motor pivots (d)
	ActiveLength  float64 // motor arm length (l1)
	PassiveLength float64 // passive arm length (l2)
}

// Validate checks that all lengths are finite and positive.
// It does not check that the arms can actually meet.
func (m Mechanism) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"span", m.Span},
		{"active_length", m.ActiveLength},
		{"passive_length", m.PassiveLength},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v <= 0 {
			return fmt.Errorf("%s must be a positive finite number, got %g", f.name, f.v)
		}
	}
	return nil
}

// Pivots returns the two fixed motor pivots.
func (m Mechanism) Pivots() (left, right r2.Vec) {
	return r2.Vec{}, r2.Vec{X: m.Span}
}

// Joints returns the passive joint positions for motor angles in degrees.
func (m Mechanism) Joints(angleA, angleB float64) (jointA, jointB r2.Vec) {
	a := radians(angleA)
	b := radians(angleB)
	jointA = r2.Vec{X: m.ActiveLength * math.Cos(a), Y: m.ActiveLength * math.Sin(a)}
	jointB = r2.Vec{X: m.Span + m.ActiveLength*math.Cos(b), Y: m.ActiveLength * math.Sin(b)}
	return jointA, jointB
}

// WorkspaceHeight returns the half height of the ellipse drawn as a rough
// outline of the reachable area (the isosceles trapezoid construction).
// Returns 0 when the construction has no solution.
func (m Mechanism) WorkspaceHeight() float64 {
	p := math.Sqrt(m.Span*m.PassiveLength*2 + m.ActiveLength*m.ActiveLength)
	theta, err := triangleAngle(p, m.Span, m.ActiveLength)
	if err != nil {
		return 0
	}
	return m.ActiveLength * math.Sin(theta)
}

// Tolerances groups the numeric thresholds used during validation.
type Tolerances struct {
	ArmLength   float64
	Effector    float64
	Singularity float64
	Clearance   float64
}

// DefaultTolerances returns the package defaults.
func DefaultTolerances() Tolerances {
	return Tolerances{
		ArmLength:   DefaultArmLengthTolerance,
		Effector:    DefaultEffectorTolerance,
		Singularity: DefaultSingularityTolerance,
		Clearance:   DefaultClearanceTolerance,
	}
}

// withDefaults replaces non-positive fields by the defaults.
func (t Tolerances) withDefaults() Tolerances {
	d := DefaultTolerances()
	if t.ArmLength <= 0 {
		t.ArmLength = d.ArmLength
	}
	if t.Effector <= 0 {
		t.Effector = d.Effector
	}
	if t.Singularity <= 0 {
		t.Singularity = d.Singularity
	}
	if t.Clearance <= 0 {
		t.Clearance = d.Clearance
	}
	return t
}

func radians(d float64) float64 {
	return d * math.Pi / 180.0
}

// degrees converts radians to degrees normalized to [0, 360).
func degrees(r float64) float64 {
	return NormalizeDegrees(r * 180.0 / math.Pi)
}

// NormalizeDegrees maps any finite angle to [0, 360).
func NormalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360.0)
	if d < 0 {
		d += 360.0
	}
	if d >= 360.0 {
		d -= 360.0
	}
	return d
}

// triangleAngle returns the angle (radians) opposite side a in a triangle
// with sides a, b, c (law of cosines, SSS).
func triangleAngle(a, b, c float64) (float64, error) {
	if b == 0 || c == 0 {
		return 0, domainErr("inverse", "degenerate triangle (b=%g, c=%g)", b, c)
	}
	cos := (b*b + c*c - a*a) / (2 * b * c)
	if math.IsNaN(cos) || cos < -1 || cos > 1 {
		return 0, domainErr("inverse", "acos argument %g outside [-1, 1]", cos)
	}
	return math.Acos(cos), nil
}
