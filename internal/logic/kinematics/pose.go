package kinematics

import "gonum.org/v1/gonum/spatial/r2"

// Pose is one validated configuration of the linkage.
// All angles are in degrees, normalized to [0, 360).
type Pose struct {
	AngleA float64 // left motor angle from the baseboard
	AngleB float64 // right motor angle from the baseboard
	Gamma  float64 // joint-to-joint line vs. the baseboard
	Delta  float64 // base angle of the joints/effector isosceles triangle

	JointA      r2.Vec // left passive joint
	JointB      r2.Vec // right passive joint
	EndEffector r2.Vec
}

// Matches reports whether the effector lies within tol of p.
func (p Pose) Matches(target r2.Vec, tol float64) bool {
	return r2.Norm(r2.Sub(p.EndEffector, target)) <= tol
}

// EndAngle is the inner angle at the effector, always reflex.
func (p Pose) EndAngle() float64 {
	return 360 - (180 - 2*p.Delta)
}
