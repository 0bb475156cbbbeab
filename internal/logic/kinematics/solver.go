// Package kinematics solves the forward and inverse kinematics of the
// two-motor "M" linkage.
//
// Two active arms of length l1 turn around the motor pivots (0, 0) and
// (d, 0). Each ends in a passive joint carrying a passive arm of length l2.
// The passive arms meet at the end effector. Drawing a line between the
// passive joints gives an isosceles triangle with the effector: its base
// is c, its base angles are delta, and gamma is the angle between c and
// the baseboard.
//
// The inner angle at the effector is kept reflex: the passive arms never
// straighten into a "^", which avoids that singularity.
package kinematics

import (
	"fmt"
	"math"

	"github.com/cjeanneret/MBot/internal/debug"
	"gonum.org/v1/gonum/spatial/r2"
)

// Solver owns a mechanism and its current pose.
//
// A Solver is not safe for concurrent use: callers that share one must
// serialize SolveForward/SolveInverse themselves.
type Solver struct {
	mech  Mechanism
	tol   Tolerances
	pose  *Pose // nil until the first successful solve
	quiet bool
}

// NewSolver creates a solver with no pose yet.
// Zero tolerance fields fall back to the defaults.
func NewSolver(m Mechanism, tol Tolerances) (*Solver, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mechanism: %w", err)
	}
	return &Solver{mech: m, tol: tol.withDefaults()}, nil
}

// Mechanism returns the fixed geometry.
func (s *Solver) Mechanism() Mechanism {
	return s.mech
}

// Tolerances returns the thresholds in use.
func (s *Solver) Tolerances() Tolerances {
	return s.tol
}

// SetQuiet turns off per-solve logging (for bulk sweeps).
func (s *Solver) SetQuiet(quiet bool) {
	s.quiet = quiet
}

// Pose returns the last committed pose. ok is false before the first
// successful solve.
func (s *Solver) Pose() (pose Pose, ok bool) {
	if s.pose == nil {
		return Pose{}, false
	}
	return *s.pose, true
}

// SolveForward computes the effector position for two motor angles in
// degrees. On success the pose is committed and returned; on failure the
// previous pose is kept.
func (s *Solver) SolveForward(angleA, angleB float64) (Pose, error) {
	pose, err := s.forward(angleA, angleB)
	if err != nil {
		if !s.quiet {
			debug.Verbose("Forward(%.3f, %.3f) rejected: %v", angleA, angleB, err)
		}
		return Pose{}, err
	}
	s.commit(pose)
	return pose, nil
}

// SolveInverse computes the motor angles that put the effector at target
// and commits the resulting pose through the forward solve. The committed
// effector can differ slightly from target; see Pose.Matches.
//
// The preferred elbow pair is tried first. When the forward solve rejects
// it, the other elbow pairs are tried and kept only if they reach target.
func (s *Solver) SolveInverse(target r2.Vec) (Pose, error) {
	pose, err := s.inverse(target)
	if err != nil {
		if !s.quiet {
			debug.Verbose("Inverse(%.3f, %.3f) rejected: %v", target.X, target.Y, err)
		}
		return Pose{}, err
	}
	s.commit(pose)
	return pose, nil
}

func (s *Solver) commit(p Pose) {
	s.pose = &p
	if s.quiet {
		return
	}
	debug.Live("Pose: A=%.3f B=%.3f effector=(%.3f, %.3f)",
		p.AngleA, p.AngleB, p.EndEffector.X, p.EndEffector.Y)
}

// forward computes and validates a candidate pose without committing it.
func (s *Solver) forward(angleA, angleB float64) (Pose, error) {
	const op = "forward"
	if !finite(angleA) || !finite(angleB) {
		return Pose{}, domainErr(op, "non-finite angle (%g, %g)", angleA, angleB)
	}

	l2 := s.mech.PassiveLength
	jointA, jointB := s.mech.Joints(angleA, angleB)
	dx := jointB.X - jointA.X
	dy := jointB.Y - jointA.Y
	c := r2.Norm(r2.Sub(jointB, jointA))

	if dx == 0 {
		return Pose{}, domainErr(op, "passive joints vertically aligned (x=%g)", jointA.X)
	}
	gamma := math.Atan(math.Abs(dy) / math.Abs(dx))

	ratio := c / (2 * l2)
	if ratio > 1 {
		return Pose{}, domainErr(op, "passive arms cannot reach each other (c=%g > 2*l2=%g)", c, 2*l2)
	}
	delta := math.Acos(ratio)

	if !s.quiet {
		debug.Trace("forward: c=%g gamma=%g delta=%g", c, gamma*180/math.Pi, delta*180/math.Pi)
	}

	effector := selectLowerBranch(jointA, jointB, l2, gamma+delta)
	if err := s.checkPivots(op, effector); err != nil {
		return Pose{}, err
	}
	if err := s.validateCandidate(jointA, jointB, effector, ratio); err != nil {
		return Pose{}, err
	}

	return Pose{
		AngleA:      NormalizeDegrees(angleA),
		AngleB:      NormalizeDegrees(angleB),
		Gamma:       degrees(gamma),
		Delta:       degrees(delta),
		JointA:      jointA,
		JointB:      jointB,
		EndEffector: effector,
	}, nil
}

// selectLowerBranch resolves the two-fold ambiguity of the forward solve
// (lower-joint selection): the effector is placed below the higher passive
// joint, which is the only branch the physical linkage can present.
// angle is gamma+delta in radians.
func selectLowerBranch(jointA, jointB r2.Vec, l2, angle float64) r2.Vec {
	e := l2 * math.Cos(angle)
	f := l2 * math.Sin(angle)
	if jointB.Y > jointA.Y {
		return r2.Sub(jointB, r2.Vec{X: e, Y: f})
	}
	return r2.Add(jointA, r2.Vec{X: e, Y: -f})
}

// validateCandidate applies the mechanical constraints to a forward result.
func (s *Solver) validateCandidate(jointA, jointB, p r2.Vec, ratio float64) error {
	const op = "forward"
	if math.IsNaN(p.X) || math.IsNaN(p.Y) {
		return domainErr(op, "effector is NaN")
	}
	if p.X < 0 || p.X > s.mech.Span {
		return invalidErr(op, "effector x=%g outside [0, %g]", p.X, s.mech.Span)
	}
	// keep the end effector below the passive joints
	if p.Y > jointA.Y-s.tol.Clearance || p.Y > jointB.Y-s.tol.Clearance {
		return invalidErr(op, "effector y=%g not below joints (%g, %g)", p.Y, jointA.Y, jointB.Y)
	}
	if jointA.X > jointB.X {
		return invalidErr(op, "crossed joints (%g > %g)", jointA.X, jointB.X)
	}
	l2 := s.mech.PassiveLength
	if d := r2.Norm(r2.Sub(p, jointA)); math.Abs(d-l2) > s.tol.ArmLength {
		return invalidErr(op, "left passive arm length %g, want %g", d, l2)
	}
	if d := r2.Norm(r2.Sub(p, jointB)); math.Abs(d-l2) > s.tol.ArmLength {
		return invalidErr(op, "right passive arm length %g, want %g", d, l2)
	}
	if 1-ratio < s.tol.Singularity {
		return invalidErr(op, "passive arms collinear")
	}
	return nil
}

// checkPivots rejects an effector sitting on a motor pivot. There the arm
// driven by that motor can take any angle, so neither solve is defined.
func (s *Solver) checkPivots(op string, p r2.Vec) error {
	left, right := s.mech.Pivots()
	if d := r2.Norm(r2.Sub(p, left)); d < s.tol.Clearance {
		return domainErr(op, "effector (%g, %g) on the left motor pivot", p.X, p.Y)
	}
	if d := r2.Norm(r2.Sub(p, right)); d < s.tol.Clearance {
		return domainErr(op, "effector (%g, %g) on the right motor pivot", p.X, p.Y)
	}
	return nil
}

// armAngles is one pair of motor angles, in degrees.
type armAngles struct {
	a, b float64
}

func (s *Solver) inverse(target r2.Vec) (Pose, error) {
	branches, err := s.inverseBranches(target)
	if err != nil {
		return Pose{}, err
	}
	pose, firstErr := s.forward(branches[0].a, branches[0].b)
	if firstErr == nil {
		return pose, nil
	}
	for _, br := range branches[1:] {
		pose, err := s.forward(br.a, br.b)
		if err == nil && pose.Matches(target, s.tol.Effector) {
			return pose, nil
		}
	}
	return Pose{}, firstErr
}

// inverseBranches returns the motor angles for a target effector, the
// preferred elbow pair first: left elbow counterclockwise of the pivot to
// target line, right elbow clockwise of it.
func (s *Solver) inverseBranches(target r2.Vec) ([]armAngles, error) {
	const op = "inverse"
	if !finite(target.X) || !finite(target.Y) {
		return nil, domainErr(op, "non-finite target (%g, %g)", target.X, target.Y)
	}
	if err := s.checkPivots(op, target); err != nil {
		return nil, err
	}
	d := s.mech.Span
	if target.X < 0 || target.X > d {
		return nil, invalidErr(op, "target x=%g outside [0, %g]", target.X, d)
	}
	if target.X == 0 || target.X == d {
		return nil, domainErr(op, "target x=%g on a motor pivot line", target.X)
	}

	l1 := s.mech.ActiveLength
	l2 := s.mech.PassiveLength
	_, right := s.mech.Pivots()
	c := r2.Norm(target)
	e := r2.Norm(r2.Sub(right, target))

	// 0 < x < d here, so the principal arctangent is the right quadrant.
	radiusA := math.Atan(target.Y / target.X)
	radiusB := math.Atan(target.Y / (d - target.X))

	elbowA, err := triangleAngle(l2, c, l1)
	if err != nil {
		return nil, err
	}
	elbowB, err := triangleAngle(l2, e, l1)
	if err != nil {
		return nil, err
	}

	a1 := degrees(radiusA + elbowA)
	a2 := degrees(radiusA - elbowA)
	b1 := NormalizeDegrees(180 - degrees(elbowB) - degrees(radiusB))
	b2 := NormalizeDegrees(180 + degrees(elbowB) - degrees(radiusB))
	return []armAngles{{a1, b1}, {a1, b2}, {a2, b1}, {a2, b2}}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
