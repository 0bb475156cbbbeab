// Package workspace maps the area the end effector can reach by brute
// force: it runs the forward solve over a grid of motor angle pairs and
// keeps every effector position that passes validation.
package workspace

import (
	"context"
	"fmt"
	"math"

	"github.com/cjeanneret/MBot/internal/debug"
	"github.com/cjeanneret/MBot/internal/logic/kinematics"
	"gonum.org/v1/gonum/spatial/r2"
)

// DefaultStepDeg is the angle increment of the sweep (two samples per degree).
const DefaultStepDeg = 0.5

// Sample is one reachable effector position and the angles that produced it.
type Sample struct {
	AngleA float64
	AngleB float64
	Point  r2.Vec
}

// Map is the result of a sweep.
type Map struct {
	StepDeg  float64
	Tried    int // number of angle pairs solved
	Samples  []Sample
	Min, Max r2.Vec // bounding box of the reachable points
}

// Empty reports whether no angle pair produced a valid pose.
func (m *Map) Empty() bool {
	return len(m.Samples) == 0
}

// Coverage returns the share of angle pairs that produced a valid pose.
func (m *Map) Coverage() float64 {
	if m.Tried == 0 {
		return 0
	}
	return float64(len(m.Samples)) / float64(m.Tried)
}

// Sweep solves every angle pair (a, b) with a and b in [0, 360) spaced by
// stepDeg. It uses a private solver, so callers' poses are never touched.
// The sweep checks ctx once per row of angleA.
func Sweep(ctx context.Context, mech kinematics.Mechanism, tol kinematics.Tolerances, stepDeg float64) (*Map, error) {
	if math.IsNaN(stepDeg) || stepDeg <= 0 || stepDeg > 90 {
		return nil, fmt.Errorf("workspace step must be in (0, 90] degrees, got %g", stepDeg)
	}
	solver, err := kinematics.NewSolver(mech, tol)
	if err != nil {
		return nil, err
	}
	solver.SetQuiet(true)

	debug.Info("Sweeping workspace: step=%g°", stepDeg)

	// integer loop counters so that the grid does not drift
	n := int(math.Ceil(360.0 / stepDeg))
	m := &Map{
		StepDeg: stepDeg,
		Min:     r2.Vec{X: math.Inf(1), Y: math.Inf(1)},
		Max:     r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		a := float64(i) * stepDeg
		for j := 0; j < n; j++ {
			b := float64(j) * stepDeg
			m.Tried++
			pose, err := solver.SolveForward(a, b)
			if err != nil {
				continue
			}
			p := pose.EndEffector
			m.Samples = append(m.Samples, Sample{AngleA: a, AngleB: b, Point: p})
			m.Min = r2.Vec{X: math.Min(m.Min.X, p.X), Y: math.Min(m.Min.Y, p.Y)}
			m.Max = r2.Vec{X: math.Max(m.Max.X, p.X), Y: math.Max(m.Max.Y, p.Y)}
		}
	}

	if m.Empty() {
		m.Min, m.Max = r2.Vec{}, r2.Vec{}
	}
	debug.Info("Workspace: %d reachable of %d tried (%.1f%%)", len(m.Samples), m.Tried, m.Coverage()*100)
	return m, nil
}
