package workspace

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/cjeanneret/MBot/internal/logic/kinematics"
	"gonum.org/v1/gonum/spatial/r2"
)

var refMech = kinematics.Mechanism{Span: 600, ActiveLength: 300, PassiveLength: 300}

func TestSweep_InvalidStep(t *testing.T) {
	for _, step := range []float64{0, -1, 91, math.NaN()} {
		if _, err := Sweep(context.Background(), refMech, kinematics.Tolerances{}, step); err == nil {
			t.Errorf("step %v: expected error, got nil", step)
		}
	}
}

func TestSweep_InvalidMechanism(t *testing.T) {
	_, err := Sweep(context.Background(), kinematics.Mechanism{}, kinematics.Tolerances{}, 10)
	if err == nil {
		t.Error("expected error for zero mechanism, got nil")
	}
}

func TestSweep_PointsSatisfyInvariants(t *testing.T) {
	m, err := Sweep(context.Background(), refMech, kinematics.Tolerances{}, 5)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if m.Empty() {
		t.Fatal("expected reachable points")
	}
	if m.Tried != 72*72 {
		t.Errorf("Tried = %d, want %d", m.Tried, 72*72)
	}

	for _, s := range m.Samples {
		if s.Point.X < 0 || s.Point.X > refMech.Span {
			t.Fatalf("sample %+v outside span", s)
		}
		if s.Point.X < m.Min.X || s.Point.X > m.Max.X || s.Point.Y < m.Min.Y || s.Point.Y > m.Max.Y {
			t.Fatalf("sample %+v outside bounds %v-%v", s, m.Min, m.Max)
		}
	}
	if c := m.Coverage(); c <= 0 || c >= 1 {
		t.Errorf("Coverage() = %v, want in (0, 1)", c)
	}
}

func TestSweep_SamplesReproducible(t *testing.T) {
	m, err := Sweep(context.Background(), refMech, kinematics.Tolerances{}, 10)
	if err != nil {
		t.Fatal(err)
	}
	s, _ := kinematics.NewSolver(refMech, kinematics.Tolerances{})
	for _, sample := range m.Samples {
		p, err := s.SolveForward(sample.AngleA, sample.AngleB)
		if err != nil {
			t.Fatalf("sample (%v, %v) no longer solves: %v", sample.AngleA, sample.AngleB, err)
		}
		if !p.Matches(sample.Point, 1e-9) {
			t.Errorf("sample (%v, %v): %v != %v", sample.AngleA, sample.AngleB, p.EndEffector, sample.Point)
		}
	}
}

func TestSweep_ContainsKnownPose(t *testing.T) {
	m, err := Sweep(context.Background(), refMech, kinematics.Tolerances{}, 6)
	if err != nil {
		t.Fatal(err)
	}
	// (72, 108) lies on the 6° grid
	want := r2.Vec{X: 300, Y: 68.45565420453016}
	found := false
	for _, s := range m.Samples {
		if s.AngleA == 72 && s.AngleB == 108 {
			found = r2.Norm(r2.Sub(s.Point, want)) < 1e-6
		}
	}
	if !found {
		t.Error("expected (72, 108) in the workspace")
	}
}

func TestSweep_Unreachable(t *testing.T) {
	// passive arms far too short to ever meet
	mech := kinematics.Mechanism{Span: 600, ActiveLength: 10, PassiveLength: 10}
	m, err := Sweep(context.Background(), mech, kinematics.Tolerances{}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Empty() {
		t.Errorf("expected empty workspace, got %d samples", len(m.Samples))
	}
	if m.Min != (r2.Vec{}) || m.Max != (r2.Vec{}) {
		t.Errorf("empty workspace bounds = %v-%v, want zero", m.Min, m.Max)
	}
	if m.Coverage() != 0 {
		t.Errorf("Coverage() = %v, want 0", m.Coverage())
	}
}

func TestSweep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Sweep(ctx, refMech, kinematics.Tolerances{}, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
