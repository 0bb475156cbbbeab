package motion

import (
	"context"
	"fmt"
	"sync"

	"github.com/cjeanneret/MBot/internal/debug"
	"github.com/cjeanneret/MBot/internal/hw/stepper"
	"github.com/cjeanneret/MBot/internal/logic/geometry"
	"github.com/cjeanneret/MBot/internal/logic/kinematics"
)

// Controller turns solved poses into arm rotations on the two motors.
// It sits between the solver (pure geometry) and the steppers (GPIO).
//
// The arm angles are derived from the step counters, so rounding to whole
// microsteps never accumulates across moves.
type Controller struct {
	mu    sync.Mutex
	left  *stepper.Stepper
	right *stepper.Stepper
	steps *geometry.StepsCalculator

	homeA, homeB float64 // arm angles when the step counters were zero
}

// NewController wires two motors. homeA/homeB are the arm angles (degrees)
// at power-up, when both step counters are zero.
func NewController(left, right *stepper.Stepper, steps *geometry.StepsCalculator, homeA, homeB float64) *Controller {
	return &Controller{
		left:  left,
		right: right,
		steps: steps,
		homeA: kinematics.NormalizeDegrees(homeA),
		homeB: kinematics.NormalizeDegrees(homeB),
	}
}

// Angles returns the current arm angles in degrees, normalized to [0, 360).
func (c *Controller) Angles() (angleA, angleB float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.angles()
}

func (c *Controller) angles() (float64, float64) {
	a := kinematics.NormalizeDegrees(c.homeA + c.steps.LeftAngle(c.left.Position()))
	b := kinematics.NormalizeDegrees(c.homeB + c.steps.RightAngle(c.right.Position()))
	return a, b
}

// MoveTo drives both arms to the pose's motor angles.
func (c *Controller) MoveTo(ctx context.Context, pose kinematics.Pose) error {
	return c.MoveArms(ctx, pose.AngleA, pose.AngleB)
}

// MoveArms rotates each arm the short way round to the target angles.
// The motors move one after the other.
func (c *Controller) MoveArms(ctx context.Context, angleA, angleB float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	curA, curB := c.angles()
	leftSteps := c.steps.LeftSteps(geometry.ShortestDelta(curA, angleA))
	rightSteps := c.steps.RightSteps(geometry.ShortestDelta(curB, angleB))

	debug.Live("Move arms: A %.2f° -> %.2f° (%d steps), B %.2f° -> %.2f° (%d steps)",
		curA, angleA, leftSteps, curB, angleB, rightSteps)

	if err := c.left.MoveSteps(ctx, leftSteps); err != nil {
		return fmt.Errorf("move left arm: %w", err)
	}
	if err := c.right.MoveSteps(ctx, rightSteps); err != nil {
		return fmt.Errorf("move right arm: %w", err)
	}
	return nil
}

// EnableMotors gives both arms holding torque.
func (c *Controller) EnableMotors() error {
	if err := c.left.Enable(); err != nil {
		return err
	}
	return c.right.Enable()
}

// DisableMotors lets both arms freewheel.
func (c *Controller) DisableMotors() error {
	if err := c.left.Disable(); err != nil {
		return err
	}
	return c.right.Disable()
}
