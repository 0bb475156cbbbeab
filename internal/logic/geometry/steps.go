// Package geometry converts arm angles to stepper motor steps.
package geometry

import (
	"math"

	"github.com/cjeanneret/MBot/internal/config"
)

// StepsCalculator converts arm angles to motor step counts.
type StepsCalculator struct {
	leftStepsPerDegree  float64
	rightStepsPerDegree float64
}

// NewStepsCalculator creates a step calculator from configuration.
func NewStepsCalculator(cfg *config.Config) *StepsCalculator {
	leftMicrostepsPerRev := float64(cfg.LeftMotor.StepsPerRev * cfg.LeftMotor.Microstepping)
	rightMicrostepsPerRev := float64(cfg.RightMotor.StepsPerRev * cfg.RightMotor.Microstepping)

	return &StepsCalculator{
		leftStepsPerDegree:  leftMicrostepsPerRev / 360.0,
		rightStepsPerDegree: rightMicrostepsPerRev / 360.0,
	}
}

// LeftSteps converts a left arm rotation (degrees, CCW positive) to steps.
func (s *StepsCalculator) LeftSteps(angleDegrees float64) int {
	return int(math.Round(angleDegrees * s.leftStepsPerDegree))
}

// RightSteps converts a right arm rotation (degrees, CCW positive) to steps.
func (s *StepsCalculator) RightSteps(angleDegrees float64) int {
	return int(math.Round(angleDegrees * s.rightStepsPerDegree))
}

// LeftAngle converts left motor steps back to degrees.
func (s *StepsCalculator) LeftAngle(steps int) float64 {
	if s.leftStepsPerDegree == 0 {
		return 0
	}
	return float64(steps) / s.leftStepsPerDegree
}

// RightAngle converts right motor steps back to degrees.
func (s *StepsCalculator) RightAngle(steps int) float64 {
	if s.rightStepsPerDegree == 0 {
		return 0
	}
	return float64(steps) / s.rightStepsPerDegree
}

// ShortestDelta returns the rotation in (-180, 180] that takes an arm
// from one absolute angle to another.
func ShortestDelta(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}
