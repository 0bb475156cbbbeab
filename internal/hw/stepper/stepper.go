package stepper

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/MBot/internal/debug"
	"github.com/cjeanneret/MBot/internal/hw/gpio"
)

// Config holds the hardware configuration for one arm motor.
type Config struct {
	Name          string // "left" or "right", used in logs
	StepPin       int
	DirPin        int
	EnablePin     int // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	StepsPerRev   int
	Microstepping int
	StepDelay     time.Duration // delay per half-cycle of STEP pulse. Total step = 2*StepDelay.
}

// Stepper drives one A4988 and counts the steps it has issued.
// Positive steps turn the arm counter-clockwise (DIR=HIGH).
type Stepper struct {
	gpio     gpio.Driver
	cfg      Config
	delay    time.Duration // delay between STEP pulse half-cycles
	position int           // net microsteps since NewStepper
}

// NewStepper sets up the pins and enables the driver.
// cfg.StepDelay: if 0, defaults to 1ms.
func NewStepper(g gpio.Driver, cfg Config) (*Stepper, error) {
	if cfg.StepPin == cfg.DirPin {
		return nil, fmt.Errorf("stepper %s: step and dir pins must differ (both %d)", cfg.Name, cfg.StepPin)
	}
	if err := g.SetupPin(cfg.StepPin, gpio.Output); err != nil {
		return nil, fmt.Errorf("stepper %s: setup step pin: %w", cfg.Name, err)
	}
	if err := g.SetupPin(cfg.DirPin, gpio.Output); err != nil {
		return nil, fmt.Errorf("stepper %s: setup dir pin: %w", cfg.Name, err)
	}

	delay := cfg.StepDelay
	if delay <= 0 {
		delay = 1 * time.Millisecond
	}

	s := &Stepper{
		gpio:  g,
		cfg:   cfg,
		delay: delay,
	}

	// A4988 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		if err := g.SetupPin(cfg.EnablePin, gpio.Output); err != nil {
			return nil, fmt.Errorf("stepper %s: setup enable pin: %w", cfg.Name, err)
		}
		if err := g.WritePin(cfg.EnablePin, gpio.Low); err != nil { // enable by default
			return nil, err
		}
	}

	return s, nil
}

// Name returns the motor name from the config.
func (s *Stepper) Name() string { return s.cfg.Name }

// Position returns the net number of microsteps issued so far.
func (s *Stepper) Position() int { return s.position }

// MicrostepsPerRev is the number of STEP pulses for one full arm turn.
func (s *Stepper) MicrostepsPerRev() int {
	return s.cfg.StepsPerRev * s.cfg.Microstepping
}

// MoveSteps moves the motor by a number of steps (positive or negative).
// On cancellation the steps already issued stay counted in Position.
func (s *Stepper) MoveSteps(ctx context.Context, steps int) error {
	if steps == 0 {
		return nil
	}

	var dirLevel gpio.Level
	var direction string
	sign := 1
	if steps > 0 {
		dirLevel = gpio.High
		direction = "ccw"
	} else {
		dirLevel = gpio.Low
		direction = "cw"
		steps = -steps
		sign = -1
	}

	debug.Move(s.cfg.Name, steps, direction)

	if err := s.gpio.WritePin(s.cfg.DirPin, dirLevel); err != nil {
		return err
	}

	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("stepper %s: stopped after %d/%d steps: %w", s.cfg.Name, i, steps, err)
		}
		if err := s.stepPulse(); err != nil {
			return err
		}
		s.position += sign
	}
	return nil
}

func (s *Stepper) stepPulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.delay)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(s.delay)
	return nil
}

// Enable turns on the motor driver (A4988 ENABLE=LOW). The arm holds position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (A4988 ENABLE=HIGH). The arm freewheels.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
