package config

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/cjeanneret/MBot/internal/logic/kinematics"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes is the largest config file Load accepts.
const MaxConfigFileBytes = 64 << 10

// MechanismConfig is the fixed linkage geometry (same length unit everywhere, mm).
type MechanismConfig struct {
	Span          float64 `yaml:"span"`           // distance between the motor pivots
	ActiveLength  float64 `yaml:"active_length"`  // motor arm length
	PassiveLength float64 `yaml:"passive_length"` // passive arm length
}

// TolerancesConfig overrides the solver's numeric thresholds. 0 = default.
type TolerancesConfig struct {
	ArmLength   float64 `yaml:"arm_length"`  // max passive arm length error
	Effector    float64 `yaml:"effector"`    // inverse target vs. recomputed effector
	Singularity float64 `yaml:"singularity"` // min distance from collinear passive arms
	Clearance   float64 `yaml:"clearance"`   // min effector gap to a pivot or a joint's height
}

// StepperConfig holds the configuration for a stepper motor.
type StepperConfig struct {
	StepPin       int     `yaml:"step_pin"`
	DirPin        int     `yaml:"dir_pin"`
	EnablePin     int     `yaml:"enable_pin"` // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
	StepsPerRev   int     `yaml:"steps_per_rev"`
	Microstepping int     `yaml:"microstepping"`
	HomeAngleDeg  float64 `yaml:"home_angle_deg"` // arm angle at power-up
}

// WorkspaceConfig controls the reachable-workspace sweep.
type WorkspaceConfig struct {
	StepDeg float64 `yaml:"step_deg"` // angle increment (default 0.5°)
}

// RenderConfig controls the PNG output and the browser canvas.
type RenderConfig struct {
	Width  int     `yaml:"width"`  // pixels
	Height int     `yaml:"height"` // pixels
	Scale  float64 `yaml:"scale"`  // pixels per length unit
}

// DefaultsConfig contains generic parameters (speed, etc.).
type DefaultsConfig struct {
	MoveSpeedMs int  `yaml:"move_speed_ms"` // delay between motor steps
	DebugLevel  int  `yaml:"debug_level"`   // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO    bool `yaml:"mock_gpio"`     // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Mechanism  MechanismConfig  `yaml:"mechanism"`
	Tolerances TolerancesConfig `yaml:"tolerances"`
	LeftMotor  StepperConfig    `yaml:"left_motor"`
	RightMotor StepperConfig    `yaml:"right_motor"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Render     RenderConfig     `yaml:"render"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
}

// ValidateConfigPath checks that path names a .yaml file directly inside a
// "configs" directory, without traversal.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config file must have .yaml extension: %s", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must be inside a configs/ directory: %s", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file larger than %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	// Basic validation
	if err := cfg.MechanismParams().Validate(); err != nil {
		return fmt.Errorf("mechanism: %w", err)
	}
	if cfg.Tolerances.ArmLength < 0 || cfg.Tolerances.Effector < 0 || cfg.Tolerances.Singularity < 0 || cfg.Tolerances.Clearance < 0 {
		return fmt.Errorf("tolerances must be >= 0")
	}

	if cfg.Workspace.StepDeg == 0 {
		cfg.Workspace.StepDeg = 0.5 // two samples per degree
	}
	if math.IsNaN(cfg.Workspace.StepDeg) || cfg.Workspace.StepDeg < 0 || cfg.Workspace.StepDeg > 90 {
		return fmt.Errorf("workspace.step_deg must be in (0, 90], got %.2f", cfg.Workspace.StepDeg)
	}

	if cfg.Render.Width <= 0 {
		cfg.Render.Width = 1000
	}
	if cfg.Render.Height <= 0 {
		cfg.Render.Height = 800
	}
	if cfg.Render.Scale < 0 {
		return fmt.Errorf("render.scale must be > 0, got %.2f", cfg.Render.Scale)
	}
	if cfg.Render.Scale == 0 {
		cfg.Render.Scale = 1
	}

	if cfg.Defaults.MoveSpeedMs <= 0 {
		cfg.Defaults.MoveSpeedMs = 2 // reasonable default
	}
	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}

	for _, m := range []*StepperConfig{&cfg.LeftMotor, &cfg.RightMotor} {
		if m.StepsPerRev <= 0 {
			m.StepsPerRev = 200
		}
		if m.Microstepping <= 0 {
			m.Microstepping = 1
		}
	}
	return nil
}

// MechanismParams returns the mechanism for the solver.
func (c *Config) MechanismParams() kinematics.Mechanism {
	return kinematics.Mechanism{
		Span:          c.Mechanism.Span,
		ActiveLength:  c.Mechanism.ActiveLength,
		PassiveLength: c.Mechanism.PassiveLength,
	}
}

// SolverTolerances returns the solver thresholds; zero fields use the defaults.
func (c *Config) SolverTolerances() kinematics.Tolerances {
	return kinematics.Tolerances{
		ArmLength:   c.Tolerances.ArmLength,
		Effector:    c.Tolerances.Effector,
		Singularity: c.Tolerances.Singularity,
		Clearance:   c.Tolerances.Clearance,
	}
}

// EffectorTolerance returns the inverse-solve match tolerance.
func (c *Config) EffectorTolerance() float64 {
	if c.Tolerances.Effector > 0 {
		return c.Tolerances.Effector
	}
	return kinematics.DefaultEffectorTolerance
}

// MoveSpeed returns the duration between two motor steps.
func (c *Config) MoveSpeed() time.Duration {
	return time.Duration(c.Defaults.MoveSpeedMs) * time.Millisecond
}
