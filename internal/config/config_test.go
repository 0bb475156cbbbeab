package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/MBot/internal/logic/kinematics"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	// Should not panic; error or success is OS-dependent, but must not crash.
	_ = ValidateConfigPath(long)
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		wantErr bool
	}{
		{"con fig.yaml", false},
		{"café.yaml", false},
	}
	for _, tc := range cases {
		path := filepath.Join(cfgDir, tc.name)
		err := ValidateConfigPath(path)
		if tc.wantErr && err == nil {
			t.Errorf("expected error for %q, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("unexpected error for %q: %v", tc.name, err)
		}
	}
}

func TestValidateConfigPath_DoubleTraversal(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Try to escape via ../../configs/ok.yaml; filepath.Clean resolves this
	// and the parent must still be "configs".
	path := filepath.Join(cfgDir, "../../configs/ok.yaml")
	err := ValidateConfigPath(path)
	// After Clean the parent may or may not be "configs" depending on resolution.
	// The important thing is it either succeeds with a valid parent or fails.
	_ = err
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
mechanism:
  span: 600
  active_length: 300
  passive_length: 300
tolerances:
  arm_length: 0.5
  effector: 0.01
left_motor:
  step_pin: 17
  dir_pin: 27
  enable_pin: 5
  steps_per_rev: 200
  microstepping: 16
  home_angle_deg: 90
right_motor:
  step_pin: 22
  dir_pin: 23
  enable_pin: 6
  steps_per_rev: 200
  microstepping: 16
  home_angle_deg: 90
workspace:
  step_deg: 1
render:
  width: 800
  height: 600
  scale: 0.8
defaults:
  move_speed_ms: 3
  debug_level: 2
  mock_gpio: true
`

const minimalYAML = `
mechanism:
  span: 600
  active_length: 300
  passive_length: 300
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Mechanism.Span != 600 {
		t.Errorf("mechanism.span = %v, want 600", cfg.Mechanism.Span)
	}
	if cfg.Tolerances.ArmLength != 0.5 {
		t.Errorf("tolerances.arm_length = %v, want 0.5", cfg.Tolerances.ArmLength)
	}
	if cfg.LeftMotor.Microstepping != 16 || cfg.RightMotor.StepPin != 22 {
		t.Errorf("motors = %+v / %+v", cfg.LeftMotor, cfg.RightMotor)
	}
	if cfg.LeftMotor.HomeAngleDeg != 90 {
		t.Errorf("left_motor.home_angle_deg = %v, want 90", cfg.LeftMotor.HomeAngleDeg)
	}
	if cfg.Workspace.StepDeg != 1 {
		t.Errorf("workspace.step_deg = %v, want 1", cfg.Workspace.StepDeg)
	}
	if cfg.Render.Width != 800 || cfg.Render.Height != 600 || cfg.Render.Scale != 0.8 {
		t.Errorf("render = %+v", cfg.Render)
	}
	if cfg.Defaults.DebugLevel != 2 || !cfg.Defaults.MockGPIO {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
}

func TestLoad_MissingMechanism(t *testing.T) {
	yaml := `
defaults:
  mock_gpio: true
`
	path := writeConfig(t, yaml)
	if _, err := Load(path); err == nil {
		t.Error("expected error for missing mechanism, got nil")
	}
}

func TestLoad_InvalidMechanism(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"negative_span", "span: -600\n  active_length: 300\n  passive_length: 300"},
		{"zero_active", "span: 600\n  active_length: 0\n  passive_length: 300"},
		{"missing_passive", "span: 600\n  active_length: 300"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, "mechanism:\n  "+tc.body+"\n")
			if _, err := Load(path); err == nil {
				t.Errorf("expected error for %s, got nil", tc.name)
			}
		})
	}
}

func TestLoad_NegativeTolerance(t *testing.T) {
	path := writeConfig(t, minimalYAML+`
tolerances:
  effector: -1
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for negative tolerance, got nil")
	}
}

func TestLoad_StepDegOutOfRange(t *testing.T) {
	cases := []struct {
		name string
		step float64
	}{
		{"negative", -1.0},
		{"over_90", 91.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			yaml := minimalYAML + `
workspace:
  step_deg: ` + formatFloat(tc.step)
			path := writeConfig(t, yaml)
			if _, err := Load(path); err == nil {
				t.Errorf("expected error for step_deg=%v, got nil", tc.step)
			}
		})
	}
}

func TestLoad_NegativeScale(t *testing.T) {
	path := writeConfig(t, minimalYAML+`
render:
  scale: -2
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for negative render.scale, got nil")
	}
}

func TestLoad_DebugLevelOutOfRange(t *testing.T) {
	path := writeConfig(t, minimalYAML+`
defaults:
  debug_level: 5
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for debug_level > 4, got nil")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Defaults.MoveSpeedMs != 2 {
		t.Errorf("move_speed_ms default = %d, want 2", cfg.Defaults.MoveSpeedMs)
	}
	if cfg.Workspace.StepDeg != 0.5 {
		t.Errorf("step_deg default = %v, want 0.5", cfg.Workspace.StepDeg)
	}
	if cfg.Render.Width != 1000 || cfg.Render.Height != 800 || cfg.Render.Scale != 1 {
		t.Errorf("render defaults = %+v, want 1000x800 scale 1", cfg.Render)
	}
	if cfg.LeftMotor.StepsPerRev != 200 || cfg.RightMotor.Microstepping != 1 {
		t.Errorf("motor defaults = %+v / %+v", cfg.LeftMotor, cfg.RightMotor)
	}
	if cfg.Tolerances != (TolerancesConfig{}) {
		t.Errorf("tolerances should stay zero (solver defaults), got %+v", cfg.Tolerances)
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "big.yaml")
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for empty config (mechanism missing), got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := minimalYAML + `
unknown_section:
  foo: bar
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "nonexistent.yaml")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestLoad_RepoDefaultConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "default.yaml"))
	if err != nil {
		t.Fatalf("configs/default.yaml: %v", err)
	}
	if err := cfg.MechanismParams().Validate(); err != nil {
		t.Errorf("default mechanism invalid: %v", err)
	}
	// the controller starts from the home angles, so they must be a pose
	s, err := kinematics.NewSolver(cfg.MechanismParams(), cfg.SolverTolerances())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SolveForward(cfg.LeftMotor.HomeAngleDeg, cfg.RightMotor.HomeAngleDeg); err != nil {
		t.Errorf("home angles (%v, %v): %v", cfg.LeftMotor.HomeAngleDeg, cfg.RightMotor.HomeAngleDeg, err)
	}
}

// ---------- Helper methods ----------

func TestConfig_MoveSpeed(t *testing.T) {
	cfg := &Config{Defaults: DefaultsConfig{MoveSpeedMs: 5}}
	got := cfg.MoveSpeed()
	want := 5 * time.Millisecond
	if got != want {
		t.Errorf("MoveSpeed() = %v, want %v", got, want)
	}
}

func TestConfig_MechanismParams(t *testing.T) {
	cfg := &Config{Mechanism: MechanismConfig{Span: 600, ActiveLength: 300, PassiveLength: 250}}
	m := cfg.MechanismParams()
	if m.Span != 600 || m.ActiveLength != 300 || m.PassiveLength != 250 {
		t.Errorf("MechanismParams() = %+v", m)
	}
}

func TestConfig_Tolerances(t *testing.T) {
	cfg := &Config{Tolerances: TolerancesConfig{ArmLength: 0.25}}
	tol := cfg.SolverTolerances()
	if tol.ArmLength != 0.25 || tol.Effector != 0 || tol.Clearance != 0 {
		t.Errorf("SolverTolerances() = %+v", tol)
	}
	if got := cfg.EffectorTolerance(); got != kinematics.DefaultEffectorTolerance {
		t.Errorf("EffectorTolerance() = %v, want default %v", got, kinematics.DefaultEffectorTolerance)
	}
	cfg.Tolerances.Effector = 0.5
	if got := cfg.EffectorTolerance(); got != 0.5 {
		t.Errorf("EffectorTolerance() = %v, want 0.5", got)
	}
}

// formatFloat is a test helper for embedding floats into YAML strings.
func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}
