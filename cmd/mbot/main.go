package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/cjeanneret/MBot/internal/config"
	"github.com/cjeanneret/MBot/internal/debug"
	"github.com/cjeanneret/MBot/internal/hw/gpio"
	"github.com/cjeanneret/MBot/internal/hw/stepper"
	"github.com/cjeanneret/MBot/internal/logic/geometry"
	"github.com/cjeanneret/MBot/internal/logic/kinematics"
	"github.com/cjeanneret/MBot/internal/logic/motion"
	"github.com/cjeanneret/MBot/internal/logic/workspace"
	"github.com/cjeanneret/MBot/internal/render"
	"github.com/cjeanneret/MBot/internal/web"
	"gonum.org/v1/gonum/spatial/r2"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	forward := &pairFlag{}
	flag.Var(forward, "forward", "solve forward for motor angles A,B in degrees (e.g. 72,108)")
	inverse := &pairFlag{}
	flag.Var(inverse, "inverse", "solve inverse for effector target X,Y (e.g. 300,0)")
	pngPath := flag.String("png", "", "draw the solved pose over the workspace to this PNG file")
	workspacePath := flag.String("workspace", "", "draw the reachable workspace to this PNG file")
	drive := flag.Bool("drive", false, "move the motors to each solved pose")
	debugLevel := flag.Int("debug_level", -1, "override config debug level (0-4)")
	flag.Parse()

	if err := validateFlags(forward, inverse, *pngPath, *drive, webPort.port(), *debugLevel); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if *debugLevel >= 0 {
		cfg.Defaults.DebugLevel = *debugLevel
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.PrintStruct("Mechanism", cfg.Mechanism)

	debug.Step(1, "Creating solver")
	solver, err := kinematics.NewSolver(cfg.MechanismParams(), cfg.SolverTolerances())
	if err != nil {
		log.Fatalf("create solver failed: %v", err)
	}

	var driveFn web.DriveFunc
	if *drive {
		debug.Step(2, "Initializing motors")
		ctrl, closeHW, err := newMotionController(cfg)
		if err != nil {
			log.Fatalf("init motors failed: %v", err)
		}
		defer closeHW()
		driveFn = driveAndReport(ctrl)
	}

	if *workspacePath != "" {
		if err := renderScene(ctx, cfg, nil, *workspacePath); err != nil {
			log.Fatalf("workspace: %v", err)
		}
		debug.Info("Workspace written to %s", *workspacePath)
	}

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		handlers, err := web.NewHandlers(broadcaster, solver, web.Settings{
			Width:             cfg.Render.Width,
			Height:            cfg.Render.Height,
			Scale:             cfg.Render.Scale,
			EffectorTolerance: cfg.EffectorTolerance(),
			WorkspaceStepDeg:  cfg.Workspace.StepDeg,
		}, driveFn, web.StaticFS())
		if err != nil {
			log.Fatalf("web: %v", err)
		}
		srv := web.NewServer(webAddr, handlers)
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	if !forward.set && !inverse.set {
		return
	}

	pose, err := solveOnce(solver, forward, inverse)
	if err != nil {
		log.Fatalf("solve failed (%s): %v", kindOrError(err), err)
	}
	var target *r2.Vec
	if inverse.set {
		target = &r2.Vec{X: inverse.a, Y: inverse.b}
	}
	fmt.Println(formatPose(pose, target, cfg.EffectorTolerance()))

	if *pngPath != "" {
		if err := renderScene(ctx, cfg, &pose, *pngPath); err != nil {
			log.Fatalf("png: %v", err)
		}
		debug.Info("Pose written to %s", *pngPath)
	}

	if driveFn != nil {
		if err := driveFn(ctx, pose); err != nil {
			log.Fatalf("move failed: %v", err)
		}
	}
}

// newMotionController builds the GPIO driver, both arm motors and the
// controller on top. The returned func lets the arms freewheel and closes
// the GPIO driver.
func newMotionController(cfg *config.Config) (*motion.Controller, func(), error) {
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return nil, nil, err
	}
	return newMotionControllerOn(cfg, gpioDriver)
}

func newMotionControllerOn(cfg *config.Config, gpioDriver gpio.Driver) (*motion.Controller, func(), error) {
	closeGPIO := func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}

	stepDelay := cfg.MoveSpeed() / 2
	newMotor := func(name string, sc config.StepperConfig) (*stepper.Stepper, error) {
		debug.PrintStruct(name+" motor config", sc)
		return stepper.NewStepper(gpioDriver, stepper.Config{
			Name:          name,
			StepPin:       sc.StepPin,
			DirPin:        sc.DirPin,
			EnablePin:     sc.EnablePin,
			StepsPerRev:   sc.StepsPerRev,
			Microstepping: sc.Microstepping,
			StepDelay:     stepDelay,
		})
	}
	left, err := newMotor("left", cfg.LeftMotor)
	if err != nil {
		closeGPIO()
		return nil, nil, err
	}
	right, err := newMotor("right", cfg.RightMotor)
	if err != nil {
		closeGPIO()
		return nil, nil, err
	}

	ctrl := motion.NewController(left, right, geometry.NewStepsCalculator(cfg),
		cfg.LeftMotor.HomeAngleDeg, cfg.RightMotor.HomeAngleDeg)
	if err := ctrl.EnableMotors(); err != nil {
		closeGPIO()
		return nil, nil, fmt.Errorf("enable motors: %w", err)
	}
	a, b := ctrl.Angles()
	debug.Info("Arms at home: A=%.2f° B=%.2f°", a, b)

	closeHW := func() {
		if err := ctrl.DisableMotors(); err != nil {
			log.Printf("disabling motors failed: %v", err)
		}
		closeGPIO()
	}
	return ctrl, closeHW, nil
}

// driveAndReport moves the arms and logs where the step counters put them.
func driveAndReport(ctrl *motion.Controller) web.DriveFunc {
	return func(ctx context.Context, pose kinematics.Pose) error {
		err := ctrl.MoveTo(ctx, pose)
		a, b := ctrl.Angles()
		debug.Live("Arms at A=%.2f° B=%.2f°", a, b)
		return err
	}
}

// solveOnce runs the single forward or inverse solve asked for on the command line.
func solveOnce(s *kinematics.Solver, forward, inverse *pairFlag) (kinematics.Pose, error) {
	switch {
	case forward.set:
		return s.SolveForward(forward.a, forward.b)
	case inverse.set:
		return s.SolveInverse(r2.Vec{X: inverse.a, Y: inverse.b})
	}
	return kinematics.Pose{}, errors.New("nothing to solve")
}

// renderScene sweeps the workspace and writes it, with pose on top if not nil.
func renderScene(ctx context.Context, cfg *config.Config, pose *kinematics.Pose, path string) error {
	mech := cfg.MechanismParams()
	m, err := workspace.Sweep(ctx, mech, cfg.SolverTolerances(), cfg.Workspace.StepDeg)
	if err != nil {
		return err
	}
	view, err := render.NewView(mech.Span, cfg.Render.Width, cfg.Render.Height, cfg.Render.Scale)
	if err != nil {
		return err
	}
	return render.Scene(view, mech, m, pose).WritePNG(path)
}

func kindOrError(err error) string {
	if k := kinematics.KindName(err); k != "" {
		return k
	}
	return "error"
}

// formatPose is the one-line result printed on stdout.
func formatPose(p kinematics.Pose, target *r2.Vec, tol float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A=%.4f° B=%.4f° effector=(%.4f, %.4f) jointA=(%.4f, %.4f) jointB=(%.4f, %.4f) gamma=%.4f° delta=%.4f°",
		p.AngleA, p.AngleB, p.EndEffector.X, p.EndEffector.Y,
		p.JointA.X, p.JointA.Y, p.JointB.X, p.JointB.Y, p.Gamma, p.Delta)
	if target != nil {
		fmt.Fprintf(&b, " matches=%t", p.Matches(*target, tol))
	}
	return b.String()
}

// validateFlags checks flag combinations before anything is loaded.
func validateFlags(forward, inverse *pairFlag, pngPath string, drive bool, webPort, debugLevel int) error {
	if forward.set && inverse.set {
		return errors.New("-forward and -inverse are mutually exclusive")
	}
	solving := forward.set || inverse.set
	if webPort > 0 && solving {
		return errors.New("-web cannot be combined with -forward or -inverse")
	}
	if pngPath != "" && !solving {
		return errors.New("-png needs -forward or -inverse")
	}
	if drive && !solving && webPort == 0 {
		return errors.New("-drive needs -forward, -inverse or -web")
	}
	if debugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", debugLevel)
	}
	return nil
}

// pairFlag implements flag.Value for "A,B" number pairs.
type pairFlag struct {
	a, b float64
	set  bool
}

func (p *pairFlag) String() string {
	if p == nil || !p.set {
		return ""
	}
	return strconv.FormatFloat(p.a, 'g', -1, 64) + "," + strconv.FormatFloat(p.b, 'g', -1, 64)
}

func (p *pairFlag) Set(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return fmt.Errorf("want two comma-separated numbers, got %q", s)
	}
	var vals [2]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("value must be finite, got %q", part)
		}
		vals[i] = v
	}
	p.a, p.b, p.set = vals[0], vals[1], true
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
