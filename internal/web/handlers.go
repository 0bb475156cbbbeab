package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/MBot/internal/debug"
	"github.com/cjeanneret/MBot/internal/logic/kinematics"
	"github.com/cjeanneret/MBot/internal/logic/workspace"
	"github.com/cjeanneret/MBot/internal/render"
	"github.com/gorilla/websocket"
	"gonum.org/v1/gonum/spatial/r2"
)

// MaxBodyBytes bounds request bodies and WebSocket messages.
const MaxBodyBytes = 1 << 20

// DriveFunc moves the motors to a solved pose.
// It is called from a goroutine; only the latest pending pose is driven.
type DriveFunc func(ctx context.Context, pose kinematics.Pose) error

// Settings is what GET /config returns to the page.
type Settings struct {
	Span              float64 `json:"span"`
	ActiveLength      float64 `json:"active_length"`
	PassiveLength     float64 `json:"passive_length"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	Scale             float64 `json:"scale"`
	EffectorTolerance float64 `json:"effector_tolerance"`
	WorkspaceStepDeg  float64 `json:"workspace_step_deg"`
}

// Point is a 2D point in JSON.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PoseResponse is the JSON form of a kinematics.Pose.
type PoseResponse struct {
	AngleA      float64 `json:"angle_a"`
	AngleB      float64 `json:"angle_b"`
	Gamma       float64 `json:"gamma"`
	Delta       float64 `json:"delta"`
	EndAngle    float64 `json:"end_angle"`
	JointA      Point   `json:"joint_a"`
	JointB      Point   `json:"joint_b"`
	EndEffector Point   `json:"end_effector"`
	Matches     *bool   `json:"matches,omitempty"` // inverse solves only
}

// ErrorResponse is returned for rejected solves and bad input.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"` // "domain", "geometric" or "input"
}

// ForwardRequest is the POST /solve/forward body.
type ForwardRequest struct {
	AngleA *float64 `json:"angle_a"`
	AngleB *float64 `json:"angle_b"`
}

// InverseRequest is the POST /solve/inverse body, and a WebSocket message
// (there in canvas pixels).
type InverseRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Drive       DriveFunc

	solverMu sync.Mutex
	solver   *kinematics.Solver

	settings Settings
	view     *render.View
	staticFS fs.FS
	upgrader websocket.Upgrader

	wsOnce sync.Once
	wsMap  *workspace.Map
	wsPNG  []byte
	wsErr  error

	runningMu sync.Mutex
	running   bool
	pending   *kinematics.Pose
	driveCtx  context.Context // cancels moves when the server stops
}

// NewHandlers creates handlers around one solver. drive may be nil (no motors).
func NewHandlers(broadcaster *StatusBroadcaster, solver *kinematics.Solver, settings Settings, drive DriveFunc, staticFS fs.FS) (*Handlers, error) {
	if solver == nil {
		return nil, fmt.Errorf("web: solver is nil")
	}
	view, err := render.NewView(solver.Mechanism().Span, settings.Width, settings.Height, settings.Scale)
	if err != nil {
		return nil, fmt.Errorf("web: %w", err)
	}
	m := solver.Mechanism()
	settings.Span, settings.ActiveLength, settings.PassiveLength = m.Span, m.ActiveLength, m.PassiveLength
	settings.Scale = view.Scale
	if settings.EffectorTolerance <= 0 {
		settings.EffectorTolerance = kinematics.DefaultEffectorTolerance
	}
	if settings.WorkspaceStepDeg <= 0 {
		settings.WorkspaceStepDeg = workspace.DefaultStepDeg
	}

	return &Handlers{
		Broadcaster: broadcaster,
		Drive:       drive,
		solver:      solver,
		settings:    settings,
		view:        view,
		staticFS:    staticFS,
		driveCtx:    context.Background(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // served on the local network only
			},
		},
	}, nil
}

// NewPoseResponse converts a pose to its JSON form.
func NewPoseResponse(p kinematics.Pose) PoseResponse {
	return PoseResponse{
		AngleA:      p.AngleA,
		AngleB:      p.AngleB,
		Gamma:       p.Gamma,
		Delta:       p.Delta,
		EndAngle:    p.EndAngle(),
		JointA:      Point{p.JointA.X, p.JointA.Y},
		JointB:      Point{p.JointB.X, p.JointB.Y},
		EndEffector: Point{p.EndEffector.X, p.EndEffector.Y},
	}
}

func errorResponse(err error) ErrorResponse {
	kind := kinematics.KindName(err)
	if kind == "" {
		kind = "input"
	}
	return ErrorResponse{Error: err.Error(), Kind: kind}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Kind: "input"})
}

// decodeBody reads a size-limited JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// HandleConfig returns the mechanism and render settings as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandlePose returns the current pose, 404 before the first successful solve.
func (h *Handlers) HandlePose(w http.ResponseWriter, r *http.Request) {
	h.solverMu.Lock()
	pose, ok := h.solver.Pose()
	h.solverMu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "no pose yet")
		return
	}
	writeJSON(w, http.StatusOK, NewPoseResponse(pose))
}

// HandleForward handles POST /solve/forward.
func (h *Handlers) HandleForward(w http.ResponseWriter, r *http.Request) {
	var req ForwardRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AngleA == nil || req.AngleB == nil {
		writeError(w, http.StatusBadRequest, "angle_a and angle_b are required")
		return
	}

	pose, err := h.solveForward(*req.AngleA, *req.AngleB)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse(err))
		return
	}
	writeJSON(w, http.StatusOK, NewPoseResponse(pose))
}

// HandleInverse handles POST /solve/inverse. The target is in solver
// coordinates.
func (h *Handlers) HandleInverse(w http.ResponseWriter, r *http.Request) {
	var req InverseRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.X == nil || req.Y == nil {
		writeError(w, http.StatusBadRequest, "x and y are required")
		return
	}

	resp, err := h.solveInverse(r2.Vec{X: *req.X, Y: *req.Y})
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse(err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// solveForward and solveInverse announce the pose before releasing the
// solver, so broadcasts and moves follow commit order.
func (h *Handlers) solveForward(angleA, angleB float64) (kinematics.Pose, error) {
	h.solverMu.Lock()
	defer h.solverMu.Unlock()
	pose, err := h.solver.SolveForward(angleA, angleB)
	if err != nil {
		return pose, err
	}
	h.committed(pose)
	return pose, nil
}

func (h *Handlers) solveInverse(target r2.Vec) (PoseResponse, error) {
	h.solverMu.Lock()
	pose, err := h.solver.SolveInverse(target)
	if err != nil {
		h.solverMu.Unlock()
		return PoseResponse{}, err
	}
	h.committed(pose)
	h.solverMu.Unlock()

	resp := NewPoseResponse(pose)
	matches := pose.Matches(target, h.settings.EffectorTolerance)
	resp.Matches = &matches
	return resp, nil
}

// committed announces a new pose and hands it to the motors.
// Called with solverMu held; it must not block.
func (h *Handlers) committed(pose kinematics.Pose) {
	if h.Broadcaster != nil {
		h.Broadcaster.BroadcastPose(NewPoseResponse(pose))
	}
	h.drive(pose)
}

// BindContext ties the motors to ctx: once it is done the running move is
// cancelled and pending poses are dropped.
func (h *Handlers) BindContext(ctx context.Context) {
	h.runningMu.Lock()
	h.driveCtx = ctx
	h.runningMu.Unlock()
}

// drive queues pose for the motors. While a move is running newer poses
// replace the pending one, so a drag ends at its last point.
func (h *Handlers) drive(pose kinematics.Pose) {
	if h.Drive == nil {
		return
	}

	h.runningMu.Lock()
	h.pending = &pose
	if h.running {
		h.runningMu.Unlock()
		return
	}
	h.running = true
	h.runningMu.Unlock()

	go func() {
		for {
			h.runningMu.Lock()
			ctx := h.driveCtx
			next := h.pending
			h.pending = nil
			if next == nil || ctx.Err() != nil {
				h.running = false
				h.runningMu.Unlock()
				return
			}
			h.runningMu.Unlock()

			if err := h.Drive(ctx, *next); err != nil {
				if h.Broadcaster != nil {
					h.Broadcaster.Broadcast("error", "Move failed: "+err.Error())
				}
				log.Printf("move failed: %v", err)
			}
		}
	}()
}

// workspaceRaster sweeps the workspace once and caches the map and its PNG.
func (h *Handlers) workspaceRaster() (*workspace.Map, []byte, error) {
	h.wsOnce.Do(func() {
		m, err := workspace.Sweep(context.Background(), h.solver.Mechanism(), h.solver.Tolerances(), h.settings.WorkspaceStepDeg)
		if err != nil {
			h.wsErr = err
			return
		}
		var buf bytes.Buffer
		if err := render.Scene(h.view, h.solver.Mechanism(), m, nil).EncodePNG(&buf); err != nil {
			h.wsErr = err
			return
		}
		h.wsMap, h.wsPNG = m, buf.Bytes()
	})
	return h.wsMap, h.wsPNG, h.wsErr
}

// HandleWorkspacePNG serves the cached workspace raster.
func (h *Handlers) HandleWorkspacePNG(w http.ResponseWriter, r *http.Request) {
	_, data, err := h.workspaceRaster()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

// HandlePosePNG draws the current pose (if any) over the workspace raster.
func (h *Handlers) HandlePosePNG(w http.ResponseWriter, r *http.Request) {
	m, _, err := h.workspaceRaster()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.solverMu.Lock()
	pose, ok := h.solver.Pose()
	h.solverMu.Unlock()
	var pp *kinematics.Pose
	if ok {
		pp = &pose
	}

	var buf bytes.Buffer
	if err := render.Scene(h.view, h.solver.Mechanism(), m, pp).EncodePNG(&buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// WSReply answers one drag message: either a pose or an error.
type WSReply struct {
	Pose  *PoseResponse  `json:"pose,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// HandleWebSocket accepts canvas points ({"x","y"} in pixels) and answers
// each with the solved pose or the reason it was rejected.
// A rejected point leaves the previous pose in place.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Verbose("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(MaxBodyBytes)
	debug.Verbose("WebSocket client connected from %s", r.RemoteAddr)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				debug.Verbose("WebSocket read error: %v", err)
			}
			return
		}

		reply := h.handleDrag(message)
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(reply); err != nil {
			debug.Verbose("WebSocket write error: %v", err)
			return
		}
	}
}

func (h *Handlers) handleDrag(message []byte) WSReply {
	var req InverseRequest
	if err := json.Unmarshal(message, &req); err != nil {
		return WSReply{Error: &ErrorResponse{Error: "invalid JSON: " + err.Error(), Kind: "input"}}
	}
	if req.X == nil || req.Y == nil {
		return WSReply{Error: &ErrorResponse{Error: "x and y are required", Kind: "input"}}
	}

	target := h.view.ToSolver(r2.Vec{X: *req.X, Y: *req.Y})
	resp, err := h.solveInverse(target)
	if err != nil {
		e := errorResponse(err)
		return WSReply{Error: &e}
	}
	return WSReply{Pose: &resp}
}

// HandleStatusStream handles GET /status/stream for SSE.
// 404 when the handlers were built without a broadcaster.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	if h.Broadcaster == nil {
		http.Error(w, "no status stream", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
