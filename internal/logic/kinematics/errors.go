package kinematics

import (
	"errors"
	"fmt"
)

// Error kinds. Every solve failure wraps exactly one of them,
// so callers can tell them apart with errors.Is.
var (
	// ErrDomain: a trigonometric step got an argument outside its domain
	// (acos outside [-1, 1], division by zero, NaN).
	ErrDomain = errors.New("domain error")

	// ErrGeometricInvalid: the candidate is a well-formed number but the
	// linkage cannot take that pose.
	ErrGeometricInvalid = errors.New("geometrically invalid pose")
)

// SolveError describes why a solve was rejected.
type SolveError struct {
	Kind   error  // ErrDomain or ErrGeometricInvalid
	Op     string // "forward" or "inverse"
	Reason string
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("%s solve: %v: %s", e.Op, e.Kind, e.Reason)
}

func (e *SolveError) Unwrap() error {
	return e.Kind
}

func domainErr(op, format string, args ...interface{}) error {
	return &SolveError{Kind: ErrDomain, Op: op, Reason: fmt.Sprintf(format, args...)}
}

func invalidErr(op, format string, args ...interface{}) error {
	return &SolveError{Kind: ErrGeometricInvalid, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// KindName returns a short name for the kind of err: "domain", "geometric",
// or "" when err is not a solve failure.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrDomain):
		return "domain"
	case errors.Is(err, ErrGeometricInvalid):
		return "geometric"
	default:
		return ""
	}
}
