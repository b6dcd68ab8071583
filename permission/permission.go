// Package permission decides whether the camera may be used and drives the
// rationale flow that precedes a repeated request.
package permission

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// State is the current permission for the camera capability.
type State int

const (
	Unknown State = iota
	Granted
	DeniedSoft // may be asked again
	DeniedHard // only the operator can change it
)

func (s State) String() string {
	switch s {
	case Granted:
		return "granted"
	case DeniedSoft:
		return "denied_soft"
	case DeniedHard:
		return "denied_hard"
	default:
		return "unknown"
	}
}

// ErrDenied is returned when scanning cannot proceed for lack of permission.
var ErrDenied = errors.New("camera permission denied")

// DeniedError carries whether the refusal can be retried.
type DeniedError struct {
	Hard bool
}

func (e *DeniedError) Error() string {
	if e.Hard {
		return ErrDenied.Error() + " (hard)"
	}
	return ErrDenied.Error() + " (soft)"
}

// Is lets errors.Is match DeniedError against ErrDenied.
func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// Gate reports and requests the camera permission.
type Gate interface {
	// Check returns the current state without prompting.
	Check() State

	// Request asks for the permission and blocks until the user answers.
	Request(ctx context.Context) (bool, error)
}

// Notifier shows permission messages to the user.
type Notifier interface {
	// Rationale explains why the camera is needed. retry re-issues the
	// request; it may be called at most once.
	Rationale(msg string, retry func())

	// Denied tells the user the application cannot continue.
	Denied(msg string)
}

// Config holds configuration for the permission gate.
type Config struct {
	Type      string `yaml:"type" validate:"omitempty,oneof=device prompt granted"` // "device", "prompt", "granted"
	Rationale string `yaml:"rationale"`
	Denied    string `yaml:"denied"`
}

const (
	DefaultRationale = "The camera is needed to scan codes. Press retry to allow access."
	DefaultDenied    = "Camera access was refused. Scanning cannot continue."
)

// Messages returns the rationale and denial texts with defaults applied.
func (c Config) Messages() (rationale, denied string) {
	rationale, denied = c.Rationale, c.Denied
	if rationale == "" {
		rationale = DefaultRationale
	}
	if denied == "" {
		denied = DefaultDenied
	}
	return rationale, denied
}

// New creates a Gate for the camera device at path.
func New(cfg Config, path string, p *Prompt) (Gate, error) {
	switch cfg.Type {
	case "", "device":
		return NewDevice(path), nil
	case "prompt":
		if p == nil {
			return nil, errors.New("prompt gate needs a terminal")
		}
		return p, nil
	case "granted":
		return Static(Granted), nil
	default:
		return nil, fmt.Errorf("unknown permission type %q", cfg.Type)
	}
}

// Static is a Gate with a fixed answer.
type Static State

// Check implements Gate.Check.
func (s Static) Check() State { return State(s) }

// Request implements Gate.Request.
func (s Static) Request(ctx context.Context) (bool, error) {
	return State(s) == Granted, ctx.Err()
}
