package guidance

import (
	"time"
)

type Status int64

const (
	NoSolve Status = iota
	Solving
	Solved
)

func (s Status) String() string {
	switch s {
	case Solving:
		return "solving"
	case Solved:
		return "solved"
	default:
		return "no_solve"
	}
}

// Mode is the operating mode reported by the guidance service
type Mode int64

const (
	UnknownMode Mode = iota
	SetupMode
	CalibratingMode
	OperatingMode
)

func (m Mode) String() string {
	switch m {
	case SetupMode:
		return "setup"
	case CalibratingMode:
		return "calibrating"
	case OperatingMode:
		return "operating"
	default:
		return "unknown"
	}
}

// Vector is a target offset in guidance units: X along the rotation axis,
// Y along the tilt axis (positive up).
type Vector struct {
	X float64
	Y float64
}

// State is the latest known guidance. Offset, Confidence and TargetAngle are
// only meaningful when Status is Solved.
type State struct {
	Status      Status
	Mode        Mode
	Offset      Vector
	Confidence  float64
	TargetAngle float64
	AltAz       bool

	// SlewLost is set by the client when an operating service has neither a
	// slew request nor a plate solution
	SlewLost bool
	// Retained is set by the poller when it republishes the last slew after
	// the service dropped it
	Retained bool

	UpdatedAt time.Time
	Connected bool
	Stale     bool
	Failures  int64
}

// Disconnected is the state published before the first successful poll
func Disconnected() State {
	return State{Status: NoSolve, Mode: UnknownMode}
}

// Age is how old the last successful poll is at now
func (s State) Age(now time.Time) time.Duration {
	if s.UpdatedAt.IsZero() {
		return 0
	}
	return now.Sub(s.UpdatedAt)
}
