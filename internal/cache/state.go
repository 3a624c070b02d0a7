package cache

import (
	"github.com/google/uuid"

	"maptiles/internal/decode"
)

// RequestID correlates an upstream fetch with its completion.
type RequestID = uuid.UUID

type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the in-memory lifecycle of one tile. Which fields are set depends
// on Status: RequestID for pending, Surface for ready, Reason for failed.
type State struct {
	Status    Status
	RequestID RequestID
	Surface   decode.Surface
	Reason    string
}

func Pending(id RequestID) State {
	return State{Status: StatusPending, RequestID: id}
}

func Ready(surface decode.Surface) State {
	return State{Status: StatusReady, Surface: surface}
}

func Failed(reason string) State {
	return State{Status: StatusFailed, Reason: reason}
}
