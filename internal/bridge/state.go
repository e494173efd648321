package bridge

import "sync/atomic"

// State is the lifecycle of a Bridge.
type State int32

const (
	Uninitialized State = iota
	// Connected: the endpoint is bound but no peer has been heard yet.
	Connected
	// Running: a peer has announced itself; telemetry flows.
	Running
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Connected:
		return "connected"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

type stateBox struct {
	v atomic.Int32
}

func (b *stateBox) load() State {
	return State(b.v.Load())
}

// advance moves from to to and reports whether this call made the change.
func (b *stateBox) advance(from, to State) bool {
	return b.v.CompareAndSwap(int32(from), int32(to))
}

// swap stores s and returns the previous state.
func (b *stateBox) swap(s State) State {
	return State(b.v.Swap(int32(s)))
}
