package manager

// State is the lifecycle state of the managed backend.
type State int32

const (
	StateUninitialized State = iota
	StateStarting
	StateReady
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// States lists every state in lifecycle order.
var States = []State{StateUninitialized, StateStarting, StateReady, StateShuttingDown, StateStopped}
