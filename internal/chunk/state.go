package chunk

// State is the downlink session state.
type State int

const (
	StateIdle State = iota
	StateAwaitingAcceptance
	StateFetching
	StateComplete
	StateAborted
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:               "idle",
	StateAwaitingAcceptance: "awaiting-acceptance",
	StateFetching:           "fetching",
	StateComplete:           "complete",
	StateAborted:            "aborted",
	StateFailed:             "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateAborted || s == StateFailed
}

// CanTransition reports whether from -> to is a legal session transition.
func CanTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateAwaitingAcceptance
	case StateAwaitingAcceptance:
		return to == StateFetching || to == StateAborted
	case StateFetching:
		return to == StateFetching || to == StateComplete || to == StateAborted || to == StateFailed
	}
	return false
}
