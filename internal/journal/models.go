package journal

import (
	"strings"
	"time"
)

// State tracks a scan file's progress through the pipeline. States move
// strictly left to right; done, error, and stalled are terminal.
type State string

const (
	StateClaimed   State = "claimed"
	StateDecoding  State = "decoding"
	StateResolving State = "resolving"
	StatePrinting  State = "printing"
	StateDone      State = "done"
	StateError     State = "error"
	StateStalled   State = "stalled"
)

var allStates = []State{
	StateClaimed,
	StateDecoding,
	StateResolving,
	StatePrinting,
	StateDone,
	StateError,
	StateStalled,
}

var stateSet = func() map[State]struct{} {
	set := make(map[State]struct{}, len(allStates))
	for _, state := range allStates {
		set[state] = struct{}{}
	}
	return set
}()

// AllStates returns the ordered list of known states.
func AllStates() []State {
	cp := make([]State, len(allStates))
	copy(cp, allStates)
	return cp
}

// ParseState converts a string into a known State.
func ParseState(value string) (State, bool) {
	normalized := State(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stateSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a state ends the pipeline for a file.
func (s State) IsTerminal() bool {
	switch s {
	case StateDone, StateError, StateStalled:
		return true
	default:
		return false
	}
}

// Job is one scan file's journal row.
type Job struct {
	ID           int64
	Site         string
	ScanFile     string
	RequestID    string
	PrintID      string
	Printer      string
	Copies       int
	SpoolerJobID string
	State        State
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Summary aggregates job counts for the status surface.
type Summary struct {
	Total   int
	Active  int
	Done    int
	Error   int
	Stalled int
	BySite  map[string]int
}
