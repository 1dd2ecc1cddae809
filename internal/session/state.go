package session

import "fmt"

// State is the phase of one generation as seen by its host.
type State string

const (
	// StateIdle means no generation is in progress.
	StateIdle State = "idle"
	// StateValidating means the request inputs are being checked.
	StateValidating State = "validating"
	// StateStreaming means the model response is arriving.
	StateStreaming State = "streaming"
	// StateReviewing means the final file list is available.
	StateReviewing State = "reviewing"
)

var transitions = map[State][]State{
	StateIdle:       {StateValidating},
	StateValidating: {StateStreaming, StateIdle},
	StateStreaming:  {StateReviewing, StateIdle},
	StateReviewing:  {StateIdle},
}

// CanTransition reports whether to may follow s.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Machine holds a State and rejects transitions the flow does not allow.
// The zero value is idle.
type Machine struct {
	state State
}

func (m *Machine) State() State {
	if m.state == "" {
		return StateIdle
	}
	return m.state
}

func (m *Machine) Transition(to State) error {
	from := m.State()
	if !from.CanTransition(to) {
		return fmt.Errorf("invalid session transition %s -> %s", from, to)
	}
	m.state = to
	return nil
}

// Reset returns to idle from any state.
func (m *Machine) Reset() {
	m.state = StateIdle
}
