package domain

import "fmt"

// SessionState is the lifecycle position of a quiz session.
type SessionState int32

const (
	StateNotStarted SessionState = iota
	StateInProgress
	StateSubmitting
	StateCompleted
	StateAbandoned
)

var stateNames = map[SessionState]string{
	StateNotStarted: "not_started",
	StateInProgress: "in_progress",
	StateSubmitting: "submitting",
	StateCompleted:  "completed",
	StateAbandoned:  "abandoned",
}

func (s SessionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Terminal reports whether no further transition is possible.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateAbandoned
}

func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SessionState) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}
