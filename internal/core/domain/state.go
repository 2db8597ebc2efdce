package domain

// RowState is the lifecycle state of one row inside the processor.
type RowState string

const (
	StatePending       RowState = "pending"
	StateInvalid       RowState = "invalid"
	StateExists        RowState = "exists"
	StateCreateAttempt RowState = "create_attempting"
	StateCreated       RowState = "created"
	StateCreateFailed  RowState = "create_failed"
	StateEnrolling     RowState = "enrolling"
	StateTerminal      RowState = "terminal"
)

// validRowTransitions defines the allowed state machine transitions. Invalid
// rows terminate before any remote interaction; create failures skip the
// enrolling phase because there is no user id to enrol.
var validRowTransitions = map[RowState][]RowState{
	StatePending:       {StateInvalid, StateExists, StateCreateAttempt},
	StateInvalid:       {StateTerminal},
	StateExists:        {StateEnrolling},
	StateCreateAttempt: {StateCreated, StateCreateFailed},
	StateCreated:       {StateEnrolling},
	StateCreateFailed:  {StateTerminal},
	StateEnrolling:     {StateTerminal},
}

// CanTransitionTo reports whether moving from s to next is a valid step.
func (s RowState) CanTransitionTo(next RowState) bool {
	for _, allowed := range validRowTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further processing happens for this state.
func (s RowState) Terminal() bool {
	return s == StateTerminal
}
