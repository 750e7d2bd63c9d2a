package groundgraph

import (
	"errors"
	"fmt"
	"time"
)

// State is a step of the question-answering state machine.
type State string

const (
	StateInit             State = "INIT"
	StateClassified       State = "CLASSIFIED"
	StateTraversed        State = "TRAVERSED"
	StateSynthesized      State = "SYNTHESIZED"
	StateValidated        State = "VALIDATED"
	StateAccepted         State = "ACCEPTED"
	StateRejectedFallback State = "REJECTED_FALLBACK"
	StateTerminal         State = "TERMINAL"
)

// ErrIllegalTransition is returned when the machine is asked to make a move
// the transition table does not allow.
var ErrIllegalTransition = errors.New("illegal state transition")

// Transition is one recorded move of the machine.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

func (t Transition) String() string {
	if t.Reason == "" {
		return fmt.Sprintf("%s->%s", t.From, t.To)
	}
	return fmt.Sprintf("%s->%s (%s)", t.From, t.To, t.Reason)
}

// allowedTransitions is the whole machine. The live route leaves straight
// from CLASSIFIED; REJECTED_FALLBACK can only move on to TERMINAL, so a
// question never re-enters the graph path.
var allowedTransitions = map[State][]State{
	StateInit:             {StateClassified},
	StateClassified:       {StateTraversed, StateTerminal},
	StateTraversed:        {StateSynthesized, StateRejectedFallback},
	StateSynthesized:      {StateValidated},
	StateValidated:        {StateAccepted, StateRejectedFallback},
	StateAccepted:         {StateTerminal},
	StateRejectedFallback: {StateTerminal},
}

// CanTransition reports whether the machine may move from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// machine tracks one question. It is not shared between goroutines.
type machine struct {
	state       State
	transitions []Transition
	now         func() time.Time
}

func newMachine(now func() time.Time) *machine {
	if now == nil {
		now = time.Now
	}
	return &machine{state: StateInit, now: now}
}

func (m *machine) advance(to State, reason string) error {
	if !CanTransition(m.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, to)
	}
	m.transitions = append(m.transitions, Transition{From: m.state, To: to, Reason: reason, At: m.now()})
	m.state = to
	return nil
}

// terminate moves to TERMINAL from wherever the machine stopped, passing
// through REJECTED_FALLBACK when the graph path was abandoned midway.
func (m *machine) terminate(reason string) {
	switch m.state {
	case StateTerminal:
		return
	case StateAccepted, StateRejectedFallback, StateClassified:
	case StateInit:
		_ = m.advance(StateClassified, reason)
	default:
		if CanTransition(m.state, StateRejectedFallback) {
			_ = m.advance(StateRejectedFallback, reason)
		} else {
			_ = m.advance(StateValidated, reason)
			_ = m.advance(StateRejectedFallback, reason)
		}
	}
	_ = m.advance(StateTerminal, reason)
}

func (m *machine) history() []string {
	out := make([]string, len(m.transitions))
	for i, t := range m.transitions {
		out[i] = t.String()
	}
	return out
}
