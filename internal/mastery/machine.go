package mastery

import "errors"

const (
	// StreakWindow is the number of consecutive correct answers at the
	// current tier that triggers a transition.
	StreakWindow = 3

	// MasteryGate is the minimum mastery level for Hard -> Mastered.
	MasteryGate = 90.0
)

// ErrTerminal is returned when stepping a pair that is already mastered.
var ErrTerminal = errors.New("mastery: topic already mastered")

// advance is the complete forward transition table. Every edge moves
// exactly one tier up; there are no backward edges.
var advance = map[Tier]Tier{
	Easy:   Medium,
	Medium: Hard,
	Hard:   Mastered,
}

// State is the machine input: the current tier and the number of
// consecutive correct answers given at that tier since it was entered.
type State struct {
	Tier   Tier
	Streak int
}

// Outcome classifies what a single answer did to the state.
type Outcome int

const (
	// OutcomeContinue: correct answer, window not yet full.
	OutcomeContinue Outcome = iota
	// OutcomeAdvance: window full, moved one tier up.
	OutcomeAdvance
	// OutcomeMastered: Hard window full with mastery at or above the gate.
	OutcomeMastered
	// OutcomeGateHeld: Hard window full but mastery below the gate; the
	// window restarts.
	OutcomeGateHeld
	// OutcomeRemediate: incorrect answer; tier unchanged, window restarts.
	OutcomeRemediate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdvance:
		return "advance"
	case OutcomeMastered:
		return "mastered"
	case OutcomeGateHeld:
		return "gate_held"
	case OutcomeRemediate:
		return "remediate"
	default:
		return "continue"
	}
}

// Step describes one transition.
type Step struct {
	From    Tier
	To      Tier
	Outcome Outcome
}

// Transitioned reports whether the tier changed.
func (s Step) Transitioned() bool { return s.From != s.To }

// Next applies one answer to s. level is the mastery level computed for the
// same answer; it is only consulted on the Hard -> Mastered edge.
func Next(s State, correct bool, level float64) (State, Step, error) {
	if s.Tier == Mastered {
		return s, Step{From: Mastered, To: Mastered}, ErrTerminal
	}

	if !correct {
		return State{Tier: s.Tier}, Step{From: s.Tier, To: s.Tier, Outcome: OutcomeRemediate}, nil
	}

	streak := s.Streak + 1
	if streak < StreakWindow {
		return State{Tier: s.Tier, Streak: streak}, Step{From: s.Tier, To: s.Tier, Outcome: OutcomeContinue}, nil
	}

	to := advance[s.Tier]
	if to == Mastered && level < MasteryGate {
		return State{Tier: s.Tier}, Step{From: s.Tier, To: s.Tier, Outcome: OutcomeGateHeld}, nil
	}

	out := OutcomeAdvance
	if to == Mastered {
		out = OutcomeMastered
	}
	return State{Tier: to}, Step{From: s.Tier, To: to, Outcome: out}, nil
}
