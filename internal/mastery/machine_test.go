package mastery

import (
	"errors"
	"testing"
	"time"
)

func TestNext_ThreeCorrectAdvancesOneTier(t *testing.T) {
	for _, from := range []Tier{Easy, Medium} {
		s := State{Tier: from}
		var step Step
		var err error
		for i := range StreakWindow {
			s, step, err = Next(s, true, 0)
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if i < StreakWindow-1 && step.Transitioned() {
				t.Fatalf("%s: transitioned after %d correct", from, i+1)
			}
		}
		if step.Outcome != OutcomeAdvance || step.To != from+1 {
			t.Errorf("%s: step = %+v, want advance to %s", from, step, from+1)
		}
		if s.Streak != 0 {
			t.Errorf("%s: streak = %d after transition, want 0", from, s.Streak)
		}
	}
}

func TestNext_IncorrectResetsWindow(t *testing.T) {
	s := State{Tier: Easy}
	s, _, _ = Next(s, true, 0)
	s, _, _ = Next(s, true, 0)
	s, step, _ := Next(s, false, 0)
	if step.Outcome != OutcomeRemediate || s.Tier != Easy || s.Streak != 0 {
		t.Fatalf("after miss: state = %+v step = %+v", s, step)
	}
	// The two earlier correct answers no longer count.
	s, step, _ = Next(s, true, 0)
	if step.Transitioned() {
		t.Fatal("transitioned with only one correct answer in window")
	}
}

func TestNext_HardGate(t *testing.T) {
	tests := []struct {
		name     string
		level    float64
		wantTier Tier
		wantOut  Outcome
	}{
		{"below gate holds", 89.9, Hard, OutcomeGateHeld},
		{"at gate masters", 90, Mastered, OutcomeMastered},
		{"above gate masters", 100, Mastered, OutcomeMastered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, step, err := Next(State{Tier: Hard, Streak: StreakWindow - 1}, true, tt.level)
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if s.Tier != tt.wantTier || step.Outcome != tt.wantOut {
				t.Errorf("got tier %s outcome %s, want %s %s", s.Tier, step.Outcome, tt.wantTier, tt.wantOut)
			}
			if s.Streak != 0 {
				t.Errorf("streak = %d, want reset to 0", s.Streak)
			}
		})
	}
}

func TestNext_MasteredIsTerminal(t *testing.T) {
	_, _, err := Next(State{Tier: Mastered}, true, 100)
	if !errors.Is(err, ErrTerminal) {
		t.Fatalf("err = %v, want ErrTerminal", err)
	}
}

// Every answer sequence up to length 12 is checked: no transition skips
// a tier and none regresses.
func TestNext_NoSkipNoRegress(t *testing.T) {
	const maxLen = 12
	for n := 1; n <= maxLen; n++ {
		for bits := 0; bits < 1<<n; bits++ {
			s := State{Tier: Easy}
			for i := range n {
				correct := bits&(1<<i) != 0
				next, step, err := Next(s, correct, 100)
				if errors.Is(err, ErrTerminal) {
					break
				}
				if next.Tier < s.Tier {
					t.Fatalf("regressed %s -> %s (seq %b)", s.Tier, next.Tier, bits)
				}
				if next.Tier > s.Tier+1 {
					t.Fatalf("skipped %s -> %s (seq %b)", s.Tier, next.Tier, bits)
				}
				if step.Transitioned() && !correct {
					t.Fatalf("incorrect answer transitioned (seq %b)", bits)
				}
				s = next
			}
		}
	}
}

func TestApply_ScenarioEasyThreeCorrect(t *testing.T) {
	rec := *NewRecord("s1", 1)
	var flags []bool
	var step Step
	for i := range 3 {
		flags = append(flags, true)
		var err error
		rec, step, err = Apply(rec, true, int64(i+1), flags, time.Unix(0, 0))
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	if rec.Difficulty != Medium {
		t.Errorf("Difficulty = %s, want medium", rec.Difficulty)
	}
	if rec.Level != 100 {
		t.Errorf("Level = %v, want 100", rec.Level)
	}
	if step.Outcome != OutcomeAdvance {
		t.Errorf("Outcome = %s, want advance", step.Outcome)
	}
	if rec.Attempted != 3 || rec.Correct != 3 || rec.LastEventSeq != 3 {
		t.Errorf("counts = %d/%d seq %d", rec.Correct, rec.Attempted, rec.LastEventSeq)
	}
}

func TestApply_IncorrectAtHardKeepsTier(t *testing.T) {
	rec := Record{StudentID: "s1", TopicID: 1, Level: 96, Attempted: 20, Correct: 18, Difficulty: Hard, Streak: 2}
	next, step, err := Apply(rec, false, 21, []bool{true, true, true, true, false}, time.Now())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if next.Difficulty != Hard || next.Mastered {
		t.Errorf("got %s mastered=%t, want hard, not mastered", next.Difficulty, next.Mastered)
	}
	if step.Outcome != OutcomeRemediate {
		t.Errorf("Outcome = %s, want remediate", step.Outcome)
	}
}

func TestApply_HardStreakBelowGate(t *testing.T) {
	// 2 of 8 at hard: 25 * 1.5 = 37.5, below the gate.
	rec := Record{Attempted: 7, Correct: 1, Difficulty: Hard, Streak: 2}
	next, step, _ := Apply(rec, true, 8, []bool{false, false, true, true, true}, time.Now())
	if next.Mastered || next.Difficulty != Hard || step.Outcome != OutcomeGateHeld || next.Streak != 0 {
		t.Fatalf("got %+v step %+v, want held at hard", next, step)
	}
}

func TestApply_HardStreakAtGate(t *testing.T) {
	rec := Record{Attempted: 9, Correct: 8, Difficulty: Hard, Streak: 2}
	next, step, _ := Apply(rec, true, 10, []bool{true, true, true, true, true}, time.Now())
	if !next.Mastered || next.Difficulty != Hard || step.Outcome != OutcomeMastered {
		t.Fatalf("got %+v step %+v, want mastered", next, step)
	}
	if _, _, err := Apply(next, true, 11, nil, time.Now()); !errors.Is(err, ErrTerminal) {
		t.Fatalf("apply after mastered: err = %v, want ErrTerminal", err)
	}
}

func TestReplayMatchesCatchUp(t *testing.T) {
	history := []Answer{
		{Seq: 1, Correct: true}, {Seq: 2, Correct: true}, {Seq: 3, Correct: false},
		{Seq: 4, Correct: true}, {Seq: 5, Correct: true}, {Seq: 6, Correct: true},
		{Seq: 7, Correct: true}, {Seq: 8, Correct: true}, {Seq: 9, Correct: true},
		{Seq: 10, Correct: true}, {Seq: 11, Correct: true}, {Seq: 12, Correct: true},
	}
	full := Replay("s1", 1, history)

	// Fold the first half, then catch up the rest with the preceding window.
	half := Replay("s1", 1, history[:6])
	var window []bool
	for _, a := range history[:6] {
		window = append(window, a.Correct)
	}
	caught, _, err := CatchUp(half, window, history[6:])
	if err != nil {
		t.Fatalf("CatchUp: %v", err)
	}

	if caught.Level != full.Level || caught.Difficulty != full.Difficulty ||
		caught.Mastered != full.Mastered || caught.Streak != full.Streak ||
		caught.Attempted != full.Attempted || caught.LastEventSeq != full.LastEventSeq {
		t.Fatalf("catch-up %+v != replay %+v", caught, full)
	}
	if !full.Mastered {
		t.Fatalf("expected mastery after history, got %+v", full)
	}
}

func TestCatchUp_SkipsAppliedEvents(t *testing.T) {
	rec := Record{Attempted: 2, Correct: 2, Difficulty: Easy, Streak: 2, LastEventSeq: 2}
	next, _, err := CatchUp(rec, []bool{true, true}, []Answer{{Seq: 2, Correct: true}})
	if err != nil {
		t.Fatalf("CatchUp: %v", err)
	}
	if next.Attempted != 2 {
		t.Fatalf("re-applied an already folded event: %+v", next)
	}
}
