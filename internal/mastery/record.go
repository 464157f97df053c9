package mastery

import "time"

// Record is the per-(student, topic) mastery state owned by the store.
type Record struct {
	StudentID  string
	TopicID    int64
	Level      float64
	Attempted  int
	Correct    int
	Difficulty Tier
	Mastered   bool

	// Streak counts consecutive correct answers at Difficulty.
	Streak int

	// LastEventSeq is the sequence of the last answer event folded in.
	LastEventSeq int64

	// ResetSeq marks the last answer event logged before the pair was
	// reset. Earlier answers stay in the log but are never folded.
	ResetSeq int64

	// Version is the compare-and-swap token; zero means never written.
	Version   int64
	UpdatedAt time.Time
}

// NewRecord returns the default record for a pair never attempted.
func NewRecord(studentID string, topicID int64) *Record {
	return &Record{
		StudentID:  studentID,
		TopicID:    topicID,
		Difficulty: Easy,
	}
}

// State returns the machine state the record is in.
func (r *Record) State() State {
	if r.Mastered {
		return State{Tier: Mastered}
	}
	return State{Tier: r.Difficulty, Streak: r.Streak}
}

// Apply folds one answer into a copy of r. recent holds the correctness
// flags of the most recent answers for the pair, most-recent-last,
// including this one. The mastery level uses the tier the answer was given
// at, before any transition it triggers.
func Apply(r Record, correct bool, seq int64, recent []bool, now time.Time) (Record, Step, error) {
	if r.Mastered {
		return r, Step{From: Mastered, To: Mastered}, ErrTerminal
	}

	r.Attempted++
	if correct {
		r.Correct++
	}
	r.Level = Compute(r.Attempted, r.Correct, r.Difficulty, recent)

	next, step, err := Next(r.State(), correct, r.Level)
	if err != nil {
		return r, step, err
	}

	if next.Tier == Mastered {
		r.Mastered = true
		r.Difficulty = Hard
	} else {
		r.Difficulty = next.Tier
	}
	r.Streak = next.Streak
	r.LastEventSeq = seq
	r.UpdatedAt = now
	return r, step, nil
}
