package mastery

import (
	"errors"
	"time"
)

// Answer is the part of an answer event the fold needs.
type Answer struct {
	Seq       int64
	Correct   bool
	Timestamp time.Time
}

// Replay rebuilds a record from the full ordered answer history of a pair.
// Answers after the pair became mastered are ignored. Given the same
// history it always produces the same record.
func Replay(studentID string, topicID int64, history []Answer) Record {
	rec := *NewRecord(studentID, topicID)
	recent := make([]bool, 0, BonusWindow)

	for _, a := range history {
		recent = append(recent, a.Correct)
		if len(recent) > BonusWindow {
			recent = recent[1:]
		}
		next, _, err := Apply(rec, a.Correct, a.Seq, recent, a.Timestamp)
		if errors.Is(err, ErrTerminal) {
			break
		}
		rec = next
	}
	return rec
}

// CatchUp folds the answers in pending (all with Seq > r.LastEventSeq, in
// order) into r. window holds the correctness flags of the answers that
// precede pending, most-recent-last; only its last BonusWindow-1 entries
// matter. It returns the final record and the step of the last answer.
func CatchUp(r Record, window []bool, pending []Answer) (Record, Step, error) {
	flags := append([]bool(nil), window...)
	var last Step
	for _, a := range pending {
		if a.Seq <= r.LastEventSeq {
			continue
		}
		flags = append(flags, a.Correct)
		if len(flags) > BonusWindow {
			flags = flags[len(flags)-BonusWindow:]
		}
		next, step, err := Apply(r, a.Correct, a.Seq, flags, a.Timestamp)
		if err != nil {
			return r, step, err
		}
		r, last = next, step
	}
	return r, last, nil
}
