package session

import (
	"cmp"
	"slices"

	"github.com/abhisek/ascend/internal/mastery"
	"github.com/abhisek/ascend/internal/store"
)

// DefaultRecentQuestions is how many answered question ids a State keeps.
const DefaultRecentQuestions = 10

// State is where a student left off: the session, the topic last answered
// and the difficulty they face on it.
type State struct {
	SessionID         string       `json:"session_id"`
	Open              bool         `json:"open"`
	CurrentTopic      int64        `json:"current_topic"`
	CurrentDifficulty mastery.Tier `json:"current_difficulty"`
	Mastered          bool         `json:"mastered"`

	// RecentQuestionIDs are the last questions answered in the session,
	// oldest first.
	RecentQuestionIDs []string `json:"recent_question_ids"`

	lastSeq int64
	recent  []answered
}

type answered struct {
	seq        int64
	questionID string
}

func newState(sess *store.Session) *State {
	st := &State{CurrentDifficulty: mastery.Easy, RecentQuestionIDs: []string{}}
	if sess != nil {
		st.SessionID = sess.ID
		st.Open = sess.Open()
	}
	return st
}

// observe folds one answer of the session and the record it produced.
// Answers may arrive out of order across topics; the highest seq wins.
func (st *State) observe(ev *store.AnswerEvent, rec *mastery.Record, keep int) {
	if ev.SessionID == st.SessionID {
		st.remember(ev.Seq, ev.QuestionID, keep)
	}
	if ev.Seq < st.lastSeq {
		return
	}
	st.lastSeq = ev.Seq
	st.CurrentTopic = ev.TopicID
	st.CurrentDifficulty = mastery.Easy
	st.Mastered = false
	if rec != nil {
		st.CurrentDifficulty = rec.Difficulty
		st.Mastered = rec.Mastered
	}
}

func (st *State) remember(seq int64, questionID string, keep int) {
	i, found := slices.BinarySearchFunc(st.recent, seq, func(a answered, s int64) int {
		return cmp.Compare(a.seq, s)
	})
	if found {
		return
	}
	st.recent = slices.Insert(st.recent, i, answered{seq: seq, questionID: questionID})
	if len(st.recent) > keep {
		st.recent = st.recent[len(st.recent)-keep:]
	}
	st.RecentQuestionIDs = st.RecentQuestionIDs[:0]
	for _, a := range st.recent {
		st.RecentQuestionIDs = append(st.RecentQuestionIDs, a.questionID)
	}
}

func (st *State) clone() *State {
	c := *st
	c.RecentQuestionIDs = slices.Clone(st.RecentQuestionIDs)
	c.recent = slices.Clone(st.recent)
	return &c
}

// Equal reports whether two states describe the same position.
func (st *State) Equal(o *State) bool {
	if st == nil || o == nil {
		return st == o
	}
	return st.SessionID == o.SessionID &&
		st.Open == o.Open &&
		st.CurrentTopic == o.CurrentTopic &&
		st.CurrentDifficulty == o.CurrentDifficulty &&
		st.Mastered == o.Mastered &&
		slices.Equal(st.RecentQuestionIDs, o.RecentQuestionIDs)
}
