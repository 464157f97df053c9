package assessment

import (
	"time"

	"github.com/abhisek/ascend/internal/mastery"
	"github.com/abhisek/ascend/internal/store"
)

// NextAction tells the client what to do after an answer.
type NextAction string

const (
	ActionContinue  NextAction = "continue"
	ActionAdvance   NextAction = "advance"
	ActionRemediate NextAction = "remediate"
	ActionMastered  NextAction = "mastered"
)

func actionFor(o mastery.Outcome) NextAction {
	switch o {
	case mastery.OutcomeAdvance:
		return ActionAdvance
	case mastery.OutcomeMastered:
		return ActionMastered
	case mastery.OutcomeRemediate:
		return ActionRemediate
	default:
		return ActionContinue
	}
}

// Question is a served question as the student sees it. The answer and
// explanation stay on the server.
type Question struct {
	ID         string       `json:"id"`
	SessionID  string       `json:"session_id"`
	TopicID    int64        `json:"topic_id"`
	Difficulty mastery.Tier `json:"difficulty"`
	Format     store.Format `json:"format"`
	Text       string       `json:"text"`
	Choices    []string     `json:"choices,omitempty"`
	FollowUp   bool         `json:"follow_up"`

	// Cached is set when the question came from the bank because the
	// provider was unavailable.
	Cached bool `json:"cached,omitempty"`
}

func viewOf(q *store.Question, sessionID string, followUp, cached bool) *Question {
	return &Question{
		ID:         q.ID,
		SessionID:  sessionID,
		TopicID:    q.TopicID,
		Difficulty: q.Difficulty,
		Format:     q.Format,
		Text:       q.Text,
		Choices:    q.Choices,
		FollowUp:   followUp,
		Cached:     cached,
	}
}

// EvaluationResult is the outcome of one submitted answer.
type EvaluationResult struct {
	QuestionID    string              `json:"question_id"`
	Correct       bool                `json:"correct"`
	CorrectAnswer string              `json:"correct_answer"`
	Explanation   string              `json:"explanation"`
	Gap           *store.KnowledgeGap `json:"knowledge_gap,omitempty"`

	Mastery            float64      `json:"mastery"`
	Difficulty         mastery.Tier `json:"difficulty"`
	PreviousDifficulty mastery.Tier `json:"previous_difficulty"`
	Mastered           bool         `json:"mastered"`
	Streak             int          `json:"streak"`
	NextAction         NextAction   `json:"next_action"`

	// Degraded is set when a free-text answer could not be judged by the
	// provider and was scored by exact match.
	Degraded bool `json:"degraded,omitempty"`

	// Duplicate is set when the answer was already recorded; the result
	// reflects the first submission.
	Duplicate bool `json:"duplicate,omitempty"`
}

// MasteryView is the read-only mastery of a pair.
type MasteryView struct {
	TopicID    int64        `json:"topic_id"`
	Level      float64      `json:"mastery"`
	Attempted  int          `json:"attempted"`
	Correct    int          `json:"correct"`
	Difficulty mastery.Tier `json:"difficulty"`
	Mastered   bool         `json:"mastered"`
	Streak     int          `json:"streak"`
	UpdatedAt  time.Time    `json:"updated_at"`

	// LessonStatus is the state of the pair's remediation, if any.
	LessonStatus store.LessonStatus `json:"lesson_status,omitempty"`
}

func masteryView(rec *mastery.Record, pl *store.PendingLesson) *MasteryView {
	v := &MasteryView{
		TopicID:    rec.TopicID,
		Level:      rec.Level,
		Attempted:  rec.Attempted,
		Correct:    rec.Correct,
		Difficulty: rec.Difficulty,
		Mastered:   rec.Mastered,
		Streak:     rec.Streak,
		UpdatedAt:  rec.UpdatedAt,
	}
	if pl != nil {
		v.LessonStatus = pl.Status
	}
	return v
}

// MiniLesson is remediation content for the pair's pending gap.
type MiniLesson struct {
	TopicID int64              `json:"topic_id"`
	Gap     store.KnowledgeGap `json:"knowledge_gap"`
	Status  store.LessonStatus `json:"status"`
	store.Lesson
}
