package session

import (
	"slices"
	"time"

	"github.com/abhisek/ascend/internal/store"
)

// TopicResult holds the per-topic outcome of a session.
type TopicResult struct {
	TopicID   int64   `json:"topic_id"`
	Attempted int     `json:"attempted"`
	Correct   int     `json:"correct"`
	Accuracy  float64 `json:"accuracy"`
}

// Record adds one answer to the result.
func (r *TopicResult) Record(correct bool) {
	r.Attempted++
	if correct {
		r.Correct++
	}
	r.Accuracy = float64(r.Correct) / float64(r.Attempted)
}

// Summary describes a session once it ended.
type Summary struct {
	SessionID      string        `json:"session_id"`
	Duration       time.Duration `json:"duration"`
	TotalQuestions int           `json:"total_questions"`
	TotalCorrect   int           `json:"total_correct"`
	Accuracy       float64       `json:"accuracy"`
	Topics         []TopicResult `json:"topics"`
}

// BuildSummary folds the session's answers into a Summary. Topics are
// listed in the order they were first answered.
func BuildSummary(sess *store.Session, answers []store.AnswerEvent) *Summary {
	sum := &Summary{SessionID: sess.ID, Topics: []TopicResult{}}
	if sess.EndedAt != nil {
		sum.Duration = sess.EndedAt.Sub(sess.StartedAt)
	}

	for _, ev := range answers {
		sum.TotalQuestions++
		if ev.Correct {
			sum.TotalCorrect++
		}
		i := slices.IndexFunc(sum.Topics, func(r TopicResult) bool { return r.TopicID == ev.TopicID })
		if i < 0 {
			sum.Topics = append(sum.Topics, TopicResult{TopicID: ev.TopicID})
			i = len(sum.Topics) - 1
		}
		sum.Topics[i].Record(ev.Correct)
	}

	if sum.TotalQuestions > 0 {
		sum.Accuracy = float64(sum.TotalCorrect) / float64(sum.TotalQuestions)
	}
	return sum
}
