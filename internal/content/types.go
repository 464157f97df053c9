// Package content is the question and lesson capability the assessment
// engine calls out to. The LLM-backed implementation lives in LLMProvider;
// answer checking and knowledge-gap building are local.
package content

import (
	"context"

	"github.com/abhisek/ascend/internal/mastery"
	"github.com/abhisek/ascend/internal/store"
)

// Provider generates questions and lessons and judges free-text answers.
// Every method fails with an apperr Provider error whose code is one of
// timeout, rate_limited, invalid_response or unavailable.
type Provider interface {
	GenerateQuestion(ctx context.Context, req QuestionRequest) (*QuestionDraft, error)
	EvaluateFreeText(ctx context.Context, q *store.Question, answer string) (*FreeTextVerdict, error)
	GenerateMiniLesson(ctx context.Context, gap store.KnowledgeGap, lc LessonContext) (*MiniLessonDraft, error)
}

// QuestionRequest holds all context needed to generate a question.
type QuestionRequest struct {
	TopicID    int64
	Topic      string
	Difficulty mastery.Tier

	// Formats restricts the answer format. Empty means any format.
	Formats []store.Format

	// PriorQuestions holds the text of questions already served in the
	// session for this topic, oldest first.
	PriorQuestions []string

	// Gap is set when the question follows up a mini-lesson and must
	// exercise the same concept.
	Gap *store.KnowledgeGap
}

// Allows reports whether f satisfies the format restriction.
func (r QuestionRequest) Allows(f store.Format) bool {
	if len(r.Formats) == 0 {
		return f.Valid()
	}
	for _, want := range r.Formats {
		if want == f {
			return true
		}
	}
	return false
}

// QuestionDraft is a generated question before it is given an id.
type QuestionDraft struct {
	Format      store.Format
	Text        string
	Answer      string
	Choices     []string
	Explanation string
	Concept     string
}

// FreeTextVerdict is the provider's judgement of a short answer.
type FreeTextVerdict struct {
	Correct     bool
	Explanation string
	Concept     string
}

// LessonContext is what the lesson generator knows about the miss.
type LessonContext struct {
	Topic         string
	Difficulty    mastery.Tier
	QuestionText  string
	CorrectAnswer string
	StudentAnswer string
	Accuracy      float64
}

// MiniLessonDraft is generated remediation content.
type MiniLessonDraft struct {
	Title         string
	Explanation   string
	WorkedExample string
	Practice      string
}

// Lesson converts the draft into its stored form.
func (d *MiniLessonDraft) Lesson() store.Lesson {
	return store.Lesson{
		Title:         d.Title,
		Explanation:   d.Explanation,
		WorkedExample: d.WorkedExample,
		Practice:      d.Practice,
	}
}
