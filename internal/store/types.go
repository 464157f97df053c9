package store

import (
	"context"
	"time"

	entschema "github.com/abhisek/ascend/ent/schema"
	"github.com/abhisek/ascend/internal/mastery"
)

// RelType is the kind of a topic relationship edge.
type RelType string

const (
	RelPrerequisite RelType = "prerequisite"
	RelRelated      RelType = "related"
)

// Valid reports whether t is a known relationship type.
func (t RelType) Valid() bool {
	return t == RelPrerequisite || t == RelRelated
}

// Topic is a node of the knowledge graph.
type Topic struct {
	ID        int64
	Name      string
	ParentID  *int64
	Children  []int64
	CreatedAt time.Time
}

// Relationship is a typed edge between two topics.
type Relationship struct {
	ParentID int64
	ChildID  int64
	Type     RelType
}

// KnowledgeGap describes a concept a student failed to demonstrate.
type KnowledgeGap = entschema.KnowledgeGap

// AnswerEvent is one immutable entry of the answer log.
type AnswerEvent struct {
	Seq         int64
	StudentID   string
	QuestionID  string
	TopicID     int64
	SessionID   string
	Difficulty  mastery.Tier
	Correct     bool
	Answer      string
	Explanation string
	Gap         *KnowledgeGap
	Timestamp   time.Time
}

// Session is a study session. EndedAt is nil while open.
type Session struct {
	ID        string
	StudentID string
	StartedAt time.Time
	EndedAt   *time.Time
	Topics    []int64
}

// Open reports whether the session has not ended.
func (s *Session) Open() bool { return s.EndedAt == nil }

// Format is how a question is answered.
type Format string

const (
	FormatMultipleChoice Format = "multiple_choice"
	FormatTrueFalse      Format = "true_false"
	FormatShortAnswer    Format = "short_answer"
)

// Formats returns every question format.
func Formats() []Format {
	return []Format{FormatMultipleChoice, FormatTrueFalse, FormatShortAnswer}
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	switch f {
	case FormatMultipleChoice, FormatTrueFalse, FormatShortAnswer:
		return true
	}
	return false
}

// Question is a bank entry. Questions are shared across students and
// reused as cached content when generation is unavailable.
type Question struct {
	ID          string
	TopicID     int64
	Difficulty  mastery.Tier
	Format      Format
	Text        string
	Answer      string
	Choices     []string
	Explanation string
	Concept     string
	CreatedAt   time.Time
}

// ServedQuestion records that a question was returned to a student.
type ServedQuestion struct {
	Seq        int64
	SessionID  string
	QuestionID string
	StudentID  string
	TopicID    int64
	Format     Format
	FollowUp   bool
	ServedAt   time.Time
}

// LessonStatus tracks a remediation through its lifecycle.
type LessonStatus string

const (
	// LessonPending: an incorrect answer requires a mini-lesson.
	LessonPending LessonStatus = "pending"
	// LessonConsumed: the student acknowledged the lesson; the next question
	// is a follow-up on the same concept.
	LessonConsumed LessonStatus = "consumed"
	// LessonResolved: the follow-up question was served.
	LessonResolved LessonStatus = "resolved"
)

// Lesson is generated mini-lesson content.
type Lesson = entschema.Lesson

// PendingLesson is the remediation marker for a (student, topic) pair.
type PendingLesson struct {
	StudentID string
	TopicID   int64
	Status    LessonStatus
	Gap       KnowledgeGap
	AnswerSeq int64
	Lesson    *Lesson
	// Served is set once the lesson content was returned to the student.
	Served    bool
	UpdatedAt time.Time
}

// Blocking reports whether the lesson still blocks new questions.
func (p *PendingLesson) Blocking() bool {
	return p != nil && p.Status == LessonPending
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
}

// LLMRequestEvent is a stored LLM request event.
type LLMRequestEvent struct {
	ID        int64
	Timestamp time.Time
	LLMRequestEventData
}

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit int   // max results (0 = unlimited)
	After int64 // id > After
}

// EventRepo is the append interface used by the LLM logging decorator.
type EventRepo interface {
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error
}
