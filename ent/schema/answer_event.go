package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// AnswerEvent is one immutable entry of the answer log. Mastery records
// are folds of it.
type AnswerEvent struct {
	ent.Schema
}

func (AnswerEvent) Mixin() []ent.Mixin {
	return []ent.Mixin{EventMixin{}}
}

func (AnswerEvent) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("id").
			Immutable().
			Comment("Monotonically increasing sequence number"),
		field.String("student_id").
			NotEmpty().
			Immutable(),
		field.String("question_id").
			NotEmpty().
			Immutable(),
		field.Int64("topic_id").
			Immutable(),
		field.String("session_id").
			NotEmpty().
			Immutable().
			Comment("Links to StudySession"),
		field.String("difficulty_at_time").
			NotEmpty().
			Immutable().
			Comment("Record difficulty when the answer was judged"),
		field.Bool("is_correct").
			Immutable(),
		field.String("answer").
			Immutable().
			Comment("What the student entered, trimmed"),
		field.String("explanation").
			Default("").
			Immutable(),
		field.JSON("gap", &KnowledgeGap{}).
			Optional().
			Immutable().
			Comment("Set on incorrect answers"),
	}
}

func (AnswerEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("student_id", "session_id", "question_id").Unique(),
		index.Fields("student_id", "topic_id"),
		index.Fields("session_id"),
	}
}
