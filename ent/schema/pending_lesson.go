package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// PendingLesson is the remediation marker of a (student, topic) pair.
type PendingLesson struct {
	ent.Schema
}

func (PendingLesson) Fields() []ent.Field {
	return []ent.Field{
		field.String("student_id").
			NotEmpty(),
		field.Int64("topic_id"),
		field.String("status").
			NotEmpty().
			Comment("pending, consumed or resolved"),
		field.JSON("gap", KnowledgeGap{}),
		field.Int64("answer_seq").
			Comment("Answer event that required the lesson"),
		field.JSON("lesson", &Lesson{}).
			Optional().
			Comment("Cached generated content"),
		field.Bool("served").
			Default(false).
			Comment("Whether the lesson was shown to the student"),
		field.Time("updated_at"),
	}
}

func (PendingLesson) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("student_id", "topic_id").Unique(),
	}
}
