package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ServedQuestion records that a question was returned to a student.
type ServedQuestion struct {
	ent.Schema
}

func (ServedQuestion) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("id").
			Immutable().
			Comment("Serving sequence"),
		field.String("session_id").
			NotEmpty().
			Immutable(),
		field.String("question_id").
			NotEmpty().
			Immutable(),
		field.String("student_id").
			NotEmpty().
			Immutable(),
		field.Int64("topic_id").
			Immutable(),
		field.String("format").
			NotEmpty().
			Immutable(),
		field.Bool("follow_up").
			Default(false).
			Immutable(),
		field.Time("served_at").
			Immutable(),
	}
}

func (ServedQuestion) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("session_id", "question_id").Unique(),
		index.Fields("student_id", "topic_id"),
	}
}
