package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Question is a bank entry shared across students. Ids are derived from
// content.
type Question struct {
	ent.Schema
}

func (Question) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().
			Immutable(),
		field.Int64("topic_id").
			Immutable(),
		field.String("difficulty").
			NotEmpty().
			Immutable(),
		field.String("format").
			NotEmpty().
			Immutable().
			Comment("multiple_choice, true_false or short_answer"),
		field.String("text").
			NotEmpty().
			Immutable(),
		field.String("answer").
			Immutable(),
		field.Strings("choices").
			Optional().
			Immutable(),
		field.String("explanation").
			Default("").
			Immutable(),
		field.String("concept").
			Default("").
			Immutable(),
		field.Time("created_at").
			Immutable(),
	}
}

func (Question) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("topic_id", "difficulty", "format"),
	}
}
