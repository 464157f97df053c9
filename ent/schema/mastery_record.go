package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// MasteryRecord is the folded state of one (student, topic) pair. Writers
// compare-and-swap on version.
type MasteryRecord struct {
	ent.Schema
}

func (MasteryRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("student_id").
			NotEmpty(),
		field.Int64("topic_id"),
		field.Float("mastery_level").
			Range(0, 100),
		field.Int("questions_attempted").
			NonNegative(),
		field.Int("questions_correct").
			NonNegative(),
		field.String("current_difficulty").
			NotEmpty().
			Comment("easy, medium or hard"),
		field.Bool("mastered").
			Default(false),
		field.Int("streak").
			NonNegative().
			Default(0),
		field.Int64("last_event_seq").
			Default(0).
			Comment("Last answer event folded in"),
		field.Int64("reset_seq").
			Default(0).
			Comment("Answer events at or below this sequence predate a reset"),
		field.Int64("version").
			Comment("Compare-and-swap token"),
		field.Time("last_updated"),
	}
}

func (MasteryRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("student_id", "topic_id").Unique(),
	}
}
