package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// StudySession is a period of study. A student holds at most one open
// session.
type StudySession struct {
	ent.Schema
}

func (StudySession) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().
			Immutable().
			Comment("UUID"),
		field.String("student_id").
			NotEmpty().
			Immutable(),
		field.Time("started_at").
			Immutable(),
		field.Time("ended_at").
			Optional().
			Nillable().
			Comment("Null while the session is open"),
	}
}

func (StudySession) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("student_id").
			Unique().
			StorageKey("study_sessions_one_open").
			Annotations(entsql.IndexWhere("ended_at IS NULL")),
		index.Fields("student_id", "started_at"),
	}
}
