package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// TopicRelationship is a typed edge between two topics.
type TopicRelationship struct {
	ent.Schema
}

func (TopicRelationship) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("parent_id").
			Immutable(),
		field.Int64("child_id").
			Immutable(),
		field.String("relationship_type").
			NotEmpty().
			Immutable().
			Comment("prerequisite or related"),
		field.Time("created_at").
			Immutable(),
	}
}

func (TopicRelationship) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("parent_id", "child_id", "relationship_type").Unique(),
		index.Fields("child_id", "relationship_type"),
	}
}
