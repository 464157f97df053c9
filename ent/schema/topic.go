package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Topic is a node of the knowledge graph. Rows are never rewritten except
// to adopt a parent once.
type Topic struct {
	ent.Schema
}

func (Topic) Fields() []ent.Field {
	return []ent.Field{
		field.Int64("id").
			Immutable(),
		field.String("name").
			NotEmpty().
			MaxLen(200).
			Unique().
			Comment("Normalized topic name, the natural key"),
		field.Int64("parent_id").
			Optional().
			Nillable().
			Comment("Containing topic; null for roots"),
		field.Time("created_at").
			Immutable(),
	}
}

func (Topic) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("parent_id"),
	}
}
