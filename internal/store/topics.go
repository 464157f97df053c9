package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/abhisek/ascend/ent"
	"github.com/abhisek/ascend/ent/predicate"
	"github.com/abhisek/ascend/ent/topic"
	"github.com/abhisek/ascend/ent/topicrelationship"
	"github.com/abhisek/ascend/internal/apperr"
)

// MaxTopicNameLen bounds topic names.
const MaxTopicNameLen = 200

// NormalizeTopicName trims a topic name and collapses inner whitespace.
// Topic names are the natural key, so "Long  Division " and
// "Long Division" name the same topic.
func NormalizeTopicName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// UpsertTopic returns the id of the topic called name, creating it (and
// its parent, when parentName is set) if absent. An existing topic keeps
// its parent; a root topic first seen as somebody's parent adopts the
// parent given on a later upsert.
func (s *Store) UpsertTopic(ctx context.Context, name, parentName string) (int64, error) {
	const op = "upsert topic"
	name = NormalizeTopicName(name)
	parentName = NormalizeTopicName(parentName)
	if err := validateTopicName(op, name); err != nil {
		return 0, err
	}
	if parentName != "" {
		if err := validateTopicName(op, parentName); err != nil {
			return 0, err
		}
		if parentName == name {
			return 0, apperr.Validation(op, "topic %q cannot be its own parent", name)
		}
	}

	var id int64
	err := s.inTx(ctx, op, func(tx *ent.Tx) error {
		c := tx.Client()
		var parentID *int64
		if parentName != "" {
			pid, err := s.upsertTopic(ctx, c, parentName, nil)
			if err != nil {
				return err
			}
			parentID = &pid
		}
		var err error
		id, err = s.upsertTopic(ctx, c, name, parentID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func validateTopicName(op, name string) error {
	if name == "" {
		return apperr.Validation(op, "topic name is required")
	}
	if len(name) > MaxTopicNameLen {
		return apperr.Validation(op, "topic name longer than %d bytes", MaxTopicNameLen)
	}
	return nil
}

func (s *Store) upsertTopic(ctx context.Context, c *ent.Client, name string, parentID *int64) (int64, error) {
	t, err := c.Topic.Query().Where(topic.Name(name)).Only(ctx)
	if ent.IsNotFound(err) {
		t, err = c.Topic.Create().
			SetName(name).
			SetNillableParentID(parentID).
			SetCreatedAt(s.stamp()).
			Save(ctx)
		if err != nil {
			return 0, fmt.Errorf("insert topic %q: %w", name, err)
		}
		return t.ID, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select topic %q: %w", name, err)
	}

	if parentID != nil && t.ParentID == nil {
		err := c.Topic.Update().
			Where(topic.ID(t.ID), topic.ParentIDIsNil()).
			SetParentID(*parentID).
			Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("set parent of %q: %w", name, err)
		}
	}
	return t.ID, nil
}

// Topic returns the topic with the given id, including its children.
func (s *Store) Topic(ctx context.Context, id int64) (*Topic, error) {
	t, err := s.topicWhere(ctx, topic.ID(id))
	if err != nil {
		return nil, mapErr("read topic", err)
	}
	return t, nil
}

// TopicByName returns the topic with the given name.
func (s *Store) TopicByName(ctx context.Context, name string) (*Topic, error) {
	t, err := s.topicWhere(ctx, topic.Name(NormalizeTopicName(name)))
	if err != nil {
		return nil, mapErr("read topic", err)
	}
	return t, nil
}

func (s *Store) topicWhere(ctx context.Context, where predicate.Topic) (*Topic, error) {
	row, err := s.client.Topic.Query().Where(where).Only(ctx)
	if ent.IsNotFound(err) {
		return nil, apperr.NotFound("read topic", "topic not found")
	}
	if err != nil {
		return nil, err
	}
	t := toTopic(row)
	if t.Children, err = s.children(ctx, t.ID); err != nil {
		return nil, err
	}
	return &t, nil
}

func toTopic(row *ent.Topic) Topic {
	return Topic{
		ID:        row.ID,
		Name:      row.Name,
		ParentID:  row.ParentID,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

// ListTopics returns every topic ordered by id. Children are not populated.
func (s *Store) ListTopics(ctx context.Context) ([]Topic, error) {
	rows, err := s.client.Topic.Query().
		Order(ent.Asc(topic.FieldID)).
		All(ctx)
	if err != nil {
		return nil, mapErr("list topics", err)
	}
	out := make([]Topic, len(rows))
	for i, row := range rows {
		out[i] = toTopic(row)
	}
	return out, nil
}

// TopicNames maps ids to names. Unknown ids are omitted.
func (s *Store) TopicNames(ctx context.Context, ids []int64) (map[string]int64, map[int64]string, error) {
	byID := make(map[int64]string, len(ids))
	byName := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return byName, byID, nil
	}
	rows, err := s.client.Topic.Query().
		Where(topic.IDIn(ids...)).
		All(ctx)
	if err != nil {
		return nil, nil, mapErr("topic names", err)
	}
	for _, row := range rows {
		byID[row.ID] = row.Name
		byName[row.Name] = row.ID
	}
	return byName, byID, nil
}

// AddRelationship inserts a typed edge. It fails with ErrDuplicateEdge if
// the identical triple exists. Cycles are not checked.
func (s *Store) AddRelationship(ctx context.Context, parentID, childID int64, typ RelType) error {
	const op = "add relationship"
	if !typ.Valid() {
		return apperr.Validation(op, "unknown relationship type %q", typ)
	}
	if parentID == childID {
		return apperr.Validation(op, "topic %d cannot relate to itself", parentID)
	}

	return s.inTx(ctx, op, func(tx *ent.Tx) error {
		for _, id := range []int64{parentID, childID} {
			ok, err := tx.Topic.Query().Where(topic.ID(id)).Exist(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.NotFound(op, "topic %d not found", id)
			}
		}

		err := tx.TopicRelationship.Create().
			SetParentID(parentID).
			SetChildID(childID).
			SetRelationshipType(string(typ)).
			SetCreatedAt(s.stamp()).
			Exec(ctx)
		if isConstraint(err) {
			return fmt.Errorf("%d -[%s]-> %d: %w", parentID, typ, childID, ErrDuplicateEdge)
		}
		return err
	})
}

// Children returns the ids of topics whose parent is topicID, oldest first.
func (s *Store) Children(ctx context.Context, topicID int64) ([]int64, error) {
	ids, err := s.children(ctx, topicID)
	return ids, mapErr("children", err)
}

func (s *Store) children(ctx context.Context, topicID int64) ([]int64, error) {
	return s.client.Topic.Query().
		Where(topic.ParentID(topicID)).
		Order(ent.Asc(topic.FieldID)).
		IDs(ctx)
}

// PrerequisitesOf returns the topics that are prerequisites of topicID.
func (s *Store) PrerequisitesOf(ctx context.Context, topicID int64) ([]int64, error) {
	edges, err := s.client.TopicRelationship.Query().
		Where(
			topicrelationship.ChildID(topicID),
			topicrelationship.RelationshipType(string(RelPrerequisite)),
		).
		Order(ent.Asc(topicrelationship.FieldParentID)).
		All(ctx)
	if err != nil {
		return nil, mapErr("prerequisites", err)
	}
	ids := make([]int64, len(edges))
	for i, e := range edges {
		ids[i] = e.ParentID
	}
	return ids, nil
}

// RelatedOf returns the topics joined to topicID by a related edge in
// either direction.
func (s *Store) RelatedOf(ctx context.Context, topicID int64) ([]int64, error) {
	edges, err := s.client.TopicRelationship.Query().
		Where(
			topicrelationship.RelationshipType(string(RelRelated)),
			topicrelationship.Or(
				topicrelationship.ParentID(topicID),
				topicrelationship.ChildID(topicID),
			),
		).
		All(ctx)
	if err != nil {
		return nil, mapErr("related", err)
	}
	ids := make([]int64, 0, len(edges))
	for _, e := range edges {
		if e.ParentID == topicID {
			ids = append(ids, e.ChildID)
		} else {
			ids = append(ids, e.ParentID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// Relationships returns every edge, ordered by (parent, child, type).
func (s *Store) Relationships(ctx context.Context) ([]Relationship, error) {
	edges, err := s.client.TopicRelationship.Query().
		Order(
			ent.Asc(topicrelationship.FieldParentID),
			ent.Asc(topicrelationship.FieldChildID),
			ent.Asc(topicrelationship.FieldRelationshipType),
		).
		All(ctx)
	if err != nil {
		return nil, mapErr("relationships", err)
	}
	out := make([]Relationship, len(edges))
	for i, e := range edges {
		out[i] = Relationship{ParentID: e.ParentID, ChildID: e.ChildID, Type: RelType(e.RelationshipType)}
	}
	return out, nil
}
