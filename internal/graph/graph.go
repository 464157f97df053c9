// Package graph is an in-memory view of the topic prerequisite graph,
// loaded from the store. The store does not enforce acyclicity; this
// package reports cycles instead of rejecting them.
package graph

import (
	"context"
	"fmt"
	"slices"

	"github.com/abhisek/ascend/internal/store"
)

// Source is the part of the store the graph is loaded from.
type Source interface {
	ListTopics(ctx context.Context) ([]store.Topic, error)
	Relationships(ctx context.Context) ([]store.Relationship, error)
}

// Graph holds the prerequisite graph with precomputed indices.
type Graph struct {
	topics     []store.Topic
	byID       map[int64]*store.Topic
	prereqs    map[int64][]int64
	dependents map[int64][]int64
	related    map[int64][]int64
	topoOrder  []int64
	cyclic     []int64
}

// Load reads every topic and edge from src.
func Load(ctx context.Context, src Source) (*Graph, error) {
	topics, err := src.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("load topics: %w", err)
	}
	edges, err := src.Relationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("load relationships: %w", err)
	}
	return Build(topics, edges), nil
}

// Build constructs the graph and its topological order (Kahn's algorithm).
// Edges that reference unknown topics are ignored.
func Build(topics []store.Topic, edges []store.Relationship) *Graph {
	g := &Graph{
		topics:     topics,
		byID:       make(map[int64]*store.Topic, len(topics)),
		prereqs:    make(map[int64][]int64),
		dependents: make(map[int64][]int64),
		related:    make(map[int64][]int64),
	}
	for i := range g.topics {
		g.byID[g.topics[i].ID] = &g.topics[i]
	}

	for _, e := range edges {
		if g.byID[e.ParentID] == nil || g.byID[e.ChildID] == nil {
			continue
		}
		switch e.Type {
		case store.RelPrerequisite:
			g.prereqs[e.ChildID] = append(g.prereqs[e.ChildID], e.ParentID)
			g.dependents[e.ParentID] = append(g.dependents[e.ParentID], e.ChildID)
		case store.RelRelated:
			g.related[e.ChildID] = append(g.related[e.ChildID], e.ParentID)
			g.related[e.ParentID] = append(g.related[e.ParentID], e.ChildID)
		}
	}
	for _, m := range []map[int64][]int64{g.prereqs, g.dependents, g.related} {
		for id, ids := range m {
			slices.Sort(ids)
			m[id] = slices.Compact(ids)
		}
	}

	inDegree := make(map[int64]int, len(topics))
	var queue []int64
	for _, t := range g.topics {
		inDegree[t.ID] = len(g.prereqs[t.ID])
		if inDegree[t.ID] == 0 {
			queue = append(queue, t.ID)
		}
	}
	// Sort initial queue for deterministic ordering.
	slices.Sort(queue)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		g.topoOrder = append(g.topoOrder, id)

		for _, dep := range g.dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	// Whatever Kahn could not drain sits on a cycle or downstream of one.
	for _, t := range g.topics {
		if inDegree[t.ID] > 0 {
			g.cyclic = append(g.cyclic, t.ID)
		}
	}
	slices.Sort(g.cyclic)
	return g
}

// Topic returns the topic with the given id.
func (g *Graph) Topic(id int64) (store.Topic, bool) {
	t, ok := g.byID[id]
	if !ok {
		return store.Topic{}, false
	}
	return *t, true
}

// Len returns the number of topics.
func (g *Graph) Len() int { return len(g.topics) }

// Prerequisites returns the direct prerequisites of id.
func (g *Graph) Prerequisites(id int64) []int64 {
	return slices.Clone(g.prereqs[id])
}

// Dependents returns the topics that directly require id.
func (g *Graph) Dependents(id int64) []int64 {
	return slices.Clone(g.dependents[id])
}

// Related returns the topics joined to id by a related edge.
func (g *Graph) Related(id int64) []int64 {
	return slices.Clone(g.related[id])
}

// TopologicalOrder returns every topic not blocked by a cycle, prerequisites
// first.
func (g *Graph) TopologicalOrder() []int64 {
	return slices.Clone(g.topoOrder)
}

// Cyclic returns the topics that lie on, or depend on, a prerequisite
// cycle. It is empty for an acyclic graph.
func (g *Graph) Cyclic() []int64 {
	return slices.Clone(g.cyclic)
}

// HasCycle reports whether any prerequisite cycle exists.
func (g *Graph) HasCycle() bool { return len(g.cyclic) > 0 }

// IsUnlocked reports whether every prerequisite of id is mastered.
func (g *Graph) IsUnlocked(id int64, mastered map[int64]bool) bool {
	if g.byID[id] == nil {
		return false
	}
	for _, p := range g.prereqs[id] {
		if !mastered[p] {
			return false
		}
	}
	return true
}

// Available returns the unlocked, unmastered topics in topological order.
// Topics on a cycle are never available through the cycle's edges, so they
// are listed after the ordered ones only when their own prerequisites are
// all mastered.
func (g *Graph) Available(mastered map[int64]bool) []int64 {
	var out []int64
	for _, list := range [][]int64{g.topoOrder, g.cyclic} {
		for _, id := range list {
			if !mastered[id] && g.IsUnlocked(id, mastered) {
				out = append(out, id)
			}
		}
	}
	return out
}
