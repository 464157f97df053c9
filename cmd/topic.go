package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/ascend/internal/assessment"
	"github.com/abhisek/ascend/internal/graph"
	"github.com/abhisek/ascend/internal/logger"
	"github.com/abhisek/ascend/internal/store"
)

var topicCmd = &cobra.Command{
	Use:   "topic",
	Short: "Manage the topic graph",
}

var topicAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a topic (idempotent)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parent, _ := cmd.Flags().GetString("parent")
		_, s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		id, err := s.UpsertTopic(cmd.Context(), args[0], parent)
		if err != nil {
			return err
		}
		fmt.Printf("%d\t%s\n", id, store.NormalizeTopicName(args[0]))
		return nil
	},
}

var topicLinkCmd = &cobra.Command{
	Use:   "link <parent> <child>",
	Short: "Add a relationship between two topics (by id or name)",
	Long: "Add a typed edge. For a prerequisite edge the parent must be\n" +
		"learned before the child.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		_, s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		parent, err := resolveTopic(cmd, s, args[0])
		if err != nil {
			return err
		}
		child, err := resolveTopic(cmd, s, args[1])
		if err != nil {
			return err
		}
		if err := s.AddRelationship(ctx, parent.ID, child.ID, store.RelType(typ)); err != nil {
			return err
		}
		fmt.Printf("%s -[%s]-> %s\n", parent.Name, typ, child.Name)
		return nil
	},
}

var topicListCmd = &cobra.Command{
	Use:   "list",
	Short: "List topics in prerequisite order",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		g, err := graph.Load(cmd.Context(), s)
		if err != nil {
			return err
		}
		if g.Len() == 0 {
			fmt.Println("No topics yet.")
			return nil
		}

		fmt.Printf("%-6s  %-40s  %-8s  %s\n", "ID", "Name", "Parent", "Prerequisites")
		fmt.Println(strings.Repeat("\u2500", 80))
		for _, id := range append(g.TopologicalOrder(), g.Cyclic()...) {
			t, _ := g.Topic(id)
			parent := "-"
			if t.ParentID != nil {
				parent = strconv.FormatInt(*t.ParentID, 10)
			}
			fmt.Printf("%-6d  %-40s  %-8s  %s\n", t.ID, truncate(t.Name, 40), parent, joinIDs(g.Prerequisites(id)))
		}
		fmt.Printf("\n%d topics\n", g.Len())
		return nil
	},
}

var topicPrereqsCmd = &cobra.Command{
	Use:   "prereqs <topic>",
	Short: "Show a topic's prerequisites and related topics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		t, err := resolveTopic(cmd, s, args[0])
		if err != nil {
			return err
		}
		g, err := graph.Load(cmd.Context(), s)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%d)\n", t.Name, t.ID)
		printTopics(g, "Prerequisites", g.Prerequisites(t.ID))
		printTopics(g, "Unlocks", g.Dependents(t.ID))
		printTopics(g, "Related", g.Related(t.ID))
		return nil
	},
}

var topicCyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Report topics caught in prerequisite cycles",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		g, err := graph.Load(cmd.Context(), s)
		if err != nil {
			return err
		}
		if !g.HasCycle() {
			fmt.Println("No prerequisite cycles.")
			return nil
		}
		printTopics(g, "On or behind a cycle", g.Cyclic())
		return nil
	},
}

var topicAvailableCmd = &cobra.Command{
	Use:   "available <student>",
	Short: "List the topics a student can study next",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		orch := assessment.New(s, nil, nil, nil, cfg.Assessment, logger.Nop())
		ids, err := orch.AvailableTopics(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		g, err := graph.Load(cmd.Context(), s)
		if err != nil {
			return err
		}
		printTopics(g, "Available to "+args[0], ids)
		return nil
	},
}

// resolveTopic looks a topic up by numeric id, falling back to its name.
func resolveTopic(cmd *cobra.Command, s *store.Store, ref string) (*store.Topic, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.Topic(cmd.Context(), id)
	}
	t, err := s.TopicByName(cmd.Context(), ref)
	if err != nil {
		return nil, fmt.Errorf("topic %q: %w", ref, err)
	}
	return t, nil
}

func printTopics(g *graph.Graph, label string, ids []int64) {
	fmt.Printf("%s:\n", label)
	if len(ids) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, id := range ids {
		t, _ := g.Topic(id)
		fmt.Printf("  %-6d  %s\n", id, t.Name)
	}
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func init() {
	topicAddCmd.Flags().String("parent", "", "Name of the parent topic (created if absent)")
	topicLinkCmd.Flags().String("type", string(store.RelPrerequisite), "Relationship type: prerequisite or related")

	topicCmd.AddCommand(topicAddCmd)
	topicCmd.AddCommand(topicLinkCmd)
	topicCmd.AddCommand(topicListCmd)
	topicCmd.AddCommand(topicPrereqsCmd)
	topicCmd.AddCommand(topicCyclesCmd)
	topicCmd.AddCommand(topicAvailableCmd)
}
