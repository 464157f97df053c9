package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/ascend/internal/assessment"
	"github.com/abhisek/ascend/internal/logger"
	"github.com/abhisek/ascend/internal/store"
)

var masteryCmd = &cobra.Command{
	Use:   "mastery",
	Short: "Inspect and repair mastery records",
}

var masteryShowCmd = &cobra.Command{
	Use:   "show <student>",
	Short: "Show a student's mastery per topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		recs, err := s.MasteryForStudent(ctx, args[0])
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Printf("No mastery records for %s.\n", args[0])
			return nil
		}
		ids := make([]int64, len(recs))
		for i, r := range recs {
			ids[i] = r.TopicID
		}
		_, names, err := s.TopicNames(ctx, ids)
		if err != nil {
			return err
		}

		fmt.Printf("%-32s  %7s  %9s  %-6s  %6s  %s\n", "Topic", "Mastery", "Answered", "Tier", "Streak", "Updated")
		fmt.Println(strings.Repeat("─", 90))
		for _, r := range recs {
			name := truncate(names[r.TopicID], 32)
			if r.Mastered {
				name = truncate(name, 30) + " ✓"
			}
			fmt.Printf("%-32s  %7.1f  %4d/%-4d  %-6s  %6d  %s\n",
				name, r.Level, r.Correct, r.Attempted, r.Difficulty, r.Streak,
				r.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var masteryResetCmd = &cobra.Command{
	Use:   "reset <student> <topic>",
	Short: "Start a student over on a topic",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		t, err := resolveTopic(cmd, s, args[1])
		if err != nil {
			return err
		}
		orch := assessment.New(s, nil, nil, nil, cfg.Assessment, logger.Nop())
		if err := orch.ResetTopic(cmd.Context(), args[0], t.ID); err != nil {
			return err
		}
		fmt.Printf("Reset %s on %s.\n", args[0], t.Name)
		return nil
	},
}

var masteryRebuildCmd = &cobra.Command{
	Use:   "rebuild [<student> <topic>]",
	Short: "Recompute mastery records from the answer log",
	Long: "Replay the answer log into fresh mastery records. With no\n" +
		"arguments every pair that has answers is rebuilt.",
	Args: cobra.MatchAll(cobra.RangeArgs(0, 2), func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return fmt.Errorf("give both a student and a topic, or neither")
		}
		return nil
	}),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx := cmd.Context()
		var pairs []store.Pair
		if len(args) == 2 {
			t, err := resolveTopic(cmd, s, args[1])
			if err != nil {
				return err
			}
			pairs = []store.Pair{{StudentID: args[0], TopicID: t.ID}}
		} else if pairs, err = s.AnswerPairs(ctx); err != nil {
			return err
		}

		for _, p := range pairs {
			rec, err := s.RebuildMastery(ctx, p.StudentID, p.TopicID)
			if err != nil {
				return fmt.Errorf("rebuild %s/%d: %w", p.StudentID, p.TopicID, err)
			}
			fmt.Printf("%-24s  %6d  %7.1f  %-6s  mastered=%v\n",
				truncate(p.StudentID, 24), p.TopicID, rec.Level, rec.Difficulty, rec.Mastered)
		}
		fmt.Printf("\n%d records rebuilt\n", len(pairs))
		return nil
	},
}

func init() {
	masteryCmd.AddCommand(masteryShowCmd)
	masteryCmd.AddCommand(masteryResetCmd)
	masteryCmd.AddCommand(masteryRebuildCmd)
}
