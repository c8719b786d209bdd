package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/takuphilchan/alezia-client/internal/output"
	"github.com/takuphilchan/alezia-client/internal/resources"
	"github.com/takuphilchan/alezia-client/pkg/api"
)

var (
	memListLimit        int
	memRelevantLimit    int
	memSubject          string
	memRecencyWeight    float64
	memImportanceWeight float64
)

var memoriesCmd = &cobra.Command{
	Use:     "memories",
	Aliases: []string{"memory"},
	Short:   "Inspect and curate character memories",
}

var memoriesListCmd = &cobra.Command{
	Use:   "list <character-id>",
	Short: "List a character's memories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		memories, err := a.Resources.Memories.List(cmd.Context(), api.ID(args[0]), memListLimit)
		if err != nil {
			return err
		}
		if output.JSONMode {
			output.PrintList("memories", memories)
			return nil
		}

		printSection(fmt.Sprintf("Memories (%d)", len(memories)))
		for _, m := range memories {
			printMemory(m, "")
		}
		fmt.Println()
		return nil
	},
}

var memoriesFactsCmd = &cobra.Command{
	Use:   "facts <character-id>",
	Short: "List facts a character has learned",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		facts, err := a.Resources.Memories.Facts(cmd.Context(), api.ID(args[0]), memSubject)
		if err != nil {
			return err
		}
		if output.JSONMode {
			output.PrintList("facts", facts)
			return nil
		}

		printSection(fmt.Sprintf("Facts (%d)", len(facts)))
		for _, f := range facts {
			printBullet(fmt.Sprintf("%s %s%s%s %s %s(%.0f%%)%s",
				f.Subject, brandPrimary, f.Predicate, colorReset, f.Object, brandMuted, f.Confidence*100, colorReset))
		}
		fmt.Println()
		return nil
	},
}

var memoriesImportanceCmd = &cobra.Command{
	Use:   "importance <memory-id> <0-10>",
	Short: "Set how important a memory is",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		importance, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("%w: importance %q is not a number", resources.ErrInvalidArgument, args[1])
		}

		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := a.Resources.Memories.UpdateImportance(cmd.Context(), api.ID(args[0]), importance)
		if err != nil {
			return err
		}
		if output.JSONMode {
			return output.PrintJSON(res)
		}
		applied := importance
		if res.Importance != nil {
			applied = *res.Importance
		}
		printSuccess(fmt.Sprintf("Memory %s importance set to %g", args[0], applied))
		return nil
	},
}

var memoriesDeleteCmd = &cobra.Command{
	Use:   "delete <memory-id>",
	Short: "Forget a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := a.Resources.Memories.Delete(cmd.Context(), api.ID(args[0]))
		if err != nil {
			return err
		}
		if output.JSONMode {
			return output.PrintJSON(res)
		}
		printSuccess(fmt.Sprintf("Memory %s deleted", args[0]))
		return nil
	},
}

var memoriesMaintenanceCmd = &cobra.Command{
	Use:   "maintenance <character-id>",
	Short: "Run memory consolidation for a character",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := a.Resources.Memories.Maintenance(cmd.Context(), api.ID(args[0]))
		if err != nil {
			return err
		}
		if output.JSONMode {
			return output.PrintJSON(res)
		}
		printSuccess("Memory maintenance finished")
		for key, value := range res.Statistics {
			printItem(key, fmt.Sprint(value))
		}
		return nil
	},
}

var memoriesRelevantCmd = &cobra.Command{
	Use:   "relevant <character-id> <query>",
	Short: "Rank memories against a query",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		opts := resources.RelevantOptions{
			Limit:            memRelevantLimit,
			RecencyWeight:    memRecencyWeight,
			ImportanceWeight: memImportanceWeight,
		}
		ranked, err := a.Resources.Memories.Relevant(cmd.Context(), api.ID(args[0]), strings.Join(args[1:], " "), opts)
		if err != nil {
			return err
		}
		if output.JSONMode {
			output.PrintList("memories", ranked)
			return nil
		}

		printSection(fmt.Sprintf("Relevant memories (%d)", len(ranked)))
		for _, r := range ranked {
			printMemory(r.Memory, fmt.Sprintf("%.2f", r.RelevanceScore))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	defaults := resources.DefaultRelevantOptions()

	memoriesListCmd.Flags().IntVar(&memListLimit, "limit", 0, "Maximum number of memories")
	memoriesFactsCmd.Flags().StringVar(&memSubject, "subject", "", "Only facts about this subject")
	memoriesRelevantCmd.Flags().IntVar(&memRelevantLimit, "limit", defaults.Limit, "Maximum number of memories")
	memoriesRelevantCmd.Flags().Float64Var(&memRecencyWeight, "recency-weight", defaults.RecencyWeight, "Weight of recency, 0 to 1")
	memoriesRelevantCmd.Flags().Float64Var(&memImportanceWeight, "importance-weight", defaults.ImportanceWeight, "Weight of importance, 0 to 1")

	memoriesCmd.AddCommand(memoriesListCmd, memoriesFactsCmd, memoriesImportanceCmd, memoriesDeleteCmd, memoriesMaintenanceCmd, memoriesRelevantCmd)
	rootCmd.AddCommand(memoriesCmd)
}

func printMemory(m api.Memory, score string) {
	prefix := fmt.Sprintf("%s%s%s", brandPrimary, m.ID, colorReset)
	if score != "" {
		prefix += fmt.Sprintf(" %s%s%s", brandAccent, score, colorReset)
	}
	printBullet(fmt.Sprintf("%s %s %s(importance %.1f)%s", prefix, m.Content, brandMuted, m.Importance, colorReset))
}
