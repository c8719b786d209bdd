package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/takuphilchan/alezia-client/internal/output"
	"github.com/takuphilchan/alezia-client/internal/resources"
	"github.com/takuphilchan/alezia-client/pkg/api"
)

var (
	traitName   string
	traitReason string
)

var traitsCmd = &cobra.Command{
	Use:   "traits",
	Short: "Inspect and adjust personality traits",
}

var traitsListCmd = &cobra.Command{
	Use:   "list <character-id>",
	Short: "Show a character's traits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		traits, err := a.Resources.Traits.List(cmd.Context(), api.ID(args[0]))
		if err != nil {
			return err
		}
		if output.JSONMode {
			return output.PrintJSON(traits)
		}

		printSection(fmt.Sprintf("Traits (%d)", len(traits.Traits)))
		for _, t := range traits.Traits {
			printItem(t.Name, fmt.Sprintf("%s %+.2f", traitBar(t.Value), t.Value))
		}
		fmt.Println()
		return nil
	},
}

var traitsHistoryCmd = &cobra.Command{
	Use:   "history <character-id>",
	Short: "Show how traits have changed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		changes, err := a.Resources.Traits.History(cmd.Context(), api.ID(args[0]), traitName)
		if err != nil {
			return err
		}
		if output.JSONMode {
			output.PrintList("changes", changes)
			return nil
		}

		printSection(fmt.Sprintf("Trait history (%d)", len(changes)))
		for _, c := range changes {
			line := fmt.Sprintf("%s %.2f %s %.2f", c.TraitName, c.OldValue, iconArrow, c.NewValue)
			if c.Reason != "" {
				line += fmt.Sprintf(" %s%s%s", brandMuted, c.Reason, colorReset)
			}
			printBullet(line)
		}
		fmt.Println()
		return nil
	},
}

var traitsSetCmd = &cobra.Command{
	Use:     "set <character-id> <trait> <value>",
	Short:   "Set a trait to a value between -1 and 1",
	Example: `  alezia traits set 1 openness 0.7 --reason "travelled far"`,
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("%w: trait value %q is not a number", resources.ErrInvalidArgument, args[2])
		}

		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := a.Resources.Traits.Update(cmd.Context(), api.ID(args[0]), args[1], value, traitReason)
		if err != nil {
			return err
		}
		if output.JSONMode {
			output.Success(res.Message, res)
			return nil
		}
		printSuccess(fmt.Sprintf("%s is now %+.2f", args[1], res.NewValue))
		return nil
	},
}

func init() {
	traitsHistoryCmd.Flags().StringVar(&traitName, "trait", "", "Only changes of this trait")
	traitsSetCmd.Flags().StringVar(&traitReason, "reason", "", "Why the trait changed")

	traitsCmd.AddCommand(traitsListCmd, traitsHistoryCmd, traitsSetCmd)
	rootCmd.AddCommand(traitsCmd)
}

// traitBar draws value in [-1, 1] as a ten cell bar centred on zero
func traitBar(value float64) string {
	const half = 5
	cells := int(value*half + 0.5*sign(value))
	if cells > half {
		cells = half
	}
	if cells < -half {
		cells = -half
	}

	bar := make([]rune, 2*half)
	for i := range bar {
		bar[i] = '·'
	}
	if cells >= 0 {
		for i := half; i < half+cells; i++ {
			bar[i] = '█'
		}
	} else {
		for i := half + cells; i < half; i++ {
			bar[i] = '█'
		}
	}
	return brandPrimary + string(bar) + colorReset
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
