package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/takuphilchan/alezia-client/internal/output"
	"github.com/takuphilchan/alezia-client/pkg/api"
)

var (
	charDescription string
	charPersonality string
	charBackstory   string
	charUniverse    int
)

var charactersCmd = &cobra.Command{
	Use:     "characters",
	Aliases: []string{"chars"},
	Short:   "Manage characters",
}

var charactersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List characters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		chars, err := a.Resources.Characters.List(cmd.Context())
		if err != nil {
			return err
		}
		if output.JSONMode {
			output.PrintList("characters", chars)
			return nil
		}

		printSection(fmt.Sprintf("Characters (%d)", len(chars)))
		for _, c := range chars {
			line := fmt.Sprintf("%s%s%s %s", brandPrimary, c.ID, colorReset, c.Name)
			if c.Description != "" {
				line += fmt.Sprintf(" %s· %s%s", brandMuted, c.Description, colorReset)
			}
			printBullet(line)
		}
		fmt.Println()
		return nil
	},
}

var charactersGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one character",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		c, err := a.Resources.Characters.Get(cmd.Context(), api.ID(args[0]))
		if err != nil {
			return err
		}
		if output.JSONMode {
			return output.PrintJSON(c)
		}
		printCharacter(c)
		return nil
	},
}

var charactersCreateCmd = &cobra.Command{
	Use:     "create <name>",
	Short:   "Create a character",
	Example: `  alezia characters create "Ayla" --personality "curious, brave" --universe 1`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		req := api.CharacterCreateRequest{
			Name:        args[0],
			Description: charDescription,
			Personality: charPersonality,
			Backstory:   charBackstory,
		}
		if cmd.Flags().Changed("universe") {
			req.UniverseID = &charUniverse
		}

		c, err := a.Resources.Characters.Create(cmd.Context(), req)
		if err != nil {
			return err
		}
		if output.JSONMode {
			output.Success("Character created", c)
			return nil
		}
		printSuccess(fmt.Sprintf("Created character %s (id %s)", c.Name, c.ID))
		return nil
	},
}

var charactersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a character",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := a.Resources.Characters.Delete(cmd.Context(), api.ID(args[0]))
		if err != nil {
			return err
		}
		if output.JSONMode {
			output.Success(res.Message, nil)
			return nil
		}
		printSuccess(res.Message)
		return nil
	},
}

var charactersStateCmd = &cobra.Command{
	Use:   "state <id>",
	Short: "Show a character's mood and active traits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		state, err := a.Resources.Characters.State(cmd.Context(), api.ID(args[0]))
		if err != nil {
			return err
		}
		if output.JSONMode {
			return output.PrintJSON(state)
		}

		printSection("Character State")
		printItem("Mood", state.Mood)
		names := make([]string, 0, len(state.ActiveTraits))
		for name := range state.ActiveTraits {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			printItem(name, strconv.FormatFloat(state.ActiveTraits[name], 'f', 2, 64))
		}
		fmt.Println()
		return nil
	},
}

var universesCmd = &cobra.Command{
	Use:   "universes",
	Short: "Browse universes",
}

var universesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List universes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		universes, err := a.Resources.Universes.List(cmd.Context())
		if err != nil {
			return err
		}
		if output.JSONMode {
			output.PrintList("universes", universes)
			return nil
		}

		printSection(fmt.Sprintf("Universes (%d)", len(universes)))
		for _, u := range universes {
			printBullet(fmt.Sprintf("%s%s%s %s", brandPrimary, u.ID, colorReset, u.Name))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	charactersCreateCmd.Flags().StringVar(&charDescription, "description", "", "Short description")
	charactersCreateCmd.Flags().StringVar(&charPersonality, "personality", "", "Personality summary")
	charactersCreateCmd.Flags().StringVar(&charBackstory, "backstory", "", "Backstory")
	charactersCreateCmd.Flags().IntVar(&charUniverse, "universe", 0, "Universe id")

	charactersCmd.AddCommand(charactersListCmd, charactersGetCmd, charactersCreateCmd, charactersDeleteCmd, charactersStateCmd)
	universesCmd.AddCommand(universesListCmd)
	rootCmd.AddCommand(charactersCmd, universesCmd)
}

func printCharacter(c *api.Character) {
	printSection(c.Name)
	printItem("ID", c.ID.String())
	if c.Description != "" {
		printItem("Description", c.Description)
	}
	if c.Personality != "" {
		printItem("Personality", c.Personality)
	}
	if c.Universe != "" {
		printItem("Universe", c.Universe)
	}
	if !c.CreatedAt.IsZero() {
		printItem("Created", c.CreatedAt.Format("2006-01-02 15:04"))
	}
	if c.Backstory != "" {
		fmt.Println()
		fmt.Println(c.Backstory)
	}
	fmt.Println()
}
