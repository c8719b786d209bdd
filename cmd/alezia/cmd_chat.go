package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/takuphilchan/alezia-client/internal/output"
	"github.com/takuphilchan/alezia-client/pkg/api"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to a character",
	Long: `Opens chat sessions and exchanges messages. With --mock, replies are
synthesized locally when the backend cannot be reached and are marked as such.`,
	Example: `  alezia chat start 1
  alezia chat send 5 "Hello there"
  alezia chat history 5`,
}

var chatStartCmd = &cobra.Command{
	Use:   "start <character-id>",
	Short: "Open a chat session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		session, err := a.Resources.Chat.CreateSession(cmd.Context(), api.ID(args[0]))
		if err != nil {
			return err
		}
		if output.JSONMode {
			return output.PrintJSON(session)
		}
		printSuccess(fmt.Sprintf("Session %s opened with character %s%s", session.ID, session.CharacterID, mockTag(session.Mock)))
		printInfo(fmt.Sprintf("Send a message: alezia chat send %s \"...\"", session.ID))
		return nil
	},
}

var chatSendCmd = &cobra.Command{
	Use:   "send <session-id> <message>",
	Short: "Send a message and print the reply",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		content := strings.Join(args[1:], " ")
		reply, err := a.Resources.Chat.SendMessage(cmd.Context(), api.ID(args[0]), content)
		if err != nil {
			return err
		}
		if output.JSONMode {
			return output.PrintJSON(reply)
		}
		printMessage(*reply)
		return nil
	},
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Show the messages of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, cleanup, err := connectedApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		messages, err := a.Resources.Chat.History(cmd.Context(), api.ID(args[0]))
		if err != nil {
			return err
		}
		if output.JSONMode {
			output.PrintList("messages", messages)
			return nil
		}

		printSection(fmt.Sprintf("Session %s (%d messages)", args[0], len(messages)))
		for _, m := range messages {
			printMessage(m)
		}
		return nil
	},
}

func init() {
	chatCmd.AddCommand(chatStartCmd, chatSendCmd, chatHistoryCmd)
	rootCmd.AddCommand(chatCmd)
}

func printMessage(m api.ChatMessage) {
	color, who := brandPrimary, "you"
	if m.Sender != "user" {
		color, who = brandSecondary, "character"
	}
	fmt.Printf("%s%s%s%s%s %s\n", color, colorBold, who, colorReset, mockTag(m.Mock), m.Content)
}

func mockTag(mock bool) string {
	if !mock {
		return ""
	}
	return fmt.Sprintf(" %s[offline]%s", brandAccent, colorReset)
}
