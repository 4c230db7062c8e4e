package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or reset the saved conversation",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		state := bookchat.store.Snapshot()

		fmt.Fprintf(out, "Session: %s\n", state.SessionID)
		fmt.Fprintf(out, "Started: %s\n", state.CreatedAt.Local().Format(time.DateTime))
		fmt.Fprintf(out, "Last activity: %s\n", state.LastActivity.Local().Format(time.DateTime))
		fmt.Fprintf(out, "Messages: %d/%d\n", state.MessageCount, bookchat.cfg.Session.MaxMessages)

		for _, msg := range state.Messages {
			fmt.Fprintf(out, "\n[%s] %s\n%s\n", msg.Time().Local().Format(time.TimeOnly), msg.Role, msg.Content)
			if msg.MessageID != "" {
				fmt.Fprintf(out, "message id: %s\n", msg.MessageID)
			}
		}
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the saved conversation and start a new one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bookchat.controller.ClearChat()
		fmt.Fprintf(cmd.OutOrStdout(), "Started new session %s\n", bookchat.store.SessionID())
		return nil
	},
}

func init() {
	sessionCmd.AddCommand(sessionShowCmd, sessionClearCmd)
}
