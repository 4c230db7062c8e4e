package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrepeneur4lyf/bookchat/internal/api"
)

var (
	issueType        string
	issueDescription string
)

var feedbackCmd = &cobra.Command{
	Use:       "feedback <message-id> up|down",
	Short:     "Rate an answer",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{string(api.RatingUp), string(api.RatingDown)},
	RunE: func(cmd *cobra.Command, args []string) error {
		req := api.FeedbackRequest{
			MessageID: args[0],
			Rating:    api.Rating(strings.ToLower(args[1])),
		}
		resp, err := bookchat.client.SubmitFeedback(cmd.Context(), req)
		if err != nil {
			return err
		}

		msg := resp.Message
		if msg == "" {
			msg = "Thanks for the feedback"
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <message-id>",
	Short: "Report a problem with an answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := api.ReportIssueRequest{
			MessageID:   args[0],
			IssueType:   api.IssueType(strings.ToLower(issueType)),
			Description: issueDescription,
		}
		resp, err := bookchat.client.ReportIssue(cmd.Context(), req)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if resp.IssueID != "" {
			fmt.Fprintf(out, "Issue reported: %s\n", resp.IssueID)
		} else {
			fmt.Fprintln(out, "Issue reported")
		}
		return nil
	},
}

func init() {
	types := make([]string, len(api.IssueTypes))
	for i, t := range api.IssueTypes {
		types[i] = string(t)
	}
	reportCmd.Flags().StringVarP(&issueType, "type", "t", string(api.IssueIncorrect), "Issue type ("+strings.Join(types, ", ")+")")
	reportCmd.Flags().StringVarP(&issueDescription, "description", "d", "", "What is wrong, up to 1000 characters")
}
