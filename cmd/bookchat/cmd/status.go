package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backend health and textbook indexing status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		client := bookchat.client

		fmt.Fprintf(out, "Backend: %s\n", client.BaseURL())
		if health, err := client.Health(ctx); err != nil {
			fmt.Fprintf(out, "Health: unavailable (%v)\n", err)
		} else {
			fmt.Fprintf(out, "Health: %s (qdrant: %s, database: %s)\n", health.Status, health.Qdrant, health.Database)
		}

		status := client.ContentStatus(ctx)
		indexing := "complete"
		if !status.IndexingComplete {
			indexing = "in progress"
		}
		fmt.Fprintf(out, "Content version: %s (updated %s)\n", status.ContentVersion, status.LastUpdated)
		fmt.Fprintf(out, "Indexing: %s, %d chunks\n", indexing, status.TotalChunks)
		if len(status.IndexedModules) > 0 {
			fmt.Fprintf(out, "Modules: %s\n", strings.Join(status.IndexedModules, ", "))
		}
		return nil
	},
}
