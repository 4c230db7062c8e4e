package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrepeneur4lyf/bookchat/internal/tui"
)

var (
	citeRaw   bool
	citeWidth int
)

var citeCmd = &cobra.Command{
	Use:   "cite <url>",
	Short: "Preview the textbook section behind a citation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bookchat.previewer == nil {
			return errors.New("citation previews need a valid docs.url")
		}

		preview, err := bookchat.previewer.Preview(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if citeRaw {
			fmt.Fprintf(out, "%s\n%s\n\n%s\n", preview.Title, preview.URL, preview.Markdown)
			return nil
		}

		md, err := tui.NewMarkdownRenderer(citeWidth)
		if err != nil {
			return err
		}
		theme := tui.DefaultTheme()
		fmt.Fprintln(out, theme.Header.Render(preview.Title))
		fmt.Fprintln(out, theme.Muted.Render(preview.URL))
		fmt.Fprintln(out)
		fmt.Fprintln(out, md.Render(preview.Markdown))
		return nil
	},
}

func init() {
	citeCmd.Flags().BoolVar(&citeRaw, "raw", false, "Print markdown without styling")
	citeCmd.Flags().IntVar(&citeWidth, "width", 80, "Wrap width")
}
