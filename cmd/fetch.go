package cmd

import (
	"github.com/conneroisu/sitepipe/internal/assets"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url> <path>",
	Short: "Download a remote asset into the project",
	Long: `Download an HTTP or HTTPS resource to a local file, creating parent
directories. A failed or interrupted download leaves no file behind.

Examples:
  sitepipe fetch https://example.com/font.woff2 src/fonts/font.woff2`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := assets.NewDownloader(nil, newLogger()).Download(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		printSuccess(cmd.ErrOrStderr(), "Saved %s", args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
