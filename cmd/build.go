package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Build the site once",
	Long: `Build the site once and exit.

In development the content generator, stylesheet and scripts build in
parallel. In production the content and scripts build first and the
stylesheet is compiled against the generated markup, with unused rules
removed, prefixed and minified.

Examples:
  sitepipe build
  sitepipe build --production
  NODE_ENV=production sitepipe build`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}

	start := time.Now()
	printInfo(cmd.ErrOrStderr(), "Building %s site", app.Config.Environment)
	if err := app.Build(cmd.Context()); err != nil {
		return err
	}
	printSuccess(cmd.ErrOrStderr(), "Build complete in %s", time.Since(start).Round(time.Millisecond))
	return nil
}
