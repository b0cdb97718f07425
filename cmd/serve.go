package cmd

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Build, watch and serve the site with live reload",
	Long: `Serve the output directory with live reload.

In development every producer watches its sources while the server runs;
a producer that fails keeps the others running and its error is shown in
the browser. In production the site is built once and then served.

Examples:
  sitepipe serve
  sitepipe serve --port 3000 --open
  sitepipe serve --production`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServerFlags(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := loadApp()
	if err != nil {
		return err
	}

	opts := app.ServerOptions()
	printInfo(cmd.ErrOrStderr(), "Serving %s on %s:%d (%s)", opts.Root, opts.Host, opts.Port, app.Config.Environment)
	if err := app.Serve(cmd.Context()); err != nil {
		return err
	}
	printInfo(cmd.ErrOrStderr(), "Stopped")
	return nil
}
