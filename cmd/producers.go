package cmd

import (
	"context"

	"github.com/conneroisu/sitepipe/internal/pipeline"
	"github.com/conneroisu/sitepipe/internal/services"
	"github.com/spf13/cobra"
)

// producerCommand runs one producer on its own, once or watching.
func producerCommand(use string, aliases []string, short, long string, pick func(*services.App) pipeline.Producer) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:     use,
		Aliases: aliases,
		Short:   short,
		Long:    long,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			p := pick(app)
			run := p.Build
			if watch {
				run = p.Watch
			}
			return pipeline.Run(cmd.Context(), pipeline.NewTask(use, func(ctx context.Context) error {
				return run(ctx)
			}), app.Logger)
		},
	}
	addWatchFlag(cmd, &watch)
	return cmd
}

func init() {
	rootCmd.AddCommand(
		producerCommand("eleventy", []string{"content"},
			"Run the content generator",
			`Run the content generator once, or in its own watch mode with --watch.`,
			func(a *services.App) pipeline.Producer { return a.Content }),
		producerCommand("css", nil,
			"Compile the stylesheet",
			`Compile the stylesheet entry through the post-processing chain of the
selected environment. With --watch, recompile when stylesheet sources or,
in production, the generated markup change.`,
			func(a *services.App) pipeline.Producer { return a.Styles }),
		producerCommand("js", nil,
			"Bundle the scripts",
			`Bundle every script entry point. With --watch, rebuild on changes to any
bundled file.`,
			func(a *services.App) pipeline.Producer { return a.Scripts }),
	)
}
