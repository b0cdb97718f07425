package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/conneroisu/sitepipe/internal/version"
	"github.com/spf13/cobra"
)

var (
	versionFormat = choiceFlag{value: "text", choices: []string{"text", "json"}}
	versionShort  bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the version, commit, build time and the versions of the
bundled CSS and JavaScript engines.

Examples:
  sitepipe version
  sitepipe version --short
  sitepipe version --format json`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().VarP(&versionFormat, "format", "f", "output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "show the short version only")
}

func runVersion(cmd *cobra.Command, _ []string) error {
	info := version.GetBuildInfo()
	out := cmd.OutOrStdout()

	switch {
	case versionFormat.value == "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(info)
	case versionShort:
		fmt.Fprintln(out, info.Short())
	default:
		fmt.Fprintln(out, info.String())
	}
	return nil
}
