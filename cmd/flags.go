package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// levelFlag parses --log-level when the flag is set, so a typo fails before
// anything runs.
type levelFlag struct {
	level logging.LogLevel
	raw   string
}

var _ pflag.Value = (*levelFlag)(nil)

func (f *levelFlag) String() string {
	if f.raw == "" {
		return strings.ToLower(f.level.String())
	}
	return f.raw
}

func (f *levelFlag) Set(s string) error {
	level, err := logging.ParseLevel(s)
	if err != nil {
		return err
	}
	f.level, f.raw = level, s
	return nil
}

func (*levelFlag) Type() string { return "level" }

// choiceFlag accepts one of a fixed set of values.
type choiceFlag struct {
	value   string
	choices []string
}

var _ pflag.Value = (*choiceFlag)(nil)

func (f *choiceFlag) String() string { return f.value }

func (f *choiceFlag) Set(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	if !slices.Contains(f.choices, s) {
		return fmt.Errorf("must be one of %s", strings.Join(f.choices, ", "))
	}
	f.value = s
	return nil
}

func (*choiceFlag) Type() string { return "string" }

// addServerFlags adds the flags that override the server section.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("port", "p", 8080, "port to serve on")
	cmd.Flags().String("host", "localhost", "host to bind to")
	cmd.Flags().Bool("open", false, "open the site in a browser once serving")

	_ = viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.open", cmd.Flags().Lookup("open"))
}

// addWatchFlag adds --watch to a single-producer command.
func addWatchFlag(cmd *cobra.Command, watch *bool) {
	cmd.Flags().BoolVarP(watch, "watch", "w", false, "keep rebuilding on changes until interrupted")
}
