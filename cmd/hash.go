package cmd

import (
	"fmt"
	"io"
	"os"

	siteerrors "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/fsutil"
	"github.com/spf13/cobra"
)

var hashCmd = &cobra.Command{
	Use:   "hash <file|->",
	Short: "Print the content hash used for cache busting",
	Long: `Print the hex md5 digest of a file, or of standard input when the
argument is "-".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return siteerrors.NewIOError(siteerrors.ErrCodeReadFile, "failed to read input", err).WithPath(args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), fsutil.HashBytes(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashCmd)
}
