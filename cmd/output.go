package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

const banner = "[sitepipe]"

func printSuccess(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s %s\n", color.GreenString(banner), fmt.Sprintf(format, args...))
}

func printError(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s %s\n", color.RedString(banner), fmt.Sprintf(format, args...))
}

func printInfo(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s %s\n", color.CyanString(banner), fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s %s\n", color.YellowString(banner), fmt.Sprintf(format, args...))
}
