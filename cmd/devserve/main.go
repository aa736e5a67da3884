package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vango-dev/devserve/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌┬┐┌─┐┬  ┬┌─┐┌─┐┬─┐┬  ┬┌─┐
   ││├┤ └┐┌┘└─┐├┤ ├┬┘└┐┌┘├┤
  ─┴┘└─┘ └┘ └─┘└─┘┴└─ └┘ └─┘
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Flag and argument errors from cobra carry no code.
		errors.PrintError(errors.FromError(err, "E100"))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := serveCmd()
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// printBanner prints the ASCII art banner.
func printBanner() {
	color.New(color.FgCyan).Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("%s %s\n", color.YellowString("⚠"), fmt.Sprintf(format, args...))
}
