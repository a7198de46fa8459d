package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bimmerbailey/sift/internal/preprocess"
)

// Version information set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sift %s (commit: %s, built: %s, preprocessor API: %s)\n",
			version, commit, date, preprocess.APIVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
