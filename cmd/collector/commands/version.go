package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// set via -ldflags "-X review_collector/cmd/collector/commands.version=..."
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the collector version.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
