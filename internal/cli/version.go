package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput(cmd) {
			return printJSON(cmd, map[string]string{"version": version, "go": runtime.Version()})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "finquest version %s (%s)\n", version, runtime.Version())
		return nil
	},
}
