package cmd

import (
	"github.com/spf13/cobra"
)

var discoverOptions clientOptions

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run a discovery cycle now",
	Long: `Asks a running server to scan every discovery source immediately and
prints the cycle summary. A cycle already in progress is joined rather than
repeated.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := discoverOptions.client().TriggerDiscovery(cmd.Context())
		if err != nil {
			return err
		}
		return discoverOptions.formatter(cmd).FormatCycle(summary)
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverOptions.register(discoverCmd)
}
