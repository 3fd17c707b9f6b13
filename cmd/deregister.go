package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deregisterOptions clientOptions

var deregisterCmd = &cobra.Command{
	Use:   "deregister <service>",
	Short: "Remove a service from the registry",
	Long: `Removes a service from the registry of a running server. A service that
is still present in a discovery source is registered again by the next
discovery cycle.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := deregisterOptions.client().Deregister(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if deregisterOptions.output != "table" {
			return deregisterOptions.formatter(cmd).FormatData(res)
		}
		if res.Removed {
			fmt.Fprintf(cmd.OutOrStdout(), "Service %s removed\n", res.Name)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Service %s was not registered\n", res.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deregisterCmd)
	deregisterOptions.register(deregisterCmd)
}
