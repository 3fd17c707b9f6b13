package cmd

import (
	"github.com/spf13/cobra"
)

var probeOptions clientOptions

var probeCmd = &cobra.Command{
	Use:   "probe <service>",
	Short: "Probe a service's health now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		record, err := probeOptions.client().Probe(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return probeOptions.formatter(cmd).FormatHealth(args[0], record)
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeOptions.register(probeCmd)
}
