package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"switchyard/internal/api"
	"switchyard/internal/discovery"
)

var statusOptions clientOptions

var statusCmd = &cobra.Command{
	Use:   "status [service]",
	Short: "Show one service, or the overall control plane status",
	Long: `With a service name, shows its registration and health.

Without arguments, shows the configured discovery scanners, the last
discovery cycle and every registered service.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	c := statusOptions.client()
	f := statusOptions.formatter(cmd)

	if len(args) == 1 {
		status, err := c.GetService(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return f.FormatService(status)
	}

	disc, err := c.DiscoveryStatus(cmd.Context())
	if err != nil {
		return err
	}
	statuses, err := c.ListServices(cmd.Context(), api.ListFilter{})
	if err != nil {
		return err
	}

	if statusOptions.output != "table" {
		return f.FormatData(map[string]interface{}{
			"discovery": disc,
			"services":  statuses,
		})
	}

	if !statusOptions.quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Scanners: %v\n", disc.Scanners)
	}
	last := discovery.CycleSummary{}
	if disc.LastCycle != nil {
		last = *disc.LastCycle
	}
	if err := f.FormatCycle(last); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return f.FormatServices(statuses)
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusOptions.register(statusCmd)
}
