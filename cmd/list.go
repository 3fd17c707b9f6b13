package cmd

import (
	"github.com/spf13/cobra"

	"switchyard/internal/api"
)

var (
	listOptions  clientOptions
	listTags     []string
	listKind     string
	listRequired bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered services and their health",
	Long: `Lists the services in the registry of a running switchyard server.

Filters combine: every --tag must be present, --kind must match and
--required limits the list to required services.

Examples:
  switchyard list
  switchyard list --tag search --tag web
  switchyard list --kind containerized -o json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	statuses, err := listOptions.client().ListServices(cmd.Context(), api.ListFilter{
		Tags:         listTags,
		Kind:         api.ServiceKind(listKind),
		RequiredOnly: listRequired,
	})
	if err != nil {
		return err
	}
	return listOptions.formatter(cmd).FormatServices(statuses)
}

func init() {
	rootCmd.AddCommand(listCmd)

	listOptions.register(listCmd)
	listCmd.Flags().StringSliceVar(&listTags, "tag", nil, "Only services carrying this tag (repeatable)")
	listCmd.Flags().StringVar(&listKind, "kind", "", "Only services of this kind (local-process, containerized, external-third-party)")
	listCmd.Flags().BoolVar(&listRequired, "required", false, "Only required services")
}
