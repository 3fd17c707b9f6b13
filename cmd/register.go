package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"switchyard/internal/api"
	"switchyard/internal/discovery/manifest"
)

var (
	registerOptions  clientOptions
	registerFile     string
	registerKind     string
	registerLocation string
	registerProtocol string
	registerPriority string
	registerRequired bool
	registerTags     []string
)

var registerCmd = &cobra.Command{
	Use:   "register [name]",
	Short: "Register a service manually",
	Long: `Registers a service with a running server. Manual registrations take
precedence over discovered ones and are never removed by discovery.

The registration is given either as a manifest file (the same YAML or JSON
format the manifest scanner reads) or with flags.

Examples:
  switchyard register -f services.d/echo.yaml
  switchyard register search --kind external-third-party \
      --location https://search.example.com --protocol http --tag web`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRegister,
}

func runRegister(cmd *cobra.Command, args []string) error {
	reg, err := registrationFromFlags(args)
	if err != nil {
		return err
	}

	res, err := registerOptions.client().Register(cmd.Context(), reg)
	if err != nil {
		return err
	}
	if registerOptions.output != "table" {
		return registerOptions.formatter(cmd).FormatData(res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Service %s %s\n", res.Service.Registration.Name, res.Result)
	return nil
}

func registrationFromFlags(args []string) (api.ServiceRegistration, error) {
	if registerFile != "" {
		reg, err := manifest.ParseFile(registerFile)
		if err != nil {
			return api.ServiceRegistration{}, fmt.Errorf("failed to read %s: %w", registerFile, err)
		}
		if len(args) == 1 && args[0] != reg.Name {
			return api.ServiceRegistration{}, fmt.Errorf("name %q does not match %q in %s", args[0], reg.Name, registerFile)
		}
		return reg, nil
	}

	if len(args) == 0 {
		return api.ServiceRegistration{}, fmt.Errorf("a service name or --file is required")
	}
	reg := api.ServiceRegistration{
		Name:     args[0],
		Kind:     api.ServiceKind(registerKind),
		Location: registerLocation,
		Protocol: api.Protocol(registerProtocol),
		Priority: api.Priority(registerPriority),
		Required: registerRequired,
		Tags:     registerTags,
	}
	if err := reg.Validate(); err != nil {
		return api.ServiceRegistration{}, err
	}
	return reg, nil
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerOptions.register(registerCmd)
	registerCmd.Flags().StringVarP(&registerFile, "file", "f", "", "Manifest file describing the service")
	registerCmd.Flags().StringVar(&registerKind, "kind", string(api.KindLocalProcess), "Service kind")
	registerCmd.Flags().StringVar(&registerLocation, "location", "", "Endpoint URL or command line")
	registerCmd.Flags().StringVar(&registerProtocol, "protocol", string(api.ProtocolHTTP), "Protocol (http, websocket, stdio-rpc, mcp-http)")
	registerCmd.Flags().StringVar(&registerPriority, "priority", "", "Priority (high, medium, low)")
	registerCmd.Flags().BoolVar(&registerRequired, "required", false, "Mark the service as required")
	registerCmd.Flags().StringSliceVar(&registerTags, "tag", nil, "Tag (repeatable)")
}
