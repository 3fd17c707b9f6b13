package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"switchyard/internal/api"
)

var (
	callOptions  clientOptions
	callArgs     []string
	callArgsJSON string
)

// CallFailedError is returned when the server routed a call and the
// response envelope carries an error.
type CallFailedError struct {
	Kind    string
	Message string
}

func (e *CallFailedError) Error() string {
	return fmt.Sprintf("call failed (%s): %s", e.Kind, e.Message)
}

var callCmd = &cobra.Command{
	Use:   "call <service> <tool>",
	Short: "Route a tool call through switchyard",
	Long: `Invokes a tool on a service through the router of a running server. The
call only reaches the backend when the service is registered and healthy.

Arguments are given as --arg key=value (values that parse as JSON are sent
as JSON, everything else as a string) or as a JSON object with --args.

Examples:
  switchyard call echo say --arg text=hello
  switchyard call search query --args '{"q": "switchyard", "limit": 5}'`,
	Args: cobra.ExactArgs(2),
	RunE: runCall,
}

func runCall(cmd *cobra.Command, args []string) error {
	arguments, err := parseCallArguments(callArgsJSON, callArgs)
	if err != nil {
		return err
	}

	resp, err := callOptions.client().Invoke(cmd.Context(), api.RouteRequest{
		ServiceName: args[0],
		ToolName:    args[1],
		Arguments:   arguments,
	})
	if err != nil {
		return err
	}
	if err := callOptions.formatter(cmd).FormatRouteResponse(resp); err != nil {
		return err
	}
	if !resp.OK {
		return &CallFailedError{Kind: string(resp.ErrorKind), Message: resp.ErrorMessage}
	}
	return nil
}

// parseCallArguments merges --args and --arg; --arg wins on duplicate keys.
func parseCallArguments(rawJSON string, pairs []string) (map[string]interface{}, error) {
	arguments := map[string]interface{}{}
	if rawJSON != "" {
		if err := json.Unmarshal([]byte(rawJSON), &arguments); err != nil {
			return nil, fmt.Errorf("--args must be a JSON object: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --arg %q, expected key=value", pair)
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			arguments[key] = decoded
		} else {
			arguments[key] = value
		}
	}
	return arguments, nil
}

func init() {
	rootCmd.AddCommand(callCmd)

	callOptions.register(callCmd)
	callCmd.Flags().StringArrayVar(&callArgs, "arg", nil, "Tool argument as key=value (repeatable)")
	callCmd.Flags().StringVar(&callArgsJSON, "args", "", "Tool arguments as a JSON object")
}
