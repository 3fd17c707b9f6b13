package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"switchyard/internal/api"
)

// NewMCPServer exposes the control plane as MCP tools. Each tool returns
// the same JSON body as the matching HTTP endpoint.
func NewMCPServer(deps Deps, version string) *mcpserver.MCPServer {
	s := &service{deps: deps}
	m := mcpserver.NewMCPServer(
		"switchyard",
		version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	m.AddTool(mcp.NewTool("invoke",
		mcp.WithDescription("Invoke a tool on a registered tool server"),
		mcp.WithString("serviceName",
			mcp.Required(),
			mcp.Description("Name of the registered service"),
		),
		mcp.WithString("toolName",
			mcp.Required(),
			mcp.Description("Name of the tool to call on that service"),
		),
		mcp.WithObject("arguments",
			mcp.Description("Arguments to pass to the tool (as JSON object)"),
		),
	), s.handleMCPInvoke)

	m.AddTool(mcp.NewTool("list_services",
		mcp.WithDescription("List registered services with their health"),
		mcp.WithArray("tags",
			mcp.Description("Only services carrying all of these tags"),
			mcp.WithStringItems(),
		),
		mcp.WithString("kind",
			mcp.Description("Only services of this kind"),
			mcp.Enum(string(api.KindLocalProcess), string(api.KindContainerized), string(api.KindExternal)),
		),
		mcp.WithBoolean("requiredOnly",
			mcp.Description("Only services marked required"),
		),
	), s.handleMCPList)

	m.AddTool(mcp.NewTool("get_service",
		mcp.WithDescription("Get the registration and health of one service"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the service"),
		),
	), s.handleMCPGet)

	m.AddTool(mcp.NewTool("register_service",
		mcp.WithDescription("Register or update a service manually. Manual registrations are never removed by discovery"),
		mcp.WithObject("registration",
			mcp.Required(),
			mcp.Description("Registration: name, kind, location, protocol, priority, tags, requiredFlag, config"),
		),
	), s.handleMCPRegister)

	m.AddTool(mcp.NewTool("deregister_service",
		mcp.WithDescription("Remove a service from the registry"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the service"),
		),
	), s.handleMCPDeregister)

	m.AddTool(mcp.NewTool("trigger_discovery",
		mcp.WithDescription("Run a discovery cycle now and return its summary"),
	), s.handleMCPTrigger)

	m.AddTool(mcp.NewTool("probe_service",
		mcp.WithDescription("Probe one service now and return its health record"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Name of the service"),
		),
	), s.handleMCPProbe)

	return m
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult reports err as a tool error carrying the HTTP API error body.
func errorResult(err error) (*mcp.CallToolResult, error) {
	var body errorBody
	if invalid, ok := err.(*InvalidRequestError); ok {
		body.Error.Kind = "InvalidRequest"
		body.Error.Message = invalid.Message
	} else {
		body.Error.Kind = string(api.KindOf(err))
		body.Error.Message = api.SafeMessage(err)
	}
	data, _ := json.Marshal(body)
	return mcp.NewToolResultError(string(data)), nil
}

func (s *service) handleMCPInvoke(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	serviceName, err := request.RequireString("serviceName")
	if err != nil {
		return mcp.NewToolResultError("serviceName argument is required"), nil
	}
	toolName, err := request.RequireString("toolName")
	if err != nil {
		return mcp.NewToolResultError("toolName argument is required"), nil
	}

	var args map[string]interface{}
	if argsRaw := request.GetArguments()["arguments"]; argsRaw != nil {
		var ok bool
		args, ok = argsRaw.(map[string]interface{})
		if !ok {
			return mcp.NewToolResultError("arguments must be a JSON object"), nil
		}
	}

	resp := s.invoke(ctx, api.RouteRequest{ServiceName: serviceName, ToolName: toolName, Arguments: args})
	result, err := jsonResult(resp)
	if err == nil && !resp.OK {
		result.IsError = true
	}
	return result, err
}

func (s *service) handleMCPList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := api.ListFilter{
		Tags:         request.GetStringSlice("tags", nil),
		Kind:         api.ServiceKind(request.GetString("kind", "")),
		RequiredOnly: request.GetBool("requiredOnly", false),
	}
	return jsonResult(s.list(filter))
}

func (s *service) handleMCPGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name argument is required"), nil
	}
	status, err := s.get(name)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(status)
}

func (s *service) handleMCPRegister(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := request.GetArguments()["registration"].(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("registration must be a JSON object"), nil
	}
	// Round-trip through JSON to reuse the registration's wire format.
	data, err := json.Marshal(raw)
	if err != nil {
		return errorResult(&InvalidRequestError{Message: err.Error()})
	}
	var reg api.ServiceRegistration
	if err := json.Unmarshal(data, &reg); err != nil {
		return errorResult(&InvalidRequestError{Message: "invalid registration: " + err.Error()})
	}

	res, err := s.register(reg)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(res)
}

func (s *service) handleMCPDeregister(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name argument is required"), nil
	}
	return jsonResult(s.deregister(name))
}

func (s *service) handleMCPTrigger(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := s.triggerDiscovery(ctx)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(summary)
}

func (s *service) handleMCPProbe(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name argument is required"), nil
	}
	rec, err := s.probe(ctx, name)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(rec)
}
