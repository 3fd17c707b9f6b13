// Package container discovers tool servers running as containers.
//
// Containers are matched by name prefix and described by labels:
//
//	switchyard.name      registration name (default: container name without prefix)
//	switchyard.protocol  http (default), websocket, mcp-http or stdio-rpc
//	switchyard.port      container port to reach (default: the only published port)
//	switchyard.path      path appended to the location (mcp-http default /mcp)
//	switchyard.command   command run via exec for stdio-rpc servers
//	switchyard.priority  high, medium or low
//	switchyard.tags      comma separated tags
//	switchyard.required  "true" marks the service as required
package container

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"switchyard/internal/api"
	"switchyard/internal/containerizer"
	"switchyard/pkg/logging"
	strutil "switchyard/pkg/strings"
)

const (
	// ScannerName identifies this scanner in ownership and summaries.
	ScannerName = "container"

	subsystem = "ContainerScanner"

	labelPrefix   = "switchyard."
	labelName     = labelPrefix + "name"
	labelProtocol = labelPrefix + "protocol"
	labelPort     = labelPrefix + "port"
	labelPath     = labelPrefix + "path"
	labelCommand  = labelPrefix + "command"
	labelPriority = labelPrefix + "priority"
	labelTags     = labelPrefix + "tags"
	labelRequired = labelPrefix + "required"
)

// Scanner lists running containers through a container runtime.
type Scanner struct {
	runtime    containerizer.ContainerRuntime
	namePrefix string
	host       string
	binary     string
}

// NewScanner creates a scanner. host is the address published ports are
// reached on; binary is the runtime CLI used for stdio-rpc exec locations.
func NewScanner(runtime containerizer.ContainerRuntime, namePrefix, host, binary string) *Scanner {
	if host == "" {
		host = "127.0.0.1"
	}
	if binary == "" {
		binary = "docker"
	}
	return &Scanner{runtime: runtime, namePrefix: namePrefix, host: host, binary: binary}
}

// Name implements discovery.Scanner.
func (s *Scanner) Name() string { return ScannerName }

// Scan returns one registration per matching running container. Containers
// whose labels cannot be turned into a registration are skipped and logged.
func (s *Scanner) Scan(ctx context.Context) ([]api.ServiceRegistration, error) {
	containers, err := s.runtime.ListContainers(ctx, s.namePrefix)
	if err != nil {
		return nil, err
	}

	regs := make([]api.ServiceRegistration, 0, len(containers))
	for _, c := range containers {
		if !c.Running {
			continue
		}
		reg, err := s.registrationFor(c)
		if err != nil {
			logging.Warn(subsystem, "Skipping container %s: %v", c.Name, err)
			continue
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

func (s *Scanner) registrationFor(c containerizer.ContainerInfo) (api.ServiceRegistration, error) {
	name := c.Labels[labelName]
	if name == "" {
		name = strings.TrimPrefix(c.Name, s.namePrefix)
	}
	if name == "" {
		return api.ServiceRegistration{}, fmt.Errorf("no service name")
	}

	protocol := api.Protocol(c.Labels[labelProtocol])
	if protocol == "" {
		protocol = api.ProtocolHTTP
	}
	if !protocol.Valid() {
		return api.ServiceRegistration{}, fmt.Errorf("unknown protocol %q", protocol)
	}

	reg := api.ServiceRegistration{
		Name:     name,
		Kind:     api.KindContainerized,
		Protocol: protocol,
		Priority: api.Priority(c.Labels[labelPriority]),
		Tags:     strutil.SplitList(c.Labels[labelTags]),
		Config:   map[string]interface{}{"image": c.Image},
	}
	if req, err := strconv.ParseBool(c.Labels[labelRequired]); err == nil {
		reg.Required = req
	}

	if protocol == api.ProtocolStdioRPC {
		command := c.Labels[labelCommand]
		if command == "" {
			return api.ServiceRegistration{}, fmt.Errorf("stdio-rpc container needs a %s label", labelCommand)
		}
		reg.Location = fmt.Sprintf("%s exec -i %s %s", s.binary, c.Name, command)
		return reg, nil
	}

	hostPort, err := publishedPort(c)
	if err != nil {
		return api.ServiceRegistration{}, err
	}

	scheme := "http"
	if protocol == api.ProtocolWebSocket {
		scheme = "ws"
	}
	path := c.Labels[labelPath]
	if path == "" && protocol == api.ProtocolMCPHTTP {
		path = "/mcp"
	}
	reg.Location = fmt.Sprintf("%s://%s:%s%s", scheme, s.host, hostPort, path)
	return reg, nil
}

// publishedPort picks the host port for the container's service port.
func publishedPort(c containerizer.ContainerInfo) (string, error) {
	if port := c.Labels[labelPort]; port != "" {
		hostPort, ok := c.HostPort(port)
		if !ok {
			return "", fmt.Errorf("port %s is not published", port)
		}
		return hostPort, nil
	}
	if len(c.Ports) == 1 {
		for _, hostPort := range c.Ports {
			return hostPort, nil
		}
	}
	return "", fmt.Errorf("%d published ports and no %s label", len(c.Ports), labelPort)
}
