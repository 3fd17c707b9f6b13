package containerizer

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"switchyard/pkg/logging"
)

const dockerSubsystem = "Docker"

// DockerRuntime implements ContainerRuntime using the Docker CLI
type DockerRuntime struct {
	binary string
}

// execCommandContext is a variable to allow mocking in tests
var execCommandContext = exec.CommandContext

// lookPath is a variable to allow mocking in tests
var lookPath = exec.LookPath

// NewDockerRuntime creates a new Docker runtime instance
func NewDockerRuntime() (*DockerRuntime, error) {
	return newCLIRuntime("docker")
}

func newCLIRuntime(binary string) (*DockerRuntime, error) {
	if _, err := lookPath(binary); err != nil {
		return nil, fmt.Errorf("%s command not found in PATH: %w", binary, err)
	}

	// Check if the daemon is accessible
	ctx := context.Background()
	cmd := execCommandContext(ctx, binary, "info")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s daemon not accessible: %w", binary, err)
	}

	return &DockerRuntime{binary: binary}, nil
}

func (d *DockerRuntime) bin() string {
	if d.binary == "" {
		return "docker"
	}
	return d.binary
}

// inspectOutput mirrors the fields of `docker inspect` that discovery reads.
type inspectOutput struct {
	ID     string `json:"Id"`
	Name   string `json:"Name"`
	Config struct {
		Image  string            `json:"Image"`
		Labels map[string]string `json:"Labels"`
	} `json:"Config"`
	State struct {
		Running bool `json:"Running"`
	} `json:"State"`
	NetworkSettings struct {
		Ports map[string][]struct {
			HostIP   string `json:"HostIp"`
			HostPort string `json:"HostPort"`
		} `json:"Ports"`
	} `json:"NetworkSettings"`
}

// ListContainers returns running containers whose name starts with namePrefix.
func (d *DockerRuntime) ListContainers(ctx context.Context, namePrefix string) ([]ContainerInfo, error) {
	args := []string{"ps", "-q", "--no-trunc"}
	if namePrefix != "" {
		args = append(args, "--filter", "name="+namePrefix)
	}

	cmd := execCommandContext(ctx, d.bin(), args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	ids := strings.Fields(string(output))
	if len(ids) == 0 {
		return nil, nil
	}
	logging.Debug(dockerSubsystem, "Found %d running containers matching %q", len(ids), namePrefix)

	cmd = execCommandContext(ctx, d.bin(), append([]string{"inspect"}, ids...)...)
	output, err = cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to inspect containers: %w", err)
	}

	var inspected []inspectOutput
	if err := json.Unmarshal(output, &inspected); err != nil {
		return nil, fmt.Errorf("failed to parse inspect output: %w", err)
	}

	containers := make([]ContainerInfo, 0, len(inspected))
	for _, in := range inspected {
		name := strings.TrimPrefix(in.Name, "/")
		// The name filter matches substrings; discovery wants a prefix.
		if namePrefix != "" && !strings.HasPrefix(name, namePrefix) {
			continue
		}

		info := ContainerInfo{
			ID:      in.ID,
			Name:    name,
			Image:   in.Config.Image,
			Running: in.State.Running,
			Labels:  in.Config.Labels,
			Ports:   make(map[string]string),
		}
		for containerPort, bindings := range in.NetworkSettings.Ports {
			for _, b := range bindings {
				if b.HostPort != "" {
					info.Ports[containerPort] = b.HostPort
					break
				}
			}
		}
		containers = append(containers, info)
	}
	return containers, nil
}
