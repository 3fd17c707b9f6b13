package containerizer

import (
	"context"
)

// ContainerRuntime defines the read-only container runtime operations used
// by discovery.
type ContainerRuntime interface {
	// ListContainers returns running containers whose name starts with
	// namePrefix. An empty prefix matches every running container.
	ListContainers(ctx context.Context, namePrefix string) ([]ContainerInfo, error)
}

// ContainerInfo is the subset of container state discovery derives
// registrations from.
type ContainerInfo struct {
	ID      string            // Full container ID
	Name    string            // Container name without the leading slash
	Image   string            // Image reference the container runs
	Running bool              // Whether the container is running
	Labels  map[string]string // Container labels
	Ports   map[string]string // Container port ("8080/tcp") -> published host port
}

// HostPort returns the published host port for a container port. The port
// may be given with or without the "/tcp" suffix.
func (c ContainerInfo) HostPort(containerPort string) (string, bool) {
	if p, ok := c.Ports[containerPort]; ok {
		return p, true
	}
	p, ok := c.Ports[containerPort+"/tcp"]
	return p, ok
}
