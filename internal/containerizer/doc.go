// Package containerizer provides container runtime abstraction for switchyard.
//
// Discovery only needs to look at containers, never to start or stop them, so
// the runtime interface is read-only and small:
//
//   - ListContainers: running containers matching a name prefix, with labels
//     and published ports
//
// DockerRuntime drives the docker CLI (or podman through the same
// docker-compatible CLI). Commands are executed through a package variable so
// tests can substitute a helper process.
package containerizer
