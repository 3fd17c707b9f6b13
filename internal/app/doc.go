// Package app provides application bootstrap and lifecycle management for
// switchyard.
//
// # Components
//
//   - Bootstrap (bootstrap.go): configuration loading, logging setup and
//     service construction
//   - Configuration (config.go): runtime settings passed in from the CLI
//   - Services (services.go): builds the registry, scanners, discovery
//     engine, adapters, health monitor, router and servers in dependency
//     order
//   - Run loop (modes.go): starts background loops and listeners, reports
//     readiness to systemd and performs graceful shutdown
//
// # Configuration Loading
//
// Configuration is read from config.yaml in the directory given by
// --config-path, or ~/.config/switchyard by default. Missing files fall back
// to built-in defaults. A configuration that fails validation aborts startup.
//
// # Lifecycle
//
//  1. NewApplication loads configuration, initializes logging and builds all
//     services. Persisted registrations are loaded here.
//  2. Run starts the health monitor, the discovery loop, the optional
//     manifest watcher and the inbound servers, then sends READY=1 to
//     systemd.
//  3. On SIGINT, SIGTERM or context cancellation, Run sends STOPPING=1,
//     stops the servers within server.shutdownGrace, stops discovery and
//     probe loops, closes backend clients and flushes the registry.
//
// Only a corrupt persisted registry is fatal at startup; scanner and backend
// failures are logged and retried by the loops that own them.
package app
