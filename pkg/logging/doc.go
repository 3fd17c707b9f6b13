// Package logging provides subsystem-tagged structured logging for switchyard.
//
// It wraps log/slog with a single process-wide logger. Every record carries a
// "subsystem" attribute so output from the discovery engine, health monitor
// and router can be filtered independently.
//
// # Usage
//
//	logging.Init(logging.LevelInfo, logging.FormatJSON, os.Stderr)
//
//	logging.Info("Discovery", "Cycle finished: %d services", n)
//	logging.Error("Router", err, "Adapter failed for %s", name)
//
//	log := logging.For("HealthMonitor")
//	log.Debug("probe finished", "service", name, "latency_ms", ms)
//
// Init also installs a controller-runtime logger backed by the same handler,
// so the Kubernetes scanner logs in the same format.
package logging
