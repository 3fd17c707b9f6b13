// Package api defines the shared data model of switchyard.
//
// Every other package speaks in these types: registrations and health records
// flow from discovery through the registry to the health monitor and router,
// and RouteRequest/RouteResponse are the envelopes of the inbound surfaces.
//
// # Registrations
//
// A ServiceRegistration is keyed by Name. Discovery re-produces the same
// registration every cycle, so SameSpec compares two registrations while
// ignoring timestamps; the registry only bumps UpdatedAt when something the
// backend cares about changed.
//
// # Errors
//
// The caller-facing taxonomy is ErrorKind. Each typed error implements
// Kinded, and KindOf classifies arbitrary errors (context deadlines,
// net.Error timeouts, refused dials) into the same set. SafeMessage produces
// the text returned to callers and never includes addresses or dial errors.
package api
