package health

import (
	"switchyard/internal/api"
)

// Next computes the health record following prev after one probe.
//
//	unknown   --success--> healthy
//	unknown   --failure--> unhealthy
//	healthy   --failure--> healthy, until threshold consecutive failures, then unhealthy
//	unhealthy --success--> healthy
//
// A success always resets the failure count.
func Next(prev api.HealthRecord, outcome ProbeOutcome, threshold int) api.HealthRecord {
	next := api.HealthRecord{
		LastCheckedAt:      outcome.At,
		LastResponseTimeMs: float64(outcome.Duration.Microseconds()) / 1000,
	}

	if outcome.Err == nil {
		next.Status = api.HealthHealthy
		return next
	}

	next.ConsecutiveFailures = prev.ConsecutiveFailures + 1
	next.LastError = string(api.ProbeFailureKind(outcome.Err))

	switch prev.Status {
	case api.HealthHealthy:
		if next.ConsecutiveFailures >= threshold {
			next.Status = api.HealthUnhealthy
		} else {
			next.Status = api.HealthHealthy
		}
	default:
		next.Status = api.HealthUnhealthy
	}
	return next
}
