// Package static registers external third-party endpoints listed in the
// configuration.
package static

import (
	"context"

	"switchyard/internal/api"
)

// ScannerName identifies this scanner in ownership and summaries.
const ScannerName = "static"

// Scanner returns a fixed list of external endpoints.
type Scanner struct {
	entries []api.ServiceRegistration
}

// NewScanner creates a scanner for entries. Every entry is registered as
// external-third-party regardless of the kind it was configured with.
func NewScanner(entries []api.ServiceRegistration) *Scanner {
	out := make([]api.ServiceRegistration, len(entries))
	for i, e := range entries {
		e = e.Clone()
		e.Kind = api.KindExternal
		out[i] = e
	}
	return &Scanner{entries: out}
}

// Name implements discovery.Scanner.
func (s *Scanner) Name() string { return ScannerName }

// Scan returns copies of the configured entries.
func (s *Scanner) Scan(ctx context.Context) ([]api.ServiceRegistration, error) {
	out := make([]api.ServiceRegistration, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Clone()
	}
	return out, nil
}
