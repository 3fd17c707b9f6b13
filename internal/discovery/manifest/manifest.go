// Package manifest discovers tool servers from a directory of descriptor
// files and watches that directory for changes.
package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"

	"switchyard/internal/api"
	"switchyard/pkg/logging"
)

const (
	// ScannerName identifies this scanner in ownership and summaries.
	ScannerName = "manifest"

	subsystem = "ManifestScanner"
)

// Descriptor is the on-disk format of a manifest file. YAML and JSON are
// both accepted.
type Descriptor struct {
	Name     string                 `json:"name"`
	Kind     api.ServiceKind        `json:"kind,omitempty"`
	Location string                 `json:"location"`
	Protocol api.Protocol           `json:"protocol"`
	Required bool                   `json:"requiredFlag,omitempty"`
	Priority api.Priority           `json:"priority,omitempty"`
	Tags     []string               `json:"tags,omitempty"`
	Config   map[string]interface{} `json:"config,omitempty"`

	// RequiredAlias accepts the shorter "required" spelling.
	RequiredAlias bool `json:"required,omitempty"`
}

// Registration converts the descriptor, defaulting the kind to
// local-process.
func (d Descriptor) Registration() api.ServiceRegistration {
	kind := d.Kind
	if kind == "" {
		kind = api.KindLocalProcess
	}
	return api.ServiceRegistration{
		Name:     d.Name,
		Kind:     kind,
		Location: d.Location,
		Protocol: d.Protocol,
		Required: d.Required || d.RequiredAlias,
		Priority: d.Priority,
		Tags:     d.Tags,
		Config:   d.Config,
	}
}

// Scanner reads every descriptor in a directory.
type Scanner struct {
	dir string
}

// NewScanner creates a scanner for dir.
func NewScanner(dir string) *Scanner {
	return &Scanner{dir: dir}
}

// Name implements discovery.Scanner.
func (s *Scanner) Name() string { return ScannerName }

// Dir returns the scanned directory.
func (s *Scanner) Dir() string { return s.dir }

// Scan parses every descriptor file in filename order. Malformed files are
// skipped and logged. When two files declare the same name the first file
// wins. A missing or unreadable directory is an error so previously
// discovered registrations are kept.
func (s *Scanner) Scan(ctx context.Context) ([]api.ServiceRegistration, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest directory %s: %w", s.dir, err)
	}

	seen := make(map[string]string)
	var regs []api.ServiceRegistration
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !IsManifestFile(entry.Name()) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		reg, err := ParseFile(path)
		if err != nil {
			logging.Warn(subsystem, "Skipping malformed manifest %s: %v", path, err)
			continue
		}

		if first, dup := seen[reg.Name]; dup {
			logging.Warn(subsystem, "Duplicate service name %s in %s, keeping %s", reg.Name, entry.Name(), first)
			continue
		}
		seen[reg.Name] = entry.Name()
		regs = append(regs, reg)
	}

	logging.Debug(subsystem, "Scanned %s: %d registrations", s.dir, len(regs))
	return regs, nil
}

// ParseFile reads and validates one descriptor file.
func ParseFile(path string) (api.ServiceRegistration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.ServiceRegistration{}, err
	}

	var d Descriptor
	if err := yaml.UnmarshalStrict(data, &d); err != nil {
		return api.ServiceRegistration{}, fmt.Errorf("invalid descriptor: %w", err)
	}

	reg := d.Registration()
	if err := reg.Validate(); err != nil {
		return api.ServiceRegistration{}, err
	}
	return reg, nil
}

// IsManifestFile reports whether path has a descriptor extension.
func IsManifestFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
