package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"switchyard/internal/api"
	"switchyard/internal/registry"
)

// Store persists registrations and health records keyed by name. It
// implements registry.Persister.
type Store struct {
	db *DB
}

var _ registry.Persister = (*Store)(nil)

// NewStore creates a new SQLite store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database still answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const selectColumns = `name, kind, location, protocol, required, priority, tags_json, config_json,
	source, created_at, updated_at, status, consecutive_failures, last_checked_at,
	last_response_ms, last_error`

// LoadAll returns every persisted record. Rows that cannot be decoded make
// the whole snapshot corrupt.
func (s *Store) LoadAll(ctx context.Context) ([]api.ServiceStatus, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM registrations ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query registrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []api.ServiceStatus
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (api.ServiceStatus, error) {
	var (
		rec                                 api.ServiceStatus
		reg                                 = &rec.Registration
		health                              = &rec.Health
		kind, protocol, priority, status    string
		required                            int64
		tagsJSON, configJSON                string
		createdAt, updatedAt, lastCheckedAt string
	)
	if err := rows.Scan(&reg.Name, &kind, &reg.Location, &protocol, &required, &priority,
		&tagsJSON, &configJSON, &reg.Source, &createdAt, &updatedAt, &status,
		&health.ConsecutiveFailures, &lastCheckedAt, &health.LastResponseTimeMs, &health.LastError); err != nil {
		return rec, fmt.Errorf("failed to scan registration: %w", err)
	}

	reg.Kind = api.ServiceKind(kind)
	reg.Protocol = api.Protocol(protocol)
	reg.Priority = api.Priority(priority)
	reg.Required = required != 0
	health.Status = api.HealthStatus(status)

	if err := json.Unmarshal([]byte(tagsJSON), &reg.Tags); err != nil {
		return rec, fmt.Errorf("%w: tags of %s: %v", registry.ErrCorrupt, reg.Name, err)
	}
	if err := json.Unmarshal([]byte(configJSON), &reg.Config); err != nil {
		return rec, fmt.Errorf("%w: config of %s: %v", registry.ErrCorrupt, reg.Name, err)
	}
	if len(reg.Tags) == 0 {
		reg.Tags = nil
	}
	if len(reg.Config) == 0 {
		reg.Config = nil
	}

	var err error
	if reg.CreatedAt, err = parseTime(createdAt); err != nil {
		return rec, fmt.Errorf("%w: created_at of %s: %v", registry.ErrCorrupt, reg.Name, err)
	}
	if reg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return rec, fmt.Errorf("%w: updated_at of %s: %v", registry.ErrCorrupt, reg.Name, err)
	}
	if health.LastCheckedAt, err = parseTime(lastCheckedAt); err != nil {
		return rec, fmt.Errorf("%w: last_checked_at of %s: %v", registry.ErrCorrupt, reg.Name, err)
	}
	return rec, nil
}

// Save upserts one registration and its health record.
func (s *Store) Save(ctx context.Context, reg api.ServiceRegistration, health api.HealthRecord) error {
	if reg.Name == "" {
		return fmt.Errorf("registration name is required")
	}
	tags := reg.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	config := reg.Config
	if config == nil {
		config = map[string]interface{}{}
	}
	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	required := 0
	if reg.Required {
		required = 1
	}

	query := `
	INSERT INTO registrations (` + selectColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		kind = excluded.kind,
		location = excluded.location,
		protocol = excluded.protocol,
		required = excluded.required,
		priority = excluded.priority,
		tags_json = excluded.tags_json,
		config_json = excluded.config_json,
		source = excluded.source,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		status = excluded.status,
		consecutive_failures = excluded.consecutive_failures,
		last_checked_at = excluded.last_checked_at,
		last_response_ms = excluded.last_response_ms,
		last_error = excluded.last_error;
	`
	_, err = s.db.ExecContext(ctx, query,
		reg.Name, string(reg.Kind), reg.Location, string(reg.Protocol), required, string(reg.Priority),
		string(tagsJSON), string(configJSON), reg.Source, formatTime(reg.CreatedAt), formatTime(reg.UpdatedAt),
		string(health.Status), health.ConsecutiveFailures, formatTime(health.LastCheckedAt),
		health.LastResponseTimeMs, health.LastError)
	if err != nil {
		return fmt.Errorf("failed to save registration %s: %w", reg.Name, err)
	}
	return nil
}

// Delete removes a registration. Deleting an absent name is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM registrations WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete registration %s: %w", name, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
