// Package postgres provides the PostgreSQL implementation of the
// incident store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/status-sentry/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements incident.Store using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetServiceStatus fetches one status record by full key. Returns
// nil, nil when the record does not exist.
func (r *Repository) GetServiceStatus(ctx context.Context, serviceName, timestamp string) (*domain.ServiceStatusRecord, error) {
	query := `
		SELECT service_name, ts, status, incident_id, description
		FROM service_status
		WHERE service_name = $1 AND ts = $2
	`
	var record domain.ServiceStatusRecord
	err := r.db.QueryRow(ctx, query, serviceName, timestamp).Scan(
		&record.ServiceName,
		&record.Timestamp,
		&record.Status,
		&record.IncidentID,
		&record.Description,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get service status: %w", err)
	}
	return &record, nil
}

// PutServiceStatus upserts a status record on its (service_name, ts) key.
func (r *Repository) PutServiceStatus(ctx context.Context, record *domain.ServiceStatusRecord) error {
	query := `
		INSERT INTO service_status (service_name, ts, status, incident_id, description)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (service_name, ts) DO UPDATE
		SET status = EXCLUDED.status,
		    incident_id = EXCLUDED.incident_id,
		    description = EXCLUDED.description
	`
	_, err := r.db.Exec(ctx, query,
		record.ServiceName,
		record.Timestamp,
		record.Status,
		record.IncidentID,
		record.Description,
	)
	if err != nil {
		return fmt.Errorf("put service status: %w", err)
	}
	return nil
}

// CreateIncident inserts a new incident record. There is no uniqueness
// constraint on incident_id: deduplication is the caller's
// check-then-insert, and the race window between two concurrent creators
// is a documented property of the pipeline.
func (r *Repository) CreateIncident(ctx context.Context, record *domain.IncidentRecord) error {
	query := `
		INSERT INTO incidents (service_name, ts, incident_id, state, description, shortlink, acknowledged)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		ON CONFLICT (service_name, ts) DO UPDATE
		SET incident_id = EXCLUDED.incident_id,
		    state = EXCLUDED.state,
		    description = EXCLUDED.description,
		    shortlink = EXCLUDED.shortlink
	`
	_, err := r.db.Exec(ctx, query,
		record.ServiceName,
		record.Timestamp,
		record.IncidentID,
		record.State,
		record.Description,
		record.Shortlink,
	)
	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// FindIncidentsByID looks up incidents by the secondary index on
// incident_id, in insertion order.
func (r *Repository) FindIncidentsByID(ctx context.Context, incidentID string) ([]domain.IncidentRecord, error) {
	query := `
		SELECT service_name, ts, incident_id, state, description, shortlink,
		       acknowledged, acknowledged_by, acknowledged_at
		FROM incidents
		WHERE incident_id = $1
		ORDER BY ts
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("find incidents: %w", err)
	}
	defer rows.Close()

	return scanIncidents(rows)
}

// MarkIncidentResolved flips all records for the identifier to resolved.
func (r *Repository) MarkIncidentResolved(ctx context.Context, incidentID string) error {
	query := `UPDATE incidents SET state = $2 WHERE incident_id = $1`
	_, err := r.db.Exec(ctx, query, incidentID, domain.IncidentStateResolved)
	if err != nil {
		return fmt.Errorf("mark incident resolved: %w", err)
	}
	return nil
}

// SetAcknowledged records acknowledgment attribution on the keyed record.
// Last writer wins on repeated acknowledgments.
func (r *Repository) SetAcknowledged(ctx context.Context, key domain.IncidentKey, by string, at time.Time) error {
	query := `
		UPDATE incidents
		SET acknowledged = TRUE, acknowledged_by = $3, acknowledged_at = $4
		WHERE service_name = $1 AND ts = $2
	`
	tag, err := r.db.Exec(ctx, query, key.ServiceName, key.Timestamp, by, at)
	if err != nil {
		return fmt.Errorf("set acknowledged: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set acknowledged: no record at (%s, %s)", key.ServiceName, key.Timestamp)
	}
	return nil
}

// ListUnacknowledged scans for incident records without an
// acknowledged_by value.
func (r *Repository) ListUnacknowledged(ctx context.Context) ([]domain.IncidentRecord, error) {
	query := `
		SELECT service_name, ts, incident_id, state, description, shortlink,
		       acknowledged, acknowledged_by, acknowledged_at
		FROM incidents
		WHERE acknowledged_by IS NULL
		ORDER BY ts
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list unacknowledged: %w", err)
	}
	defer rows.Close()

	return scanIncidents(rows)
}

// AppendAcknowledgment writes one audit-log entry.
func (r *Repository) AppendAcknowledgment(ctx context.Context, record *domain.AcknowledgmentRecord) error {
	query := `
		INSERT INTO acknowledgments (id, incident_id, service_name, acknowledged_by, acknowledged_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query,
		record.ID,
		record.IncidentID,
		record.ServiceName,
		record.AcknowledgedBy,
		record.AcknowledgedAt,
	)
	if err != nil {
		return fmt.Errorf("append acknowledgment: %w", err)
	}
	return nil
}

// ListAcknowledgments returns audit entries for an incident in
// acknowledgment order.
func (r *Repository) ListAcknowledgments(ctx context.Context, incidentID string) ([]domain.AcknowledgmentRecord, error) {
	query := `
		SELECT id, incident_id, service_name, acknowledged_by, acknowledged_at
		FROM acknowledgments
		WHERE incident_id = $1
		ORDER BY acknowledged_at
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list acknowledgments: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.AcknowledgmentRecord, 0)
	for rows.Next() {
		var entry domain.AcknowledgmentRecord
		if err := rows.Scan(
			&entry.ID,
			&entry.IncidentID,
			&entry.ServiceName,
			&entry.AcknowledgedBy,
			&entry.AcknowledgedAt,
		); err != nil {
			return nil, fmt.Errorf("scan acknowledgment: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

func scanIncidents(rows pgx.Rows) ([]domain.IncidentRecord, error) {
	records := make([]domain.IncidentRecord, 0)
	for rows.Next() {
		var record domain.IncidentRecord
		if err := rows.Scan(
			&record.ServiceName,
			&record.Timestamp,
			&record.IncidentID,
			&record.State,
			&record.Description,
			&record.Shortlink,
			&record.Acknowledged,
			&record.AcknowledgedBy,
			&record.AcknowledgedAt,
		); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
