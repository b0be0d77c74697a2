// Package incident implements the incident state-transition and
// acknowledgment lifecycle: status reconciliation, escalation sweeps and
// acknowledgment processing.
package incident

import (
	"context"
	"time"

	"github.com/bissquit/status-sentry/internal/domain"
)

// Store defines persistence for service-status and incident records.
// All reads after writes within one invocation are consistent; each
// method is an atomic single-record operation.
type Store interface {
	// GetServiceStatus fetches one record by full key. Returns nil, nil
	// when no record exists.
	GetServiceStatus(ctx context.Context, serviceName, timestamp string) (*domain.ServiceStatusRecord, error)

	// PutServiceStatus upserts a record. Writing with the "latest"
	// timestamp overwrites the current-state row in place; any other
	// timestamp appends to the historical audit trail.
	PutServiceStatus(ctx context.Context, record *domain.ServiceStatusRecord) error

	// CreateIncident inserts a new incident record. Callers deduplicate
	// with FindIncidentsByID before creating; the store does not enforce
	// identifier uniqueness, so two concurrent creators can both succeed.
	CreateIncident(ctx context.Context, record *domain.IncidentRecord) error

	// FindIncidentsByID looks incidents up via the secondary index on
	// the incident identifier, in insertion order.
	FindIncidentsByID(ctx context.Context, incidentID string) ([]domain.IncidentRecord, error)

	// MarkIncidentResolved flips all records for the identifier to
	// resolved. Resolution never removes rows.
	MarkIncidentResolved(ctx context.Context, incidentID string) error

	// SetAcknowledged updates the record at key with acknowledgment
	// attribution. Both partition and sort identity must be supplied.
	SetAcknowledged(ctx context.Context, key domain.IncidentKey, by string, at time.Time) error

	// ListUnacknowledged scans for incident records lacking an
	// acknowledged_by value.
	ListUnacknowledged(ctx context.Context) ([]domain.IncidentRecord, error)

	// AppendAcknowledgment writes one audit-log entry. The log exists
	// independently of incident mutation so acknowledgment history
	// survives record overwrites.
	AppendAcknowledgment(ctx context.Context, record *domain.AcknowledgmentRecord) error

	// ListAcknowledgments returns the audit entries for an incident.
	ListAcknowledgments(ctx context.Context, incidentID string) ([]domain.AcknowledgmentRecord, error)
}

// Notifier sends lifecycle messages to the chat channel. The channel is
// the primary observability surface: every transition, escalation and
// confirmation produces exactly one message, except escalations which
// repeat by design until acknowledged.
type Notifier interface {
	SendAlert(ctx context.Context, serviceName string, status domain.ServiceStatus, incidentID, shortlink, body string) error
	SendResolution(ctx context.Context, serviceName string) error
	SendEscalation(ctx context.Context, incidentID, serviceName, contact string) error
	SendConfirmation(ctx context.Context, responseURL, user, incidentID string) error
}
