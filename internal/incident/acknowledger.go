package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/status-sentry/internal/domain"
	"github.com/bissquit/status-sentry/internal/pkg/ctxlog"
	"github.com/bissquit/status-sentry/internal/pkg/metrics"
	"github.com/google/uuid"
)

// Confirmation is the successful result of processing an acknowledgment.
type Confirmation struct {
	IncidentID          string `json:"incident_id"`
	ServiceName         string `json:"service_name"`
	AcknowledgedBy      string `json:"acknowledged_by"`
	AlreadyAcknowledged bool   `json:"already_acknowledged"`
}

// Acknowledger reconciles inbound acknowledgment callbacks against stored
// incident records.
type Acknowledger struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

// NewAcknowledger creates an acknowledgment processor.
func NewAcknowledger(store Store, notifier Notifier) *Acknowledger {
	return &Acknowledger{
		store:    store,
		notifier: notifier,
		now:      time.Now,
	}
}

// Acknowledge marks the incident as acknowledged by the given identity.
//
// The operation is idempotent: re-applying an acknowledgment, by the
// same or a different user, does not error; acknowledged_by and
// acknowledged_at are last-writer-wins. The audit log gains at most one
// entry per (incident, user) pair.
//
// Failures after the state update (audit append, confirmation message)
// are logged but never roll the acknowledgment back.
func (a *Acknowledger) Acknowledge(ctx context.Context, incidentID string, identity domain.UserIdentity, responseURL string) (*Confirmation, error) {
	logger := ctxlog.FromContext(ctx)

	records, err := a.store.FindIncidentsByID(ctx, incidentID)
	if err != nil {
		metrics.Acknowledgments.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("%w: find incident %s: %v", ErrStoreUnavailable, incidentID, err)
	}
	if len(records) == 0 {
		metrics.Acknowledgments.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: %s", ErrIncidentNotFound, incidentID)
	}

	// At most one open record per identifier is maintained by the
	// reconciler's dedup check; take the first match.
	record := records[0]
	name := identity.Name()
	now := a.now()

	if err := a.store.SetAcknowledged(ctx, record.Key(), name, now); err != nil {
		metrics.Acknowledgments.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("%w: acknowledge incident %s: %v", ErrStoreUnavailable, incidentID, err)
	}

	repeat := record.Acknowledged && record.AcknowledgedBy != nil && *record.AcknowledgedBy == name
	if !repeat {
		entry := &domain.AcknowledgmentRecord{
			ID:             uuid.NewString(),
			IncidentID:     incidentID,
			ServiceName:    record.ServiceName,
			AcknowledgedBy: name,
			AcknowledgedAt: now,
		}
		if err := a.store.AppendAcknowledgment(ctx, entry); err != nil {
			logger.Error("append acknowledgment audit entry failed",
				"incident_id", incidentID,
				"acknowledged_by", name,
				"error", err,
			)
		}
	}

	if err := a.notifier.SendConfirmation(ctx, responseURL, name, incidentID); err != nil {
		logger.Error("send acknowledgment confirmation failed",
			"incident_id", incidentID,
			"acknowledged_by", name,
			"error", err,
		)
	}

	metrics.Acknowledgments.WithLabelValues("ok").Inc()
	logger.Info("incident acknowledged",
		"incident_id", incidentID,
		"service", record.ServiceName,
		"acknowledged_by", name,
		"repeat", record.Acknowledged,
	)

	return &Confirmation{
		IncidentID:          incidentID,
		ServiceName:         record.ServiceName,
		AcknowledgedBy:      name,
		AlreadyAcknowledged: record.Acknowledged,
	}, nil
}
