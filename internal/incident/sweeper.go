package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/status-sentry/internal/domain"
	"github.com/bissquit/status-sentry/internal/pkg/ctxlog"
	"github.com/bissquit/status-sentry/internal/pkg/metrics"
)

// Sweeper escalates incidents that remain unacknowledged past the
// configured timeout. Escalation is a reminder, not a resolution: the
// sweeper never mutates acknowledgment state and re-notifies on every
// sweep until someone acknowledges.
type Sweeper struct {
	store    Store
	notifier Notifier
	timeout  time.Duration
	contact  string
}

// NewSweeper creates a sweeper with the given escalation timeout and
// escalation contact.
func NewSweeper(store Store, notifier Notifier, timeout time.Duration, contact string) *Sweeper {
	return &Sweeper{
		store:    store,
		notifier: notifier,
		timeout:  timeout,
		contact:  contact,
	}
}

// Sweep scans for unacknowledged incidents and escalates every one whose
// age at now exceeds the timeout. A scan failure aborts the sweep;
// per-incident notify failures are logged and the sweep continues.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) error {
	logger := ctxlog.FromContext(ctx)

	items, err := s.store.ListUnacknowledged(ctx)
	if err != nil {
		return fmt.Errorf("scan unacknowledged incidents: %w", err)
	}

	for _, item := range items {
		createdAt, err := domain.ParseStatusTimestamp(item.Timestamp)
		if err != nil {
			logger.Warn("unparseable incident timestamp, skipping",
				"incident_id", item.IncidentID,
				"timestamp", item.Timestamp,
			)
			continue
		}

		if now.Sub(createdAt) <= s.timeout {
			continue
		}

		if err := s.notifier.SendEscalation(ctx, item.IncidentID, item.ServiceName, s.contact); err != nil {
			logger.Error("send escalation failed",
				"incident_id", item.IncidentID,
				"service", item.ServiceName,
				"error", err,
			)
			continue
		}

		metrics.Escalations.Inc()
		logger.Info("incident escalated",
			"incident_id", item.IncidentID,
			"service", item.ServiceName,
			"age", now.Sub(createdAt),
			"contact", s.contact,
		)
	}

	return nil
}
