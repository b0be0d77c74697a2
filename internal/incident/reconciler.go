package incident

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/status-sentry/internal/domain"
	"github.com/bissquit/status-sentry/internal/pkg/ctxlog"
	"github.com/bissquit/status-sentry/internal/pkg/metrics"
	"github.com/bissquit/status-sentry/internal/statusfeed"
)

// Heartbeat is the liveness gate consulted before a reconcile cycle and
// updated after one. The blob behind it is opaque to the reconciler.
type Heartbeat interface {
	Check(ctx context.Context) error
	Update(ctx context.Context) error
}

// Reconciler drives the status state machine: it compares a fresh feed
// snapshot against stored state and decides, per monitored service,
// whether an incident is new, unchanged or resolved.
type Reconciler struct {
	services  []string
	source    statusfeed.Source
	store     Store
	notifier  Notifier
	heartbeat Heartbeat
	now       func() time.Time
}

// NewReconciler creates a reconciler for the given monitored services.
func NewReconciler(services []string, source statusfeed.Source, store Store, notifier Notifier, heartbeat Heartbeat) *Reconciler {
	return &Reconciler{
		services:  services,
		source:    source,
		store:     store,
		notifier:  notifier,
		heartbeat: heartbeat,
		now:       time.Now,
	}
}

// Reconcile runs one cycle. A heartbeat or snapshot-fetch failure aborts
// the whole cycle; per-service failures are logged and do not stop
// processing of the remaining services.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	if err := r.heartbeat.Check(ctx); err != nil {
		metrics.ReconcileCycles.WithLabelValues("heartbeat_error").Inc()
		return fmt.Errorf("heartbeat check: %w", err)
	}

	snapshot, err := r.source.Fetch(ctx)
	if err != nil {
		metrics.ReconcileCycles.WithLabelValues("source_error").Inc()
		return fmt.Errorf("fetch snapshot: %w", err)
	}

	for _, name := range r.services {
		component := snapshot.Lookup(name)
		if component == nil {
			logger.Debug("service not present in snapshot", "service", name)
			continue
		}

		if err := r.reconcileService(ctx, component); err != nil {
			logger.Error("reconcile service failed",
				"service", name,
				"error", err,
			)
		}
	}

	if err := r.heartbeat.Update(ctx); err != nil {
		metrics.ReconcileCycles.WithLabelValues("heartbeat_error").Inc()
		return fmt.Errorf("heartbeat update: %w", err)
	}

	metrics.ReconcileCycles.WithLabelValues("ok").Inc()
	return nil
}

func (r *Reconciler) reconcileService(ctx context.Context, component *statusfeed.Component) error {
	logger := ctxlog.FromContext(ctx)

	serviceName := component.Name
	observed := component.ServiceStatus()
	update := component.Incident()
	timestamp := domain.FormatStatusTimestamp(r.now())

	stored, err := r.store.GetServiceStatus(ctx, serviceName, domain.TimestampLatest)
	if err != nil {
		return fmt.Errorf("get latest status: %w", err)
	}

	// First observation is a baseline, not a transition: record it but
	// do not alert.
	if stored == nil {
		if err := r.writeStatus(ctx, serviceName, observed, timestamp, update); err != nil {
			return err
		}
		metrics.StatusTransitions.WithLabelValues(metrics.TransitionFirstSeen).Inc()
		logger.Info("service observed for the first time",
			"service", serviceName,
			"status", observed,
		)
		return nil
	}

	if stored.Status == observed {
		return nil
	}

	logger.Info("status change detected",
		"service", serviceName,
		"from", stored.Status,
		"to", observed,
	)

	switch {
	case !observed.IsOperational() && update != nil && update.ID != "":
		return r.openIncident(ctx, serviceName, observed, timestamp, update)

	case !observed.IsOperational():
		// Cannot create an incident without an identifier.
		metrics.StatusTransitions.WithLabelValues(metrics.TransitionUnresolved).Inc()
		logger.Warn("no incident attached to non-operational status",
			"service", serviceName,
			"status", observed,
		)
		return nil

	case stored.HasIncident():
		return r.resolveIncident(ctx, serviceName, *stored.IncidentID, timestamp)

	default:
		// Back to operational with nothing stored: just confirm the
		// clean state.
		metrics.StatusTransitions.WithLabelValues(metrics.TransitionCleared).Inc()
		return r.store.PutServiceStatus(ctx, &domain.ServiceStatusRecord{
			ServiceName: serviceName,
			Timestamp:   domain.TimestampLatest,
			Status:      observed,
		})
	}
}

func (r *Reconciler) openIncident(ctx context.Context, serviceName string, observed domain.ServiceStatus, timestamp string, update *statusfeed.IncidentUpdate) error {
	logger := ctxlog.FromContext(ctx)

	// Dedup by incident identifier: duplicate feed deliveries must not
	// create duplicate incidents or duplicate alerts. Two concurrent
	// cycles can still both pass this read; that window is accepted.
	existing, err := r.store.FindIncidentsByID(ctx, update.ID)
	if err != nil {
		return fmt.Errorf("find incident %s: %w", update.ID, err)
	}
	if len(existing) > 0 {
		logger.Debug("incident already recorded, skipping create",
			"incident_id", update.ID,
		)
		return r.writeStatus(ctx, serviceName, observed, timestamp, update)
	}

	record := &domain.IncidentRecord{
		IncidentID:  update.ID,
		ServiceName: serviceName,
		Timestamp:   timestamp,
		State:       domain.IncidentStateActive,
		Description: update.Body,
		Shortlink:   update.Shortlink,
	}
	if err := r.store.CreateIncident(ctx, record); err != nil {
		return fmt.Errorf("create incident %s: %w", update.ID, err)
	}

	if err := r.writeStatus(ctx, serviceName, observed, timestamp, update); err != nil {
		return err
	}

	metrics.StatusTransitions.WithLabelValues(metrics.TransitionIncident).Inc()

	// State is already persisted; a failed alert is logged, not
	// escalated.
	if err := r.notifier.SendAlert(ctx, serviceName, observed, update.ID, update.Shortlink, update.Body); err != nil {
		logger.Error("send alert failed",
			"service", serviceName,
			"incident_id", update.ID,
			"error", err,
		)
	}

	return nil
}

func (r *Reconciler) resolveIncident(ctx context.Context, serviceName, incidentID, timestamp string) error {
	logger := ctxlog.FromContext(ctx)

	if err := r.store.PutServiceStatus(ctx, &domain.ServiceStatusRecord{
		ServiceName: serviceName,
		Timestamp:   domain.TimestampLatest,
		Status:      domain.ServiceStatusOperational,
	}); err != nil {
		return fmt.Errorf("clear latest status: %w", err)
	}

	if err := r.store.MarkIncidentResolved(ctx, incidentID); err != nil {
		return fmt.Errorf("mark incident %s resolved: %w", incidentID, err)
	}

	metrics.StatusTransitions.WithLabelValues(metrics.TransitionResolved).Inc()
	logger.Info("incident resolved",
		"service", serviceName,
		"incident_id", incidentID,
		"timestamp", timestamp,
	)

	if err := r.notifier.SendResolution(ctx, serviceName); err != nil {
		logger.Error("send resolution failed",
			"service", serviceName,
			"incident_id", incidentID,
			"error", err,
		)
	}

	return nil
}

// writeStatus writes the "latest" record and a timestamped historical
// record for the observation.
func (r *Reconciler) writeStatus(ctx context.Context, serviceName string, status domain.ServiceStatus, timestamp string, update *statusfeed.IncidentUpdate) error {
	var incidentID *string
	var description string
	if update != nil && update.ID != "" {
		incidentID = &update.ID
		description = update.Body
	}

	latest := &domain.ServiceStatusRecord{
		ServiceName: serviceName,
		Timestamp:   domain.TimestampLatest,
		Status:      status,
		IncidentID:  incidentID,
		Description: description,
	}
	if err := r.store.PutServiceStatus(ctx, latest); err != nil {
		return fmt.Errorf("put latest status: %w", err)
	}

	historical := &domain.ServiceStatusRecord{
		ServiceName: serviceName,
		Timestamp:   timestamp,
		Status:      status,
		IncidentID:  incidentID,
		Description: description,
	}
	if err := r.store.PutServiceStatus(ctx, historical); err != nil {
		return fmt.Errorf("put historical status: %w", err)
	}

	return nil
}
