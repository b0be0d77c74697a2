package incident

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bissquit/status-sentry/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedIncident(t *testing.T, store *fakeStore, incidentID, serviceName string, createdAt time.Time) {
	t.Helper()
	err := store.CreateIncident(context.Background(), &domain.IncidentRecord{
		IncidentID:  incidentID,
		ServiceName: serviceName,
		Timestamp:   domain.FormatStatusTimestamp(createdAt),
		State:       domain.IncidentStateActive,
	})
	require.NoError(t, err)
}

func TestSweep_EscalatesPastTimeout(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seedIncident(t, store, "abc123", "Git Operations", base)

	s := NewSweeper(store, notifier, 15*time.Minute, "@oncall-secondary")

	require.NoError(t, s.Sweep(context.Background(), base.Add(20*time.Minute)))

	require.Len(t, notifier.escalations, 1)
	escalation := notifier.escalations[0]
	assert.Equal(t, "abc123", escalation.IncidentID)
	assert.Equal(t, "Git Operations", escalation.ServiceName)
	assert.Equal(t, "@oncall-secondary", escalation.Contact)
}

// Re-escalation on every sweep is intentional: the reminder repeats
// until someone acknowledges.
func TestSweep_RepeatsUntilAcknowledged(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seedIncident(t, store, "abc123", "Git Operations", base)

	s := NewSweeper(store, notifier, 15*time.Minute, "@oncall-secondary")

	require.NoError(t, s.Sweep(context.Background(), base.Add(20*time.Minute)))
	require.NoError(t, s.Sweep(context.Background(), base.Add(40*time.Minute)))
	require.NoError(t, s.Sweep(context.Background(), base.Add(60*time.Minute)))
	assert.Len(t, notifier.escalations, 3)

	// Sweeping never mutates acknowledgment state.
	unacked, err := store.ListUnacknowledged(context.Background())
	require.NoError(t, err)
	assert.Len(t, unacked, 1)

	require.NoError(t, store.SetAcknowledged(context.Background(),
		domain.IncidentKey{ServiceName: "Git Operations", Timestamp: domain.FormatStatusTimestamp(base)},
		"alice", base.Add(61*time.Minute)))

	require.NoError(t, s.Sweep(context.Background(), base.Add(80*time.Minute)))
	assert.Len(t, notifier.escalations, 3, "acknowledged incidents stop escalating")
}

func TestSweep_YoungIncidentNotEscalated(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seedIncident(t, store, "abc123", "Git Operations", base)

	s := NewSweeper(store, notifier, 15*time.Minute, "@oncall-secondary")

	require.NoError(t, s.Sweep(context.Background(), base.Add(10*time.Minute)))
	assert.Empty(t, notifier.escalations)
}

func TestSweep_ScanFailureAborts(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("scan failed")

	s := NewSweeper(store, &fakeNotifier{}, 15*time.Minute, "@oncall-secondary")

	err := s.Sweep(context.Background(), time.Now())
	require.Error(t, err)
}

func TestSweep_NotifyFailureContinues(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{escalationErr: errors.New("webhook down")}
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seedIncident(t, store, "abc123", "Git Operations", base)
	seedIncident(t, store, "def456", "Webhooks", base.Add(time.Second))

	s := NewSweeper(store, notifier, 15*time.Minute, "@oncall-secondary")

	// Both notify attempts fail; the sweep itself still succeeds.
	require.NoError(t, s.Sweep(context.Background(), base.Add(30*time.Minute)))
	assert.Empty(t, notifier.escalations)
}

func TestSweep_UnparseableTimestampSkipped(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	require.NoError(t, store.CreateIncident(context.Background(), &domain.IncidentRecord{
		IncidentID:  "abc123",
		ServiceName: "Git Operations",
		Timestamp:   "not-a-timestamp",
		State:       domain.IncidentStateActive,
	}))

	s := NewSweeper(store, notifier, 15*time.Minute, "@oncall-secondary")

	require.NoError(t, s.Sweep(context.Background(), time.Now()))
	assert.Empty(t, notifier.escalations)
}
