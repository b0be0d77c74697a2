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

func newTestAcknowledger(store *fakeStore, notifier *fakeNotifier) *Acknowledger {
	a := NewAcknowledger(store, notifier)
	a.now = func() time.Time {
		return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	}
	return a
}

func seedActiveIncident(t *testing.T, store *fakeStore) {
	t.Helper()
	require.NoError(t, store.CreateIncident(context.Background(), &domain.IncidentRecord{
		IncidentID:  "abc123",
		ServiceName: "Git Operations",
		Timestamp:   "2024-03-01 12:00:00 UTC",
		State:       domain.IncidentStateActive,
	}))
}

func TestAcknowledge_Success(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	seedActiveIncident(t, store)

	a := newTestAcknowledger(store, notifier)

	confirmation, err := a.Acknowledge(context.Background(), "abc123",
		domain.UserIdentity{ID: "U1", DisplayName: "alice"}, "")
	require.NoError(t, err)

	assert.Equal(t, "abc123", confirmation.IncidentID)
	assert.Equal(t, "alice", confirmation.AcknowledgedBy)
	assert.False(t, confirmation.AlreadyAcknowledged)

	record := store.incidents[0]
	assert.True(t, record.Acknowledged)
	require.NotNil(t, record.AcknowledgedBy)
	assert.Equal(t, "alice", *record.AcknowledgedBy)
	require.NotNil(t, record.AcknowledgedAt)

	audit, err := store.ListAcknowledgments(context.Background(), "abc123")
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "alice", audit[0].AcknowledgedBy)
	assert.Equal(t, "Git Operations", audit[0].ServiceName)
	assert.NotEmpty(t, audit[0].ID)

	require.Len(t, notifier.confirmations, 1)
	assert.Equal(t, "alice", notifier.confirmations[0].User)
	assert.Equal(t, "abc123", notifier.confirmations[0].IncidentID)
}

func TestAcknowledge_IdempotentForSameUser(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	seedActiveIncident(t, store)

	a := newTestAcknowledger(store, notifier)

	identity := domain.UserIdentity{ID: "U1", DisplayName: "alice"}
	_, err := a.Acknowledge(context.Background(), "abc123", identity, "")
	require.NoError(t, err)

	confirmation, err := a.Acknowledge(context.Background(), "abc123", identity, "")
	require.NoError(t, err, "re-applying the same acknowledgment must not error")
	assert.True(t, confirmation.AlreadyAcknowledged)

	assert.True(t, store.incidents[0].Acknowledged)

	audit, err := store.ListAcknowledgments(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Len(t, audit, 1, "repeat by the same user adds no audit entry")
}

func TestAcknowledge_LastWriterWinsForDifferentUser(t *testing.T) {
	store := newFakeStore()
	seedActiveIncident(t, store)

	a := newTestAcknowledger(store, &fakeNotifier{})

	_, err := a.Acknowledge(context.Background(), "abc123", domain.UserIdentity{DisplayName: "alice"}, "")
	require.NoError(t, err)

	confirmation, err := a.Acknowledge(context.Background(), "abc123", domain.UserIdentity{DisplayName: "bob"}, "")
	require.NoError(t, err)
	assert.Equal(t, "bob", confirmation.AcknowledgedBy)

	record := store.incidents[0]
	require.NotNil(t, record.AcknowledgedBy)
	assert.Equal(t, "bob", *record.AcknowledgedBy)

	audit, err := store.ListAcknowledgments(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Len(t, audit, 2, "each distinct user is audited once")
}

func TestAcknowledge_UnknownIncident(t *testing.T) {
	store := newFakeStore()
	a := newTestAcknowledger(store, &fakeNotifier{})

	_, err := a.Acknowledge(context.Background(), "missing", domain.UserIdentity{DisplayName: "alice"}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncidentNotFound)
	assert.Zero(t, store.incidentCount())
	assert.Empty(t, store.acks)
}

func TestAcknowledge_AmbiguousIdentityRecordedAsUnknown(t *testing.T) {
	store := newFakeStore()
	seedActiveIncident(t, store)

	a := newTestAcknowledger(store, &fakeNotifier{})

	confirmation, err := a.Acknowledge(context.Background(), "abc123", domain.UserIdentity{}, "")
	require.NoError(t, err, "ambiguous identity must not fail the request")
	assert.Equal(t, domain.UnknownUser, confirmation.AcknowledgedBy)

	record := store.incidents[0]
	require.NotNil(t, record.AcknowledgedBy)
	assert.Equal(t, domain.UnknownUser, *record.AcknowledgedBy)
}

func TestAcknowledge_StoreFailureFailsRequest(t *testing.T) {
	store := newFakeStore()
	seedActiveIncident(t, store)
	store.setErr = errors.New("update failed")

	a := newTestAcknowledger(store, &fakeNotifier{})

	_, err := a.Acknowledge(context.Background(), "abc123", domain.UserIdentity{DisplayName: "alice"}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestAcknowledge_AuditAndNotifyFailuresDoNotRollBack(t *testing.T) {
	store := newFakeStore()
	seedActiveIncident(t, store)
	store.appendErr = errors.New("audit log down")
	notifier := &fakeNotifier{confirmationErr: errors.New("webhook down")}

	a := newTestAcknowledger(store, notifier)

	confirmation, err := a.Acknowledge(context.Background(), "abc123", domain.UserIdentity{DisplayName: "alice"}, "")
	require.NoError(t, err, "post-mutation failures are logged, not surfaced")
	assert.Equal(t, "alice", confirmation.AcknowledgedBy)
	assert.True(t, store.incidents[0].Acknowledged)
}

func TestAcknowledge_ConfirmationUsesResponseURL(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	seedActiveIncident(t, store)

	a := newTestAcknowledger(store, notifier)

	_, err := a.Acknowledge(context.Background(), "abc123",
		domain.UserIdentity{DisplayName: "alice"}, "https://hooks.example.com/response/T1")
	require.NoError(t, err)

	require.Len(t, notifier.confirmations, 1)
	assert.Equal(t, "https://hooks.example.com/response/T1", notifier.confirmations[0].ResponseURL)
}
