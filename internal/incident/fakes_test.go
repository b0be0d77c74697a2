package incident

import (
	"context"
	"sync"
	"time"

	"github.com/bissquit/status-sentry/internal/domain"
	"github.com/bissquit/status-sentry/internal/statusfeed"
)

// fakeStore is an in-memory Store with the same visibility semantics as
// the real one: consistent reads after writes, per-record atomicity,
// and no cross-invocation coordination.
type fakeStore struct {
	mu        sync.Mutex
	status    map[string]map[string]*domain.ServiceStatusRecord
	incidents []*domain.IncidentRecord
	acks      []*domain.AcknowledgmentRecord

	getErrFor map[string]error
	putErr    error
	createErr error
	findErr   error
	listErr   error
	setErr    error
	appendErr error

	// onFind, when set, runs inside FindIncidentsByID after the read
	// completes and before it returns. Lets tests hold two concurrent
	// reconciles inside the dedup race window.
	onFind func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		status:    make(map[string]map[string]*domain.ServiceStatusRecord),
		getErrFor: make(map[string]error),
	}
}

func (s *fakeStore) GetServiceStatus(_ context.Context, serviceName, timestamp string) (*domain.ServiceStatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.getErrFor[serviceName]; err != nil {
		return nil, err
	}
	record, ok := s.status[serviceName][timestamp]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

func (s *fakeStore) PutServiceStatus(_ context.Context, record *domain.ServiceStatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	if s.status[record.ServiceName] == nil {
		s.status[record.ServiceName] = make(map[string]*domain.ServiceStatusRecord)
	}
	clone := *record
	s.status[record.ServiceName][record.Timestamp] = &clone
	return nil
}

func (s *fakeStore) CreateIncident(_ context.Context, record *domain.IncidentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	clone := *record
	s.incidents = append(s.incidents, &clone)
	return nil
}

func (s *fakeStore) FindIncidentsByID(_ context.Context, incidentID string) ([]domain.IncidentRecord, error) {
	s.mu.Lock()
	if s.findErr != nil {
		s.mu.Unlock()
		return nil, s.findErr
	}
	var matches []domain.IncidentRecord
	for _, record := range s.incidents {
		if record.IncidentID == incidentID {
			matches = append(matches, *record)
		}
	}
	hook := s.onFind
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return matches, nil
}

func (s *fakeStore) MarkIncidentResolved(_ context.Context, incidentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.incidents {
		if record.IncidentID == incidentID {
			record.State = domain.IncidentStateResolved
		}
	}
	return nil
}

func (s *fakeStore) SetAcknowledged(_ context.Context, key domain.IncidentKey, by string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	for _, record := range s.incidents {
		if record.ServiceName == key.ServiceName && record.Timestamp == key.Timestamp {
			record.Acknowledged = true
			record.AcknowledgedBy = &by
			ackAt := at
			record.AcknowledgedAt = &ackAt
			return nil
		}
	}
	return ErrIncidentNotFound
}

func (s *fakeStore) ListUnacknowledged(_ context.Context) ([]domain.IncidentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var result []domain.IncidentRecord
	for _, record := range s.incidents {
		if record.AcknowledgedBy == nil {
			result = append(result, *record)
		}
	}
	return result, nil
}

func (s *fakeStore) AppendAcknowledgment(_ context.Context, record *domain.AcknowledgmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	clone := *record
	s.acks = append(s.acks, &clone)
	return nil
}

func (s *fakeStore) ListAcknowledgments(_ context.Context, incidentID string) ([]domain.AcknowledgmentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.AcknowledgmentRecord
	for _, record := range s.acks {
		if record.IncidentID == incidentID {
			result = append(result, *record)
		}
	}
	return result, nil
}

func (s *fakeStore) incidentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.incidents)
}

func (s *fakeStore) historicalCount(serviceName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for ts := range s.status[serviceName] {
		if ts != domain.TimestampLatest {
			count++
		}
	}
	return count
}

type alertCall struct {
	ServiceName string
	Status      domain.ServiceStatus
	IncidentID  string
	Shortlink   string
	Body        string
}

type escalationCall struct {
	IncidentID  string
	ServiceName string
	Contact     string
}

type confirmationCall struct {
	ResponseURL string
	User        string
	IncidentID  string
}

// fakeNotifier records every outbound message.
type fakeNotifier struct {
	mu            sync.Mutex
	alerts        []alertCall
	resolutions   []string
	escalations   []escalationCall
	confirmations []confirmationCall

	alertErr        error
	resolutionErr   error
	escalationErr   error
	confirmationErr error
}

func (n *fakeNotifier) SendAlert(_ context.Context, serviceName string, status domain.ServiceStatus, incidentID, shortlink, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.alertErr != nil {
		return n.alertErr
	}
	n.alerts = append(n.alerts, alertCall{serviceName, status, incidentID, shortlink, body})
	return nil
}

func (n *fakeNotifier) SendResolution(_ context.Context, serviceName string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.resolutionErr != nil {
		return n.resolutionErr
	}
	n.resolutions = append(n.resolutions, serviceName)
	return nil
}

func (n *fakeNotifier) SendEscalation(_ context.Context, incidentID, serviceName, contact string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.escalationErr != nil {
		return n.escalationErr
	}
	n.escalations = append(n.escalations, escalationCall{incidentID, serviceName, contact})
	return nil
}

func (n *fakeNotifier) SendConfirmation(_ context.Context, responseURL, user, incidentID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.confirmationErr != nil {
		return n.confirmationErr
	}
	n.confirmations = append(n.confirmations, confirmationCall{responseURL, user, incidentID})
	return nil
}

func (n *fakeNotifier) alertCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

// fakeSource serves a fixed snapshot or an error.
type fakeSource struct {
	snapshot *statusfeed.Snapshot
	err      error
}

func (s *fakeSource) Fetch(_ context.Context) (*statusfeed.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snapshot, nil
}

// fakeGate is an in-memory heartbeat.
type fakeGate struct {
	checkErr  error
	updateErr error
	checks    int
	updates   int
}

func (g *fakeGate) Check(_ context.Context) error {
	g.checks++
	return g.checkErr
}

func (g *fakeGate) Update(_ context.Context) error {
	if g.updateErr != nil {
		return g.updateErr
	}
	g.updates++
	return nil
}
