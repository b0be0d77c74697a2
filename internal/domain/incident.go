package domain

import "time"

// IncidentState represents the lifecycle state of an incident.
type IncidentState string

// Incident states. Resolution is a state flip, never a row removal.
const (
	IncidentStateActive   IncidentState = "active"
	IncidentStateResolved IncidentState = "resolved"
)

// IncidentRecord tracks a single incident reported by the status feed.
// Identity is IncidentID, assigned by the external source. The store keys
// rows by (service_name, timestamp) and maintains a secondary index on
// IncidentID for acknowledgment lookups.
type IncidentRecord struct {
	IncidentID     string        `json:"incident_id"`
	ServiceName    string        `json:"service_name"`
	Timestamp      string        `json:"timestamp"`
	State          IncidentState `json:"state"`
	Description    string        `json:"description,omitempty"`
	Shortlink      string        `json:"shortlink,omitempty"`
	Acknowledged   bool          `json:"acknowledged"`
	AcknowledgedBy *string       `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
}

// Key returns the full record key, both partition and sort identity.
type IncidentKey struct {
	ServiceName string
	Timestamp   string
}

// Key returns the store key of the record.
func (i *IncidentRecord) Key() IncidentKey {
	return IncidentKey{ServiceName: i.ServiceName, Timestamp: i.Timestamp}
}

// AcknowledgmentRecord is an append-only audit entry written once per
// successful acknowledgment. It survives incident-record overwrites.
type AcknowledgmentRecord struct {
	ID             string    `json:"id"`
	IncidentID     string    `json:"incident_id"`
	ServiceName    string    `json:"service_name"`
	AcknowledgedBy string    `json:"acknowledged_by"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}

// UnknownUser is recorded when the acknowledging identity cannot be
// determined from the callback payload. The acknowledgment itself is
// still applied.
const UnknownUser = "unknown"

// UserIdentity describes who acknowledged an incident, as extracted from
// the chat-platform callback payload.
type UserIdentity struct {
	ID          string
	DisplayName string
}

// Name returns the best available human-readable identity, falling back
// to the opaque ID and finally to UnknownUser.
func (u UserIdentity) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.ID != "" {
		return u.ID
	}
	return UnknownUser
}
