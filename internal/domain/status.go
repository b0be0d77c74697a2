package domain

import "time"

// ServiceStatus represents the operational status of a monitored service
// as reported by the external status feed.
type ServiceStatus string

// Service statuses. The taxonomy mirrors the feed's component statuses.
const (
	ServiceStatusOperational   ServiceStatus = "operational"
	ServiceStatusDegraded      ServiceStatus = "degraded_performance"
	ServiceStatusPartialOutage ServiceStatus = "partial_outage"
	ServiceStatusMajorOutage   ServiceStatus = "major_outage"
	ServiceStatusUnknown       ServiceStatus = "unknown"
)

// IsValid checks if the service status is one the feed can report.
func (s ServiceStatus) IsValid() bool {
	switch s {
	case ServiceStatusOperational, ServiceStatusDegraded,
		ServiceStatusPartialOutage, ServiceStatusMajorOutage,
		ServiceStatusUnknown:
		return true
	}
	return false
}

// IsOperational reports whether the status requires no incident handling.
func (s ServiceStatus) IsOperational() bool {
	return s == ServiceStatusOperational
}

// TimestampLatest is the sentinel sort key for the record holding a
// service's current state. Exactly one such record exists per service
// and it is overwritten in place on every change.
const TimestampLatest = "latest"

// StatusTimestampLayout is the layout for stored record timestamps.
// Historical records are keyed by instants in this format.
const StatusTimestampLayout = "2006-01-02 15:04:05 UTC"

// FormatStatusTimestamp renders an instant in the stored-record layout.
func FormatStatusTimestamp(t time.Time) string {
	return t.UTC().Format(StatusTimestampLayout)
}

// ParseStatusTimestamp parses a stored-record timestamp.
func ParseStatusTimestamp(s string) (time.Time, error) {
	return time.Parse(StatusTimestampLayout, s)
}

// ServiceStatusRecord is one observation of a monitored service, keyed by
// (service_name, timestamp). The timestamp is either a formatted instant
// (historical, append-only) or TimestampLatest (current state, overwritten).
type ServiceStatusRecord struct {
	ServiceName string        `json:"service_name"`
	Timestamp   string        `json:"timestamp"`
	Status      ServiceStatus `json:"status"`
	IncidentID  *string       `json:"incident_id,omitempty"`
	Description string        `json:"description,omitempty"`
}

// HasIncident reports whether an incident is currently open for the service.
func (r *ServiceStatusRecord) HasIncident() bool {
	return r.IncidentID != nil && *r.IncidentID != ""
}
