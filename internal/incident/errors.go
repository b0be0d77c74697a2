package incident

import "errors"

// Error taxonomy for the incident lifecycle. Source failures abort a
// reconcile cycle; store failures are per-item in reconcile/sweep and
// request-failing in acknowledge; notify failures are logged and never
// surfaced once the state mutation they follow has succeeded.
var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrStoreUnavailable = errors.New("incident store unavailable")
	ErrMalformedPayload = errors.New("malformed callback payload")
)
