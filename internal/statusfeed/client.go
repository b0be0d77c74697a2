// Package statusfeed fetches service status snapshots from the external
// status feed (a statuspage.io style summary document).
package statusfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bissquit/status-sentry/internal/domain"
)

const defaultTimeout = 10 * time.Second

// ErrSourceUnavailable indicates the status feed could not be fetched or
// parsed. A reconcile cycle must not proceed on a partial snapshot.
var ErrSourceUnavailable = errors.New("status feed unavailable")

// Component is one monitored service's entry in a snapshot.
type Component struct {
	Name            string           `json:"name"`
	Status          string           `json:"status"`
	IncidentUpdates []IncidentUpdate `json:"incident_updates,omitempty"`
}

// IncidentUpdate carries incident metadata attached to a component.
// The first update in the list describes the currently open incident.
type IncidentUpdate struct {
	ID        string `json:"id"`
	Shortlink string `json:"shortlink"`
	Body      string `json:"body"`
}

// ServiceStatus maps the feed's status string onto the domain taxonomy.
func (c Component) ServiceStatus() domain.ServiceStatus {
	s := domain.ServiceStatus(c.Status)
	if !s.IsValid() {
		return domain.ServiceStatusUnknown
	}
	return s
}

// Incident returns the component's current incident metadata, if any.
func (c Component) Incident() *IncidentUpdate {
	if len(c.IncidentUpdates) == 0 {
		return nil
	}
	return &c.IncidentUpdates[0]
}

// Snapshot is a point-in-time read of all components in the feed.
type Snapshot struct {
	Components []Component `json:"components"`
}

// Lookup finds a component by exact name. Returns nil if absent.
func (s *Snapshot) Lookup(name string) *Component {
	for i := range s.Components {
		if s.Components[i].Name == name {
			return &s.Components[i]
		}
	}
	return nil
}

// Source fetches status snapshots.
type Source interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// Client is an HTTP Source reading the feed's summary endpoint.
type Client struct {
	url        string
	httpClient *http.Client
}

// Config holds feed client configuration.
type Config struct {
	URL     string
	Timeout time.Duration
}

// NewClient creates a feed client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		url: cfg.URL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Fetch retrieves the current snapshot. Any transport, status or decode
// failure is reported as ErrSourceUnavailable.
func (c *Client) Fetch(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrSourceUnavailable, resp.StatusCode, string(body))
	}

	var snapshot Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("%w: decode summary: %v", ErrSourceUnavailable, err)
	}

	return &snapshot, nil
}
