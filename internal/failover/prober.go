// Package failover probes the health of the primary region and raises a
// notification when the failure threshold is met. It is an observation
// stub: no routing change or other corrective action is taken.
package failover

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bissquit/status-sentry/internal/pkg/ctxlog"
)

// Alerter raises the failover notification.
type Alerter interface {
	SendFailover(ctx context.Context, healthURL string) error
}

// Config holds prober settings.
type Config struct {
	HealthURL    string
	Threshold    int
	ProbeTimeout time.Duration
}

// Prober checks the primary health endpoint a fixed number of times per
// evaluation and alerts when every probe fails.
type Prober struct {
	config     Config
	alerter    Alerter
	httpClient *http.Client
}

// NewProber creates a prober.
func NewProber(config Config, alerter Alerter) *Prober {
	if config.Threshold <= 0 {
		config.Threshold = 3
	}
	if config.ProbeTimeout == 0 {
		config.ProbeTimeout = 5 * time.Second
	}
	return &Prober{
		config:  config,
		alerter: alerter,
		httpClient: &http.Client{
			Timeout: config.ProbeTimeout,
		},
	}
}

// Evaluate runs one evaluation: Threshold probes, then at most one
// failover notification when all of them failed.
func (p *Prober) Evaluate(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	failed := 0
	for i := 0; i < p.config.Threshold; i++ {
		if !p.healthy(ctx) {
			failed++
		}
	}

	if failed < p.config.Threshold {
		if failed > 0 {
			logger.Warn("primary health probes partially failing",
				"failed", failed,
				"threshold", p.config.Threshold,
			)
		}
		return nil
	}

	logger.Error("primary region unhealthy, raising failover alert",
		"health_url", p.config.HealthURL,
		"failed", failed,
	)

	if err := p.alerter.SendFailover(ctx, p.config.HealthURL); err != nil {
		return fmt.Errorf("send failover alert: %w", err)
	}
	return nil
}

func (p *Prober) healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.HealthURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
