// Package notify sends incident notifications to a Slack channel via an
// Incoming Webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bissquit/status-sentry/internal/domain"
	"github.com/bissquit/status-sentry/internal/pkg/metrics"
	"golang.org/x/time/rate"
)

// ActionAcknowledge is the action_id carried by the acknowledge button in
// alert messages. The inbound callback handler matches on it.
const ActionAcknowledge = "acknowledge_incident"

const (
	defaultTimeout  = 10 * time.Second
	defaultUsername = "StatusSentry"

	// Slack allows roughly one webhook message per second.
	defaultRateLimit = rate.Limit(1)
	defaultBurst     = 3
)

// Config holds Slack sender configuration.
type Config struct {
	WebhookURL string
	Username   string
	Timeout    time.Duration
}

// Sender posts messages to a Slack incoming webhook.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSender creates a Slack sender.
func NewSender(config Config) *Sender {
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(defaultRateLimit, defaultBurst),
	}
}

// Message is a Slack webhook payload.
type Message struct {
	Text     string  `json:"text"`
	Username string  `json:"username,omitempty"`
	Blocks   []Block `json:"blocks,omitempty"`
}

// Block is a Slack Block Kit element. Only the fields this sender uses
// are modeled.
type Block struct {
	Type     string          `json:"type"`
	Text     *TextObject     `json:"text,omitempty"`
	Elements []ActionElement `json:"elements,omitempty"`
}

// TextObject is a Block Kit text object.
type TextObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// ActionElement is an interactive element inside an actions block.
type ActionElement struct {
	Type     string      `json:"type"`
	Text     *TextObject `json:"text,omitempty"`
	Style    string      `json:"style,omitempty"`
	ActionID string      `json:"action_id,omitempty"`
	Value    string      `json:"value,omitempty"`
}

// SendAlert posts a new-incident alert carrying an acknowledge button
// valued with the incident identifier.
func (s *Sender) SendAlert(ctx context.Context, serviceName string, status domain.ServiceStatus, incidentID, shortlink, body string) error {
	statusLabel := strings.ToUpper(string(status))
	text := fmt.Sprintf(":red_circle: *%s*: %s - %s\n%s", statusLabel, serviceName, shortlink, body)

	msg := Message{
		Text: fmt.Sprintf("%s: %s - %s", statusLabel, serviceName, shortlink),
		Blocks: []Block{
			{
				Type: "section",
				Text: &TextObject{Type: "mrkdwn", Text: text},
			},
			acknowledgeActions(incidentID),
		},
	}

	return s.post(ctx, s.config.WebhookURL, "alert", msg)
}

// SendResolution posts a back-to-operational notice.
func (s *Sender) SendResolution(ctx context.Context, serviceName string) error {
	msg := Message{
		Text: fmt.Sprintf(":white_check_mark: *RESOLVED*: %s is now operational.", serviceName),
	}
	return s.post(ctx, s.config.WebhookURL, "resolution", msg)
}

// SendEscalation posts a reminder for an unacknowledged incident, naming
// the escalation contact. Sent again on every sweep until acknowledged.
func (s *Sender) SendEscalation(ctx context.Context, incidentID, serviceName, contact string) error {
	msg := Message{
		Text: fmt.Sprintf(":rotating_light: *ESCALATION*: Incident %s for %s has not been acknowledged. Escalating to %s.",
			incidentID, serviceName, contact),
	}
	return s.post(ctx, s.config.WebhookURL, "escalation", msg)
}

// SendConfirmation posts an acknowledgment confirmation. When responseURL
// is set the message goes to the originating callback's response channel,
// otherwise to the general alert channel.
func (s *Sender) SendConfirmation(ctx context.Context, responseURL, user, incidentID string) error {
	url := responseURL
	if url == "" {
		url = s.config.WebhookURL
	}
	msg := Message{
		Text: fmt.Sprintf(":eyes: %s is handling incident %s.", user, incidentID),
	}
	return s.post(ctx, url, "confirmation", msg)
}

// SendFailover raises a primary-region health alert. The failover path
// is observation-only; the message asks for manual intervention.
func (s *Sender) SendFailover(ctx context.Context, healthURL string) error {
	msg := Message{
		Text: fmt.Sprintf(":warning: *FAILOVER*: primary region health checks are failing (%s). Manual intervention required.", healthURL),
	}
	return s.post(ctx, s.config.WebhookURL, "failover", msg)
}

func acknowledgeActions(incidentID string) Block {
	return Block{
		Type: "actions",
		Elements: []ActionElement{
			{
				Type:     "button",
				Text:     &TextObject{Type: "plain_text", Text: "Acknowledge", Emoji: true},
				Style:    "primary",
				ActionID: ActionAcknowledge,
				Value:    incidentID,
			},
		},
	}
}

func (s *Sender) post(ctx context.Context, url, kind string, msg Message) error {
	if msg.Username == "" {
		msg.Username = s.config.Username
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues(kind, "error").Inc()
		return &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := s.handleResponse(resp, url); err != nil {
		metrics.NotificationsSent.WithLabelValues(kind, "error").Inc()
		return err
	}

	metrics.NotificationsSent.WithLabelValues(kind, "ok").Inc()
	return nil
}

func (s *Sender) handleResponse(resp *http.Response, webhookURL string) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		slog.Debug("slack message sent", "webhook", maskWebhookURL(webhookURL))
		return nil

	case http.StatusBadRequest, http.StatusNotFound, http.StatusGone:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("webhook rejected message: %s", string(body)),
		}

	case http.StatusForbidden:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: "invalid or revoked webhook",
		}

	case http.StatusTooManyRequests:
		return &RetryableError{
			Code:    resp.StatusCode,
			Message: "rate limited",
		}

	default:
		if resp.StatusCode >= 500 {
			return &RetryableError{
				Code:    resp.StatusCode,
				Message: fmt.Sprintf("server error: %s", string(body)),
			}
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

// maskWebhookURL hides most of the URL for logging.
func maskWebhookURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}

// PermanentError indicates a delivery failure that will not succeed on
// retry.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("slack error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("slack error: %s", e.Message)
}

// IsRetryable returns false.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary delivery failure.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("slack error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("slack error: %s", e.Message)
}

// IsRetryable returns true.
func (e *RetryableError) IsRetryable() bool { return true }
