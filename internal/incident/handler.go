package incident

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/status-sentry/internal/domain"
	"github.com/bissquit/status-sentry/internal/notify"
	"github.com/bissquit/status-sentry/internal/pkg/ctxlog"
	"github.com/bissquit/status-sentry/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

const (
	maxCallbackBody = 1 << 20

	// Inbound callbacks older than this are rejected when signature
	// verification is enabled.
	signatureMaxAge = 5 * time.Minute
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrMalformedPayload, Status: http.StatusBadRequest},
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound, Message: "incident not found"},
	{Error: ErrStoreUnavailable, Status: http.StatusInternalServerError, Message: "internal error"},
}

// Handler handles the inbound chat-platform interactive callback.
type Handler struct {
	acknowledger  *Acknowledger
	signingSecret string
	now           func() time.Time
}

// NewHandler creates the callback handler. An empty signingSecret
// disables signature verification.
func NewHandler(acknowledger *Acknowledger, signingSecret string) *Handler {
	return &Handler{
		acknowledger:  acknowledger,
		signingSecret: signingSecret,
		now:           time.Now,
	}
}

// RegisterRoutes registers the callback route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/slack/actions", h.HandleAction)
}

// callbackPayload models the interactive-button delivery. Identity may
// arrive in any of three shapes: a user object with a name, a user
// object with only an opaque id, or a bare top-level user_id.
type callbackPayload struct {
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
	User *struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"user"`
	UserID      string `json:"user_id"`
	ResponseURL string `json:"response_url"`
}

func (p *callbackPayload) identity() domain.UserIdentity {
	var identity domain.UserIdentity
	if p.User != nil {
		identity.ID = p.User.ID
		identity.DisplayName = p.User.Name
		if identity.DisplayName == "" {
			identity.DisplayName = p.User.Username
		}
	}
	if identity.ID == "" {
		identity.ID = p.UserID
	}
	return identity
}

// HandleAction handles POST /slack/actions. The body is either raw JSON
// or form-encoded with the JSON in a payload field.
func (h *Handler) HandleAction(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil || len(body) == 0 {
		httputil.Error(w, http.StatusBadRequest, "missing request body")
		return
	}

	if h.signingSecret != "" {
		if err := h.verifySignature(r, body); err != nil {
			logger.Warn("callback signature rejected", "error", err)
			httputil.Error(w, http.StatusForbidden, "invalid signature")
			return
		}
	}

	payload, err := parseCallback(r.Header.Get("Content-Type"), body)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	if len(payload.Actions) == 0 {
		httputil.Error(w, http.StatusBadRequest, "no actions in payload")
		return
	}

	action := payload.Actions[0]
	if action.Value == "" {
		httputil.Error(w, http.StatusBadRequest, "action has no incident identifier")
		return
	}
	if action.ActionID != "" && action.ActionID != notify.ActionAcknowledge {
		httputil.Error(w, http.StatusBadRequest, "unsupported action")
		return
	}

	confirmation, err := h.acknowledger.Acknowledge(r.Context(), action.Value, payload.identity(), payload.ResponseURL)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"message":         fmt.Sprintf("Incident %s acknowledged by %s.", confirmation.IncidentID, confirmation.AcknowledgedBy),
		"acknowledged_by": confirmation.AcknowledgedBy,
	})
}

func parseCallback(contentType string, body []byte) (*callbackPayload, error) {
	raw := body

	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, fmt.Errorf("%w: parse form: %v", ErrMalformedPayload, err)
		}
		encoded := values.Get("payload")
		if encoded == "" {
			return nil, fmt.Errorf("%w: missing payload field", ErrMalformedPayload)
		}
		raw = []byte(encoded)
	}

	var payload callbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrMalformedPayload, err)
	}

	return &payload, nil
}

// verifySignature checks the Slack request signature:
// v0=HMAC-SHA256(secret, "v0:{timestamp}:{body}").
func (h *Handler) verifySignature(r *http.Request, body []byte) error {
	timestamp := r.Header.Get("X-Slack-Request-Timestamp")
	signature := r.Header.Get("X-Slack-Signature")
	if timestamp == "" || signature == "" {
		return fmt.Errorf("missing signature headers")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	age := h.now().Sub(time.Unix(ts, 0))
	if age > signatureMaxAge || age < -signatureMaxAge {
		return fmt.Errorf("timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(h.signingSecret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
