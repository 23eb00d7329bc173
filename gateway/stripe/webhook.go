package stripe

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/gocashier/pkg/cashier"
)

const maxWebhookBody = 256 * 1024

// WebhookHandler verifies Stripe webhook signatures and feeds subscription
// lifecycle events into the cashier. It always answers 200 for events the
// cashier acknowledges without effect (unknown types, unknown owners), so
// Stripe stops redelivering them.
type WebhookHandler struct {
	cashier *cashier.Cashier
	secret  []byte
	logger  cashier.Logger
}

// NewWebhookHandler creates a webhook ingress handler. The secret is the
// endpoint's signing secret from the Stripe dashboard.
func NewWebhookHandler(c *cashier.Cashier, secret string, logger cashier.Logger) (*WebhookHandler, error) {
	if c == nil || strings.TrimSpace(secret) == "" {
		return nil, cashier.ErrNotConfigured
	}
	if logger == nil {
		logger = &cashier.NoopLogger{}
	}
	return &WebhookHandler{
		cashier: c,
		secret:  []byte(strings.TrimSpace(secret)),
		logger:  logger,
	}, nil
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(w, r, maxWebhookBody)
	if err != nil {
		http.Error(w, "invalid payload", http.StatusRequestEntityTooLarge)
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	event, err := stripe.ConstructEvent(body, sig, string(h.secret))
	if err != nil {
		h.logger.Warn("webhook signature verification failed",
			cashier.Field{Key: "error", Value: err.Error()})
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	converted, err := convertEvent(&event)
	if err != nil {
		h.logger.Error("webhook payload malformed",
			cashier.Field{Key: "event_id", Value: event.ID},
			cashier.Field{Key: "error", Value: err.Error()})
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := h.cashier.HandleEvent(r.Context(), converted); err != nil {
		// Non-2xx makes Stripe redeliver; handlers are idempotent, so the
		// retry is safe.
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// convertEvent maps a Stripe event onto the provider-neutral form,
// unmarshaling the subscription snapshot for lifecycle events.
func convertEvent(event *stripe.Event) (*cashier.Event, error) {
	out := &cashier.Event{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0),
	}

	if strings.HasPrefix(out.Type, "customer.subscription.") {
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to unmarshal subscription: %w", err)
		}
		out.Subscription = remoteSubscription(&sub)
	}

	return out, nil
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
