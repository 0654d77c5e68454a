// Copyright 2024-2026 Aiku AI

package bridge

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxWebhookBodySize caps accepted payloads. GitHub's documented maximum
// is around 25 MB for push events with large commit histories.
const maxWebhookBodySize = 32 * 1024 * 1024

// deduplicationWindow is how long delivery IDs are tracked for replay
// protection. GitHub retries within minutes, so an hour is conservative.
const deduplicationWindow = 1 * time.Hour

// eventHandler is the slice of the dispatcher the webhook needs.
type eventHandler interface {
	HandleEvent(eventType string, payload []byte)
}

// WebhookHandler accepts GitHub webhook deliveries: it verifies the
// HMAC-SHA256 signature when a secret is configured, deduplicates delivery
// IDs, and hands the raw payload to the dispatcher. Once a delivery is
// accepted it always answers 200; downstream failures are never GitHub's
// problem to retry.
type WebhookHandler struct {
	secret     []byte
	log        zerolog.Logger
	dispatcher eventHandler

	mu         sync.Mutex
	deliveries map[string]time.Time
}

// NewWebhookHandler builds the webhook endpoint. An empty secret disables
// signature verification.
func NewWebhookHandler(secret []byte, dispatcher eventHandler, log zerolog.Logger) *WebhookHandler {
	log = log.With().Str("component", "webhook").Logger()
	if len(secret) == 0 {
		log.Warn().Msg("No webhook secret configured, signature verification disabled")
	}
	return &WebhookHandler{
		secret:     secret,
		log:        log,
		dispatcher: dispatcher,
		deliveries: make(map[string]time.Time),
	}
}

// ServeHTTP handles a single webhook request.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The raw bytes are needed before anything else: HMAC verification
	// runs over the exact body GitHub signed.
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read webhook body")
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	if len(body) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}

	if len(h.secret) > 0 {
		if err := verifySignature(h.secret, body, r.Header.Get("X-Hub-Signature-256")); err != nil {
			h.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Webhook signature verification failed")
			http.Error(w, "", http.StatusUnauthorized)
			return
		}
	}

	eventType := r.Header.Get("X-GitHub-Event")
	if eventType == "" {
		h.log.Warn().Msg("Webhook without X-GitHub-Event header")
		http.Error(w, "missing X-GitHub-Event", http.StatusBadRequest)
		return
	}

	deliveryID := r.Header.Get("X-GitHub-Delivery")
	if deliveryID == "" {
		// Keep log lines correlatable even when GitHub (or a manual
		// curl) omits the header. Generated IDs can never collide with
		// the dedup map.
		deliveryID = uuid.NewString()
	}
	if h.isDuplicate(deliveryID) {
		h.log.Debug().Str("delivery_id", deliveryID).Str("event_type", eventType).Msg("Duplicate delivery, ignoring")
		w.WriteHeader(http.StatusOK)
		return
	}

	h.log.Info().Str("event_type", eventType).Str("delivery_id", deliveryID).Int("bytes", len(body)).Msg("Webhook received")

	h.dispatcher.HandleEvent(eventType, body)
	w.WriteHeader(http.StatusOK)
}

// isDuplicate checks and records a delivery ID, pruning expired entries on
// every call. The map stays small, one entry per delivery over the window.
func (h *WebhookHandler) isDuplicate(deliveryID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	for id, receivedAt := range h.deliveries {
		if now.Sub(receivedAt) > deduplicationWindow {
			delete(h.deliveries, id)
		}
	}

	if _, exists := h.deliveries[deliveryID]; exists {
		return true
	}
	h.deliveries[deliveryID] = now
	return false
}

// verifySignature checks a GitHub X-Hub-Signature-256 header against the
// body. Error messages never include the expected signature.
func verifySignature(secret, body []byte, signature string) error {
	if signature == "" {
		return errors.New("signature header missing")
	}

	hexSignature := strings.TrimPrefix(signature, "sha256=")
	signatureBytes, err := hex.DecodeString(hexSignature)
	if err != nil {
		return fmt.Errorf("invalid hex signature: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, signatureBytes) != 1 {
		return errors.New("signature mismatch")
	}
	return nil
}
