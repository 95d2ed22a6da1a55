// Package webhook registers callback subscriptions and fires one-shot
// simulated notifications at them. There is no retry and no repeated
// delivery; subscriptions live as long as the backing store keeps them.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"bizapi/internal/apperr"
	"bizapi/internal/metrics"
	"bizapi/internal/store"
)

const (
	keyPrefix       = "webhook:"
	maxResponseBody = 64 << 10
)

// Subscription is a registered callback.
type Subscription struct {
	ID          string    `json:"id"`
	TargetURL   string    `json:"target_url"`
	CallbackURL string    `json:"callback_url"`
	EventType   string    `json:"event_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// Payload is the fixed body POSTed to the callback.
type Payload struct {
	Event   string `json:"event"`
	Message string `json:"message"`
	Target  string `json:"target"`
}

// Delivery is what the callback answered.
type Delivery struct {
	StatusCode int
	Body       string
}

type Registry struct {
	store   store.Store
	client  *http.Client
	message string
	logger  *slog.Logger
	newID   func() string
}

func New(s store.Store, timeout time.Duration, message string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:   s,
		client:  &http.Client{Timeout: timeout},
		message: message,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Register stores a new subscription under a fresh id.
func (r *Registry) Register(ctx context.Context, targetURL, callbackURL, eventType string) (Subscription, error) {
	targetURL = strings.TrimSpace(targetURL)
	callbackURL = strings.TrimSpace(callbackURL)
	eventType = strings.TrimSpace(eventType)

	if targetURL == "" || callbackURL == "" || eventType == "" {
		return Subscription{}, apperr.Input("MISSING_FIELDS", "target_url, callback_url and event_type are required", nil)
	}
	if err := checkURL(targetURL); err != nil {
		return Subscription{}, apperr.Input("INVALID_TARGET_URL", "target_url must be an absolute http or https url", err)
	}
	if err := checkURL(callbackURL); err != nil {
		return Subscription{}, apperr.Input("INVALID_CALLBACK_URL", "callback_url must be an absolute http or https url", err)
	}

	sub := Subscription{
		TargetURL:   targetURL,
		CallbackURL: callbackURL,
		EventType:   eventType,
		CreatedAt:   time.Now().UTC(),
	}

	// Ids are random; a collision is retried rather than overwriting.
	for attempt := 0; attempt < 3; attempt++ {
		sub.ID = r.newID()
		data, err := json.Marshal(sub)
		if err != nil {
			return Subscription{}, err
		}
		stored, err := r.store.SetNX(ctx, keyPrefix+sub.ID, data)
		if err != nil {
			return Subscription{}, fmt.Errorf("store subscription: %w", err)
		}
		if stored {
			r.logger.Info("webhook registered", "subscription_id", sub.ID, "event_type", eventType)
			return sub, nil
		}
	}
	return Subscription{}, errors.New("could not allocate a unique subscription id")
}

// Get returns the subscription for id.
func (r *Registry) Get(ctx context.Context, id string) (Subscription, error) {
	data, err := r.store.Get(ctx, keyPrefix+id)
	if errors.Is(err, store.ErrNotFound) {
		return Subscription{}, apperr.NotFound("SUBSCRIPTION_NOT_FOUND", "Subscription ID not found")
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("load subscription: %w", err)
	}
	var sub Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return Subscription{}, fmt.Errorf("decode subscription: %w", err)
	}
	return sub, nil
}

// Simulate POSTs the synthetic payload to the subscription's callback once
// and reports the answer. Any HTTP status counts as delivered; only
// transport failures are errors.
func (r *Registry) Simulate(ctx context.Context, id string) (*Delivery, error) {
	sub, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(Payload{Event: sub.EventType, Message: r.message, Target: sub.TargetURL})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Delivery("WEBHOOK_DELIVERY_FAILED", "failed to send webhook request to callback_url", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		metrics.RecordWebhookDelivery(false)
		r.logger.Warn("webhook delivery failed", "subscription_id", id, "error", err)
		return nil, apperr.Delivery("WEBHOOK_DELIVERY_FAILED", "failed to send webhook request to callback_url", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		metrics.RecordWebhookDelivery(false)
		return nil, apperr.Delivery("WEBHOOK_DELIVERY_FAILED", "failed to read callback response", err)
	}

	metrics.RecordWebhookDelivery(true)
	r.logger.Info("webhook delivered", "subscription_id", id, "callback_status", resp.StatusCode)
	return &Delivery{StatusCode: resp.StatusCode, Body: string(respBody)}, nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("unsupported url %q", raw)
	}
	return nil
}
