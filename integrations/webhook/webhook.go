package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"questkit/core"
)

// Headers set on every delivery.
const (
	HeaderEvent     = "X-Questkit-Event"
	HeaderDelivery  = "X-Questkit-Delivery"
	HeaderSignature = "X-Questkit-Signature"
)

// Sink posts quest events to configured HTTP endpoints.
// Delivery is synchronous; run the event bus in async mode to keep it off request paths.
type Sink struct {
	client    *http.Client
	endpoints []string
	secret    []byte
	types     map[core.EventType]struct{}
	log       *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 5s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithTimeout sets the default client's timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.client = &http.Client{Timeout: d}
		}
	}
}

// WithSecret signs each body with HMAC-SHA256, hex encoded in HeaderSignature.
func WithSecret(secret string) Option {
	return func(s *Sink) { s.secret = []byte(secret) }
}

// WithEventTypes limits deliveries to the listed types.
func WithEventTypes(types ...core.EventType) Option {
	return func(s *Sink) {
		if len(types) == 0 {
			return
		}
		s.types = make(map[core.EventType]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.log = l
		}
	}
}

func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 5 * time.Second},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// Wants reports whether the sink delivers events of type t.
func (s *Sink) Wants(t core.EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Deliver posts the event to every endpoint and joins the failures.
func (s *Sink) Deliver(ctx context.Context, e core.Event) error {
	if len(s.endpoints) == 0 || !s.Wants(e.Type) {
		return nil
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	delivery := uuid.NewString()
	var errs []error
	for _, ep := range s.endpoints {
		if err := s.post(ctx, ep, delivery, e.Type, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Sink) post(ctx context.Context, endpoint, delivery string, typ core.EventType, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, string(typ))
	req.Header.Set(HeaderDelivery, delivery)
	if len(s.secret) > 0 {
		req.Header.Set(HeaderSignature, "sha256="+Sign(s.secret, body))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", endpoint, err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	return nil
}

// OnEvent is an event bus handler; failures are logged, not returned.
func (s *Sink) OnEvent(ctx context.Context, e core.Event) {
	if err := s.Deliver(ctx, e); err != nil {
		s.log.Warn("webhook delivery failed", "type", e.Type, "goal_id", e.GoalID, "error", err)
	}
}
