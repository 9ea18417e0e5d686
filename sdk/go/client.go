package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"questkit/core"
	"questkit/quest"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the questkit HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, u, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u, nil)
	}
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, out)
}

func idPath(prefix, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrEmptyID
	}
	return prefix + "/" + url.PathEscape(id), nil
}

// CreateGoal validates and stores a new goal.
func (c *Client) CreateGoal(ctx context.Context, spec core.GoalSpec) (core.Goal, error) {
	var g core.Goal
	err := c.do(ctx, http.MethodPost, "/goals", nil, spec, &g)
	return g, err
}

// ListGoals returns every goal evaluated at the server's current time.
func (c *Client) ListGoals(ctx context.Context) ([]quest.Status, error) {
	var out []quest.Status
	err := c.do(ctx, http.MethodGet, "/goals", nil, nil, &out)
	return out, err
}

// GetGoal returns one goal's evaluated status.
func (c *Client) GetGoal(ctx context.Context, id string) (quest.Status, error) {
	p, err := idPath("/goals", id)
	if err != nil {
		return quest.Status{}, err
	}
	var st quest.Status
	err = c.do(ctx, http.MethodGet, p, nil, nil, &st)
	return st, err
}

// AdjustProgress changes a manual goal's counter by delta.
func (c *Client) AdjustProgress(ctx context.Context, id string, delta int64) (quest.Status, error) {
	p, err := idPath("/goals", id)
	if err != nil {
		return quest.Status{}, err
	}
	var st quest.Status
	q := url.Values{"delta": {strconv.FormatInt(delta, 10)}}
	err = c.do(ctx, http.MethodPost, p+"/progress", q, nil, &st)
	return st, err
}

// ReviveGoal clones a failed goal into a fresh window.
func (c *Client) ReviveGoal(ctx context.Context, id string) (core.Goal, error) {
	p, err := idPath("/goals", id)
	if err != nil {
		return core.Goal{}, err
	}
	var g core.Goal
	err = c.do(ctx, http.MethodPost, p+"/revive", nil, nil, &g)
	return g, err
}

// PutRecord upserts a work record.
func (c *Client) PutRecord(ctx context.Context, r core.Record) error {
	p, err := idPath("/records", r.ID)
	if err != nil {
		return err
	}
	body := struct {
		RelevantDate *time.Time `json:"relevant_date,omitempty"`
		Status       string     `json:"status"`
		Group        string     `json:"group,omitempty"`
		Platforms    []string   `json:"platforms,omitempty"`
		Format       string     `json:"format,omitempty"`
	}{r.RelevantDate, r.Status, r.Group, r.Platforms, r.Format}
	return c.do(ctx, http.MethodPut, p, nil, body, nil)
}

// PutActor upserts an actor directory entry.
func (c *Client) PutActor(ctx context.Context, a core.Actor) error {
	p, err := idPath("/actors", string(a.ID))
	if err != nil {
		return err
	}
	body := struct {
		DisplayName string `json:"display_name"`
		Active      bool   `json:"active"`
	}{a.DisplayName, a.Active}
	return c.do(ctx, http.MethodPut, p, nil, body, nil)
}

// RecordScore appends a score event and returns the actor's updated standing.
func (c *Client) RecordScore(ctx context.Context, ev core.ScoreEvent) (core.Standing, error) {
	var st core.Standing
	err := c.do(ctx, http.MethodPost, "/events", nil, ev, &st)
	return st, err
}

// Leaderboard fetches a ranked window. An empty period means the current week.
func (c *Client) Leaderboard(ctx context.Context, q LeaderboardQuery) (Leaderboard, error) {
	v := url.Values{}
	if q.Period != "" {
		v.Set("period", string(q.Period))
	}
	if !q.From.IsZero() {
		v.Set("from", q.From.Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		v.Set("to", q.To.Format(time.RFC3339))
	}
	var lb Leaderboard
	err := c.do(ctx, http.MethodGet, "/leaderboard", v, nil, &lb)
	return lb, err
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, &hs)
	return hs, err
}

// SubscribeEvents connects to the WebSocket stream and emits core.Event values,
// optionally limited to the given types. The returned channel closes when ctx
// is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, types ...core.EventType) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	target := c.wsURL
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		target += "?types=" + url.QueryEscape(strings.Join(names, ","))
	}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, target, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var evt core.Event
			if err := conn.ReadJSON(&evt); err != nil {
				return
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
