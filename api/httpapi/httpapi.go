package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	wsadapter "questkit/adapters/websocket"
	"questkit/core"
	"questkit/engine"
	"questkit/quest"
	"questkit/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
}

// NewMux builds an http.Handler exposing the quest REST API and WebSocket stream.
// Routes:
//   - GET  {prefix}/healthz
//   - GET  {prefix}/goals
//   - POST {prefix}/goals
//   - GET  {prefix}/goals/{id}
//   - POST {prefix}/goals/{id}/progress?delta=1
//   - POST {prefix}/goals/{id}/revive
//   - PUT  {prefix}/records/{id}
//   - PUT  {prefix}/actors/{id}
//   - POST {prefix}/events
//   - GET  {prefix}/leaderboard?period=week|month|all|custom&from=&to=
//   - WS   {prefix}/ws?types=goal_completed,score_recorded
func NewMux(svc *engine.Service, hub *realtime.Hub, opts Options) http.Handler {
	h := &handlers{svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	// CORS runs first so 401 and 429 responses stay readable by browsers.
	if opts.AllowCORSOrigin != "" {
		r.Use(withCORS(opts.AllowCORSOrigin))
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		r.Use(withRateLimit(opts.RateLimitRPM, opts.RateLimitBurst))
	}
	if len(opts.APIKeys) > 0 {
		r.Use(withAPIKeyAuth(opts.APIKeys))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	routes := func(r chi.Router) {
		r.Get("/healthz", h.health)
		r.Route("/goals", func(r chi.Router) {
			r.Get("/", h.listGoals)
			r.Post("/", h.createGoal)
			r.Get("/{id}", h.getGoal)
			r.Post("/{id}/progress", h.adjustProgress)
			r.Post("/{id}/revive", h.reviveGoal)
		})
		r.Put("/records/{id}", h.putRecord)
		r.Put("/actors/{id}", h.putActor)
		r.Post("/events", h.recordScore)
		r.Get("/leaderboard", h.leaderboard)
		if hub != nil {
			r.Handle("/ws", wsadapter.Handler(hub))
		}
	}

	prefix := trimPrefix(opts.PathPrefix)
	if prefix == "" {
		routes(r)
	} else {
		r.Route(prefix, routes)
	}
	return r
}

func trimPrefix(prefix string) string {
	if prefix == "" || prefix == "/" {
		return ""
	}
	if prefix[0] != '/' {
		prefix = "/" + prefix
	}
	for len(prefix) > 1 && prefix[len(prefix)-1] == '/' {
		prefix = prefix[:len(prefix)-1]
	}
	return prefix
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	writeJSON(w, status, apiError{Code: code, Message: msg, Details: details})
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, core.ErrInvalidGoal), errors.Is(err, engine.ErrInvalid), errors.Is(err, engine.ErrZeroDelta):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, engine.ErrNotManual):
		writeError(w, http.StatusConflict, "not_manual", err.Error(), nil)
	case errors.Is(err, engine.ErrGoalClosed):
		writeError(w, http.StatusConflict, "goal_closed", err.Error(), nil)
	case errors.Is(err, core.ErrNegativeProgress):
		writeError(w, http.StatusConflict, "negative_progress", err.Error(), nil)
	case errors.Is(err, quest.ErrNotFailed):
		writeError(w, http.StatusConflict, "not_failed", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
	}
}
