package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"questkit/core"
	"questkit/engine"
	"questkit/leaderboard"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	svc *engine.Service
}

// health verifies the storage answers.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{"storage": "ok"},
	}
	code := http.StatusOK
	if err := h.svc.Ping(r.Context()); err != nil {
		code = http.StatusServiceUnavailable
		status["status"] = "unhealthy"
		status["checks"] = map[string]any{"storage": "failed"}
	}
	writeJSON(w, code, status)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), nil)
		return false
	}
	return true
}

func (h *handlers) listGoals(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.svc.GoalStatuses(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (h *handlers) createGoal(w http.ResponseWriter, r *http.Request) {
	var spec core.GoalSpec
	if !decodeBody(w, r, &spec) {
		return
	}
	g, err := h.svc.CreateGoal(r.Context(), spec)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *handlers) getGoal(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.GoalStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handlers) adjustProgress(w http.ResponseWriter, r *http.Request) {
	delta, err := strconv.ParseInt(r.URL.Query().Get("delta"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_delta", "delta must be an integer", nil)
		return
	}
	st, err := h.svc.AdjustManualProgress(r.Context(), chi.URLParam(r, "id"), delta)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handlers) reviveGoal(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.ReviveGoal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

type recordBody struct {
	RelevantDate *time.Time `json:"relevant_date,omitempty"`
	Status       string     `json:"status"`
	Group        string     `json:"group,omitempty"`
	Platforms    []string   `json:"platforms,omitempty"`
	Format       string     `json:"format,omitempty"`
}

func (h *handlers) putRecord(w http.ResponseWriter, r *http.Request) {
	var body recordBody
	if !decodeBody(w, r, &body) {
		return
	}
	rec := core.Record{
		ID:           chi.URLParam(r, "id"),
		RelevantDate: body.RelevantDate,
		Status:       body.Status,
		Group:        body.Group,
		Platforms:    body.Platforms,
		Format:       body.Format,
	}
	if err := h.svc.PutRecord(r.Context(), rec); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type actorBody struct {
	DisplayName string `json:"display_name"`
	Active      *bool  `json:"active,omitempty"`
}

func (h *handlers) putActor(w http.ResponseWriter, r *http.Request) {
	var body actorBody
	if !decodeBody(w, r, &body) {
		return
	}
	a := core.Actor{ID: core.ActorID(chi.URLParam(r, "id")), DisplayName: body.DisplayName, Active: true}
	if body.Active != nil {
		a.Active = *body.Active
	}
	if err := h.svc.PutActor(r.Context(), a); err != nil {
		writeServiceError(w, err)
		return
	}
	a.ID, _ = core.NormalizeActorID(a.ID)
	writeJSON(w, http.StatusOK, a)
}

func (h *handlers) recordScore(w http.ResponseWriter, r *http.Request) {
	var ev core.ScoreEvent
	if !decodeBody(w, r, &ev) {
		return
	}
	st, err := h.svc.RecordScore(r.Context(), ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

type leaderboardResponse struct {
	Window  leaderboard.Window `json:"window"`
	Entries []core.RankEntry   `json:"entries"`
}

func (h *handlers) leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	win, err := parseWindow(q.Get("period"), q.Get("from"), q.Get("to"), h.svc.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_window", err.Error(), nil)
		return
	}
	var entries []core.RankEntry
	if win.AllTime {
		entries, err = h.svc.AllTimeLeaderboard(r.Context())
	} else {
		entries, err = h.svc.Leaderboard(r.Context(), win)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{Window: win, Entries: entries})
}

// parseWindow accepts RFC 3339 instants or plain dates for custom windows.
func parseWindow(period, from, to string, now time.Time) (leaderboard.Window, error) {
	if leaderboard.Period(period) != leaderboard.PeriodCustom {
		return leaderboard.ParsePeriod(period, now)
	}
	start, err := parseInstant(from)
	if err != nil {
		return leaderboard.Window{}, fmt.Errorf("from: %w", err)
	}
	end, err := parseInstant(to)
	if err != nil {
		return leaderboard.Window{}, fmt.Errorf("to: %w", err)
	}
	if !end.After(start) {
		return leaderboard.Window{}, fmt.Errorf("to must be after from")
	}
	return leaderboard.Between(start, end), nil
}

func parseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("required for custom period")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
