package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questkit/core"
	"questkit/quest"
)

const goalsYAML = `goals:
  - id: docs
    title: Write docs
    window_start: 2024-03-04
    window_end: 2024-03-10
    target_count: 1
    rule:
      - kind: group
        group: docs
  - id: reviews
    title: Reviews
    mode: manual
    window_start: 2024-03-04
    target_count: 4
    progress: 2
`

const recordsJSON = `[
  {"id":"r1","relevant_date":"2024-03-05T09:00:00Z","status":"DONE","group":"docs"},
  {"id":"r2","relevant_date":"2024-03-05T10:00:00Z","status":"TODO","group":"docs"}
]`

const actorsYAML = `actors:
  - id: Ann
    display_name: Ann
  - id: bo
    display_name: Bo
  - id: cy
    active: false
`

const eventsJSON = `[
  {"id":"e1","actor":"bo","time":"2024-03-05T10:00:00Z","magnitude":20,"category":"completion"},
  {"id":"e2","actor":"ANN","time":"2024-03-05T11:00:00Z","magnitude":5,"category":"completion"},
  {"id":"e3","actor":"cy","time":"2024-03-05T12:00:00Z","magnitude":100,"category":"completion"},
  {"id":"e4","actor":"bo","time":"2024-02-01T12:00:00Z","magnitude":50,"category":"completion"}
]`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestStatusJSON(t *testing.T) {
	dir := t.TempDir()
	goals := writeFile(t, dir, "goals.yaml", goalsYAML)
	records := writeFile(t, dir, "records.json", recordsJSON)

	out, err := run(t, "status", "--goals", goals, "--records", records, "--tz", "UTC", "--now", "2024-03-06T12:00:00Z", "--json")
	require.NoError(t, err)

	var statuses []quest.Status
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, quest.StateCompleted, statuses[0].State)
	assert.Equal(t, int64(1), statuses[0].Progress.Count)
	assert.Equal(t, int64(2), statuses[1].Progress.Count)
	assert.False(t, statuses[1].Progress.Completed)
}

func TestStatusTable(t *testing.T) {
	dir := t.TempDir()
	goals := writeFile(t, dir, "goals.yaml", goalsYAML)

	out, err := run(t, "status", "--goals", goals, "--tz", "UTC", "--now", "2024-03-06")
	require.NoError(t, err)
	assert.Contains(t, out, "Write docs")
	assert.Contains(t, out, "2/4")
}

func TestLeaderboardSkipsInactiveActors(t *testing.T) {
	dir := t.TempDir()
	actors := writeFile(t, dir, "actors.yaml", actorsYAML)
	events := writeFile(t, dir, "events.json", eventsJSON)

	out, err := run(t, "leaderboard", "--actors", actors, "--events", events, "--tz", "UTC", "--now", "2024-03-06", "--json")
	require.NoError(t, err)

	var resp struct {
		Entries []core.RankEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, core.ActorID("bo"), resp.Entries[0].Actor)
	assert.Equal(t, int64(20), resp.Entries[0].Score)
	assert.Equal(t, core.ActorID("ann"), resp.Entries[1].Actor)
	assert.Equal(t, int64(5), resp.Entries[1].Score)
}

func TestLeaderboardCustomWindow(t *testing.T) {
	dir := t.TempDir()
	actors := writeFile(t, dir, "actors.yaml", actorsYAML)
	events := writeFile(t, dir, "events.json", eventsJSON)

	out, err := run(t, "leaderboard", "--actors", actors, "--events", events, "--tz", "UTC",
		"--period", "custom", "--from", "2024-02-01", "--to", "2024-02-02")
	require.NoError(t, err)
	assert.Contains(t, out, "50")

	_, err = run(t, "leaderboard", "--actors", actors, "--events", events, "--period", "custom", "--from", "2024-02-02", "--to", "2024-02-01")
	require.Error(t, err)
	_, err = run(t, "leaderboard", "--actors", actors, "--events", events, "--period", "custom")
	require.Error(t, err)
	_, err = run(t, "leaderboard", "--actors", actors, "--events", events, "--period", "decade")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", goalsYAML)
	out, err := run(t, "validate", "--goals", good)
	require.NoError(t, err)
	assert.Contains(t, out, "2 goal(s) OK")

	bad := writeFile(t, dir, "bad.yaml", `goals:
  - id: a
    title: ""
    target_count: 1
  - id: b
    title: B
    target_count: 0
  - id: c
    title: C
    target_count: 1
    rule:
      - kind: nonsense
`)
	_, err = run(t, "validate", "--goals", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 invalid goal(s)")
}

func TestEnvOverridesFlagDefaults(t *testing.T) {
	dir := t.TempDir()
	goals := writeFile(t, dir, "goals.yaml", goalsYAML)
	t.Setenv("QUESTCTL_JSON", "true")
	t.Setenv("QUESTCTL_TZ", "UTC")
	t.Setenv("QUESTCTL_NOW", "2024-03-06")

	out, err := run(t, "status", "--goals", goals)
	require.NoError(t, err)
	var statuses []quest.Status
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	assert.Len(t, statuses, 2)
}

func TestParseInstant(t *testing.T) {
	loc := mustLoc(t, "Europe/Berlin")
	ts, err := parseInstant("2024-03-04", loc)
	require.NoError(t, err)
	_, off := ts.Zone()
	assert.Equal(t, 3600, off)
	_, err = parseInstant("yesterday", loc)
	assert.Error(t, err)
}

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("zoneinfo unavailable: %v", err)
	}
	return loc
}
