package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"questkit/core"
)

// goalFile is the YAML layout read by status and validate.
type goalFile struct {
	Goals []goalEntry `yaml:"goals"`
}

type goalEntry struct {
	ID          string                `yaml:"id"`
	Title       string                `yaml:"title"`
	Mode        string                `yaml:"mode"`
	WindowStart string                `yaml:"window_start"`
	WindowEnd   string                `yaml:"window_end"`
	TargetCount int64                 `yaml:"target_count"`
	Progress    int64                 `yaml:"progress"`
	Rule        []core.ConstraintSpec `yaml:"rule"`
}

type actorFile struct {
	Actors []actorEntry `yaml:"actors"`
}

type actorEntry struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Active      *bool  `yaml:"active"`
}

func readYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadGoals validates every entry and reports all failures at once.
func loadGoals(path string, loc *time.Location) ([]core.Goal, error) {
	var f goalFile
	if err := readYAML(path, &f); err != nil {
		return nil, err
	}
	goals := make([]core.Goal, 0, len(f.Goals))
	var errs []error
	for i, e := range f.Goals {
		g, err := e.goal(loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("goals[%d] %q: %w", i, e.ID, err))
			continue
		}
		goals = append(goals, g)
	}
	if len(errs) > 0 {
		return goals, joinErrors(errs)
	}
	return goals, nil
}

func (e goalEntry) goal(loc *time.Location) (core.Goal, error) {
	rule, err := core.RuleFromSpecs(e.Rule)
	if err != nil {
		return core.Goal{}, err
	}
	spec := core.GoalSpec{ID: e.ID, Title: e.Title, Mode: core.Mode(e.Mode), TargetCount: e.TargetCount, Rule: rule}
	if e.WindowStart != "" {
		if spec.WindowStart, err = parseInstant(e.WindowStart, loc); err != nil {
			return core.Goal{}, err
		}
	}
	if e.WindowEnd != "" {
		if spec.WindowEnd, err = parseInstant(e.WindowEnd, loc); err != nil {
			return core.Goal{}, err
		}
	}
	g, err := core.NewGoal(spec, spec.WindowStart)
	if err != nil {
		return core.Goal{}, err
	}
	if e.Progress < 0 {
		return core.Goal{}, core.ErrNegativeProgress
	}
	g.ManualProgress = e.Progress
	return g, nil
}

func loadActors(path string) ([]core.Actor, error) {
	var f actorFile
	if err := readYAML(path, &f); err != nil {
		return nil, err
	}
	actors := make([]core.Actor, 0, len(f.Actors))
	for i, e := range f.Actors {
		id, err := core.NormalizeActorID(core.ActorID(e.ID))
		if err != nil {
			return nil, fmt.Errorf("actors[%d]: %w", i, err)
		}
		active := e.Active == nil || *e.Active
		actors = append(actors, core.Actor{ID: id, DisplayName: e.DisplayName, Active: active})
	}
	return actors, nil
}

func joinErrors(errs []error) error {
	return fmt.Errorf("%d invalid goal(s): %w", len(errs), errors.Join(errs...))
}
