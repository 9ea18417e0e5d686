package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"questkit/core"
	"questkit/leaderboard"
	"questkit/quest"
)

func statusCmd(v *viper.Viper) *cobra.Command {
	var goalsPath, recordsPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Evaluate goals against exported work records",
		Long:  "Reads goals from YAML and records from a JSON array, then prints progress, time left and state for every goal.",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := location(v)
			if err != nil {
				return err
			}
			now, err := evaluationTime(v, loc)
			if err != nil {
				return err
			}
			goals, err := loadGoals(goalsPath, loc)
			if err != nil {
				return err
			}
			var records []core.Record
			if recordsPath != "" {
				if err := readJSON(recordsPath, &records); err != nil {
					return err
				}
			}
			statuses := make([]quest.Status, 0, len(goals))
			for _, g := range goals {
				statuses = append(statuses, quest.Evaluate(g, records, now))
			}
			out := cmd.OutOrStdout()
			if v.GetBool("json") {
				return printJSON(out, statuses)
			}
			renderStatuses(out, statuses)
			return nil
		},
	}
	cmd.Flags().StringVarP(&goalsPath, "goals", "g", "goals.yaml", "goals YAML file")
	cmd.Flags().StringVarP(&recordsPath, "records", "r", "", "records JSON file")
	return cmd
}

func renderStatuses(out io.Writer, statuses []quest.Status) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"ID", "Title", "Mode", "Progress", "%", "Time", "State"})
	for _, st := range statuses {
		tw.AppendRow(table.Row{
			st.Goal.ID,
			st.Goal.Title,
			st.Goal.Mode,
			fmt.Sprintf("%d/%d", st.Progress.Count, st.Goal.TargetCount),
			st.Progress.Percent,
			st.Temporal.Label,
			st.State,
		})
	}
	tw.Render()
}

func leaderboardCmd(v *viper.Viper) *cobra.Command {
	var eventsPath, actorsPath, period, from, to string
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank actors from an exported score event log",
		Long:  "Reads score events from a JSON array and the actor directory from YAML. Only active actors are ranked; ties keep directory order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := location(v)
			if err != nil {
				return err
			}
			now, err := evaluationTime(v, loc)
			if err != nil {
				return err
			}
			win, err := resolveWindow(period, from, to, now, loc)
			if err != nil {
				return err
			}
			actors, err := loadActors(actorsPath)
			if err != nil {
				return err
			}
			var events []core.ScoreEvent
			if err := readJSON(eventsPath, &events); err != nil {
				return err
			}
			for i := range events {
				if id, err := core.NormalizeActorID(events[i].Actor); err == nil {
					events[i].Actor = id
				}
			}
			active := actors[:0:0]
			for _, a := range actors {
				if a.Active {
					active = append(active, a)
				}
			}
			entries := leaderboard.Aggregate(events, active, win)
			out := cmd.OutOrStdout()
			if v.GetBool("json") {
				return printJSON(out, map[string]any{"window": win, "entries": entries})
			}
			renderBoard(out, entries)
			return nil
		},
	}
	cmd.Flags().StringVarP(&eventsPath, "events", "e", "events.json", "score events JSON file")
	cmd.Flags().StringVarP(&actorsPath, "actors", "a", "actors.yaml", "actor directory YAML file")
	cmd.Flags().StringVarP(&period, "period", "p", "week", "week, month, all or custom")
	cmd.Flags().StringVar(&from, "from", "", "custom window start (inclusive)")
	cmd.Flags().StringVar(&to, "to", "", "custom window end (exclusive)")
	return cmd
}

func resolveWindow(period, from, to string, now time.Time, loc *time.Location) (leaderboard.Window, error) {
	if leaderboard.Period(period) != leaderboard.PeriodCustom {
		return leaderboard.ParsePeriod(period, now)
	}
	if from == "" || to == "" {
		return leaderboard.Window{}, fmt.Errorf("custom period needs --from and --to")
	}
	f, err := parseInstant(from, loc)
	if err != nil {
		return leaderboard.Window{}, err
	}
	t, err := parseInstant(to, loc)
	if err != nil {
		return leaderboard.Window{}, err
	}
	if !t.After(f) {
		return leaderboard.Window{}, fmt.Errorf("--to must be after --from")
	}
	return leaderboard.Between(f, t), nil
}

func renderBoard(out io.Writer, entries []core.RankEntry) {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.AppendHeader(table.Row{"Rank", "Actor", "Name", "Score", "+", "-", "Badges"})
	for _, e := range entries {
		badges := make([]string, len(e.Badges))
		for i, b := range e.Badges {
			badges[i] = string(b)
		}
		tw.AppendRow(table.Row{e.Rank, e.Actor, e.DisplayName, e.Score, e.PositiveCount, e.NegativeCount, strings.Join(badges, ",")})
	}
	tw.Render()
}

func validateCmd(v *viper.Viper) *cobra.Command {
	var goalsPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a goals file",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := location(v)
			if err != nil {
				return err
			}
			goals, err := loadGoals(goalsPath, loc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d goal(s) OK\n", len(goals))
			return nil
		},
	}
	cmd.Flags().StringVarP(&goalsPath, "goals", "g", "goals.yaml", "goals YAML file")
	return cmd
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
