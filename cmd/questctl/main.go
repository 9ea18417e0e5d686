package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree around its own viper instance so flags,
// QUESTCTL_* env vars and an optional config file resolve the same way.
func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:   "questctl",
		Short: "Evaluate quests and leaderboards from exported files",
		Long: `questctl works offline on exported data.
- status: evaluates goals from a YAML file against a JSON dump of work records.
- leaderboard: ranks a JSON dump of score events against a YAML actor directory.
- validate: checks a goals file without evaluating it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if file := v.GetString("config"); file != "" {
				v.SetConfigFile(file)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", file, err)
				}
			}
			return nil
		},
	}

	v.SetEnvPrefix("QUESTCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	pf := root.PersistentFlags()
	pf.String("config", "", "optional config file (yaml, json or toml)")
	pf.Bool("json", false, "output JSON")
	pf.String("now", "", "evaluation instant (RFC3339 or YYYY-MM-DD); defaults to the current time")
	pf.String("tz", "", "IANA time zone for dates without an offset; defaults to local")
	for _, name := range []string{"config", "json", "now", "tz"} {
		_ = v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(statusCmd(v), leaderboardCmd(v), validateCmd(v))
	return root
}

func location(v *viper.Viper) (*time.Location, error) {
	name := v.GetString("tz")
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid --tz %q: %w", name, err)
	}
	return loc, nil
}

func evaluationTime(v *viper.Viper, loc *time.Location) (time.Time, error) {
	raw := v.GetString("now")
	if raw == "" {
		return time.Now().In(loc), nil
	}
	return parseInstant(raw, loc)
}

func parseInstant(raw string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or YYYY-MM-DD", raw)
	}
	return t, nil
}
