package sqlx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"questkit/core"
)

// Driver names a supported database/sql driver.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
	DriverSQLite   Driver = "sqlite"
)

// Config holds SQL connection configuration
type Config struct {
	Driver          Driver        `json:"driver" env:"QUESTKIT_SQL_DRIVER"`
	DSN             string        `json:"dsn,omitempty" env:"QUESTKIT_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"QUESTKIT_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	// AutoMigrate applies the embedded schema on startup.
	AutoMigrate bool `json:"auto_migrate" env:"QUESTKIT_SQL_AUTO_MIGRATE"`
}

// DefaultConfig returns pool defaults for driver. The DSN is left empty.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		AutoMigrate:     true,
	}
}

// Validate checks the driver and DSN.
func (c Config) Validate() error {
	var errs []string
	switch c.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		errs = append(errs, fmt.Sprintf("driver must be one of: %s, %s, %s", DriverPostgres, DriverMySQL, DriverSQLite))
	}
	if strings.TrimSpace(c.DSN) == "" {
		errs = append(errs, "dsn cannot be empty")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Store implements the engine.Storage interface on a relational database.
// Times that carry a civil-day meaning (goal windows) are kept as RFC 3339
// strings so their offset survives; instants are stored as unix nanoseconds.
type Store struct {
	db     *sqlx.DB
	driver Driver
	sb     sq.StatementBuilderType
}

// New opens a connection pool and optionally migrates the schema.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := sqlx.Open(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}

	s := NewWithDB(db, cfg.Driver)
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithDB wraps an existing handle (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	var ph sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		ph = sq.Dollar
	}
	return &Store{db: db, driver: driver, sb: sq.StatementBuilder.PlaceholderFormat(ph)}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// withTx runs fn in a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) exists(ctx context.Context, q sqlx.QueryerContext, table, column string, value any) (bool, error) {
	query, args, err := s.sb.Select("1").From(table).Where(sq.Eq{column: value}).Limit(1).ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = sqlx.GetContext(ctx, q, &one, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// upsert inserts values or updates them by key using a portable select-then-write.
func (s *Store) upsert(ctx context.Context, tx *sqlx.Tx, table, key string, keyValue any, values map[string]any) error {
	found, err := s.exists(ctx, tx, table, key, keyValue)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", table, err)
	}
	var query string
	var args []any
	if found {
		query, args, err = s.sb.Update(table).SetMap(values).Where(sq.Eq{key: keyValue}).ToSql()
	} else {
		row := make(map[string]any, len(values)+1)
		for k, v := range values {
			row[k] = v
		}
		row[key] = keyValue
		query, args, err = s.sb.Insert(table).SetMap(row).ToSql()
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("write %s: %w", table, err)
	}
	return nil
}

// --- goals ---

type goalRow struct {
	ID          string `db:"id"`
	Title       string `db:"title"`
	Mode        string `db:"mode"`
	WindowStart string `db:"window_start"`
	WindowEnd   string `db:"window_end"`
	TargetCount int64  `db:"target_count"`
	RuleJSON    string `db:"rule_json"`
	CreatedAt   string `db:"created_at"`
	RevivedFrom string `db:"revived_from"`
}

var goalColumns = []string{"id", "title", "mode", "window_start", "window_end", "target_count", "rule_json", "created_at", "revived_from"}

func (r goalRow) goal() (core.Goal, error) {
	g := core.Goal{ID: r.ID, Title: r.Title, Mode: core.Mode(r.Mode), TargetCount: r.TargetCount, RevivedFrom: r.RevivedFrom}
	var err error
	if g.WindowStart, err = time.Parse(time.RFC3339Nano, r.WindowStart); err != nil {
		return core.Goal{}, fmt.Errorf("goal %s window_start: %w", r.ID, err)
	}
	if g.WindowEnd, err = time.Parse(time.RFC3339Nano, r.WindowEnd); err != nil {
		return core.Goal{}, fmt.Errorf("goal %s window_end: %w", r.ID, err)
	}
	if g.CreatedAt, err = time.Parse(time.RFC3339Nano, r.CreatedAt); err != nil {
		return core.Goal{}, fmt.Errorf("goal %s created_at: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.RuleJSON), &g.Rule); err != nil {
		return core.Goal{}, fmt.Errorf("goal %s rule: %w", r.ID, err)
	}
	return g, nil
}

func (s *Store) SaveGoal(ctx context.Context, g core.Goal) error {
	rule, err := json.Marshal(g.Rule)
	if err != nil {
		return err
	}
	values := map[string]any{
		"title":        g.Title,
		"mode":         string(g.Mode),
		"window_start": g.WindowStart.Format(time.RFC3339Nano),
		"window_end":   g.WindowEnd.Format(time.RFC3339Nano),
		"target_count": g.TargetCount,
		"rule_json":    string(rule),
		"created_at":   g.CreatedAt.Format(time.RFC3339Nano),
		"created_unix": g.CreatedAt.UnixNano(),
		"revived_from": g.RevivedFrom,
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return s.upsert(ctx, tx, "goals", "id", g.ID, values)
	})
}

func (s *Store) GetGoal(ctx context.Context, id string) (core.Goal, error) {
	query, args, err := s.sb.Select(goalColumns...).From("goals").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return core.Goal{}, err
	}
	var row goalRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Goal{}, core.ErrNotFound
		}
		return core.Goal{}, fmt.Errorf("get goal: %w", err)
	}
	return row.goal()
}

func (s *Store) ListGoals(ctx context.Context) ([]core.Goal, error) {
	query, args, err := s.sb.Select(goalColumns...).From("goals").OrderBy("created_unix", "id").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []goalRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	out := make([]core.Goal, 0, len(rows))
	for _, r := range rows {
		g, err := r.goal()
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// --- manual progress ---

func (s *Store) AdjustProgress(ctx context.Context, goalID string, delta int64) (core.Counter, error) {
	var out core.Counter
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		c, found, err := s.progress(ctx, tx, goalID)
		if err != nil {
			return err
		}
		next, err := core.AddSafe(c.Value, delta)
		if err != nil {
			return err
		}
		if next < 0 {
			return core.ErrNegativeProgress
		}
		var query string
		var args []any
		if found {
			// the version guard turns a concurrent writer into a failed update
			query, args, err = s.sb.Update("goal_progress").
				Set("value", next).
				Set("version", c.Version+1).
				Where(sq.Eq{"goal_id": goalID, "version": c.Version}).
				ToSql()
		} else {
			query, args, err = s.sb.Insert("goal_progress").
				Columns("goal_id", "value", "version").
				Values(goalID, next, int64(1)).
				ToSql()
		}
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("write progress: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("progress for %s changed concurrently", goalID)
		}
		out = core.Counter{GoalID: goalID, Value: next, Version: c.Version + 1}
		return nil
	})
	if err != nil {
		return core.Counter{}, err
	}
	return out, nil
}

func (s *Store) progress(ctx context.Context, q sqlx.QueryerContext, goalID string) (core.Counter, bool, error) {
	query, args, err := s.sb.Select("goal_id", "value", "version").From("goal_progress").Where(sq.Eq{"goal_id": goalID}).ToSql()
	if err != nil {
		return core.Counter{}, false, err
	}
	var row struct {
		GoalID  string `db:"goal_id"`
		Value   int64  `db:"value"`
		Version int64  `db:"version"`
	}
	err = sqlx.GetContext(ctx, q, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Counter{GoalID: goalID}, false, nil
	}
	if err != nil {
		return core.Counter{}, false, fmt.Errorf("read progress: %w", err)
	}
	return core.Counter{GoalID: row.GoalID, Value: row.Value, Version: row.Version}, true, nil
}

func (s *Store) GetProgress(ctx context.Context, goalID string) (core.Counter, error) {
	c, found, err := s.progress(ctx, s.db, goalID)
	if err != nil {
		return core.Counter{}, err
	}
	if !found {
		return c, core.ErrNotFound
	}
	return c, nil
}

// --- records ---

type recordRow struct {
	ID           string        `db:"id"`
	RelevantUnix sql.NullInt64 `db:"relevant_unix"`
	Status       string        `db:"status"`
	Group        string        `db:"grp"`
	Platforms    string        `db:"platforms"`
	Format       string        `db:"format"`
}

func (s *Store) PutRecord(ctx context.Context, r core.Record) error {
	platforms, err := json.Marshal(append([]string{}, r.Platforms...))
	if err != nil {
		return err
	}
	var relevant sql.NullInt64
	if r.RelevantDate != nil {
		relevant = sql.NullInt64{Int64: r.RelevantDate.UnixNano(), Valid: true}
	}
	values := map[string]any{
		"relevant_unix": relevant,
		"status":        r.Status,
		"grp":           r.Group,
		"platforms":     string(platforms),
		"format":        r.Format,
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return s.upsert(ctx, tx, "work_records", "id", r.ID, values)
	})
}

func (s *Store) RecordsBetween(ctx context.Context, from, to time.Time) ([]core.Record, error) {
	query, args, err := s.sb.Select("id", "relevant_unix", "status", "grp", "platforms", "format").
		From("work_records").
		Where(sq.And{
			sq.GtOrEq{"relevant_unix": from.UnixNano()},
			sq.LtOrEq{"relevant_unix": to.UnixNano()},
		}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	out := make([]core.Record, 0, len(rows))
	for _, row := range rows {
		r := core.Record{ID: row.ID, Status: row.Status, Group: row.Group, Format: row.Format}
		if row.RelevantUnix.Valid {
			t := time.Unix(0, row.RelevantUnix.Int64).UTC()
			r.RelevantDate = &t
		}
		if row.Platforms != "" {
			if err := json.Unmarshal([]byte(row.Platforms), &r.Platforms); err != nil {
				return nil, fmt.Errorf("record %s platforms: %w", row.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// --- score events ---

type eventRow struct {
	ID           string `db:"id"`
	Actor        string `db:"actor"`
	OccurredUnix int64  `db:"occurred_unix"`
	Magnitude    int64  `db:"magnitude"`
	Category     string `db:"category"`
}

type standingRow struct {
	Actor         string `db:"actor"`
	Score         int64  `db:"score"`
	PositiveCount int64  `db:"positive_count"`
	NegativeCount int64  `db:"negative_count"`
}

func (r standingRow) standing() core.Standing {
	return core.Standing{Actor: core.ActorID(r.Actor), Score: r.Score, PositiveCount: r.PositiveCount, NegativeCount: r.NegativeCount}
}

func (s *Store) AppendScore(ctx context.Context, ev core.ScoreEvent) (core.Standing, error) {
	var out core.Standing
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		query, args, err := s.sb.Insert("score_events").
			Columns("id", "actor", "occurred_unix", "magnitude", "category").
			Values(ev.ID, string(ev.Actor), ev.Time.UnixNano(), ev.Magnitude, string(ev.Category)).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert score: %w", err)
		}

		query, args, err = s.sb.Select("actor", "score", "positive_count", "negative_count").
			From("standings").Where(sq.Eq{"actor": string(ev.Actor)}).ToSql()
		if err != nil {
			return err
		}
		current := core.Standing{Actor: ev.Actor}
		var row standingRow
		switch err := tx.GetContext(ctx, &row, query, args...); {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read standing: %w", err)
		default:
			current = row.standing()
		}
		next, err := current.Apply(ev)
		if err != nil {
			return err
		}
		values := map[string]any{
			"score":          next.Score,
			"positive_count": next.PositiveCount,
			"negative_count": next.NegativeCount,
		}
		if err := s.upsert(ctx, tx, "standings", "actor", string(ev.Actor), values); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return core.Standing{}, err
	}
	return out, nil
}

func (s *Store) scores(ctx context.Context, where sq.Sqlizer) ([]core.ScoreEvent, error) {
	b := s.sb.Select("id", "actor", "occurred_unix", "magnitude", "category").From("score_events")
	if where != nil {
		b = b.Where(where)
	}
	query, args, err := b.OrderBy("occurred_unix", "id").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	out := make([]core.ScoreEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.ScoreEvent{
			ID:        r.ID,
			Actor:     core.ActorID(r.Actor),
			Time:      time.Unix(0, r.OccurredUnix).UTC(),
			Magnitude: r.Magnitude,
			Category:  core.Category(r.Category),
		})
	}
	return out, nil
}

func (s *Store) ScoresBetween(ctx context.Context, from, to time.Time) ([]core.ScoreEvent, error) {
	return s.scores(ctx, sq.And{
		sq.GtOrEq{"occurred_unix": from.UnixNano()},
		sq.LtOrEq{"occurred_unix": to.UnixNano()},
	})
}

func (s *Store) AllScores(ctx context.Context) ([]core.ScoreEvent, error) {
	return s.scores(ctx, nil)
}

func (s *Store) Standings(ctx context.Context) (map[core.ActorID]core.Standing, error) {
	query, args, err := s.sb.Select("actor", "score", "positive_count", "negative_count").From("standings").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []standingRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("load standings: %w", err)
	}
	out := make(map[core.ActorID]core.Standing, len(rows))
	for _, r := range rows {
		out[core.ActorID(r.Actor)] = r.standing()
	}
	return out, nil
}

// --- actors ---

type actorRow struct {
	ID          string `db:"id"`
	DisplayName string `db:"display_name"`
	Active      bool   `db:"active"`
}

func (s *Store) PutActor(ctx context.Context, a core.Actor) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		found, err := s.exists(ctx, tx, "actors", "id", string(a.ID))
		if err != nil {
			return fmt.Errorf("lookup actor: %w", err)
		}
		var query string
		var args []any
		if found {
			query, args, err = s.sb.Update("actors").
				Set("display_name", a.DisplayName).
				Set("active", a.Active).
				Where(sq.Eq{"id": string(a.ID)}).
				ToSql()
		} else {
			var last sql.NullInt64
			maxQuery, maxArgs, qerr := s.sb.Select("MAX(position)").From("actors").ToSql()
			if qerr != nil {
				return qerr
			}
			if err := tx.GetContext(ctx, &last, maxQuery, maxArgs...); err != nil {
				return fmt.Errorf("read actor position: %w", err)
			}
			query, args, err = s.sb.Insert("actors").
				Columns("id", "display_name", "active", "position").
				Values(string(a.ID), a.DisplayName, a.Active, last.Int64+1).
				ToSql()
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("write actor: %w", err)
		}
		return nil
	})
}

func (s *Store) ListActors(ctx context.Context) ([]core.Actor, error) {
	query, args, err := s.sb.Select("id", "display_name", "active").From("actors").OrderBy("position").ToSql()
	if err != nil {
		return nil, err
	}
	var rows []actorRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list actors: %w", err)
	}
	out := make([]core.Actor, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.Actor{ID: core.ActorID(r.ID), DisplayName: r.DisplayName, Active: r.Active})
	}
	return out, nil
}
