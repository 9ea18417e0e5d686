package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"questkit/core"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" env:"QUESTKIT_REDIS_ADDR"`
	Password     string        `json:"password,omitempty" env:"QUESTKIT_REDIS_PASSWORD"`
	DB           int           `json:"db" env:"QUESTKIT_REDIS_DB"`
	PoolSize     int           `json:"pool_size" env:"QUESTKIT_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	// KeyPrefix namespaces every key so several deployments can share a server.
	KeyPrefix string `json:"key_prefix" env:"QUESTKIT_REDIS_KEY_PREFIX"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "questkit",
	}
}

// Store implements the engine.Storage interface using Redis as the backend.
// Data structure:
// - {prefix}:goals -> hash of goal id to goal JSON
// - {prefix}:goals:order -> list of goal ids in creation order
// - {prefix}:progress:{goal_id} -> hash with value and version fields
// - {prefix}:records -> hash of record id to record JSON
// - {prefix}:records:dated -> zset of dated record ids scored by unix millis
// - {prefix}:scores -> hash of sequence number to score event JSON
// - {prefix}:scores:time -> zset of sequence numbers scored by unix millis
// - {prefix}:standings -> hash of actor id to standing JSON
// - {prefix}:actors, {prefix}:actors:order -> actor directory and its order
type Store struct {
	client *redis.Client
	prefix string
}

// New creates a new Redis-backed storage with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client, prefix: prefixOrDefault(config.KeyPrefix)}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, prefix: prefixOrDefault("")}
}

func prefixOrDefault(p string) string {
	if p = strings.TrimSpace(p); p == "" {
		return "questkit"
	}
	return p
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) key(parts ...string) string {
	return s.prefix + ":" + strings.Join(parts, ":")
}

// --- goals ---

func (s *Store) SaveGoal(ctx context.Context, g core.Goal) error {
	data, err := json.Marshal(g)
	if err != nil {
		return err
	}
	added, err := s.client.HSet(ctx, s.key("goals"), g.ID, data).Result()
	if err != nil {
		return fmt.Errorf("failed to save goal: %w", err)
	}
	if added > 0 {
		if err := s.client.RPush(ctx, s.key("goals", "order"), g.ID).Err(); err != nil {
			return fmt.Errorf("failed to index goal: %w", err)
		}
	}
	return nil
}

func (s *Store) GetGoal(ctx context.Context, id string) (core.Goal, error) {
	data, err := s.client.HGet(ctx, s.key("goals"), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.Goal{}, core.ErrNotFound
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("failed to get goal: %w", err)
	}
	var g core.Goal
	if err := json.Unmarshal(data, &g); err != nil {
		return core.Goal{}, fmt.Errorf("decode goal %s: %w", id, err)
	}
	return g, nil
}

func (s *Store) ListGoals(ctx context.Context) ([]core.Goal, error) {
	ids, err := s.client.LRange(ctx, s.key("goals", "order"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	if len(ids) == 0 {
		return []core.Goal{}, nil
	}
	raw, err := s.client.HMGet(ctx, s.key("goals"), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load goals: %w", err)
	}
	out := make([]core.Goal, 0, len(raw))
	for i, v := range raw {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var g core.Goal
		if err := json.Unmarshal([]byte(str), &g); err != nil {
			return nil, fmt.Errorf("decode goal %s: %w", ids[i], err)
		}
		out = append(out, g)
	}
	return out, nil
}

// --- manual progress ---

const negativeProgressReply = "NEGATIVE_PROGRESS"

// Lua script for atomic counter adjustment that refuses to go below zero.
// Lua numbers are doubles, so values beyond 2^53 are rejected as overflow.
var adjustProgressScript = redis.NewScript(`
	local key = KEYS[1]
	local delta = tonumber(ARGV[1])
	local current = tonumber(redis.call('HGET', key, 'value') or '0')
	local next_val = current + delta

	if next_val > 9007199254740991 or next_val < -9007199254740991 then
		return redis.error_reply('integer overflow')
	end
	if next_val < 0 then
		return redis.error_reply('` + negativeProgressReply + `')
	end

	redis.call('HSET', key, 'value', next_val)
	local version = redis.call('HINCRBY', key, 'version', 1)
	return {next_val, version}
`)

// AdjustProgress atomically applies delta to a goal's manual counter.
func (s *Store) AdjustProgress(ctx context.Context, goalID string, delta int64) (core.Counter, error) {
	res, err := adjustProgressScript.Run(ctx, s.client, []string{s.key("progress", goalID)}, delta).Result()
	if err != nil {
		if strings.Contains(err.Error(), negativeProgressReply) {
			return core.Counter{}, core.ErrNegativeProgress
		}
		return core.Counter{}, fmt.Errorf("failed to adjust progress: %w", err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return core.Counter{}, errors.New("unexpected result type from Redis script")
	}
	value, ok1 := vals[0].(int64)
	version, ok2 := vals[1].(int64)
	if !ok1 || !ok2 {
		return core.Counter{}, errors.New("unexpected result type from Redis script")
	}
	return core.Counter{GoalID: goalID, Value: value, Version: version}, nil
}

func (s *Store) GetProgress(ctx context.Context, goalID string) (core.Counter, error) {
	fields, err := s.client.HGetAll(ctx, s.key("progress", goalID)).Result()
	if err != nil {
		return core.Counter{}, fmt.Errorf("failed to get progress: %w", err)
	}
	if len(fields) == 0 {
		return core.Counter{GoalID: goalID}, core.ErrNotFound
	}
	value, _ := strconv.ParseInt(fields["value"], 10, 64)
	version, _ := strconv.ParseInt(fields["version"], 10, 64)
	return core.Counter{GoalID: goalID, Value: value, Version: version}, nil
}

// --- records ---

func (s *Store) PutRecord(ctx context.Context, r core.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.key("records"), r.ID, data)
		if r.RelevantDate == nil {
			p.ZRem(ctx, s.key("records", "dated"), r.ID)
		} else {
			p.ZAdd(ctx, s.key("records", "dated"), redis.Z{Score: float64(r.RelevantDate.UnixMilli()), Member: r.ID})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put record: %w", err)
	}
	return nil
}

func (s *Store) RecordsBetween(ctx context.Context, from, to time.Time) ([]core.Record, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.key("records", "dated"), millisRange(from, to)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	raw, err := s.client.HMGet(ctx, s.key("records"), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	var out []core.Record
	for i, v := range raw {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var r core.Record
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", ids[i], err)
		}
		// the index has millisecond resolution
		if r.RelevantDate == nil || r.RelevantDate.Before(from) || r.RelevantDate.After(to) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func millisRange(from, to time.Time) *redis.ZRangeBy {
	return &redis.ZRangeBy{
		Min: strconv.FormatInt(from.UnixMilli(), 10),
		Max: strconv.FormatInt(to.UnixMilli(), 10),
	}
}

// --- score events ---

const maxWatchRetries = 5

// AppendScore stores the event and updates the actor's standing in one
// optimistic transaction on the standings hash.
func (s *Store) AppendScore(ctx context.Context, ev core.ScoreEvent) (core.Standing, error) {
	standingsKey := s.key("standings")
	evData, err := json.Marshal(ev)
	if err != nil {
		return core.Standing{}, err
	}

	var result core.Standing
	txf := func(tx *redis.Tx) error {
		st := core.Standing{Actor: ev.Actor}
		raw, err := tx.HGet(ctx, standingsKey, string(ev.Actor)).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &st); err != nil {
				return fmt.Errorf("decode standing %s: %w", ev.Actor, err)
			}
		}
		next, err := st.Apply(ev)
		if err != nil {
			return err
		}
		stData, err := json.Marshal(next)
		if err != nil {
			return err
		}
		seq, err := tx.Incr(ctx, s.key("scores", "seq")).Result()
		if err != nil {
			return err
		}
		member := fmt.Sprintf("%020d", seq)
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, standingsKey, string(ev.Actor), stData)
			p.HSet(ctx, s.key("scores"), member, evData)
			p.ZAdd(ctx, s.key("scores", "time"), redis.Z{Score: float64(ev.Time.UnixMilli()), Member: member})
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for i := 0; i < maxWatchRetries; i++ {
		err = s.client.Watch(ctx, txf, standingsKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return core.Standing{}, fmt.Errorf("failed to append score: %w", err)
		}
		return result, nil
	}
	return core.Standing{}, fmt.Errorf("failed to append score: %w", err)
}

func (s *Store) ScoresBetween(ctx context.Context, from, to time.Time) ([]core.ScoreEvent, error) {
	members, err := s.client.ZRangeByScore(ctx, s.key("scores", "time"), millisRange(from, to)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query scores: %w", err)
	}
	events, err := s.loadScores(ctx, members)
	if err != nil {
		return nil, err
	}
	out := events[:0]
	for _, ev := range events {
		if ev.Time.Before(from) || ev.Time.After(to) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *Store) AllScores(ctx context.Context) ([]core.ScoreEvent, error) {
	members, err := s.client.ZRange(ctx, s.key("scores", "time"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list scores: %w", err)
	}
	return s.loadScores(ctx, members)
}

func (s *Store) loadScores(ctx context.Context, members []string) ([]core.ScoreEvent, error) {
	if len(members) == 0 {
		return nil, nil
	}
	raw, err := s.client.HMGet(ctx, s.key("scores"), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load scores: %w", err)
	}
	out := make([]core.ScoreEvent, 0, len(raw))
	for i, v := range raw {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var ev core.ScoreEvent
		if err := json.Unmarshal([]byte(str), &ev); err != nil {
			return nil, fmt.Errorf("decode score %s: %w", members[i], err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *Store) Standings(ctx context.Context) (map[core.ActorID]core.Standing, error) {
	raw, err := s.client.HGetAll(ctx, s.key("standings")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load standings: %w", err)
	}
	out := make(map[core.ActorID]core.Standing, len(raw))
	for actor, data := range raw {
		var st core.Standing
		if err := json.Unmarshal([]byte(data), &st); err != nil {
			return nil, fmt.Errorf("decode standing %s: %w", actor, err)
		}
		out[core.ActorID(actor)] = st
	}
	return out, nil
}

// --- actors ---

func (s *Store) PutActor(ctx context.Context, a core.Actor) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	added, err := s.client.HSet(ctx, s.key("actors"), string(a.ID), data).Result()
	if err != nil {
		return fmt.Errorf("failed to put actor: %w", err)
	}
	if added > 0 {
		if err := s.client.RPush(ctx, s.key("actors", "order"), string(a.ID)).Err(); err != nil {
			return fmt.Errorf("failed to index actor: %w", err)
		}
	}
	return nil
}

func (s *Store) ListActors(ctx context.Context) ([]core.Actor, error) {
	ids, err := s.client.LRange(ctx, s.key("actors", "order"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list actors: %w", err)
	}
	if len(ids) == 0 {
		return []core.Actor{}, nil
	}
	raw, err := s.client.HMGet(ctx, s.key("actors"), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load actors: %w", err)
	}
	out := make([]core.Actor, 0, len(raw))
	for i, v := range raw {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var a core.Actor
		if err := json.Unmarshal([]byte(str), &a); err != nil {
			return nil, fmt.Errorf("decode actor %s: %w", ids[i], err)
		}
		out = append(out, a)
	}
	return out, nil
}
