// Package jsonfile keeps the whole quest state in one JSON document. Reads are
// served from memory; every mutation rewrites the file through a temp file
// and rename.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"questkit/adapters/memory"
	"questkit/core"
)

type Store struct {
	*memory.Store
	path string
	mu   sync.Mutex
}

// New opens path, starting empty when the file does not exist yet.
func New(path string) (*Store, error) {
	s := &Store{path: path, Store: memory.New()}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, err
	}
	var snap memory.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	s.Store.Restore(snap)
	return s, nil
}

func (s *Store) write() error {
	b, err := json.MarshalIndent(s.Store.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), s.path)
}

// mutate applies fn to the in-memory state and persists it. When the file
// cannot be written the in-memory state is rolled back, so memory never
// holds a change the file does not.
func (s *Store) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.Store.Snapshot()
	if err := fn(); err != nil {
		return err
	}
	if err := s.write(); err != nil {
		s.Store.Restore(before)
		return fmt.Errorf("persist %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) SaveGoal(ctx context.Context, g core.Goal) error {
	return s.mutate(func() error { return s.Store.SaveGoal(ctx, g) })
}

func (s *Store) AdjustProgress(ctx context.Context, goalID string, delta int64) (c core.Counter, err error) {
	err = s.mutate(func() error {
		c, err = s.Store.AdjustProgress(ctx, goalID, delta)
		return err
	})
	return c, err
}

func (s *Store) PutRecord(ctx context.Context, r core.Record) error {
	return s.mutate(func() error { return s.Store.PutRecord(ctx, r) })
}

func (s *Store) AppendScore(ctx context.Context, ev core.ScoreEvent) (st core.Standing, err error) {
	err = s.mutate(func() error {
		st, err = s.Store.AppendScore(ctx, ev)
		return err
	})
	return st, err
}

func (s *Store) PutActor(ctx context.Context, a core.Actor) error {
	return s.mutate(func() error { return s.Store.PutActor(ctx, a) })
}
