package leaderboard

import (
	"math/rand/v2"
	"sync"

	"questkit/core"
)

const (
	maxLevel = 16
	pFactor  = 0.25
)

type node struct {
	e       Entry
	forward []*node
}

// SkipList is a concurrency-safe Board ordered by score descending, then
// directory sequence ascending.
type SkipList struct {
	mu      sync.RWMutex
	head    *node
	level   int
	byActor map[core.ActorID]*node
	rng     *rand.Rand
}

func NewSkipList() *SkipList {
	return &SkipList{
		head:    &node{forward: make([]*node, maxLevel)},
		level:   1,
		byActor: map[core.ActorID]*node{},
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// ranksBefore reports whether a sorts ahead of b.
func ranksBefore(a, b Entry) bool {
	switch {
	case a.Score != b.Score:
		return a.Score > b.Score
	case a.Seq != b.Seq:
		return a.Seq < b.Seq
	default:
		return a.Actor < b.Actor
	}
}

func (s *SkipList) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && s.rng.Float64() < pFactor {
		lvl++
	}
	return lvl
}

// predecessors returns, per level, the last node ordered before e.
func (s *SkipList) predecessors(e Entry) [maxLevel]*node {
	var prev [maxLevel]*node
	cur := s.head
	for i := s.level - 1; i >= 0; i-- {
		for cur.forward[i] != nil && ranksBefore(cur.forward[i].e, e) {
			cur = cur.forward[i]
		}
		prev[i] = cur
	}
	return prev
}

// Update inserts actor or moves it to a new score and sequence.
func (s *SkipList) Update(actor core.ActorID, score int64, seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byActor[actor]; ok {
		s.unlink(old)
	}
	e := Entry{Actor: actor, Score: score, Seq: seq}
	prev := s.predecessors(e)
	lvl := s.randomLevel()
	for i := s.level; i < lvl; i++ {
		prev[i] = s.head
	}
	if lvl > s.level {
		s.level = lvl
	}
	n := &node{e: e, forward: make([]*node, lvl)}
	for i := 0; i < lvl; i++ {
		n.forward[i] = prev[i].forward[i]
		prev[i].forward[i] = n
	}
	s.byActor[actor] = n
}

func (s *SkipList) unlink(n *node) {
	prev := s.predecessors(n.e)
	for i := 0; i < len(n.forward); i++ {
		if prev[i].forward[i] == n {
			prev[i].forward[i] = n.forward[i]
		}
	}
	delete(s.byActor, n.e.Actor)
	for s.level > 1 && s.head.forward[s.level-1] == nil {
		s.level--
	}
}

func (s *SkipList) Remove(actor core.ActorID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byActor[actor]; ok {
		s.unlink(n)
	}
}

// TopN returns at most n entries in rank order.
func (s *SkipList) TopN(n int) []Entry {
	if n <= 0 {
		return nil
	}
	out := make([]Entry, 0, n)
	s.Each(func(_ int, e Entry) bool {
		out = append(out, e)
		return len(out) < n
	})
	return out
}

// Each walks entries in rank order with their 1-based rank until fn returns false.
func (s *SkipList) Each(fn func(rank int, e Entry) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rank := 1
	for cur := s.head.forward[0]; cur != nil; cur = cur.forward[0] {
		if !fn(rank, cur.e) {
			return
		}
		rank++
	}
}

// Rank returns the 1-based position of actor, or 0 when absent.
func (s *SkipList) Rank(actor core.ActorID) int {
	found := 0
	s.Each(func(rank int, e Entry) bool {
		if e.Actor == actor {
			found = rank
			return false
		}
		return true
	})
	return found
}

func (s *SkipList) Get(actor core.ActorID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.byActor[actor]; ok {
		return n.e, true
	}
	return Entry{}, false
}

func (s *SkipList) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byActor)
}

var _ Board = (*SkipList)(nil)
