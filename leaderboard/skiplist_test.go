package leaderboard

import (
	"testing"

	"questkit/core"
)

func TestSkipListBasic(t *testing.T) {
	s := NewSkipList()
	s.Update(core.ActorID("a"), 10, 0)
	s.Update(core.ActorID("b"), 20, 1)
	s.Update(core.ActorID("c"), 15, 2)
	top := s.TopN(3)
	if len(top) != 3 || top[0].Actor != "b" || top[1].Actor != "c" || top[2].Actor != "a" {
		t.Fatalf("unexpected order: %#v", top)
	}
	s.Update(core.ActorID("a"), 25, 0)
	top = s.TopN(1)
	if top[0].Actor != "a" {
		t.Fatalf("top should be a, got %#v", top)
	}
	if s.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", s.Len())
	}
}

func TestSkipListTiesKeepSequence(t *testing.T) {
	s := NewSkipList()
	s.Update("zed", 5, 0)
	s.Update("amy", 5, 1)
	s.Update("bob", 5, 2)
	top := s.TopN(3)
	if top[0].Actor != "zed" || top[1].Actor != "amy" || top[2].Actor != "bob" {
		t.Fatalf("ties should follow sequence: %#v", top)
	}
	s.Remove("amy")
	if _, ok := s.Get("amy"); ok {
		t.Fatal("amy should be removed")
	}
}

func TestSkipListRankAndEach(t *testing.T) {
	s := NewSkipList()
	for i, id := range []core.ActorID{"a", "b", "c", "d"} {
		s.Update(id, int64(10*i), i)
	}
	if got := s.Rank("d"); got != 1 {
		t.Fatalf("d should rank first, got %d", got)
	}
	if got := s.Rank("a"); got != 4 {
		t.Fatalf("a should rank last, got %d", got)
	}
	if got := s.Rank("zz"); got != 0 {
		t.Fatalf("unknown actor should rank 0, got %d", got)
	}

	var seen []int
	s.Each(func(rank int, e Entry) bool {
		seen = append(seen, rank)
		return rank < 2
	})
	if len(seen) != 2 || seen[1] != 2 {
		t.Fatalf("Each should stop after rank 2: %v", seen)
	}

	s.Remove("d")
	s.Remove("d")
	if s.Len() != 3 || s.Rank("c") != 1 {
		t.Fatalf("remove should promote c: len=%d rank=%d", s.Len(), s.Rank("c"))
	}
}

func TestSkipListManyUpdates(t *testing.T) {
	s := NewSkipList()
	for i := 0; i < 500; i++ {
		s.Update(core.ActorID(rune('a'+i%26)), int64(i), i%26)
	}
	top := s.TopN(100)
	if len(top) != 26 {
		t.Fatalf("expected 26 distinct actors, got %d", len(top))
	}
	for i := 1; i < len(top); i++ {
		if top[i-1].Score < top[i].Score {
			t.Fatalf("not sorted at %d: %#v", i, top)
		}
	}
}
