package leaderboard

import (
	"sort"

	"questkit/core"
)

// Badge thresholds. Top tier is relative to the best positive count of the result set.
const (
	TopTierRatio      = 0.8
	FlawlessMinimum   = 3
	AtRiskPenaltyMark = 3
)

// Aggregate ranks every directory actor by the positive score they earned inside w.
// Events from actors missing in the directory are ignored. Ties keep directory order.
func Aggregate(events []core.ScoreEvent, actors []core.Actor, w Window) []core.RankEntry {
	index := make(map[core.ActorID]int, len(actors))
	standings := make([]core.Standing, 0, len(actors))
	names := make([]string, 0, len(actors))
	for _, a := range actors {
		if _, dup := index[a.ID]; dup {
			continue
		}
		index[a.ID] = len(standings)
		standings = append(standings, core.Standing{Actor: a.ID})
		names = append(names, a.DisplayName)
	}

	for _, ev := range events {
		i, ok := index[ev.Actor]
		if !ok || !w.Contains(ev.Time) {
			continue
		}
		if next, err := standings[i].Apply(ev); err == nil {
			standings[i] = next
		}
	}

	out := make([]core.RankEntry, len(standings))
	for i, s := range standings {
		out[i] = core.RankEntry{
			Actor:         s.Actor,
			DisplayName:   names[i],
			Score:         s.Score,
			PositiveCount: s.PositiveCount,
			NegativeCount: s.NegativeCount,
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i := range out {
		out[i].Rank = i + 1
	}
	AssignBadges(out)
	return out
}

// AggregateAllTime ranks directory actors by their stored cumulative standings.
// Ties break by directory position, matching Aggregate.
func AggregateAllTime(standings map[core.ActorID]core.Standing, actors []core.Actor) []core.RankEntry {
	board := NewSkipList()
	byID := make(map[core.ActorID]core.Actor, len(actors))
	for i, a := range actors {
		if _, dup := byID[a.ID]; dup {
			continue
		}
		byID[a.ID] = a
		board.Update(a.ID, standings[a.ID].Score, i)
	}

	out := make([]core.RankEntry, 0, board.Len())
	board.Each(func(rank int, e Entry) bool {
		s := standings[e.Actor]
		out = append(out, core.RankEntry{
			Actor:         e.Actor,
			DisplayName:   byID[e.Actor].DisplayName,
			Rank:          rank,
			Score:         e.Score,
			PositiveCount: s.PositiveCount,
			NegativeCount: s.NegativeCount,
		})
		return true
	})
	AssignBadges(out)
	return out
}

// AssignBadges derives badges from thresholds computed over entries.
func AssignBadges(entries []core.RankEntry) {
	var maxPositive int64
	for _, e := range entries {
		if e.PositiveCount > maxPositive {
			maxPositive = e.PositiveCount
		}
	}
	for i := range entries {
		e := &entries[i]
		e.Badges = []core.Badge{}
		if maxPositive > 0 && float64(e.PositiveCount) >= TopTierRatio*float64(maxPositive) {
			e.Badges = append(e.Badges, core.BadgeTopTier)
		}
		if e.PositiveCount >= FlawlessMinimum && e.NegativeCount == 0 {
			e.Badges = append(e.Badges, core.BadgeFlawless)
		}
		if e.NegativeCount >= AtRiskPenaltyMark {
			e.Badges = append(e.Badges, core.BadgeAtRisk)
		}
		if e.PositiveCount == 0 && e.Score == 0 {
			e.Badges = append(e.Badges, core.BadgeIdle)
		}
	}
}
