// Package leaderboard ranks actors over time windows and keeps ordered boards.
package leaderboard

import "questkit/core"

// Entry is a board position. Seq is the actor's directory position and
// breaks score ties.
type Entry struct {
	Actor core.ActorID
	Score int64
	Seq   int
}

// Board is an ordered score index.
type Board interface {
	Update(actor core.ActorID, score int64, seq int)
	Remove(actor core.ActorID)
	TopN(n int) []Entry
	Each(fn func(rank int, e Entry) bool)
	Rank(actor core.ActorID) int
	Get(actor core.ActorID) (Entry, bool)
	Len() int
}
