package storage

import (
	"time"

	"github.com/poiesic/pagewise/core"
)

// NextCreatedAt returns now truncated to microseconds, bumped past prev when
// the clock has not advanced. Both backends store microsecond precision.
func NextCreatedAt(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		now = prev.UTC().Add(time.Microsecond)
	}
	return now
}

// ValidateTurns checks every turn before anything is written.
func ValidateTurns(turns []*core.ConversationTurn) error {
	for _, turn := range turns {
		if err := core.ValidateTurn(turn); err != nil {
			return err
		}
	}
	return nil
}

// Reverse flips turns read newest first into oldest first.
func Reverse(turns []*core.ConversationTurn) []*core.ConversationTurn {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns
}
