package domain

import (
	"cmp"
	"slices"
	"time"
)

// Standing is one row of a challenge's live standings
type Standing struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Points   int64     `json:"points"`
	JoinedAt time.Time `json:"joined_at,omitempty"`
	Rank     int       `json:"rank,omitempty"`
}

// Snapshot is a frozen, deterministically ordered view of challenge standings.
// Two snapshots built from the same totals are identical regardless of input
// order: points descending, ties broken by join time, then by user ID.
type Snapshot struct {
	ChallengeID string     `json:"challenge_id"`
	TakenAt     time.Time  `json:"taken_at"`
	Entries     []Standing `json:"entries"`

	rankByUser map[string]int
}

// BuildSnapshot orders the standings and assigns sequential 1-based ranks
func BuildSnapshot(challengeID string, takenAt time.Time, standings []Standing) Snapshot {
	entries := make([]Standing, len(standings))
	copy(entries, standings)

	slices.SortStableFunc(entries, func(a, b Standing) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})

	ranks := make(map[string]int, len(entries))
	for i := range entries {
		entries[i].Rank = i + 1
		ranks[entries[i].UserID] = i + 1
	}

	return Snapshot{
		ChallengeID: challengeID,
		TakenAt:     takenAt,
		Entries:     entries,
		rankByUser:  ranks,
	}
}

// Rank returns the user's 1-based rank, or 0 if the user is not in the snapshot
func (s Snapshot) Rank(userID string) int {
	return s.rankByUser[userID]
}

// Entry returns the user's standing, if present
func (s Snapshot) Entry(userID string) (Standing, bool) {
	rank := s.rankByUser[userID]
	if rank == 0 {
		return Standing{}, false
	}
	return s.Entries[rank-1], true
}

// Size returns the number of entries in the snapshot
func (s Snapshot) Size() int {
	return len(s.Entries)
}
