package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivitySource identifies which writer appended a ledger activity
type ActivitySource string

const (
	SourceMember   ActivitySource = "member"
	SourceMiniGame ActivitySource = "mini_game"
)

// BonusTypeName is the synthetic activity type bonus awards are logged under
const BonusTypeName = "Mini-Game Bonus"

// Activity is one append-only entry in a challenge's points ledger
type Activity struct {
	ID          string         `json:"id"`
	ChallengeID string         `json:"challenge_id"`
	UserID      string         `json:"user_id"`
	TypeID      string         `json:"type_id,omitempty"`
	Points      int64          `json:"points"`
	Source      ActivitySource `json:"source"`
	Description string         `json:"description,omitempty"`
	DedupKey    string         `json:"dedup_key,omitempty"`
	LoggedDate  time.Time      `json:"logged_date"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ActivityType categorizes ledger activities within a challenge
type ActivityType struct {
	ID                  string `json:"id"`
	ChallengeID         string `json:"challenge_id"`
	Name                string `json:"name"`
	PointsWeight        int64  `json:"points_weight"`
	ContributesToStreak bool   `json:"contributes_to_streak"`
}

// ActivitySubmission represents a request to log points for a challenge member
type ActivitySubmission struct {
	ChallengeID string    `json:"challenge_id"`
	UserID      string    `json:"user_id"`
	Points      int64     `json:"points"`
	TypeID      string    `json:"type_id,omitempty"`
	Description string    `json:"description,omitempty"`
	LoggedDate  time.Time `json:"logged_date"`
}

// bonusKeyNamespace scopes the deterministic dedup keys for bonus awards
var bonusKeyNamespace = uuid.MustParse("5f9b3a52-7c4e-4fd1-9d2a-8e1b6c0a4f77")

// BonusDedupKey derives the idempotency key for a (game, user) bonus award.
// The same pair always yields the same key, so a retried award collides with
// the ledger entry the first attempt wrote instead of duplicating it.
func BonusDedupKey(gameID, userID string) string {
	return uuid.NewSHA1(bonusKeyNamespace, []byte(gameID+":"+userID)).String()
}
