package domain

import "time"

// MiniGameParticipant represents one member's enrollment in a mini-game.
// Assignment fields (partner/prey/hunter, initial state) are frozen when the
// game starts; outcome fields are written exactly once when it settles.
type MiniGameParticipant struct {
	ID              string     `json:"id"`
	GameID          string     `json:"game_id"`
	UserID          string     `json:"user_id"`
	InitialRank     int        `json:"initial_rank"`
	InitialPoints   int64      `json:"initial_points"`
	InitialDailyPR  int64      `json:"initial_daily_pr,omitempty"`
	PartnerUserID   string     `json:"partner_user_id,omitempty"`
	PreyUserID      string     `json:"prey_user_id,omitempty"`
	HunterUserID    string     `json:"hunter_user_id,omitempty"`
	FinalRank       int        `json:"final_rank,omitempty"`
	FinalPoints     int64      `json:"final_points,omitempty"`
	Outcome         *Outcome   `json:"outcome,omitempty"`
	BonusPoints     int64      `json:"bonus_points"`
	BonusActivityID string     `json:"bonus_activity_id,omitempty"`
	SettledAt       *time.Time `json:"settled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Settled reports whether the participant's outcome has been recorded
func (p *MiniGameParticipant) Settled() bool {
	return p.SettledAt != nil
}

// Outcome holds the type-specific result of a settled participant.
// Exactly one branch is set, matching the game type.
type Outcome struct {
	Partner *PartnerOutcome `json:"partner,omitempty"`
	Hunt    *HuntOutcome    `json:"hunt,omitempty"`
	PR      *PROutcome      `json:"pr,omitempty"`
}

// PartnerOutcome records what a partner_week participant's partner earned
// during the game window
type PartnerOutcome struct {
	PartnerPoints int64 `json:"partner_points"`
}

// HuntOutcome records the end-of-window rank movements for hunt_week
type HuntOutcome struct {
	CaughtPrey bool `json:"caught_prey"`
	WasCaught  bool `json:"was_caught"`
}

// PROutcome records a pr_week participant's best day inside the window
type PROutcome struct {
	BestDay int64 `json:"best_day"`
	HitPR   bool  `json:"hit_pr"`
}
