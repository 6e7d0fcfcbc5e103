package domain

import (
	"fmt"
	"time"
)

// GameType identifies the competition format a mini-game runs
type GameType string

const (
	GameTypePartnerWeek GameType = "partner_week"
	GameTypeHuntWeek    GameType = "hunt_week"
	GameTypePRWeek      GameType = "pr_week"
)

// Valid reports whether the game type is one of the supported formats
func (t GameType) Valid() bool {
	switch t {
	case GameTypePartnerWeek, GameTypeHuntWeek, GameTypePRWeek:
		return true
	}
	return false
}

// GameStatus represents where a mini-game is in its lifecycle
type GameStatus string

const (
	GameStatusDraft       GameStatus = "draft"
	GameStatusActive      GameStatus = "active"
	GameStatusCalculating GameStatus = "calculating"
	GameStatusCompleted   GameStatus = "completed"
)

// CanTransitionTo reports whether the lifecycle allows moving to next.
// The lifecycle only moves forward, one step at a time.
func (s GameStatus) CanTransitionTo(next GameStatus) bool {
	switch s {
	case GameStatusDraft:
		return next == GameStatusActive
	case GameStatusActive:
		return next == GameStatusCalculating
	case GameStatusCalculating:
		return next == GameStatusCompleted
	}
	return false
}

// GameConfig holds the per-game bonus tuning knobs
type GameConfig struct {
	BonusPercent  float64 `json:"bonus_percent,omitempty" yaml:"bonus_percent"`
	CatchBonus    int64   `json:"catch_bonus,omitempty" yaml:"catch_bonus"`
	CaughtPenalty int64   `json:"caught_penalty,omitempty" yaml:"caught_penalty"`
	PRBonus       int64   `json:"pr_bonus,omitempty" yaml:"pr_bonus"`
}

// WithDefaults returns the config with zero fields replaced by defaults
func (c GameConfig) WithDefaults() GameConfig {
	if c.BonusPercent == 0 {
		c.BonusPercent = 10
	}
	if c.CatchBonus == 0 {
		c.CatchBonus = 75
	}
	if c.CaughtPenalty == 0 {
		c.CaughtPenalty = 25
	}
	if c.PRBonus == 0 {
		c.PRBonus = 100
	}
	return c
}

// MiniGame represents a time-windowed side-competition inside a challenge
type MiniGame struct {
	ID          string     `json:"id"`
	ChallengeID string     `json:"challenge_id"`
	Type        GameType   `json:"type"`
	Name        string     `json:"name"`
	Status      GameStatus `json:"status"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      time.Time  `json:"ends_at"`
	Config      GameConfig `json:"config"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreateMiniGameRequest represents a request to create a new mini-game
type CreateMiniGameRequest struct {
	Type     GameType   `json:"type"`
	Name     string     `json:"name"`
	StartsAt time.Time  `json:"starts_at"`
	EndsAt   time.Time  `json:"ends_at"`
	Config   GameConfig `json:"config"`
}

// ToGame converts a CreateMiniGameRequest to a draft MiniGame with defaults
func (r *CreateMiniGameRequest) ToGame(id, challengeID, createdBy string, now time.Time) MiniGame {
	return MiniGame{
		ID:          id,
		ChallengeID: challengeID,
		Type:        r.Type,
		Name:        r.Name,
		Status:      GameStatusDraft,
		StartsAt:    r.StartsAt,
		EndsAt:      r.EndsAt,
		Config:      r.Config.WithDefaults(),
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// UpdateMiniGameRequest carries the fields an update may patch on a draft game
type UpdateMiniGameRequest struct {
	Name     *string     `json:"name,omitempty"`
	StartsAt *time.Time  `json:"starts_at,omitempty"`
	EndsAt   *time.Time  `json:"ends_at,omitempty"`
	Config   *GameConfig `json:"config,omitempty"`
}

// ValidateWindow checks a game window against its parent challenge.
// Windows are half-open: [startsAt, endsAt).
func ValidateWindow(startsAt, endsAt, challengeEndsAt time.Time) error {
	if startsAt.IsZero() || endsAt.IsZero() {
		return fmt.Errorf("%w: starts_at and ends_at are required", ErrInvalidWindow)
	}
	if !startsAt.Before(endsAt) {
		return fmt.Errorf("%w: starts_at must be before ends_at", ErrInvalidWindow)
	}
	if endsAt.After(challengeEndsAt) {
		return fmt.Errorf("%w: ends_at is after the challenge ends", ErrInvalidWindow)
	}
	return nil
}
