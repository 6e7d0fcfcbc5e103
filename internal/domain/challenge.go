package domain

import "time"

// Challenge represents the long-running competition mini-games attach to
type Challenge struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChallengeParticipant is one member's running-total row in a challenge
type ChallengeParticipant struct {
	ChallengeID string    `json:"challenge_id"`
	UserID      string    `json:"user_id"`
	TotalPoints int64     `json:"total_points"`
	JoinedAt    time.Time `json:"joined_at"`
}

// User represents a platform member
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateChallengeRequest represents a request to create a new challenge
type CreateChallengeRequest struct {
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// ToChallenge converts a CreateChallengeRequest to a Challenge owned by createdBy
func (r *CreateChallengeRequest) ToChallenge(id, createdBy string, now time.Time) Challenge {
	return Challenge{
		ID:        id,
		Name:      r.Name,
		CreatedBy: createdBy,
		StartsAt:  r.StartsAt,
		EndsAt:    r.EndsAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
