package domain

import "errors"

// Domain errors
var (
	ErrUnauthorized        = errors.New("actor is not an admin of this challenge")
	ErrChallengeNotFound   = errors.New("challenge not found")
	ErrGameNotFound        = errors.New("mini-game not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrActivityNotFound    = errors.New("activity not found")
	ErrInvalidState        = errors.New("operation not allowed in current game state")
	ErrInvalidWindow       = errors.New("invalid game window")
	ErrNoParticipants      = errors.New("challenge has no participants")
	ErrLedgerUnavailable   = errors.New("points ledger unavailable")
	ErrAlreadyAwarded      = errors.New("bonus already awarded")
	ErrUnknownGameType     = errors.New("unknown game type")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInternalError       = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrChallengeNotFound) || errors.Is(err, ErrGameNotFound) ||
		errors.Is(err, ErrParticipantNotFound) || errors.Is(err, ErrActivityNotFound)
}

// IsConflictError checks if an error is a state or precondition conflict
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInvalidState) || errors.Is(err, ErrNoParticipants) ||
		errors.Is(err, ErrAlreadyAwarded)
}
