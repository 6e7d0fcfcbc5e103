package domain

// Game lifecycle event types pushed to websocket subscribers
const (
	EventGameStarted   = "game_started"
	EventGameCompleted = "game_completed"
)

// GameEvent notifies subscribers of a mini-game lifecycle change
type GameEvent struct {
	Type        string   `json:"type"`
	ChallengeID string   `json:"challenge_id"`
	Game        MiniGame `json:"game"`
}
