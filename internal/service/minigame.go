package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/minigame-engine/internal/domain"
)

// GameStore persists mini-games and their participants
type GameStore interface {
	CreateGame(ctx context.Context, game domain.MiniGame) error
	GetGame(ctx context.Context, gameID string) (*domain.MiniGame, error)
	ListGamesByChallenge(ctx context.Context, challengeID string) ([]domain.MiniGame, error)
	UpdateGame(ctx context.Context, game domain.MiniGame) error
	DeleteGame(ctx context.Context, gameID string) error
	TransitionStatus(ctx context.Context, gameID string, from, to domain.GameStatus) error
	ActivateGame(ctx context.Context, gameID string, participants []domain.MiniGameParticipant) error
	ListParticipants(ctx context.Context, gameID string) ([]domain.MiniGameParticipant, error)
	SettleParticipant(ctx context.Context, p domain.MiniGameParticipant) error
	ListDueToStart(ctx context.Context, now time.Time) ([]domain.MiniGame, error)
	ListDueToEnd(ctx context.Context, now time.Time) ([]domain.MiniGame, error)
}

// Ledger reads and appends challenge points activities
type Ledger interface {
	EnsureBonusType(ctx context.Context, challengeID, newID string) (string, error)
	RecordActivity(ctx context.Context, activity domain.Activity) (int64, error)
	AppendBonus(ctx context.Context, activity domain.Activity) (int64, error)
	FindActivityByDedupKey(ctx context.Context, dedupKey string) (*domain.Activity, error)
	SumPointsInWindow(ctx context.Context, challengeID, userID string, start, end time.Time, exclude domain.ActivitySource) (int64, error)
	MaxDailyPointsBefore(ctx context.Context, challengeID, userID string, cutoff time.Time, exclude domain.ActivitySource) (int64, error)
	MaxDailyPointsInWindow(ctx context.Context, challengeID, userID string, start, end time.Time, exclude domain.ActivitySource) (int64, error)
}

// Roster reads and maintains challenge membership and admin rights
type Roster interface {
	CreateChallenge(ctx context.Context, challenge domain.Challenge) error
	GetChallenge(ctx context.Context, challengeID string) (*domain.Challenge, error)
	JoinChallenge(ctx context.Context, challengeID, userID string, joinedAt time.Time) error
	Standings(ctx context.Context, challengeID string) ([]domain.Standing, error)
	Totals(ctx context.Context, challengeID string) (map[string]int64, error)
	IsChallengeAdmin(ctx context.Context, userID, challengeID string) (bool, error)
	UpsertUser(ctx context.Context, user domain.User) error
	AddChallengeAdmin(ctx context.Context, challengeID, userID string) error
}

// StandingsCache mirrors running totals for fast leaderboard reads
type StandingsCache interface {
	IncrementScore(ctx context.Context, challengeID, userID string, delta int64) (int64, error)
	ReplaceAll(ctx context.Context, challengeID string, totals map[string]int64) error
	TopN(ctx context.Context, challengeID string, n int) ([]domain.Standing, error)
	MemberStanding(ctx context.Context, challengeID, userID string) (*domain.Standing, error)
	Count(ctx context.Context, challengeID string) (int64, error)
}

// Broadcaster pushes live updates to subscribed clients
type Broadcaster interface {
	BroadcastScoreUpdate(challengeID string, standing domain.Standing)
	BroadcastStandings(challengeID string, standings []domain.Standing)
	BroadcastGameEvent(event domain.GameEvent)
}

// MiniGameService drives the mini-game lifecycle: create and edit drafts,
// start games against a roster snapshot, and settle outcomes when the
// window closes
type MiniGameService struct {
	store     GameStore
	ledger    Ledger
	roster    Roster
	standings StandingsCache
	awarder   *BonusAwarder
	hub       Broadcaster
	logger    *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewMiniGameService creates a new mini-game service. standings and hub may
// be nil when running without the cache or live updates.
func NewMiniGameService(
	store GameStore,
	ledger Ledger,
	roster Roster,
	standings StandingsCache,
	hub Broadcaster,
	logger *slog.Logger,
) *MiniGameService {
	return &MiniGameService{
		store:     store,
		ledger:    ledger,
		roster:    roster,
		standings: standings,
		awarder:   NewBonusAwarder(store, ledger, standings, logger),
		hub:       hub,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Create validates and persists a new draft mini-game
func (s *MiniGameService) Create(ctx context.Context, actorID, challengeID string, req domain.CreateMiniGameRequest) (*domain.MiniGame, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownGameType, req.Type)
	}
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidRequest)
	}

	challenge, err := s.roster.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, challengeID); err != nil {
		return nil, err
	}
	if err := domain.ValidateWindow(req.StartsAt, req.EndsAt, challenge.EndsAt); err != nil {
		return nil, err
	}

	game := req.ToGame(s.newID(), challengeID, actorID, s.now())
	if err := s.store.CreateGame(ctx, game); err != nil {
		return nil, fmt.Errorf("creating mini-game: %w", err)
	}

	s.logger.Info("mini-game created",
		"game_id", game.ID,
		"challenge_id", challengeID,
		"type", game.Type,
	)
	return &game, nil
}

// Get returns a mini-game by ID
func (s *MiniGameService) Get(ctx context.Context, gameID string) (*domain.MiniGame, error) {
	return s.store.GetGame(ctx, gameID)
}

// ListByChallenge returns all mini-games attached to a challenge
func (s *MiniGameService) ListByChallenge(ctx context.Context, challengeID string) ([]domain.MiniGame, error) {
	if _, err := s.roster.GetChallenge(ctx, challengeID); err != nil {
		return nil, err
	}
	return s.store.ListGamesByChallenge(ctx, challengeID)
}

// Participants returns a game's participants with any settled outcomes
func (s *MiniGameService) Participants(ctx context.Context, gameID string) ([]domain.MiniGameParticipant, error) {
	if _, err := s.store.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	return s.store.ListParticipants(ctx, gameID)
}

// Update patches a draft game. Games that have started are immutable.
func (s *MiniGameService) Update(ctx context.Context, actorID, gameID string, req domain.UpdateMiniGameRequest) (*domain.MiniGame, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, game.ChallengeID); err != nil {
		return nil, err
	}
	if game.Status != domain.GameStatusDraft {
		return nil, domain.ErrInvalidState
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", domain.ErrInvalidRequest)
		}
		game.Name = *req.Name
	}
	if req.StartsAt != nil {
		game.StartsAt = *req.StartsAt
	}
	if req.EndsAt != nil {
		game.EndsAt = *req.EndsAt
	}
	if req.Config != nil {
		game.Config = req.Config.WithDefaults()
	}

	challenge, err := s.roster.GetChallenge(ctx, game.ChallengeID)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateWindow(game.StartsAt, game.EndsAt, challenge.EndsAt); err != nil {
		return nil, err
	}

	game.UpdatedAt = s.now()
	if err := s.store.UpdateGame(ctx, *game); err != nil {
		return nil, err
	}
	return game, nil
}

// Delete removes a draft game. Games that have started are part of the
// challenge's history and cannot be deleted.
func (s *MiniGameService) Delete(ctx context.Context, actorID, gameID string) error {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actorID, game.ChallengeID); err != nil {
		return err
	}
	if game.Status != domain.GameStatusDraft {
		return domain.ErrInvalidState
	}
	return s.store.DeleteGame(ctx, gameID)
}

// Start snapshots the current standings, runs the game type's assignment,
// and activates the game
func (s *MiniGameService) Start(ctx context.Context, actorID, gameID string) (*domain.MiniGame, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, game.ChallengeID); err != nil {
		return nil, err
	}
	if err := s.start(ctx, game); err != nil {
		return nil, err
	}
	return game, nil
}

// StartScheduled starts a due game on behalf of the scheduler
func (s *MiniGameService) StartScheduled(ctx context.Context, gameID string) error {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	return s.start(ctx, game)
}

func (s *MiniGameService) start(ctx context.Context, game *domain.MiniGame) error {
	if game.Status != domain.GameStatusDraft {
		return domain.ErrInvalidState
	}

	standings, err := s.roster.Standings(ctx, game.ChallengeID)
	if err != nil {
		return fmt.Errorf("getting standings: %w", err)
	}
	if len(standings) == 0 {
		return domain.ErrNoParticipants
	}

	now := s.now()
	snap := domain.BuildSnapshot(game.ChallengeID, now, standings)

	strat, err := strategyFor(game.Type)
	if err != nil {
		return err
	}
	participants, err := strat.Assign(ctx, strategyEnv{game: *game, ledger: s.ledger}, snap)
	if err != nil {
		return fmt.Errorf("assigning participants: %w", err)
	}
	for i := range participants {
		participants[i].ID = s.newID()
		participants[i].GameID = game.ID
		participants[i].CreatedAt = now
	}

	// Participants and the draft-to-active flip land in one transaction
	if err := s.store.ActivateGame(ctx, game.ID, participants); err != nil {
		return err
	}
	game.Status = domain.GameStatusActive
	game.UpdatedAt = now

	s.logger.Info("mini-game started",
		"game_id", game.ID,
		"challenge_id", game.ChallengeID,
		"type", game.Type,
		"participants", len(participants),
	)
	if s.hub != nil {
		s.hub.BroadcastGameEvent(domain.GameEvent{
			Type:        domain.EventGameStarted,
			ChallengeID: game.ChallengeID,
			Game:        *game,
		})
	}
	return nil
}

// End closes the game window, computes every participant's outcome, and
// awards bonuses
func (s *MiniGameService) End(ctx context.Context, actorID, gameID string) (*domain.MiniGame, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, game.ChallengeID); err != nil {
		return nil, err
	}
	if err := s.end(ctx, game); err != nil {
		return nil, err
	}
	return game, nil
}

// EndScheduled ends a due game on behalf of the scheduler
func (s *MiniGameService) EndScheduled(ctx context.Context, gameID string) error {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	return s.end(ctx, game)
}

// end settles a game. It is safe to call again after a partial failure:
// the game parks in calculating, already settled participants are skipped,
// and the award dedup key absorbs replays of the ledger append.
func (s *MiniGameService) end(ctx context.Context, game *domain.MiniGame) error {
	switch game.Status {
	case domain.GameStatusActive:
		// Exactly one caller wins this transition; the rest bail here
		if err := s.store.TransitionStatus(ctx, game.ID, domain.GameStatusActive, domain.GameStatusCalculating); err != nil {
			return err
		}
		game.Status = domain.GameStatusCalculating
	case domain.GameStatusCalculating:
		// Resuming an interrupted run
	default:
		return domain.ErrInvalidState
	}

	participants, err := s.store.ListParticipants(ctx, game.ID)
	if err != nil {
		return fmt.Errorf("listing participants: %w", err)
	}

	standings, err := s.roster.Standings(ctx, game.ChallengeID)
	if err != nil {
		return fmt.Errorf("getting standings: %w", err)
	}
	endSnap := domain.BuildSnapshot(game.ChallengeID, s.now(), standings)

	strat, err := strategyFor(game.Type)
	if err != nil {
		return err
	}
	env := strategyEnv{game: *game, ledger: s.ledger, end: endSnap}

	var failed int
	var firstErr error
	for _, p := range participants {
		if p.Settled() {
			continue
		}

		outcome, bonus, err := strat.Outcome(ctx, env, p)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Error("failed to compute outcome",
				"game_id", game.ID,
				"user_id", p.UserID,
				"error", err,
			)
			continue
		}

		p.Outcome = &outcome
		p.BonusPoints = bonus
		if entry, ok := endSnap.Entry(p.UserID); ok {
			p.FinalRank = entry.Rank
			p.FinalPoints = entry.Points
		}

		if err := s.awarder.Award(ctx, *game, &p); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Error("failed to award bonus",
				"game_id", game.ID,
				"user_id", p.UserID,
				"error", err,
			)
		}
	}

	if failed > 0 {
		// Leave the game in calculating so a retry can finish the rest
		return fmt.Errorf("settling %d of %d participants failed: %w", failed, len(participants), firstErr)
	}

	if err := s.store.TransitionStatus(ctx, game.ID, domain.GameStatusCalculating, domain.GameStatusCompleted); err != nil {
		return err
	}
	game.Status = domain.GameStatusCompleted
	game.UpdatedAt = s.now()

	s.logger.Info("mini-game completed",
		"game_id", game.ID,
		"challenge_id", game.ChallengeID,
		"participants", len(participants),
	)
	if s.hub != nil {
		s.hub.BroadcastGameEvent(domain.GameEvent{
			Type:        domain.EventGameCompleted,
			ChallengeID: game.ChallengeID,
			Game:        *game,
		})
	}
	return nil
}

// DueToStart lists draft games whose window has opened
func (s *MiniGameService) DueToStart(ctx context.Context) ([]domain.MiniGame, error) {
	return s.store.ListDueToStart(ctx, s.now())
}

// DueToEnd lists games whose window has closed, including interrupted ones
func (s *MiniGameService) DueToEnd(ctx context.Context) ([]domain.MiniGame, error) {
	return s.store.ListDueToEnd(ctx, s.now())
}

func (s *MiniGameService) authorize(ctx context.Context, actorID, challengeID string) error {
	if actorID == "" {
		return domain.ErrUnauthorized
	}
	ok, err := s.roster.IsChallengeAdmin(ctx, actorID, challengeID)
	if err != nil {
		return fmt.Errorf("checking challenge admin: %w", err)
	}
	if !ok {
		return domain.ErrUnauthorized
	}
	return nil
}
