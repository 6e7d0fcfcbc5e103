package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/minigame-engine/internal/config"
	"github.com/minigame-engine/internal/domain"
)

// ChallengeService exposes the slice of the parent platform mini-games sit
// on: challenges, their rosters, and the live leaderboard
type ChallengeService struct {
	roster    Roster
	standings StandingsCache
	cfg       *config.StandingsConfig
	logger    *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewChallengeService creates a new challenge service. standings may be nil.
func NewChallengeService(roster Roster, standings StandingsCache, cfg *config.StandingsConfig, logger *slog.Logger) *ChallengeService {
	return &ChallengeService{
		roster:    roster,
		standings: standings,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Create persists a new challenge owned by the actor, who joins it immediately
func (s *ChallengeService) Create(ctx context.Context, actorID string, req domain.CreateChallengeRequest) (*domain.Challenge, error) {
	if actorID == "" {
		return nil, domain.ErrUnauthorized
	}
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidRequest)
	}
	if req.StartsAt.IsZero() || req.EndsAt.IsZero() || !req.StartsAt.Before(req.EndsAt) {
		return nil, fmt.Errorf("%w: starts_at must be before ends_at", domain.ErrInvalidWindow)
	}

	now := s.now()
	challenge := req.ToChallenge(s.newID(), actorID, now)
	if err := s.roster.CreateChallenge(ctx, challenge); err != nil {
		return nil, fmt.Errorf("creating challenge: %w", err)
	}
	if err := s.roster.JoinChallenge(ctx, challenge.ID, actorID, now); err != nil {
		s.logger.Warn("failed to seat challenge creator", "challenge_id", challenge.ID, "error", err)
	}

	s.logger.Info("challenge created", "challenge_id", challenge.ID, "created_by", actorID)
	return &challenge, nil
}

// Get returns a challenge by ID
func (s *ChallengeService) Get(ctx context.Context, challengeID string) (*domain.Challenge, error) {
	return s.roster.GetChallenge(ctx, challengeID)
}

// Join adds a user to a challenge roster
func (s *ChallengeService) Join(ctx context.Context, challengeID, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", domain.ErrInvalidRequest)
	}
	if _, err := s.roster.GetChallenge(ctx, challengeID); err != nil {
		return err
	}
	return s.roster.JoinChallenge(ctx, challengeID, userID, s.now())
}

// RegisterUser creates or refreshes a platform member record
func (s *ChallengeService) RegisterUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.ID == "" || user.Username == "" {
		return nil, fmt.Errorf("%w: id and username are required", domain.ErrInvalidRequest)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	if err := s.roster.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("registering user: %w", err)
	}
	return &user, nil
}

// AddAdmin grants challenge admin rights; only existing admins may do so
func (s *ChallengeService) AddAdmin(ctx context.Context, actorID, challengeID, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user_id is required", domain.ErrInvalidRequest)
	}
	if _, err := s.roster.GetChallenge(ctx, challengeID); err != nil {
		return err
	}
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
	return s.roster.AddChallengeAdmin(ctx, challengeID, userID)
}

// Leaderboard returns the top n of a challenge's live standings and the
// total member count. Reads hit the cache; a cold cache is rebuilt from the
// authoritative totals.
func (s *ChallengeService) Leaderboard(ctx context.Context, challengeID string, n int) ([]domain.Standing, int64, error) {
	if n <= 0 {
		n = s.cfg.DefaultLimit
	}
	if n > s.cfg.MaxLimit {
		n = s.cfg.MaxLimit
	}

	if _, err := s.roster.GetChallenge(ctx, challengeID); err != nil {
		return nil, 0, err
	}

	if s.standings != nil {
		entries, err := s.standings.TopN(ctx, challengeID, n)
		if err != nil {
			s.logger.Warn("standings cache read failed, falling back to store", "error", err)
		} else if len(entries) > 0 {
			count, err := s.standings.Count(ctx, challengeID)
			if err != nil {
				count = int64(len(entries))
			}
			return entries, count, nil
		}
	}

	// Cold or unavailable cache: serve from the store and rewarm
	standings, err := s.roster.Standings(ctx, challengeID)
	if err != nil {
		return nil, 0, fmt.Errorf("getting standings: %w", err)
	}
	for i := range standings {
		standings[i].Rank = i + 1
	}

	if s.standings != nil && len(standings) > 0 {
		totals := make(map[string]int64, len(standings))
		for _, st := range standings {
			totals[st.UserID] = st.Points
		}
		if err := s.standings.ReplaceAll(ctx, challengeID, totals); err != nil {
			s.logger.Warn("failed to rewarm standings cache", "error", err)
		}
	}

	count := int64(len(standings))
	if len(standings) > n {
		standings = standings[:n]
	}
	return standings, count, nil
}

// MemberStanding returns one member's live rank and total. A cache miss
// falls back to the authoritative standings, so a cold cache never hides
// a member.
func (s *ChallengeService) MemberStanding(ctx context.Context, challengeID, userID string) (*domain.Standing, error) {
	if _, err := s.roster.GetChallenge(ctx, challengeID); err != nil {
		return nil, err
	}

	if s.standings != nil {
		standing, err := s.standings.MemberStanding(ctx, challengeID, userID)
		if err == nil {
			return standing, nil
		}
		if !errors.Is(err, domain.ErrParticipantNotFound) {
			s.logger.Warn("standings cache read failed, falling back to store", "error", err)
		}
	}

	standings, err := s.roster.Standings(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("getting standings: %w", err)
	}
	for i, st := range standings {
		if st.UserID == userID {
			st.Rank = i + 1
			return &st, nil
		}
	}
	return nil, domain.ErrParticipantNotFound
}
