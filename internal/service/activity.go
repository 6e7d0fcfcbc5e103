package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/minigame-engine/internal/domain"
)

// ActivityService records member activity in the points ledger. This is the
// write path that runs concurrently with open mini-game windows; it updates
// the running totals mini-games snapshot and the window sums they read.
type ActivityService struct {
	ledger    Ledger
	roster    Roster
	standings StandingsCache
	hub       Broadcaster
	logger    *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewActivityService creates a new activity service. standings and hub may
// be nil.
func NewActivityService(ledger Ledger, roster Roster, standings StandingsCache, hub Broadcaster, logger *slog.Logger) *ActivityService {
	return &ActivityService{
		ledger:    ledger,
		roster:    roster,
		standings: standings,
		hub:       hub,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Submit validates and records a single activity submission, returning the
// ledger entry it appended
func (s *ActivityService) Submit(ctx context.Context, sub domain.ActivitySubmission) (*domain.Activity, error) {
	if sub.ChallengeID == "" || sub.UserID == "" {
		return nil, fmt.Errorf("%w: challenge_id and user_id are required", domain.ErrInvalidRequest)
	}
	if sub.Points <= 0 {
		return nil, fmt.Errorf("%w: points must be positive", domain.ErrInvalidRequest)
	}
	if _, err := s.roster.GetChallenge(ctx, sub.ChallengeID); err != nil {
		return nil, err
	}

	now := s.now()
	loggedDate := sub.LoggedDate
	if loggedDate.IsZero() {
		loggedDate = now
	}

	activity := domain.Activity{
		ID:          s.newID(),
		ChallengeID: sub.ChallengeID,
		UserID:      sub.UserID,
		TypeID:      sub.TypeID,
		Points:      sub.Points,
		Source:      domain.SourceMember,
		Description: sub.Description,
		LoggedDate:  loggedDate,
		CreatedAt:   now,
	}

	total, err := s.ledger.RecordActivity(ctx, activity)
	if err != nil {
		return nil, fmt.Errorf("recording activity: %w", err)
	}

	if s.standings != nil {
		if _, err := s.standings.IncrementScore(ctx, sub.ChallengeID, sub.UserID, sub.Points); err != nil {
			s.logger.Warn("failed to update cached standings", "error", err)
		}
	}
	if s.hub != nil {
		s.hub.BroadcastScoreUpdate(sub.ChallengeID, domain.Standing{
			UserID: sub.UserID,
			Points: total,
		})
	}
	return &activity, nil
}

// SubmitBatch records multiple activity submissions, logging and skipping
// the ones that fail
func (s *ActivityService) SubmitBatch(ctx context.Context, subs []domain.ActivitySubmission) error {
	for _, sub := range subs {
		if _, err := s.Submit(ctx, sub); err != nil {
			s.logger.Error("failed to record activity in batch",
				"challenge_id", sub.ChallengeID,
				"user_id", sub.UserID,
				"error", err,
			)
			// Continue processing other submissions
		}
	}
	return nil
}
