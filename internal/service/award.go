package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/minigame-engine/internal/domain"
)

// BonusAwarder settles participants and appends their bonuses to the points
// ledger, at most once per (game, user)
type BonusAwarder struct {
	store     GameStore
	ledger    Ledger
	standings StandingsCache
	logger    *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewBonusAwarder creates a new bonus awarder. standings may be nil.
func NewBonusAwarder(store GameStore, ledger Ledger, standings StandingsCache, logger *slog.Logger) *BonusAwarder {
	return &BonusAwarder{
		store:     store,
		ledger:    ledger,
		standings: standings,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Award persists one participant's result: the bonus lands in the ledger
// under its dedup key, the ledger reference lands on the participant, and
// the participant is marked settled. A replay after a partial failure finds
// the original ledger entry instead of writing a second one. A bonus of
// exactly zero settles the participant without touching the ledger.
func (a *BonusAwarder) Award(ctx context.Context, game domain.MiniGame, p *domain.MiniGameParticipant) error {
	now := a.now()

	if p.BonusPoints != 0 {
		typeID, err := a.ledger.EnsureBonusType(ctx, game.ChallengeID, a.newID())
		if err != nil {
			return fmt.Errorf("ensuring bonus type: %w", err)
		}

		activity := domain.Activity{
			ID:          a.newID(),
			ChallengeID: game.ChallengeID,
			UserID:      p.UserID,
			TypeID:      typeID,
			Points:      p.BonusPoints,
			Source:      domain.SourceMiniGame,
			Description: fmt.Sprintf("Mini-game bonus: %s", game.Name),
			DedupKey:    domain.BonusDedupKey(game.ID, p.UserID),
			LoggedDate:  now,
			CreatedAt:   now,
		}

		_, err = a.ledger.AppendBonus(ctx, activity)
		switch {
		case errors.Is(err, domain.ErrAlreadyAwarded):
			existing, ferr := a.ledger.FindActivityByDedupKey(ctx, activity.DedupKey)
			if ferr != nil {
				return fmt.Errorf("recovering awarded bonus: %w", ferr)
			}
			p.BonusActivityID = existing.ID
			a.logger.Info("bonus already awarded, reusing ledger entry",
				"game_id", game.ID,
				"user_id", p.UserID,
				"activity_id", existing.ID,
			)
		case err != nil:
			return fmt.Errorf("appending bonus for %s: %w", p.UserID, err)
		default:
			p.BonusActivityID = activity.ID
			if a.standings != nil {
				if _, cerr := a.standings.IncrementScore(ctx, game.ChallengeID, p.UserID, p.BonusPoints); cerr != nil {
					// The scheduler reconciliation heals cache drift
					a.logger.Warn("failed to update cached standings", "error", cerr)
				}
			}
		}
	}

	settledAt := now
	p.SettledAt = &settledAt
	if err := a.store.SettleParticipant(ctx, *p); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			// A concurrent retry settled this participant first
			return nil
		}
		return fmt.Errorf("settling participant %s: %w", p.UserID, err)
	}
	return nil
}
