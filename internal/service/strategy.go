package service

import (
	"context"
	"fmt"
	"math"

	"github.com/minigame-engine/internal/domain"
)

// strategyEnv carries the game and its collaborators into a strategy call.
// end is only populated for Outcome.
type strategyEnv struct {
	game   domain.MiniGame
	ledger Ledger
	end    domain.Snapshot
}

// strategy is the per-game-type pair of algorithms: Assign freezes the
// relationships and baselines at start, Outcome judges one participant at end
type strategy interface {
	Assign(ctx context.Context, env strategyEnv, snap domain.Snapshot) ([]domain.MiniGameParticipant, error)
	Outcome(ctx context.Context, env strategyEnv, p domain.MiniGameParticipant) (domain.Outcome, int64, error)
}

func strategyFor(gameType domain.GameType) (strategy, error) {
	switch gameType {
	case domain.GameTypePartnerWeek:
		return partnerWeekStrategy{}, nil
	case domain.GameTypeHuntWeek:
		return huntWeekStrategy{}, nil
	case domain.GameTypePRWeek:
		return prWeekStrategy{}, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownGameType, gameType)
}

// partnerWeekStrategy pairs top with bottom: rank i with rank N-1-i
// (0-indexed). Each participant earns a percentage of whatever their partner
// logs during the window, so the pairing pulls both ends of the board into
// the same race.
type partnerWeekStrategy struct{}

func (partnerWeekStrategy) Assign(ctx context.Context, env strategyEnv, snap domain.Snapshot) ([]domain.MiniGameParticipant, error) {
	entries := snap.Entries
	n := len(entries)

	participants := make([]domain.MiniGameParticipant, n)
	for i, entry := range entries {
		// With an odd roster the median lands on itself
		partner := entries[n-1-i]
		participants[i] = domain.MiniGameParticipant{
			UserID:        entry.UserID,
			InitialRank:   entry.Rank,
			InitialPoints: entry.Points,
			PartnerUserID: partner.UserID,
		}
	}
	return participants, nil
}

func (partnerWeekStrategy) Outcome(ctx context.Context, env strategyEnv, p domain.MiniGameParticipant) (domain.Outcome, int64, error) {
	partnerID := p.PartnerUserID
	if partnerID == "" {
		partnerID = p.UserID
	}

	points, err := env.ledger.SumPointsInWindow(ctx, env.game.ChallengeID, partnerID,
		env.game.StartsAt, env.game.EndsAt, domain.SourceMiniGame)
	if err != nil {
		return domain.Outcome{}, 0, fmt.Errorf("summing partner points: %w", err)
	}

	bonus := int64(math.Round(float64(points) * env.game.Config.BonusPercent / 100))
	return domain.Outcome{Partner: &domain.PartnerOutcome{PartnerPoints: points}}, bonus, nil
}

// huntWeekStrategy chains the board at start: everyone hunts the rank above
// and is hunted by the rank below. The leader has no prey and the last rank
// has no hunter, so the chain is open at both ends. Catches are judged
// against a fresh snapshot when the window closes.
type huntWeekStrategy struct{}

func (huntWeekStrategy) Assign(ctx context.Context, env strategyEnv, snap domain.Snapshot) ([]domain.MiniGameParticipant, error) {
	entries := snap.Entries
	n := len(entries)

	participants := make([]domain.MiniGameParticipant, n)
	for i, entry := range entries {
		p := domain.MiniGameParticipant{
			UserID:        entry.UserID,
			InitialRank:   entry.Rank,
			InitialPoints: entry.Points,
		}
		if i > 0 {
			p.PreyUserID = entries[i-1].UserID
		}
		if i < n-1 {
			p.HunterUserID = entries[i+1].UserID
		}
		participants[i] = p
	}
	return participants, nil
}

func (huntWeekStrategy) Outcome(ctx context.Context, env strategyEnv, p domain.MiniGameParticipant) (domain.Outcome, int64, error) {
	selfRank := env.end.Rank(p.UserID)

	caughtPrey := false
	if p.PreyUserID != "" {
		preyRank := env.end.Rank(p.PreyUserID)
		caughtPrey = selfRank > 0 && preyRank > 0 && selfRank < preyRank
	}

	wasCaught := false
	if p.HunterUserID != "" {
		hunterRank := env.end.Rank(p.HunterUserID)
		wasCaught = selfRank > 0 && hunterRank > 0 && hunterRank < selfRank
	}

	// Catching and being caught stack; the total can go negative
	var bonus int64
	if caughtPrey {
		bonus += env.game.Config.CatchBonus
	}
	if wasCaught {
		bonus -= env.game.Config.CaughtPenalty
	}
	return domain.Outcome{Hunt: &domain.HuntOutcome{CaughtPrey: caughtPrey, WasCaught: wasCaught}}, bonus, nil
}

// prWeekStrategy freezes each participant's best single-day total from their
// history before the window, then pays out to anyone whose best day inside
// the window beats it. A participant with no history has a baseline of zero,
// so any scoring day is a new record.
type prWeekStrategy struct{}

func (prWeekStrategy) Assign(ctx context.Context, env strategyEnv, snap domain.Snapshot) ([]domain.MiniGameParticipant, error) {
	participants := make([]domain.MiniGameParticipant, len(snap.Entries))
	for i, entry := range snap.Entries {
		baseline, err := env.ledger.MaxDailyPointsBefore(ctx, env.game.ChallengeID, entry.UserID,
			env.game.StartsAt, domain.SourceMiniGame)
		if err != nil {
			return nil, fmt.Errorf("getting pr baseline for %s: %w", entry.UserID, err)
		}
		participants[i] = domain.MiniGameParticipant{
			UserID:         entry.UserID,
			InitialRank:    entry.Rank,
			InitialPoints:  entry.Points,
			InitialDailyPR: baseline,
		}
	}
	return participants, nil
}

func (prWeekStrategy) Outcome(ctx context.Context, env strategyEnv, p domain.MiniGameParticipant) (domain.Outcome, int64, error) {
	bestDay, err := env.ledger.MaxDailyPointsInWindow(ctx, env.game.ChallengeID, p.UserID,
		env.game.StartsAt, env.game.EndsAt, domain.SourceMiniGame)
	if err != nil {
		return domain.Outcome{}, 0, fmt.Errorf("getting best day in window: %w", err)
	}

	// Matching the record is not beating it
	hitPR := bestDay > p.InitialDailyPR
	var bonus int64
	if hitPR {
		bonus = env.game.Config.PRBonus
	}
	return domain.Outcome{PR: &domain.PROutcome{BestDay: bestDay, HitPR: hitPR}}, bonus, nil
}
