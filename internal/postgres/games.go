package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/minigame-engine/internal/domain"
)

const gameColumns = `id, challenge_id, game_type, name, status, starts_at, ends_at, config, created_by, created_at, updated_at`

// CreateGame persists a new draft mini-game
func (r *Repository) CreateGame(ctx context.Context, game domain.MiniGame) error {
	configJSON, err := json.Marshal(game.Config)
	if err != nil {
		return fmt.Errorf("marshaling game config: %w", err)
	}

	query := `
		INSERT INTO mini_games (id, challenge_id, game_type, name, status, starts_at, ends_at, config, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		game.ID,
		game.ChallengeID,
		string(game.Type),
		game.Name,
		string(game.Status),
		game.StartsAt,
		game.EndsAt,
		configJSON,
		game.CreatedBy,
		game.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating mini-game: %w", err)
	}
	return nil
}

// GetGame retrieves a mini-game by ID
func (r *Repository) GetGame(ctx context.Context, gameID string) (*domain.MiniGame, error) {
	query := `SELECT ` + gameColumns + ` FROM mini_games WHERE id = $1`
	game, err := scanGame(r.pool.QueryRow(ctx, query, gameID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrGameNotFound
		}
		return nil, fmt.Errorf("getting mini-game: %w", err)
	}
	return game, nil
}

// ListGamesByChallenge retrieves all mini-games attached to a challenge
func (r *Repository) ListGamesByChallenge(ctx context.Context, challengeID string) ([]domain.MiniGame, error) {
	query := `SELECT ` + gameColumns + ` FROM mini_games WHERE challenge_id = $1 ORDER BY starts_at ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("listing mini-games: %w", err)
	}
	defer rows.Close()

	var games []domain.MiniGame
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mini-game: %w", err)
		}
		games = append(games, *game)
	}
	return games, nil
}

// UpdateGame rewrites the mutable fields of a draft game. Returns
// ErrInvalidState if the game has already left draft.
func (r *Repository) UpdateGame(ctx context.Context, game domain.MiniGame) error {
	configJSON, err := json.Marshal(game.Config)
	if err != nil {
		return fmt.Errorf("marshaling game config: %w", err)
	}

	query := `
		UPDATE mini_games
		SET name = $2, starts_at = $3, ends_at = $4, config = $5, updated_at = $6
		WHERE id = $1 AND status = 'draft'
	`
	result, err := r.pool.Exec(ctx, query, game.ID, game.Name, game.StartsAt, game.EndsAt, configJSON, game.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating mini-game: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

// DeleteGame removes a draft game. Returns ErrInvalidState if the game has
// already left draft.
func (r *Repository) DeleteGame(ctx context.Context, gameID string) error {
	query := `DELETE FROM mini_games WHERE id = $1 AND status = 'draft'`
	result, err := r.pool.Exec(ctx, query, gameID)
	if err != nil {
		return fmt.Errorf("deleting mini-game: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

// TransitionStatus moves a game one lifecycle step forward. The conditional
// update linearizes concurrent callers: exactly one wins, the rest observe
// ErrInvalidState.
func (r *Repository) TransitionStatus(ctx context.Context, gameID string, from, to domain.GameStatus) error {
	query := `UPDATE mini_games SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.pool.Exec(ctx, query, gameID, string(from), string(to), time.Now())
	if err != nil {
		return fmt.Errorf("transitioning game status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

// ActivateGame inserts the start-time participant assignments and flips the
// game from draft to active in a single transaction. No reader ever observes
// an active game with a partial roster.
func (r *Repository) ActivateGame(ctx context.Context, gameID string, participants []domain.MiniGameParticipant) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning activate transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx,
		`UPDATE mini_games SET status = 'active', updated_at = $2 WHERE id = $1 AND status = 'draft'`,
		gameID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("activating mini-game: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrInvalidState
	}

	batch := &pgx.Batch{}
	insert := `
		INSERT INTO mini_game_participants
			(id, game_id, user_id, initial_rank, initial_points, initial_daily_pr,
			 partner_user_id, prey_user_id, hunter_user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10)
	`
	for _, p := range participants {
		batch.Queue(insert,
			p.ID, p.GameID, p.UserID, p.InitialRank, p.InitialPoints, p.InitialDailyPR,
			p.PartnerUserID, p.PreyUserID, p.HunterUserID, p.CreatedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range participants {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("inserting participant: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing participant batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing activate transaction: %w", err)
	}
	return nil
}

// ListParticipants retrieves all participants of a game in join order
func (r *Repository) ListParticipants(ctx context.Context, gameID string) ([]domain.MiniGameParticipant, error) {
	query := `
		SELECT id, game_id, user_id, initial_rank, initial_points, initial_daily_pr,
			   COALESCE(partner_user_id, ''), COALESCE(prey_user_id, ''), COALESCE(hunter_user_id, ''),
			   COALESCE(final_rank, 0), COALESCE(final_points, 0), outcome,
			   bonus_points, COALESCE(bonus_activity_id, ''), settled_at, created_at
		FROM mini_game_participants
		WHERE game_id = $1
		ORDER BY initial_rank ASC
	`
	rows, err := r.pool.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	defer rows.Close()

	var participants []domain.MiniGameParticipant
	for rows.Next() {
		var p domain.MiniGameParticipant
		var outcomeJSON []byte
		err := rows.Scan(
			&p.ID, &p.GameID, &p.UserID, &p.InitialRank, &p.InitialPoints, &p.InitialDailyPR,
			&p.PartnerUserID, &p.PreyUserID, &p.HunterUserID,
			&p.FinalRank, &p.FinalPoints, &outcomeJSON,
			&p.BonusPoints, &p.BonusActivityID, &p.SettledAt, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		if len(outcomeJSON) > 0 {
			var outcome domain.Outcome
			if err := json.Unmarshal(outcomeJSON, &outcome); err != nil {
				return nil, fmt.Errorf("unmarshaling outcome: %w", err)
			}
			p.Outcome = &outcome
		}
		participants = append(participants, p)
	}
	return participants, nil
}

// SettleParticipant records a participant's final state, outcome, bonus, and
// ledger reference. Settling is one-shot: an already settled row is left
// untouched and ErrInvalidState is returned.
func (r *Repository) SettleParticipant(ctx context.Context, p domain.MiniGameParticipant) error {
	outcomeJSON, err := json.Marshal(p.Outcome)
	if err != nil {
		return fmt.Errorf("marshaling outcome: %w", err)
	}

	query := `
		UPDATE mini_game_participants
		SET final_rank = $2, final_points = $3, outcome = $4,
			bonus_points = $5, bonus_activity_id = NULLIF($6, ''), settled_at = $7
		WHERE id = $1 AND settled_at IS NULL
	`
	result, err := r.pool.Exec(ctx, query,
		p.ID, p.FinalRank, p.FinalPoints, outcomeJSON,
		p.BonusPoints, p.BonusActivityID, p.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("settling participant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

// ListDueToStart retrieves draft games whose window has opened
func (r *Repository) ListDueToStart(ctx context.Context, now time.Time) ([]domain.MiniGame, error) {
	query := `SELECT ` + gameColumns + ` FROM mini_games WHERE status = 'draft' AND starts_at <= $1 ORDER BY starts_at ASC`
	return r.listGames(ctx, query, now)
}

// ListDueToEnd retrieves active games whose window has closed, plus games
// stuck in calculating from an interrupted end run
func (r *Repository) ListDueToEnd(ctx context.Context, now time.Time) ([]domain.MiniGame, error) {
	query := `
		SELECT ` + gameColumns + `
		FROM mini_games
		WHERE (status = 'active' AND ends_at <= $1) OR status = 'calculating'
		ORDER BY ends_at ASC
	`
	return r.listGames(ctx, query, now)
}

func (r *Repository) listGames(ctx context.Context, query string, args ...interface{}) ([]domain.MiniGame, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing mini-games: %w", err)
	}
	defer rows.Close()

	var games []domain.MiniGame
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning mini-game: %w", err)
		}
		games = append(games, *game)
	}
	return games, nil
}

func scanGame(row pgx.Row) (*domain.MiniGame, error) {
	var game domain.MiniGame
	var configJSON []byte
	err := row.Scan(
		&game.ID,
		&game.ChallengeID,
		&game.Type,
		&game.Name,
		&game.Status,
		&game.StartsAt,
		&game.EndsAt,
		&configJSON,
		&game.CreatedBy,
		&game.CreatedAt,
		&game.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &game.Config); err != nil {
			return nil, fmt.Errorf("unmarshaling game config: %w", err)
		}
	}
	return &game, nil
}
