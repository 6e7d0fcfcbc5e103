package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/minigame-engine/internal/domain"
)

const uniqueViolation = "23505"

// EnsureBonusType finds or creates the challenge-scoped activity type bonus
// awards are logged under. newID is used only when the type does not exist
// yet; the stored ID is returned either way.
func (r *Repository) EnsureBonusType(ctx context.Context, challengeID, newID string) (string, error) {
	query := `
		INSERT INTO activity_types (id, challenge_id, name, points_weight, contributes_to_streak)
		VALUES ($1, $2, $3, 0, FALSE)
		ON CONFLICT (challenge_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`
	var typeID string
	err := r.pool.QueryRow(ctx, query, newID, challengeID, domain.BonusTypeName).Scan(&typeID)
	if err != nil {
		return "", fmt.Errorf("ensuring bonus activity type: %w", err)
	}
	return typeID, nil
}

// RecordActivity appends a ledger activity and adds its points to the
// member's running total in one transaction. Returns the new total.
func (r *Repository) RecordActivity(ctx context.Context, activity domain.Activity) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning activity transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertActivity(ctx, tx, activity); err != nil {
		return 0, fmt.Errorf("inserting activity: %w", err)
	}

	total, err := addToTotal(ctx, tx, activity)
	if err != nil {
		return 0, fmt.Errorf("updating total: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing activity transaction: %w", err)
	}
	return total, nil
}

// AppendBonus appends a mini-game bonus activity under its dedup key and
// adds the bonus to the member's running total in one transaction. A second
// append under the same key leaves the ledger untouched and returns
// ErrAlreadyAwarded.
func (r *Repository) AppendBonus(ctx context.Context, activity domain.Activity) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: beginning bonus transaction: %s", domain.ErrLedgerUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if err := insertActivity(ctx, tx, activity); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, domain.ErrAlreadyAwarded
		}
		return 0, fmt.Errorf("%w: inserting bonus activity: %s", domain.ErrLedgerUnavailable, err)
	}

	total, err := addToTotal(ctx, tx, activity)
	if err != nil {
		return 0, fmt.Errorf("%w: updating total: %s", domain.ErrLedgerUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%w: committing bonus transaction: %s", domain.ErrLedgerUnavailable, err)
	}
	return total, nil
}

func insertActivity(ctx context.Context, tx pgx.Tx, activity domain.Activity) error {
	query := `
		INSERT INTO activities (id, challenge_id, user_id, type_id, points, source, description, dedup_key, logged_date, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), $9, $10)
	`
	_, err := tx.Exec(ctx, query,
		activity.ID,
		activity.ChallengeID,
		activity.UserID,
		activity.TypeID,
		activity.Points,
		string(activity.Source),
		activity.Description,
		activity.DedupKey,
		activity.LoggedDate,
		activity.CreatedAt,
	)
	return err
}

func addToTotal(ctx context.Context, tx pgx.Tx, activity domain.Activity) (int64, error) {
	query := `
		INSERT INTO challenge_participants (challenge_id, user_id, total_points, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (challenge_id, user_id)
		DO UPDATE SET total_points = challenge_participants.total_points + $3
		RETURNING total_points
	`
	var total int64
	err := tx.QueryRow(ctx, query, activity.ChallengeID, activity.UserID, activity.Points, activity.CreatedAt).Scan(&total)
	return total, err
}

// FindActivityByDedupKey retrieves the ledger activity written under a dedup
// key, used to recover the reference after a retried award
func (r *Repository) FindActivityByDedupKey(ctx context.Context, dedupKey string) (*domain.Activity, error) {
	query := `
		SELECT id, challenge_id, user_id, COALESCE(type_id, ''), points, source,
			   COALESCE(description, ''), COALESCE(dedup_key, ''), logged_date, created_at
		FROM activities
		WHERE dedup_key = $1
	`
	var activity domain.Activity
	err := r.pool.QueryRow(ctx, query, dedupKey).Scan(
		&activity.ID,
		&activity.ChallengeID,
		&activity.UserID,
		&activity.TypeID,
		&activity.Points,
		&activity.Source,
		&activity.Description,
		&activity.DedupKey,
		&activity.LoggedDate,
		&activity.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrActivityNotFound
		}
		return nil, fmt.Errorf("finding activity by dedup key: %w", err)
	}
	return &activity, nil
}

// SumPointsInWindow sums a member's ledger points with logged dates inside
// the half-open window [start, end), excluding the given source
func (r *Repository) SumPointsInWindow(ctx context.Context, challengeID, userID string, start, end time.Time, exclude domain.ActivitySource) (int64, error) {
	query := `
		SELECT COALESCE(SUM(points), 0)
		FROM activities
		WHERE challenge_id = $1 AND user_id = $2
		  AND logged_date >= $3 AND logged_date < $4
		  AND source <> $5
	`
	var sum int64
	err := r.pool.QueryRow(ctx, query, challengeID, userID, start, end, string(exclude)).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("summing points in window: %w", err)
	}
	return sum, nil
}

// MaxDailyPointsBefore returns the member's best single-day point total for
// activities logged before the cutoff, excluding the given source. Zero when
// the member has no history.
func (r *Repository) MaxDailyPointsBefore(ctx context.Context, challengeID, userID string, cutoff time.Time, exclude domain.ActivitySource) (int64, error) {
	query := `
		SELECT COALESCE(MAX(day_total), 0)
		FROM (
			SELECT SUM(points) AS day_total
			FROM activities
			WHERE challenge_id = $1 AND user_id = $2
			  AND logged_date < $3
			  AND source <> $4
			GROUP BY DATE(logged_date)
		) days
	`
	var best int64
	err := r.pool.QueryRow(ctx, query, challengeID, userID, cutoff, string(exclude)).Scan(&best)
	if err != nil {
		return 0, fmt.Errorf("getting best day before cutoff: %w", err)
	}
	return best, nil
}

// MaxDailyPointsInWindow returns the member's best single-day point total for
// activities logged inside the half-open window [start, end), excluding the
// given source
func (r *Repository) MaxDailyPointsInWindow(ctx context.Context, challengeID, userID string, start, end time.Time, exclude domain.ActivitySource) (int64, error) {
	query := `
		SELECT COALESCE(MAX(day_total), 0)
		FROM (
			SELECT SUM(points) AS day_total
			FROM activities
			WHERE challenge_id = $1 AND user_id = $2
			  AND logged_date >= $3 AND logged_date < $4
			  AND source <> $5
			GROUP BY DATE(logged_date)
		) days
	`
	var best int64
	err := r.pool.QueryRow(ctx, query, challengeID, userID, start, end, string(exclude)).Scan(&best)
	if err != nil {
		return 0, fmt.Errorf("getting best day in window: %w", err)
	}
	return best, nil
}
