package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minigame-engine/internal/config"
	"github.com/minigame-engine/internal/domain"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS challenges (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			created_by VARCHAR(64) NOT NULL,
			starts_at TIMESTAMPTZ NOT NULL,
			ends_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS challenge_admins (
			challenge_id VARCHAR(64) NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
			user_id VARCHAR(64) NOT NULL,
			PRIMARY KEY (challenge_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS challenge_participants (
			challenge_id VARCHAR(64) NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
			user_id VARCHAR(64) NOT NULL,
			total_points BIGINT NOT NULL DEFAULT 0,
			joined_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (challenge_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS activity_types (
			id VARCHAR(64) PRIMARY KEY,
			challenge_id VARCHAR(64) NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			points_weight INT NOT NULL DEFAULT 0,
			contributes_to_streak BOOLEAN NOT NULL DEFAULT TRUE,
			UNIQUE (challenge_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS activities (
			id VARCHAR(64) PRIMARY KEY,
			challenge_id VARCHAR(64) NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
			user_id VARCHAR(64) NOT NULL,
			type_id VARCHAR(64),
			points BIGINT NOT NULL,
			source VARCHAR(20) NOT NULL DEFAULT 'member',
			description TEXT,
			dedup_key VARCHAR(64),
			logged_date TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS mini_games (
			id VARCHAR(64) PRIMARY KEY,
			challenge_id VARCHAR(64) NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
			game_type VARCHAR(20) NOT NULL,
			name VARCHAR(255) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'draft',
			starts_at TIMESTAMPTZ NOT NULL,
			ends_at TIMESTAMPTZ NOT NULL,
			config JSONB,
			created_by VARCHAR(64) NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS mini_game_participants (
			id VARCHAR(64) PRIMARY KEY,
			game_id VARCHAR(64) NOT NULL REFERENCES mini_games(id) ON DELETE CASCADE,
			user_id VARCHAR(64) NOT NULL,
			initial_rank INT NOT NULL,
			initial_points BIGINT NOT NULL,
			initial_daily_pr BIGINT NOT NULL DEFAULT 0,
			partner_user_id VARCHAR(64),
			prey_user_id VARCHAR(64),
			hunter_user_id VARCHAR(64),
			final_rank INT,
			final_points BIGINT,
			outcome JSONB,
			bonus_points BIGINT NOT NULL DEFAULT 0,
			bonus_activity_id VARCHAR(64),
			settled_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (game_id, user_id)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_activities_dedup ON activities(dedup_key) WHERE dedup_key IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_activities_window ON activities(challenge_id, user_id, logged_date)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_standings ON challenge_participants(challenge_id, total_points DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_mini_games_challenge ON mini_games(challenge_id)`,
		`CREATE INDEX IF NOT EXISTS idx_mini_games_start_due ON mini_games(status, starts_at)`,
		`CREATE INDEX IF NOT EXISTS idx_mini_games_end_due ON mini_games(status, ends_at)`,
		`CREATE INDEX IF NOT EXISTS idx_game_participants_game ON mini_game_participants(game_id)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// CreateChallenge persists a new challenge
func (r *Repository) CreateChallenge(ctx context.Context, challenge domain.Challenge) error {
	query := `
		INSERT INTO challenges (id, name, created_by, starts_at, ends_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		challenge.ID,
		challenge.Name,
		challenge.CreatedBy,
		challenge.StartsAt,
		challenge.EndsAt,
		challenge.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating challenge: %w", err)
	}
	return nil
}

// GetChallenge retrieves a challenge by ID
func (r *Repository) GetChallenge(ctx context.Context, challengeID string) (*domain.Challenge, error) {
	query := `
		SELECT id, name, created_by, starts_at, ends_at, created_at, updated_at
		FROM challenges
		WHERE id = $1
	`
	var challenge domain.Challenge
	err := r.pool.QueryRow(ctx, query, challengeID).Scan(
		&challenge.ID,
		&challenge.Name,
		&challenge.CreatedBy,
		&challenge.StartsAt,
		&challenge.EndsAt,
		&challenge.CreatedAt,
		&challenge.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("getting challenge: %w", err)
	}
	return &challenge, nil
}

// JoinChallenge adds a member to a challenge roster. Joining twice is a no-op
// so the original joined_at, the standings tie-break key, is preserved.
func (r *Repository) JoinChallenge(ctx context.Context, challengeID, userID string, joinedAt time.Time) error {
	query := `
		INSERT INTO challenge_participants (challenge_id, user_id, total_points, joined_at)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (challenge_id, user_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, challengeID, userID, joinedAt)
	if err != nil {
		return fmt.Errorf("joining challenge: %w", err)
	}
	return nil
}

// Standings retrieves the full roster with running totals, ordered by points
// descending with join time then user ID as tie-breaks
func (r *Repository) Standings(ctx context.Context, challengeID string) ([]domain.Standing, error) {
	query := `
		SELECT cp.user_id, COALESCE(u.username, ''), cp.total_points, cp.joined_at
		FROM challenge_participants cp
		LEFT JOIN users u ON u.id = cp.user_id
		WHERE cp.challenge_id = $1
		ORDER BY cp.total_points DESC, cp.joined_at ASC, cp.user_id ASC
	`
	rows, err := r.pool.Query(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("getting standings: %w", err)
	}
	defer rows.Close()

	var standings []domain.Standing
	for rows.Next() {
		var s domain.Standing
		if err := rows.Scan(&s.UserID, &s.Username, &s.Points, &s.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning standing: %w", err)
		}
		standings = append(standings, s)
	}
	return standings, nil
}

// Totals retrieves every member's running total for a challenge (for cache sync)
func (r *Repository) Totals(ctx context.Context, challengeID string) (map[string]int64, error) {
	query := `SELECT user_id, total_points FROM challenge_participants WHERE challenge_id = $1`
	rows, err := r.pool.Query(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("getting totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var userID string
		var points int64
		if err := rows.Scan(&userID, &points); err != nil {
			return nil, fmt.Errorf("scanning total: %w", err)
		}
		totals[userID] = points
	}
	return totals, nil
}

// ParticipantCount returns the number of members on a challenge roster
func (r *Repository) ParticipantCount(ctx context.Context, challengeID string) (int64, error) {
	query := `SELECT COUNT(*) FROM challenge_participants WHERE challenge_id = $1`
	var count int64
	err := r.pool.QueryRow(ctx, query, challengeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting participants: %w", err)
	}
	return count, nil
}

// IsChallengeAdmin reports whether the user may administer the challenge:
// platform admins, the challenge creator, and named challenge admins qualify
func (r *Repository) IsChallengeAdmin(ctx context.Context, userID, challengeID string) (bool, error) {
	query := `
		SELECT EXISTS(SELECT 1 FROM challenges WHERE id = $1 AND created_by = $2)
			OR EXISTS(SELECT 1 FROM challenge_admins WHERE challenge_id = $1 AND user_id = $2)
			OR EXISTS(SELECT 1 FROM users WHERE id = $2 AND is_admin)
	`
	var isAdmin bool
	err := r.pool.QueryRow(ctx, query, challengeID, userID).Scan(&isAdmin)
	if err != nil {
		return false, fmt.Errorf("checking challenge admin: %w", err)
	}
	return isAdmin, nil
}

// AddChallengeAdmin grants a user admin rights on a challenge
func (r *Repository) AddChallengeAdmin(ctx context.Context, challengeID, userID string) error {
	query := `
		INSERT INTO challenge_admins (challenge_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (challenge_id, user_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, challengeID, userID)
	if err != nil {
		return fmt.Errorf("adding challenge admin: %w", err)
	}
	return nil
}

// UpsertUser creates or refreshes a platform member record
func (r *Repository) UpsertUser(ctx context.Context, user domain.User) error {
	query := `
		INSERT INTO users (id, username, is_admin, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET username = $2, is_admin = $3
	`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Username, user.IsAdmin, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// ListChallengeIDs returns the IDs of all challenges (for cache reconciliation)
func (r *Repository) ListChallengeIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM challenges`)
	if err != nil {
		return nil, fmt.Errorf("listing challenges: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning challenge id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
