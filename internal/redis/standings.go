package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/minigame-engine/internal/config"
	"github.com/minigame-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// StandingsCache provides Redis-based live challenge standings.
// It is a read-optimized projection of the Postgres running totals; game
// snapshots never read it because ZSET ordering cannot honor join-order
// tie-breaks.
type StandingsCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewStandingsCache creates a new Redis standings cache
func NewStandingsCache(cfg *config.RedisConfig, logger *slog.Logger) (*StandingsCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &StandingsCache{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *StandingsCache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client
func (c *StandingsCache) Client() *redis.Client {
	return c.client
}

// standingsKey returns the Redis key for a challenge's standings sorted set
func (c *StandingsCache) standingsKey(challengeID string) string {
	return fmt.Sprintf("challenge:%s:standings", challengeID)
}

// IncrementScore adds a delta to a member's cached total and returns the new value
func (c *StandingsCache) IncrementScore(ctx context.Context, challengeID, userID string, delta int64) (int64, error) {
	key := c.standingsKey(challengeID)
	newScore, err := c.client.ZIncrBy(ctx, key, float64(delta), userID).Result()
	if err != nil {
		return 0, fmt.Errorf("incrementing cached score: %w", err)
	}
	return int64(newScore), nil
}

// ReplaceAll rewrites a challenge's cached standings from authoritative totals
func (c *StandingsCache) ReplaceAll(ctx context.Context, challengeID string, totals map[string]int64) error {
	key := c.standingsKey(challengeID)
	pipe := c.client.Pipeline()

	pipe.Del(ctx, key)
	for userID, points := range totals {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(points),
			Member: userID,
		})
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("replacing cached standings: %w", err)
	}
	return nil
}

// TopN returns the top N members by cached total (descending order)
func (c *StandingsCache) TopN(ctx context.Context, challengeID string, n int) ([]domain.Standing, error) {
	key := c.standingsKey(challengeID)
	results, err := c.client.ZRevRangeWithScores(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top standings: %w", err)
	}

	standings := make([]domain.Standing, len(results))
	for i, result := range results {
		standings[i] = domain.Standing{
			Rank:   i + 1,
			UserID: result.Member.(string),
			Points: int64(result.Score),
		}
	}
	return standings, nil
}

// MemberStanding returns a single member's cached rank and total
func (c *StandingsCache) MemberStanding(ctx context.Context, challengeID, userID string) (*domain.Standing, error) {
	key := c.standingsKey(challengeID)

	// Use pipeline to get both rank and score
	pipe := c.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, key, userID)
	scoreCmd := pipe.ZScore(ctx, key, userID)
	_, err := pipe.Exec(ctx)

	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("getting member standing: %w", err)
	}

	rank, err := rankCmd.Result()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrParticipantNotFound
		}
		return nil, fmt.Errorf("getting rank result: %w", err)
	}

	score, err := scoreCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting score result: %w", err)
	}

	return &domain.Standing{
		Rank:   int(rank) + 1, // Convert 0-indexed to 1-indexed
		UserID: userID,
		Points: int64(score),
	}, nil
}

// Count returns the number of members in a challenge's cached standings
func (c *StandingsCache) Count(ctx context.Context, challengeID string) (int64, error) {
	key := c.standingsKey(challengeID)
	count, err := c.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("counting cached standings: %w", err)
	}
	return count, nil
}
