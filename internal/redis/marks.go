package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/attendance-mainframe/internal/config"
	"github.com/attendance-mainframe/internal/domain"
	"github.com/redis/go-redis/v9"
)

const marksKey = "marks:leaderboard"

// MarksBoard keeps a Redis sorted set of members ranked by lifetime
// marks, plus a small per-member info cache for display names. Postgres
// stays authoritative; the board is rebuilt from it at startup.
type MarksBoard struct {
	client *redis.Client
	logger *slog.Logger
}

// NewMarksBoard creates a new Redis marks board
func NewMarksBoard(cfg *config.RedisConfig, logger *slog.Logger) (*MarksBoard, error) {
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

	return &MarksBoard{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (b *MarksBoard) Close() error {
	return b.client.Close()
}

// memberInfoKey returns the Redis key for a member's info cache
func (b *MarksBoard) memberInfoKey(userID int64) string {
	return fmt.Sprintf("member:%d:info", userID)
}

// SetMarks records a member's lifetime mark total on the board
func (b *MarksBoard) SetMarks(ctx context.Context, userID int64, totalMarks int) error {
	err := b.client.ZAdd(ctx, marksKey, redis.Z{
		Score:  float64(totalMarks),
		Member: strconv.FormatInt(userID, 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("setting marks: %w", err)
	}
	return nil
}

// SetMemberInfo caches a member's display name
func (b *MarksBoard) SetMemberInfo(ctx context.Context, userID int64, username string) error {
	if username == "" {
		return nil
	}
	err := b.client.HSet(ctx, b.memberInfoKey(userID), "username", username).Err()
	if err != nil {
		return fmt.Errorf("setting member info: %w", err)
	}
	return nil
}

// GetTopN returns the top N members by lifetime marks
func (b *MarksBoard) GetTopN(ctx context.Context, n int) ([]domain.MarksEntry, error) {
	results, err := b.client.ZRevRangeWithScores(ctx, marksKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	entries := make([]domain.MarksEntry, 0, len(results))
	for i, result := range results {
		userID, err := strconv.ParseInt(result.Member.(string), 10, 64)
		if err != nil {
			b.logger.Warn("skipping malformed board member", "member", result.Member)
			continue
		}

		entry := domain.MarksEntry{
			Rank:       int64(i + 1),
			UserID:     userID,
			TotalMarks: int(result.Score),
		}
		if info, err := b.client.HGetAll(ctx, b.memberInfoKey(userID)).Result(); err == nil {
			entry.Username = info["username"]
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Rebuild repopulates the board from authoritative profiles using a
// single pipeline
func (b *MarksBoard) Rebuild(ctx context.Context, profiles []domain.Profile) error {
	if len(profiles) == 0 {
		return nil
	}

	pipe := b.client.Pipeline()
	for _, profile := range profiles {
		pipe.ZAdd(ctx, marksKey, redis.Z{
			Score:  float64(profile.TotalMarks),
			Member: strconv.FormatInt(profile.UserID, 10),
		})
		if profile.Username != "" {
			pipe.HSet(ctx, b.memberInfoKey(profile.UserID), "username", profile.Username)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuilding marks board: %w", err)
	}

	b.logger.Info("marks board rebuilt", "members", len(profiles))
	return nil
}
