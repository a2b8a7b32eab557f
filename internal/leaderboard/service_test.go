package leaderboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/quizduel/backend/internal/domain"
	"github.com/quizduel/backend/internal/errors"
	"github.com/quizduel/backend/internal/event"
	"github.com/quizduel/backend/internal/leaderboard"
)

func TestService_ApplyFinalizedScores(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	err := s.ApplyFinalizedScores(ctx, domain.EventScoresFinalized{
		SessionID: "s1",
		Entries: []domain.FinalizedScore{
			{UserID: "u1", Username: "hanna", Amount: 10, NewTotal: 110, CategoryID: 1},
			{UserID: "u2", Username: "pelle", Amount: 20, NewTotal: 20, CategoryID: 1},
		},
	})
	require.NoError(t, err)

	got, err := s.GetGlobal(ctx, leaderboard.GetGlobalRequest{})
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{
		{UserID: "u1", Username: "hanna", Score: 110},
		{UserID: "u2", Username: "pelle", Score: 20},
	}, got.Entries)

	byCategory, err := s.GetCategory(ctx, leaderboard.GetCategoryRequest{CategoryID: 1})
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{
		{UserID: "u2", Username: "pelle", Score: 20},
		{UserID: "u1", Username: "hanna", Score: 10},
	}, byCategory.Entries)
}

func TestService_GlobalOverwritesCategoryAccumulates(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	// Two sessions for the same player. The global board tracks the lifetime
	// total; the category board sums the per-session amounts.
	err := s.ApplyFinalizedScores(ctx, domain.EventScoresFinalized{
		SessionID: "s1",
		Entries: []domain.FinalizedScore{
			{UserID: "u1", Username: "hanna", Amount: 30, NewTotal: 30, CategoryID: 2},
		},
	})
	require.NoError(t, err)

	err = s.ApplyFinalizedScores(ctx, domain.EventScoresFinalized{
		SessionID: "s2",
		Entries: []domain.FinalizedScore{
			{UserID: "u1", Username: "hanna", Amount: 10, NewTotal: 40, CategoryID: 2},
		},
	})
	require.NoError(t, err)

	global, err := s.GetGlobal(ctx, leaderboard.GetGlobalRequest{})
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{{UserID: "u1", Username: "hanna", Score: 40}}, global.Entries)

	byCategory, err := s.GetCategory(ctx, leaderboard.GetCategoryRequest{CategoryID: 2})
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{{UserID: "u1", Username: "hanna", Score: 40}}, byCategory.Entries)
}

// Boards are keyed by user id, so a username change updates the display name
// without splitting the entry.
func TestService_UsernameRename(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	err := s.ApplyFinalizedScores(ctx, domain.EventScoresFinalized{
		SessionID: "s1",
		Entries: []domain.FinalizedScore{
			{UserID: "u1", Username: "hanna", Amount: 30, NewTotal: 30, CategoryID: 1},
		},
	})
	require.NoError(t, err)

	err = s.ApplyFinalizedScores(ctx, domain.EventScoresFinalized{
		SessionID: "s2",
		Entries: []domain.FinalizedScore{
			{UserID: "u1", Username: "johanna", Amount: 10, NewTotal: 40, CategoryID: 1},
		},
	})
	require.NoError(t, err)

	global, err := s.GetGlobal(ctx, leaderboard.GetGlobalRequest{})
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{{UserID: "u1", Username: "johanna", Score: 40}}, global.Entries)

	byCategory, err := s.GetCategory(ctx, leaderboard.GetCategoryRequest{CategoryID: 1})
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{{UserID: "u1", Username: "johanna", Score: 40}}, byCategory.Entries)
}

func TestService_EmptyBoard(t *testing.T) {
	s := makeService(t)

	_, err := s.GetGlobal(context.Background(), leaderboard.GetGlobalRequest{})
	require.True(t, errors.Is(err, errors.CodeNotFound))

	_, err = s.GetCategory(context.Background(), leaderboard.GetCategoryRequest{CategoryID: 9})
	require.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestService_TopN(t *testing.T) {
	s := makeService(t)
	ctx := context.Background()

	err := s.ApplyFinalizedScores(ctx, domain.EventScoresFinalized{
		SessionID: "s1",
		Entries: []domain.FinalizedScore{
			{UserID: "u1", Username: "hanna", Amount: 30, NewTotal: 30, CategoryID: 1},
			{UserID: "u2", Username: "pelle", Amount: 20, NewTotal: 20, CategoryID: 1},
			{UserID: "u3", Username: "ove", Amount: 10, NewTotal: 10, CategoryID: 1},
		},
	})
	require.NoError(t, err)

	got, err := s.GetGlobal(ctx, leaderboard.GetGlobalRequest{TopN: 2})
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{
		{UserID: "u1", Username: "hanna", Score: 30},
		{UserID: "u2", Username: "pelle", Score: 20},
	}, got.Entries)
}

// The service feeds itself from score.finalized events published on the bus.
func TestService_SubscribesToFinalizedScores(t *testing.T) {
	eb := event.NewBus()
	s := makeService(t, withEventBus(eb))

	eb.Publish(context.Background(), domain.EventScoresFinalized{
		SessionID: "s1",
		Entries: []domain.FinalizedScore{
			{UserID: "u1", Username: "hanna", Amount: 10, NewTotal: 10, CategoryID: 1},
		},
	})
	eb.Stop()

	got, err := s.GetGlobal(context.Background(), leaderboard.GetGlobalRequest{})
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{{UserID: "u1", Username: "hanna", Score: 10}}, got.Entries)
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Redis:    rc,
		Prefix:   "quizduel",
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}
