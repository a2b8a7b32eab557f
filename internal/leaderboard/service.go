package leaderboard

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/quizduel/backend/internal/domain"
	"github.com/quizduel/backend/internal/errors"
	"github.com/quizduel/backend/internal/event"
)

const defaultTopN = 100

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
}

// Service keeps the global and per-category leaderboards in redis sorted
// sets, fed from the finalized scores the ledger publishes at session end.
type Service struct {
	eb     *event.Bus
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	s.eb.Subscribe(domain.EventNameScoresFinalized, func(ctx context.Context, e event.Event) error {
		return s.ApplyFinalizedScores(ctx, e.(domain.EventScoresFinalized))
	})

	return s
}

// ApplyFinalizedScores overwrites each player's global total and bumps their
// per-category total. Boards are keyed by user id; usernames are kept in a
// side hash so a rename never splits or collides board entries.
func (s *Service) ApplyFinalizedScores(ctx context.Context, e domain.EventScoresFinalized) error {
	for _, entry := range e.Entries {
		if err := s.redis.HSet(ctx, s.usernamesKey(), entry.UserID, entry.Username).Err(); err != nil {
			return fmt.Errorf("update username: %w", err)
		}

		if err := s.redis.ZAdd(ctx, s.globalKey(), redis.Z{
			Score:  float64(entry.NewTotal),
			Member: entry.UserID,
		}).Err(); err != nil {
			return fmt.Errorf("update global leaderboard: %w", err)
		}

		if err := s.redis.ZIncrBy(ctx, s.categoryKey(entry.CategoryID), float64(entry.Amount), entry.UserID).Err(); err != nil {
			return fmt.Errorf("update category leaderboard: %w", err)
		}
	}

	return nil
}

type GetGlobalRequest struct {
	TopN int
}

// GetGlobal returns the lifetime-total leaderboard, best first.
func (s *Service) GetGlobal(ctx context.Context, req GetGlobalRequest) (*domain.Leaderboard, error) {
	return s.board(ctx, s.globalKey(), req.TopN)
}

type GetCategoryRequest struct {
	CategoryID int64
	TopN       int
}

// GetCategory returns the accumulated leaderboard for one category.
func (s *Service) GetCategory(ctx context.Context, req GetCategoryRequest) (*domain.Leaderboard, error) {
	return s.board(ctx, s.categoryKey(req.CategoryID), req.TopN)
}

func (s *Service) board(ctx context.Context, key string, topN int) (*domain.Leaderboard, error) {
	if topN <= 0 {
		topN = defaultTopN
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, key, 0, int64(topN)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard is empty: %s", key))
	}

	ids := make([]string, 0, len(res))
	for _, z := range res {
		ids = append(ids, z.Member.(string))
	}

	names, err := s.redis.HMGet(ctx, s.usernamesKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("resolve usernames: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for i, z := range res {
		username, _ := names[i].(string)
		entries = append(entries, domain.LeaderboardEntry{
			UserID:   ids[i],
			Username: username,
			Score:    int(z.Score),
		})
	}

	return &domain.Leaderboard{
		Board:   key,
		Entries: entries,
	}, nil
}

func (s *Service) usernamesKey() string {
	return fmt.Sprintf("%s:usernames", s.prefix)
}

func (s *Service) globalKey() string {
	return fmt.Sprintf("%s:global:leaderboard", s.prefix)
}

func (s *Service) categoryKey(categoryID int64) string {
	return fmt.Sprintf("%s:category:%d:leaderboard", s.prefix, categoryID)
}
