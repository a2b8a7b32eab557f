package score

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizduel/backend/internal/domain"
	"github.com/quizduel/backend/internal/event"
)

type Config struct {
	EventBus *event.Bus
	DB       *pgxpool.Pool
}

// Service is the score ledger. Its single responsibility runs at session end:
// commit every player's in-session score to their lifetime total and append
// one immutable history entry per player. The orchestrator's end transition
// guarantees it runs at most once per session.
type Service struct {
	eb *event.Bus
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		eb: c.EventBus,
		db: c.DB,
	}
}

// FinalizeSession commits all players' scores in one transaction and
// publishes the finalized entries for leaderboard consumption.
func (s *Service) FinalizeSession(ctx context.Context, ss *domain.Session) (err error) {
	if ss.EndedAt == nil {
		return fmt.Errorf("finalize: session %s has no end time", ss.SessionID)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const (
		updTotalStmt = `
UPDATE users SET total_score = total_score + $2
WHERE user_id = $1
RETURNING total_score;`
		insEntryStmt = `
INSERT INTO score_entries (user_id, amount, category_id, difficulty, achieved_at)
VALUES ($1, $2, $3, $4, $5);`
	)

	finalized := make([]domain.FinalizedScore, 0, len(ss.Players))
	for _, p := range ss.Players {
		var total int
		err = tx.QueryRow(ctx, updTotalStmt, p.UserID, p.Score).Scan(&total)
		if err != nil {
			return fmt.Errorf("update total score for user %s: %w", p.UserID, err)
		}

		_, err = tx.Exec(ctx, insEntryStmt, p.UserID, p.Score, ss.CategoryID, ss.Difficulty, *ss.EndedAt)
		if err != nil {
			return fmt.Errorf("insert score entry for user %s: %w", p.UserID, err)
		}

		finalized = append(finalized, domain.FinalizedScore{
			UserID:     p.UserID,
			Username:   p.Username,
			Amount:     p.Score,
			NewTotal:   total,
			CategoryID: ss.CategoryID,
			Difficulty: ss.Difficulty,
		})
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}

	s.eb.Publish(ctx, domain.EventScoresFinalized{
		SessionID: ss.SessionID,
		Entries:   finalized,
	})

	return nil
}

type ListEntriesRequest struct {
	UserID string
}

// ListEntries returns a user's score history, newest first.
func (s *Service) ListEntries(ctx context.Context, req ListEntriesRequest) ([]domain.ScoreEntry, error) {
	const stmt = `
SELECT user_id, amount, category_id, difficulty, achieved_at
FROM score_entries
WHERE user_id = $1
ORDER BY achieved_at DESC;`

	rows, err := s.db.Query(ctx, stmt, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("list score entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.ScoreEntry
	for rows.Next() {
		var e domain.ScoreEntry
		if err := rows.Scan(&e.UserID, &e.Amount, &e.CategoryID, &e.Difficulty, &e.AchievedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
