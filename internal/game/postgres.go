package game

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizduel/backend/internal/domain"
	"github.com/quizduel/backend/internal/errors"
)

const codeUniqueViolation = "23505"

// PGStore persists session aggregates in postgres. The question order is an
// explicit bigint array written once at start, not a blob re-decoded on every
// read.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) CreateSession(ctx context.Context, ss *domain.Session) (err error) {
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
		insSessionStmt = `
INSERT INTO sessions (session_id, host_id, category_id, difficulty, created_at, active, question_order, current_index)
VALUES ($1, $2, $3, $4, $5, TRUE, '{}', 0);`
		insPlayerStmt = `
INSERT INTO session_players (session_id, user_id, username, score, is_host, joined_at)
VALUES ($1, $2, $3, 0, $4, $5);`
	)

	_, err = tx.Exec(ctx, insSessionStmt, ss.SessionID, ss.HostID, ss.CategoryID, ss.Difficulty, ss.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, p := range ss.Players {
		_, err = tx.Exec(ctx, insPlayerStmt, ss.SessionID, p.UserID, p.Username, p.IsHost, p.JoinedAt)
		if err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PGStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	const sessionStmt = `
SELECT session_id, host_id, category_id, difficulty, created_at, ended_at, active, question_order, current_index
FROM sessions
WHERE session_id = $1;`

	ss := &domain.Session{Players: make(map[string]*domain.Player)}
	err := s.db.QueryRow(ctx, sessionStmt, sessionID).Scan(
		&ss.SessionID, &ss.HostID, &ss.CategoryID, &ss.Difficulty,
		&ss.CreatedAt, &ss.EndedAt, &ss.Active, &ss.QuestionOrder, &ss.CurrentIndex,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: id=%s", sessionID))
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	const playersStmt = `
SELECT user_id, username, score, is_host, joined_at
FROM session_players
WHERE session_id = $1;`

	rows, err := s.db.Query(ctx, playersStmt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select players: %w", err)
	}

	players, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (*domain.Player, error) {
		p := new(domain.Player)
		err := r.Scan(&p.UserID, &p.Username, &p.Score, &p.IsHost, &p.JoinedAt)
		return p, err
	})
	if err != nil {
		return nil, err
	}

	for _, p := range players {
		ss.Players[p.UserID] = p
	}

	return ss, nil
}

func (s *PGStore) AddPlayer(ctx context.Context, sessionID string, p *domain.Player) error {
	const stmt = `
INSERT INTO session_players (session_id, user_id, username, score, is_host, joined_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (session_id, user_id) DO NOTHING;`

	_, err := s.db.Exec(ctx, stmt, sessionID, p.UserID, p.Username, p.Score, p.IsHost, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

func (s *PGStore) SetQuestionOrder(ctx context.Context, sessionID string, order []int64) error {
	const stmt = `
UPDATE sessions
SET question_order = $2, current_index = 0
WHERE session_id = $1 AND cardinality(question_order) = 0;`

	ct, err := s.db.Exec(ctx, stmt, sessionID, order)
	if err != nil {
		return fmt.Errorf("set question order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("question order already assigned: session=%s", sessionID))
	}
	return nil
}

func (s *PGStore) SetCurrentIndex(ctx context.Context, sessionID string, index int) error {
	// The index only moves forward.
	const stmt = `
UPDATE sessions
SET current_index = $2
WHERE session_id = $1 AND current_index < $2;`

	ct, err := s.db.Exec(ctx, stmt, sessionID, index)
	if err != nil {
		return fmt.Errorf("set current index: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("stale index update: session=%s index=%d", sessionID, index))
	}
	return nil
}

func (s *PGStore) RecordAnswer(ctx context.Context, rec *domain.AnswerRecord, newScore int) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const insAnswerStmt = `
INSERT INTO session_answers (session_id, user_id, question_id, submitted_text, is_correct, points_awarded, answered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err = tx.Exec(ctx, insAnswerStmt,
		rec.SessionID, rec.UserID, rec.QuestionID, rec.SubmittedText, rec.IsCorrect, rec.PointsAwarded, rec.AnsweredAt)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists, errors.WithCause(err))
	}
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}

	const updScoreStmt = `
UPDATE session_players SET score = $3
WHERE session_id = $1 AND user_id = $2;`

	_, err = tx.Exec(ctx, updScoreStmt, rec.SessionID, rec.UserID, newScore)
	if err != nil {
		return fmt.Errorf("update score: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *PGStore) MarkEnded(ctx context.Context, sessionID string, endedAt time.Time) (bool, error) {
	const stmt = `
UPDATE sessions
SET active = FALSE, ended_at = $2
WHERE session_id = $1 AND active;`

	ct, err := s.db.Exec(ctx, stmt, sessionID, endedAt)
	if err != nil {
		return false, fmt.Errorf("mark ended: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
