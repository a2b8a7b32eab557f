package account

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizduel/backend/internal/domain"
	"github.com/quizduel/backend/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

// Service is the account collaborator: id ↔ username ↔ lifetime total score.
// Credential issuance and validation live outside this system.
type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{db: c.DB}
}

func (s *Service) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	const stmt = `SELECT user_id, username, total_score FROM users WHERE user_id = $1;`

	var u domain.User
	err := s.db.QueryRow(ctx, stmt, userID).Scan(&u.UserID, &u.Username, &u.TotalScore)
	if err == pgx.ErrNoRows {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("user not found: id=%s", userID))
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

type SearchRequest struct {
	Prefix string
	Limit  int
}

// Search returns users whose username starts with the given prefix.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]domain.User, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	const stmt = `
SELECT user_id, username, total_score
FROM users
WHERE username ILIKE $1 || '%'
ORDER BY username
LIMIT $2;`

	rows, err := s.db.Query(ctx, stmt, req.Prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.User, error) {
		var u domain.User
		err := r.Scan(&u.UserID, &u.Username, &u.TotalScore)
		return u, err
	})
}
