package quiz

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quizduel/backend/internal/domain"
	"github.com/quizduel/backend/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
	// Rand drives question selection. Seed it for reproducible session starts;
	// when nil a time-seeded source is used.
	Rand *rand.Rand
}

type Service struct {
	db *pgxpool.Pool

	mu  sync.Mutex
	rng *rand.Rand
}

func NewService(c Config) *Service {
	rng := c.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Service{
		db:  c.DB,
		rng: rng,
	}
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	const stmt = `SELECT category_id, name, description FROM categories ORDER BY category_id;`

	rows, err := s.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Category, error) {
		var c domain.Category
		err := r.Scan(&c.CategoryID, &c.Name, &c.Description)
		return c, err
	})
}

func (s *Service) CategoryExists(ctx context.Context, categoryID int64) (bool, error) {
	const stmt = `SELECT EXISTS (SELECT 1 FROM categories WHERE category_id = $1);`

	var exists bool
	if err := s.db.QueryRow(ctx, stmt, categoryID).Scan(&exists); err != nil {
		return false, fmt.Errorf("category exists: %w", err)
	}

	return exists, nil
}

func (s *Service) GetQuestion(ctx context.Context, questionID int64) (*domain.Question, error) {
	const stmt = `
SELECT question_id, text, options, correct_answer, difficulty, category_id
FROM questions
WHERE question_id = $1;`

	var q domain.Question
	err := s.db.QueryRow(ctx, stmt, questionID).
		Scan(&q.QuestionID, &q.Text, &q.Options, &q.CorrectAnswer, &q.Difficulty, &q.CategoryID)
	if err == pgx.ErrNoRows {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("question not found: id=%d", questionID))
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}

	return &q, nil
}

// GetRandomQuestions returns up to count questions for the category and
// difficulty in a shuffled order. Correct answers stay inside the returned
// structs and must be stripped before anything reaches a client.
func (s *Service) GetRandomQuestions(ctx context.Context, categoryID int64, difficulty domain.Difficulty, count int) ([]domain.Question, error) {
	const stmt = `
SELECT question_id, text, options, correct_answer, difficulty, category_id
FROM questions
WHERE category_id = $1 AND difficulty = $2;`

	rows, err := s.db.Query(ctx, stmt, categoryID, difficulty)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}

	qs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		err := r.Scan(&q.QuestionID, &q.Text, &q.Options, &q.CorrectAnswer, &q.Difficulty, &q.CategoryID)
		return q, err
	})
	if err != nil {
		return nil, err
	}

	s.shuffle(qs)
	if len(qs) > count {
		qs = qs[:count]
	}

	return qs, nil
}

func (s *Service) shuffle(qs []domain.Question) {
	// rand.Rand is not safe for concurrent use.
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rng.Shuffle(len(qs), func(i, j int) {
		qs[i], qs[j] = qs[j], qs[i]
	})
}

// CheckAnswer compares a submission against the stored correct answer,
// case-insensitively.
func CheckAnswer(q *domain.Question, submitted string) bool {
	return strings.EqualFold(q.CorrectAnswer, strings.TrimSpace(submitted))
}

// Points awarded for a correct answer at the question's difficulty tier.
func Points(d domain.Difficulty) int {
	switch d {
	case domain.DifficultyMedium:
		return 20
	case domain.DifficultyHard:
		return 30
	default:
		return 10
	}
}
