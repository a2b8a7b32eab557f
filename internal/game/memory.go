package game

import (
	"context"
	"sync"
	"time"

	"github.com/quizduel/backend/internal/domain"
	"github.com/quizduel/backend/internal/errors"
)

// MemoryStore is a map-backed Store. It backs the orchestrator tests and is
// good enough for single-process development runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	answers  map[answerKey]*domain.AnswerRecord
}

type answerKey struct {
	sessionID  string
	userID     string
	questionID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.Session),
		answers:  make(map[answerKey]*domain.AnswerRecord),
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.SessionID]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("session already exists: id=%s", s.SessionID))
	}
	m.sessions[s.SessionID] = s.Clone()
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: id=%s", sessionID))
	}
	return s.Clone(), nil
}

func (m *MemoryStore) AddPlayer(_ context.Context, sessionID string, p *domain.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: id=%s", sessionID))
	}
	cp := *p
	s.Players[cp.UserID] = &cp
	return nil
}

func (m *MemoryStore) SetQuestionOrder(_ context.Context, sessionID string, order []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: id=%s", sessionID))
	}
	s.QuestionOrder = append([]int64(nil), order...)
	s.CurrentIndex = 0
	return nil
}

func (m *MemoryStore) SetCurrentIndex(_ context.Context, sessionID string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: id=%s", sessionID))
	}
	s.CurrentIndex = index
	return nil
}

func (m *MemoryStore) RecordAnswer(_ context.Context, rec *domain.AnswerRecord, newScore int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := answerKey{rec.SessionID, rec.UserID, rec.QuestionID}
	if _, ok := m.answers[key]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("answer already recorded: session=%s user=%s question=%d", rec.SessionID, rec.UserID, rec.QuestionID))
	}

	s, ok := m.sessions[rec.SessionID]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: id=%s", rec.SessionID))
	}
	p, ok := s.Players[rec.UserID]
	if !ok {
		return errors.New(errors.CodeNotFound,
			errors.WithMessagef("player not found: session=%s user=%s", rec.SessionID, rec.UserID))
	}

	r := *rec
	m.answers[key] = &r
	p.Score = newScore
	return nil
}

func (m *MemoryStore) MarkEnded(_ context.Context, sessionID string, endedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return false, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not found: id=%s", sessionID))
	}
	if !s.Active {
		return false, nil
	}
	s.Active = false
	t := endedAt
	s.EndedAt = &t
	return true, nil
}

// Answers returns the recorded answers for a session, for tests and reads.
func (m *MemoryStore) Answers(sessionID string) []domain.AnswerRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var recs []domain.AnswerRecord
	for key, r := range m.answers {
		if key.sessionID == sessionID {
			recs = append(recs, *r)
		}
	}
	return recs
}
