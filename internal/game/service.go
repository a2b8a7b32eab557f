package game

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/quizduel/backend/internal/domain"
	"github.com/quizduel/backend/internal/errors"
	"github.com/quizduel/backend/internal/event"
	"github.com/quizduel/backend/internal/quiz"
)

const defaultQuestionCount = 10

// Store is the durable side of a session aggregate. Implementations must
// enforce the (session, player, question) uniqueness of answer records and a
// single active→ended transition.
type Store interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	AddPlayer(ctx context.Context, sessionID string, p *domain.Player) error
	SetQuestionOrder(ctx context.Context, sessionID string, order []int64) error
	SetCurrentIndex(ctx context.Context, sessionID string, index int) error
	// RecordAnswer appends the record and installs the player's new cumulative
	// score in one atomic write. A duplicate triple fails with CodeAlreadyExists.
	RecordAnswer(ctx context.Context, rec *domain.AnswerRecord, newScore int) error
	// MarkEnded flips active to false once. It reports false when the session
	// was already ended, so finalization never runs twice.
	MarkEnded(ctx context.Context, sessionID string, endedAt time.Time) (bool, error)
}

// QuestionBank serves the question catalog. Correct answers never leave the
// orchestrator.
type QuestionBank interface {
	CategoryExists(ctx context.Context, categoryID int64) (bool, error)
	GetQuestion(ctx context.Context, questionID int64) (*domain.Question, error)
	GetRandomQuestions(ctx context.Context, categoryID int64, difficulty domain.Difficulty, count int) ([]domain.Question, error)
}

// Users resolves player identity from the account collaborator.
type Users interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// Ledger commits in-session scores at end of game.
type Ledger interface {
	FinalizeSession(ctx context.Context, s *domain.Session) error
}

type Config struct {
	Store         Store
	Bank          QuestionBank
	Users         Users
	Ledger        Ledger
	EventBus      *event.Bus
	QuestionCount int
}

// Service is the per-session state machine: lifecycle, question sequencing,
// answer scoring and host-authority enforcement. All mutations of one session
// are serialized by a per-session lock; state is persisted before any event
// is published, so subscribers never observe uncommitted state.
type Service struct {
	store Store
	bank  QuestionBank
	users Users
	ledg  Ledger
	eb    *event.Bus
	count int

	locks *sessionLocks
}

func NewService(c Config) *Service {
	count := c.QuestionCount
	if count <= 0 {
		count = defaultQuestionCount
	}

	return &Service{
		store: c.Store,
		bank:  c.Bank,
		users: c.Users,
		ledg:  c.Ledger,
		eb:    c.EventBus,
		count: count,
		locks: newSessionLocks(),
	}
}

type CreateSessionRequest struct {
	HostID     string
	CategoryID int64
	Difficulty domain.Difficulty
}

// CreateSession creates a new session with the host as its sole, host-flagged
// player.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*domain.Session, error) {
	host, err := s.users.GetUser(ctx, req.HostID)
	if err != nil {
		return nil, err
	}

	ok, err := s.bank.CategoryExists(ctx, req.CategoryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("category not found: id=%d", req.CategoryID))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session ID: %w", err)
	}

	now := time.Now().UTC()
	ss := &domain.Session{
		SessionID:  id.String(),
		HostID:     host.UserID,
		CategoryID: req.CategoryID,
		Difficulty: req.Difficulty,
		CreatedAt:  now,
		Active:     true,
		Players: map[string]*domain.Player{
			host.UserID: {
				UserID:   host.UserID,
				Username: host.Username,
				IsHost:   true,
				JoinedAt: now,
			},
		},
	}

	if err := s.store.CreateSession(ctx, ss); err != nil {
		return nil, err
	}

	return ss, nil
}

type JoinSessionRequest struct {
	SessionID string
	UserID    string
}

// JoinSession adds the user as a non-host player. Joining a session you are
// already in succeeds silently with the current details.
func (s *Service) JoinSession(ctx context.Context, req JoinSessionRequest) (*domain.Session, error) {
	mu := s.locks.get(req.SessionID)
	mu.Lock()
	defer mu.Unlock()

	ss, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if ss.Ended() {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("session not active: id=%s", req.SessionID))
	}

	if _, ok := ss.Players[req.UserID]; ok {
		return ss, nil
	}

	user, err := s.users.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	next := ss.Clone()
	p := &domain.Player{
		UserID:   user.UserID,
		Username: user.Username,
		JoinedAt: time.Now().UTC(),
	}
	next.Players[p.UserID] = p

	if err := s.store.AddPlayer(ctx, req.SessionID, p); err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventPlayerJoined{
		SessionID: req.SessionID,
		UserID:    p.UserID,
		Roster:    roster(next),
		Details:   *next,
	})

	return next, nil
}

type StartSessionRequest struct {
	SessionID string
	ActorID   string
}

// StartSession assigns the immutable question order. Host only, once only.
// Delivery of the first question happens through the regular Advance flow.
func (s *Service) StartSession(ctx context.Context, req StartSessionRequest) (*domain.Session, error) {
	mu := s.locks.get(req.SessionID)
	mu.Lock()
	defer mu.Unlock()

	ss, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if err := requireHost(ss, req.ActorID); err != nil {
		return nil, err
	}
	if ss.Ended() {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session already ended: id=%s", req.SessionID))
	}
	if ss.Started() {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session already started: id=%s", req.SessionID))
	}

	qs, err := s.bank.GetRandomQuestions(ctx, ss.CategoryID, ss.Difficulty, s.count)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, errors.New(errors.CodeUnprocessable,
			errors.WithMessagef("no questions for category=%d difficulty=%s", ss.CategoryID, ss.Difficulty))
	}

	order := make([]int64, 0, len(qs))
	for _, q := range qs {
		order = append(order, q.QuestionID)
	}

	if err := s.store.SetQuestionOrder(ctx, req.SessionID, order); err != nil {
		return nil, err
	}

	next := ss.Clone()
	next.QuestionOrder = order
	next.CurrentIndex = 0

	s.eb.Publish(ctx, domain.EventGameStarted{SessionID: req.SessionID})

	return next, nil
}

type AdvanceQuestionRequest struct {
	SessionID string
	ActorID   string
}

type AdvanceQuestionResponse struct {
	// Question is nil when the order is exhausted and the session has ended.
	Question *domain.QuestionView
	Number   int
	IsLast   bool
	GameOver bool
}

// AdvanceQuestion serves the question at the current index and moves the
// index forward. Once the order is exhausted it ends the session and signals
// game over instead.
func (s *Service) AdvanceQuestion(ctx context.Context, req AdvanceQuestionRequest) (*AdvanceQuestionResponse, error) {
	mu := s.locks.get(req.SessionID)
	mu.Lock()
	defer mu.Unlock()

	ss, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if err := requireHost(ss, req.ActorID); err != nil {
		return nil, err
	}
	if ss.Ended() {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session already ended: id=%s", req.SessionID))
	}
	if !ss.Started() {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session not started: id=%s", req.SessionID))
	}

	if ss.CurrentIndex >= len(ss.QuestionOrder) {
		if err := s.endLocked(ctx, ss); err != nil {
			return nil, err
		}
		return &AdvanceQuestionResponse{GameOver: true}, nil
	}

	qid := ss.QuestionOrder[ss.CurrentIndex]
	q, err := s.bank.GetQuestion(ctx, qid)
	if err != nil {
		return nil, err
	}

	nextIndex := ss.CurrentIndex + 1
	if err := s.store.SetCurrentIndex(ctx, req.SessionID, nextIndex); err != nil {
		return nil, err
	}

	view := q.Stripped()
	resp := &AdvanceQuestionResponse{
		Question: &view,
		Number:   nextIndex,
		IsLast:   nextIndex == len(ss.QuestionOrder),
	}

	s.eb.Publish(ctx, domain.EventQuestionAdvanced{
		SessionID: req.SessionID,
		Question:  view,
		Number:    resp.Number,
		IsLast:    resp.IsLast,
	})

	return resp, nil
}

type SubmitAnswerRequest struct {
	SessionID     string
	UserID        string
	QuestionID    int64
	SubmittedText string
}

type SubmitAnswerResponse struct {
	IsCorrect     bool
	PointsAwarded int
	CurrentScore  int
}

// SubmitAnswer scores a submission against the question currently being
// played. A second submission for the same question fails CodeAlreadyExists
// and changes nothing.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	mu := s.locks.get(req.SessionID)
	mu.Lock()
	defer mu.Unlock()

	ss, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if ss.Ended() {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("session already ended: id=%s", req.SessionID))
	}

	player, ok := ss.Players[req.UserID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("player not in session: session=%s user=%s", req.SessionID, req.UserID))
	}

	active, ok := ss.ActiveQuestion()
	if !ok || active != req.QuestionID {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("question %d is not the current question: session=%s", req.QuestionID, req.SessionID))
	}

	q, err := s.bank.GetQuestion(ctx, req.QuestionID)
	if err != nil {
		return nil, err
	}

	correct := quiz.CheckAnswer(q, req.SubmittedText)
	points := 0
	if correct {
		points = quiz.Points(q.Difficulty)
	}

	rec := &domain.AnswerRecord{
		SessionID:     req.SessionID,
		UserID:        req.UserID,
		QuestionID:    req.QuestionID,
		SubmittedText: req.SubmittedText,
		IsCorrect:     correct,
		PointsAwarded: points,
		AnsweredAt:    time.Now().UTC(),
	}

	newScore := player.Score + points
	if err := s.store.RecordAnswer(ctx, rec, newScore); err != nil {
		if e := errors.Convert(err); e.Code == errors.CodeAlreadyExists {
			return nil, errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("answer already submitted: session=%s user=%s question=%d", req.SessionID, req.UserID, req.QuestionID),
				errors.WithCause(e.Unwrap()),
			)
		}
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventAnswerScored{
		SessionID:     req.SessionID,
		UserID:        req.UserID,
		Username:      player.Username,
		IsCorrect:     correct,
		PointsAwarded: points,
		CurrentScore:  newScore,
	})

	return &SubmitAnswerResponse{
		IsCorrect:     correct,
		PointsAwarded: points,
		CurrentScore:  newScore,
	}, nil
}

type EndSessionRequest struct {
	SessionID string
	ActorID   string
}

// EndSession ends the session explicitly. Host only; ending an already ended
// session is a silent no-op.
func (s *Service) EndSession(ctx context.Context, req EndSessionRequest) (*domain.Session, error) {
	mu := s.locks.get(req.SessionID)
	mu.Lock()
	defer mu.Unlock()

	ss, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if err := requireHost(ss, req.ActorID); err != nil {
		return nil, err
	}
	if ss.Ended() {
		return ss, nil
	}

	if err := s.endLocked(ctx, ss); err != nil {
		return nil, err
	}

	return s.store.GetSession(ctx, req.SessionID)
}

// endLocked performs the terminal transition. Caller holds the session lock
// and has verified the session is still active.
func (s *Service) endLocked(ctx context.Context, ss *domain.Session) error {
	endedAt := time.Now().UTC()
	applied, err := s.store.MarkEnded(ctx, ss.SessionID, endedAt)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	ended := ss.Clone()
	ended.Active = false
	ended.EndedAt = &endedAt

	if err := s.ledg.FinalizeSession(ctx, ended); err != nil {
		return fmt.Errorf("finalize session %s: %w", ss.SessionID, err)
	}

	s.eb.Publish(ctx, domain.EventGameOver{SessionID: ss.SessionID})
	s.eb.Publish(ctx, domain.EventSessionEnded{Session: *ended})

	// A caller blocked on the old mutex may run concurrently with one that
	// obtains a fresh mutex after this release. Ended is terminal and every
	// operation re-reads the session from the store, so both can only observe
	// the ended state.
	s.locks.release(ss.SessionID)
	return nil
}

type GetSessionRequest struct {
	SessionID string
}

func (s *Service) GetSession(ctx context.Context, req GetSessionRequest) (*domain.Session, error) {
	return s.store.GetSession(ctx, req.SessionID)
}

func requireHost(ss *domain.Session, actorID string) error {
	if actorID == "" {
		return errors.New(errors.CodeUnauthenticated)
	}
	if ss.HostID != actorID {
		return errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("only the host can perform this action: session=%s", ss.SessionID))
	}
	return nil
}

func roster(ss *domain.Session) []domain.Player {
	ps := make([]domain.Player, 0, len(ss.Players))
	for _, p := range ss.Players {
		ps = append(ps, *p)
	}
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].JoinedAt.Before(ps[j].JoinedAt)
		}
		return ps[i].UserID < ps[j].UserID
	})
	return ps
}
