package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizduel/backend/internal/api"
	"github.com/quizduel/backend/internal/domain"
	"github.com/quizduel/backend/internal/errors"
	"github.com/quizduel/backend/internal/event"
	"github.com/quizduel/backend/internal/game"
	"github.com/quizduel/backend/internal/gateway"
)

type staticVerifier map[string]string

func (v staticVerifier) Verify(_ context.Context, token string) (string, error) {
	userID, ok := v[token]
	if !ok {
		return "", errors.New(errors.CodeUnauthenticated)
	}
	return userID, nil
}

type stubBank struct {
	questions map[int64]*domain.Question
	selection []int64
}

func (b *stubBank) CategoryExists(_ context.Context, categoryID int64) (bool, error) {
	return categoryID == 1, nil
}

func (b *stubBank) GetQuestion(_ context.Context, questionID int64) (*domain.Question, error) {
	q, ok := b.questions[questionID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("question not found: id=%d", questionID))
	}
	return q, nil
}

func (b *stubBank) GetRandomQuestions(_ context.Context, _ int64, _ domain.Difficulty, count int) ([]domain.Question, error) {
	var qs []domain.Question
	for _, id := range b.selection {
		qs = append(qs, *b.questions[id])
	}
	if len(qs) > count {
		qs = qs[:count]
	}
	return qs, nil
}

type stubUsers map[string]string

func (u stubUsers) GetUser(_ context.Context, userID string) (*domain.User, error) {
	name, ok := u[userID]
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("user not found: id=%s", userID))
	}
	return &domain.User{UserID: userID, Username: name}, nil
}

type noopLedger struct{}

func (noopLedger) FinalizeSession(context.Context, *domain.Session) error { return nil }

func makeRouter(t *testing.T) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	r := gin.New()

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	bank := &stubBank{
		questions: map[int64]*domain.Question{
			3: {QuestionID: 3, Text: "Chemical symbol for water?", CorrectAnswer: "H2O", Difficulty: domain.DifficultyEasy, CategoryID: 1},
			4: {QuestionID: 4, Text: "Planet closest to the sun?", CorrectAnswer: "Mercury", Difficulty: domain.DifficultyEasy, CategoryID: 1},
		},
		selection: []int64{3, 4},
	}

	g := game.NewService(game.Config{
		Store:    game.NewMemoryStore(),
		Bank:     bank,
		Users:    stubUsers{"host": "hanna", "player": "pelle"},
		Ledger:   noopLedger{},
		EventBus: eb,
	})

	api.New(api.Config{
		Router:  r,
		Auth:    staticVerifier{"host-token": "host", "player-token": "player"},
		Game:    g,
		Gateway: gateway.New(gateway.Config{EventBus: eb}),
	})

	return r
}

func do(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestAPI_Authentication(t *testing.T) {
	r := makeRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/sessions", "", gin.H{"category_id": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "missing token")

	w = do(t, r, http.MethodPost, "/api/v1/sessions", "bogus", gin.H{"category_id": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "unknown token")
}

func TestAPI_SessionFlow(t *testing.T) {
	r := makeRouter(t)

	// Host creates a session.
	w := do(t, r, http.MethodPost, "/api/v1/sessions", "host-token", gin.H{"category_id": 1, "difficulty": "easy"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	sessionID, _ := created["session_id"].(string)
	require.NotEmpty(t, sessionID)

	base := "/api/v1/sessions/" + sessionID

	// Second player joins.
	w = do(t, r, http.MethodPost, base+"/join", "player-token", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	joined := decode(t, w)
	assert.Len(t, joined["players"], 2)

	// Only the host may start.
	w = do(t, r, http.MethodPost, base+"/start", "player-token", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Starting serves the first question to the group.
	w = do(t, r, http.MethodPost, base+"/start", "host-token", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The first question is live: the player answers it.
	w = do(t, r, http.MethodPost, base+"/answers", "player-token", gin.H{"question_id": 3, "answer": "H2O"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	answered := decode(t, w)
	assert.Equal(t, true, answered["is_correct"])
	assert.Equal(t, float64(10), answered["current_score"])

	// Answering the same question again is rejected.
	w = do(t, r, http.MethodPost, base+"/answers", "player-token", gin.H{"question_id": 3, "answer": "H2O"})
	assert.Equal(t, http.StatusConflict, w.Code)

	// Host advances to the second and last question.
	w = do(t, r, http.MethodPost, base+"/advance", "host-token", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	advanced := decode(t, w)
	assert.Equal(t, false, advanced["game_over"])
	assert.Equal(t, float64(2), advanced["number"])
	assert.Equal(t, true, advanced["is_last"])

	// Advancing past the end finishes the game.
	w = do(t, r, http.MethodPost, base+"/advance", "host-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["game_over"])

	// The session is now read-only.
	w = do(t, r, http.MethodPost, base+"/answers", "player-token", gin.H{"question_id": 4, "answer": "Mercury"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodGet, base, "host-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	final := decode(t, w)
	assert.Equal(t, false, final["active"])
	assert.NotNil(t, final["ended_at"])
}

func TestAPI_EndSession(t *testing.T) {
	r := makeRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/sessions", "host-token", gin.H{"category_id": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	sessionID := decode(t, w)["session_id"].(string)

	base := "/api/v1/sessions/" + sessionID

	w = do(t, r, http.MethodPost, base+"/end", "player-token", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodPost, base+"/end", "host-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["active"])

	// Ended sessions cannot be joined.
	w = do(t, r, http.MethodPost, base+"/join", "player-token", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_StreamRequiresMembership(t *testing.T) {
	r := makeRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/sessions", "host-token", gin.H{"category_id": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	sessionID := decode(t, w)["session_id"].(string)

	w = do(t, r, http.MethodGet, "/api/v1/sessions/"+sessionID+"/events", "player-token", nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "non-members cannot stream")

	w = do(t, r, http.MethodGet, "/api/v1/sessions/missing/events", "player-token", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_BadRequests(t *testing.T) {
	r := makeRouter(t)

	w := do(t, r, http.MethodPost, "/api/v1/sessions", "host-token", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "category_id is required")

	w = do(t, r, http.MethodPost, "/api/v1/sessions", "host-token", gin.H{"category_id": 42})
	assert.Equal(t, http.StatusNotFound, w.Code, "unknown category")

	w = do(t, r, http.MethodPost, "/api/v1/sessions/abc/answers", "host-token", gin.H{"question_id": 3})
	assert.Equal(t, http.StatusBadRequest, w.Code, "answer is required")
}
