package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quizduel/backend/internal/domain"
	"github.com/quizduel/backend/internal/errors"
	"github.com/quizduel/backend/internal/game"
	"github.com/quizduel/backend/internal/gateway"
)

type createSessionRequest struct {
	CategoryID int64  `json:"category_id" binding:"required"`
	Difficulty string `json:"difficulty"`
}

func (a *API) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	ss, err := a.game.CreateSession(c.Request.Context(), game.CreateSessionRequest{
		HostID:     currentUser(c),
		CategoryID: req.CategoryID,
		Difficulty: domain.ParseDifficulty(req.Difficulty),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sessionResponse(ss))
}

func (a *API) getSession(c *gin.Context) {
	ss, err := a.game.GetSession(c.Request.Context(), game.GetSessionRequest{
		SessionID: c.Param("id"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse(ss))
}

func (a *API) joinSession(c *gin.Context) {
	ss, err := a.game.JoinSession(c.Request.Context(), game.JoinSessionRequest{
		SessionID: c.Param("id"),
		UserID:    currentUser(c),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse(ss))
}

// startSession assigns the question order, then immediately serves the first
// question through the regular advance flow so the whole group receives it.
func (a *API) startSession(c *gin.Context) {
	ctx := c.Request.Context()
	actor := currentUser(c)
	sessionID := c.Param("id")

	ss, err := a.game.StartSession(ctx, game.StartSessionRequest{
		SessionID: sessionID,
		ActorID:   actor,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	if _, err := a.game.AdvanceQuestion(ctx, game.AdvanceQuestionRequest{
		SessionID: sessionID,
		ActorID:   actor,
	}); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse(ss))
}

func (a *API) advanceQuestion(c *gin.Context) {
	resp, err := a.game.AdvanceQuestion(c.Request.Context(), game.AdvanceQuestionRequest{
		SessionID: c.Param("id"),
		ActorID:   currentUser(c),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	if resp.GameOver {
		c.JSON(http.StatusOK, gin.H{"game_over": true})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"game_over": false,
		"question":  resp.Question,
		"number":    resp.Number,
		"is_last":   resp.IsLast,
	})
}

type submitAnswerRequest struct {
	QuestionID int64  `json:"question_id" binding:"required"`
	Answer     string `json:"answer" binding:"required"`
}

func (a *API) submitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	resp, err := a.game.SubmitAnswer(c.Request.Context(), game.SubmitAnswerRequest{
		SessionID:     c.Param("id"),
		UserID:        currentUser(c),
		QuestionID:    req.QuestionID,
		SubmittedText: req.Answer,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"is_correct":     resp.IsCorrect,
		"points_awarded": resp.PointsAwarded,
		"current_score":  resp.CurrentScore,
	})
}

func (a *API) endSession(c *gin.Context) {
	ss, err := a.game.EndSession(c.Request.Context(), game.EndSessionRequest{
		SessionID: c.Param("id"),
		ActorID:   currentUser(c),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse(ss))
}

func sessionResponse(ss *domain.Session) gin.H {
	players := make([]gateway.PlayerPayload, 0, len(ss.Players))
	for _, p := range ss.Players {
		players = append(players, gateway.PlayerPayload{
			UserID:   p.UserID,
			Username: p.Username,
			Score:    p.Score,
			IsHost:   p.IsHost,
		})
	}

	return gin.H{
		"session_id":  ss.SessionID,
		"host_id":     ss.HostID,
		"category_id": ss.CategoryID,
		"difficulty":  ss.Difficulty,
		"created_at":  ss.CreatedAt,
		"ended_at":    ss.EndedAt,
		"active":      ss.Active,
		"players":     players,
	}
}
