package api

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quizduel/backend/internal/account"
	"github.com/quizduel/backend/internal/errors"
	"github.com/quizduel/backend/internal/friend"
	"github.com/quizduel/backend/internal/game"
	"github.com/quizduel/backend/internal/gateway"
	"github.com/quizduel/backend/internal/leaderboard"
	"github.com/quizduel/backend/internal/quiz"
	"github.com/quizduel/backend/internal/score"
)

const ctxUserID = "auth.user_id"

// TokenVerifier is the external auth collaborator: it turns a bearer token
// into an authenticated user id. Token issuance is out of this system's hands.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type Config struct {
	Router      gin.IRouter
	Auth        TokenVerifier
	Game        *game.Service
	Quiz        *quiz.Service
	Leaderboard *leaderboard.Service
	Friends     *friend.Service
	Accounts    *account.Service
	Scores      *score.Service
	Gateway     *gateway.Gateway
}

type API struct {
	auth TokenVerifier

	game     *game.Service
	quiz     *quiz.Service
	lb       *leaderboard.Service
	friends  *friend.Service
	accounts *account.Service
	scores   *score.Service
	gw       *gateway.Gateway
}

func New(c Config) *API {
	a := &API{
		auth:     c.Auth,
		game:     c.Game,
		quiz:     c.Quiz,
		lb:       c.Leaderboard,
		friends:  c.Friends,
		accounts: c.Accounts,
		scores:   c.Scores,
		gw:       c.Gateway,
	}

	v1 := c.Router.Group("/api/v1", a.authenticate)

	v1.POST("/sessions", a.createSession)
	v1.GET("/sessions/:id", a.getSession)
	v1.POST("/sessions/:id/join", a.joinSession)
	v1.POST("/sessions/:id/start", a.startSession)
	v1.POST("/sessions/:id/advance", a.advanceQuestion)
	v1.POST("/sessions/:id/answers", a.submitAnswer)
	v1.POST("/sessions/:id/end", a.endSession)
	v1.GET("/sessions/:id/events", a.streamEvents)

	v1.GET("/categories", a.listCategories)
	v1.GET("/leaderboard", a.globalLeaderboard)
	v1.GET("/leaderboard/categories/:id", a.categoryLeaderboard)
	v1.GET("/users", a.searchUsers)
	v1.GET("/users/me/scores", a.scoreHistory)

	v1.GET("/friends", a.listFriends)
	v1.DELETE("/friends/:id", a.removeFriend)
	v1.GET("/friends/requests", a.listFriendRequests)
	v1.POST("/friends/requests", a.sendFriendRequest)
	v1.POST("/friends/requests/:id/accept", a.acceptFriendRequest)
	v1.POST("/friends/requests/:id/reject", a.rejectFriendRequest)

	return a
}

func (a *API) authenticate(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		abortWithError(c, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("missing bearer token")))
		return
	}

	userID, err := a.auth.Verify(c.Request.Context(), token)
	if err != nil {
		abortWithError(c, errors.New(errors.CodeUnauthenticated, errors.WithCause(err)))
		return
	}

	c.Set(ctxUserID, userID)
	c.Next()
}

func currentUser(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
