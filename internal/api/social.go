package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quizduel/backend/internal/account"
	"github.com/quizduel/backend/internal/errors"
	"github.com/quizduel/backend/internal/friend"
	"github.com/quizduel/backend/internal/leaderboard"
	"github.com/quizduel/backend/internal/score"
)

func (a *API) listCategories(c *gin.Context) {
	cats, err := a.quiz.ListCategories(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"categories": cats})
}

func (a *API) globalLeaderboard(c *gin.Context) {
	l, err := a.lb.GetGlobal(c.Request.Context(), leaderboard.GetGlobalRequest{
		TopN: intQuery(c, "top", 0),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": l.Entries})
}

func (a *API) categoryLeaderboard(c *gin.Context) {
	categoryID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	l, err := a.lb.GetCategory(c.Request.Context(), leaderboard.GetCategoryRequest{
		CategoryID: categoryID,
		TopN:       intQuery(c, "top", 0),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": l.Entries})
}

func (a *API) searchUsers(c *gin.Context) {
	users, err := a.accounts.Search(c.Request.Context(), account.SearchRequest{
		Prefix: c.Query("q"),
		Limit:  intQuery(c, "limit", 0),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := make([]gin.H, 0, len(users))
	for _, u := range users {
		resp = append(resp, gin.H{
			"user_id":     u.UserID,
			"username":    u.Username,
			"total_score": u.TotalScore,
		})
	}

	c.JSON(http.StatusOK, gin.H{"users": resp})
}

func (a *API) scoreHistory(c *gin.Context) {
	entries, err := a.scores.ListEntries(c.Request.Context(), score.ListEntriesRequest{
		UserID: currentUser(c),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, gin.H{
			"amount":      e.Amount,
			"category_id": e.CategoryID,
			"difficulty":  e.Difficulty,
			"achieved_at": e.AchievedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"entries": resp})
}

func (a *API) listFriends(c *gin.Context) {
	fs, err := a.friends.ListFriends(c.Request.Context(), friend.ListFriendsRequest{
		UserID: currentUser(c),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"friends": fs})
}

func (a *API) removeFriend(c *gin.Context) {
	err := a.friends.RemoveFriend(c.Request.Context(), friend.RemoveFriendRequest{
		UserID:   currentUser(c),
		FriendID: c.Param("id"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) listFriendRequests(c *gin.Context) {
	fs, err := a.friends.ListPending(c.Request.Context(), friend.ListPendingRequest{
		UserID: currentUser(c),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"requests": fs})
}

type sendFriendRequestRequest struct {
	Username string `json:"username" binding:"required"`
}

func (a *API) sendFriendRequest(c *gin.Context) {
	var req sendFriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	err := a.friends.SendRequest(c.Request.Context(), friend.SendRequestRequest{
		SenderID:         currentUser(c),
		ReceiverUsername: req.Username,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

func (a *API) acceptFriendRequest(c *gin.Context) {
	err := a.friends.AcceptRequest(c.Request.Context(), friend.AcceptRequestRequest{
		UserID:   currentUser(c),
		SenderID: c.Param("id"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) rejectFriendRequest(c *gin.Context) {
	err := a.friends.RejectRequest(c.Request.Context(), friend.RejectRequestRequest{
		UserID:   currentUser(c),
		SenderID: c.Param("id"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func intQuery(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
