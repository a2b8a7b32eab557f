package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quizduel/backend/internal/errors"
	"github.com/quizduel/backend/internal/game"
)

const pingInterval = 30 * time.Second

// streamEvents delivers the session's realtime notifications as an SSE
// stream. A closed connection simply unsubscribes; there is no reconnection
// protocol.
func (a *API) streamEvents(c *gin.Context) {
	sessionID := c.Param("id")
	userID := currentUser(c)

	// Membership check before joining the broadcast group.
	ss, err := a.game.GetSession(c.Request.Context(), game.GetSessionRequest{SessionID: sessionID})
	if err != nil {
		abortWithError(c, err)
		return
	}
	if _, ok := ss.Players[userID]; !ok {
		abortWithError(c, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("not a member of session %s", sessionID)))
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		abortWithError(c, errors.New(errors.CodeInternal,
			errors.WithMessagef("streaming not supported")))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	flusher.Flush()

	sub := a.gw.Subscribe(sessionID, userID)
	defer sub.Close()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case n, ok := <-sub.C():
			if !ok {
				// Group released at session end.
				return
			}
			b, err := json.Marshal(n.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", n.Event, b)
			flusher.Flush()
		case <-ping.C:
			fmt.Fprintf(c.Writer, ": ping\n\n")
			flusher.Flush()
		}
	}
}
