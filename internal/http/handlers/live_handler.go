// Live update handler.
//
// This file exposes GET /polls/{id}/live, the WebSocket endpoint poll pages
// hold open to receive poll-update, vote, and deletion events as they happen.
// The server only pushes; inbound frames are read and discarded to service
// control messages and detect the close.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/khaled-alabsi/voting/internal/http/middleware"
)

// upgrader performs the HTTP-to-WebSocket upgrade. Origin enforcement is
// handled by the CORS layer; the cookie session does not protect against
// cross-site WebSocket writes because the endpoint is read-only.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// LivePoll godoc
// @ID          livePoll
// @Summary     Subscribe to live poll updates
// @Description Upgrades the connection to a WebSocket and streams poll.updated, vote.cast, and poll.deleted events until the client disconnects.
// @Tags        Polls
//
// @Param       id  path  string  true  "Poll ID (UUID)"  format(uuid)
//
// @Success     101  {string}  string  "Switching Protocols"
// @Failure     404  {object}  handlers.ErrorResponse  "Poll not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls/{id}/live [get]
func (h *Handlers) LivePoll(c *gin.Context) {
	pollID := c.Param("id")
	if _, err := h.pollSvc.Get(c.Request.Context(), pollID); err != nil {
		failErr(c, err)
		return
	}
	if h.hub == nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "live updates unavailable")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		middleware.LoggerFrom(c).Warn().Err(err).Str("poll_id", pollID).Msg("websocket upgrade failed")
		return
	}

	h.hub.Subscribe(pollID, conn)
	middleware.LiveSubscribers.Inc()

	go func() {
		defer func() {
			h.hub.Unsubscribe(pollID, conn)
			middleware.LiveSubscribers.Dec()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
