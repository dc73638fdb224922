// Session HTTP handlers.
//
// This file exposes endpoints for browser session participation:
//   - POST   /polls/{id}/join      (record participation with a role)
//   - POST   /polls/{id}/voted     (flip the has-voted flag)
//   - GET    /polls/{id}/visitors  (audience, creator only)
//   - GET    /session/history      (polls this browser has touched)
//   - DELETE /session              (sign out the session)
//
// The session itself is established transparently by the cookie middleware;
// these endpoints only read and mutate the participation state behind it.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/khaled-alabsi/voting/internal/http/middleware"
	"github.com/khaled-alabsi/voting/internal/services"
)

//
// DTOs
//

// JoinPollRequest is the JSON payload for joining a poll.
type JoinPollRequest struct {
	// Role the browser joins with: creator, voter, or viewer.
	Role string `json:"role" binding:"required" example:"voter"`
	// VoterName is an optional display name shown in the visitor panel.
	VoterName string `json:"voter_name,omitempty" example:"alex"`
}

// HistoryResponse wraps the session's poll history.
type HistoryResponse struct {
	History []services.HistoryEntry `json:"history"`
}

// sessionToken fetches the request's session token or fails with 400.
func sessionToken(c *gin.Context) (string, bool) {
	tok, okTok := middleware.SessionToken(c)
	if !okTok {
		fail(c, http.StatusBadRequest, ErrCodeSessionRequired, "no session for this browser")
		return "", false
	}
	return tok, true
}

//
// Handlers
//

// JoinPoll godoc
// @ID          joinPoll
// @Summary     Join a poll
// @Description Records the session's participation in a poll with a role and optional display name. Rejoining refreshes activity; a viewer is promoted to voter when it comes back to vote, and roles never downgrade.
// @Tags        Sessions
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                    true  "Poll ID (UUID)"  format(uuid)
// @Param       body  body  handlers.JoinPollRequest  true  "Role and display name"
//
// @Success     200  {object}  domain.PollSession
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Poll not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls/{id}/join [post]
func (h *Handlers) JoinPoll(c *gin.Context) {
	tok, okTok := sessionToken(c)
	if !okTok {
		return
	}

	var req JoinPollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, 400, ErrCodeBadRequest, "role required")
		return
	}

	ps, err := h.sessSvc.Join(c.Request.Context(), tok, c.Param("id"), req.Role, req.VoterName, c.Request.UserAgent())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, 200, ps)
}

// MarkVoted godoc
// @ID          markVoted
// @Summary     Mark the session as having voted
// @Description Flips the has-voted flag on the session's participation and visitor rows for the poll.
// @Tags        Sessions
// @Produce     json
//
// @Param       id  path  string  true  "Poll ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "No session or never joined"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls/{id}/voted [post]
func (h *Handlers) MarkVoted(c *gin.Context) {
	tok, okTok := sessionToken(c)
	if !okTok {
		return
	}

	if err := h.sessSvc.MarkVoted(c.Request.Context(), tok, c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListVisitors godoc
// @ID          listVisitors
// @Summary     List poll visitors (creator only)
// @Description Returns everyone who opened the poll, newest first, with display names and has-voted flags.
// @Tags        Sessions
// @Produce     json
//
// @Param       id  path  string  true  "Poll ID (UUID)"  format(uuid)
//
// @Success     200  {object}  map[string]any
// @Failure     403  {object}  handlers.ErrorResponse  "Not the creator"
// @Failure     404  {object}  handlers.ErrorResponse  "Poll not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls/{id}/visitors [get]
func (h *Handlers) ListVisitors(c *gin.Context) {
	pollID := c.Param("id")
	if !h.requireCreator(c, pollID) {
		return
	}

	visitors, err := h.sessSvc.Visitors(c.Request.Context(), pollID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, 200, gin.H{"visitors": visitors})
}

// SessionHistory godoc
// @ID          sessionHistory
// @Summary     Polls this browser has touched
// @Description Returns the session's participation history, most recently active first. Deleted polls stay listed with a deleted status.
// @Tags        Sessions
// @Produce     json
//
// @Success     200  {object}  handlers.HistoryResponse
// @Failure     400  {object}  handlers.ErrorResponse  "No session"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /session/history [get]
func (h *Handlers) SessionHistory(c *gin.Context) {
	tok, okTok := sessionToken(c)
	if !okTok {
		return
	}

	history, err := h.sessSvc.History(c.Request.Context(), tok)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, 200, HistoryResponse{History: history})
}

// SignOut godoc
// @ID          signOut
// @Summary     Sign out the session
// @Description Marks the server-side session inactive and expires the cookie. A fresh session is minted on the next request.
// @Tags        Sessions
// @Produce     json
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "No session"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /session [delete]
func (h *Handlers) SignOut(c *gin.Context) {
	tok, okTok := sessionToken(c)
	if !okTok {
		return
	}

	if err := h.sessSvc.SignOut(c.Request.Context(), tok); err != nil {
		failErr(c, err)
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	noContent(c)
}
