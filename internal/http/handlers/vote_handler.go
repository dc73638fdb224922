// Vote HTTP handlers.
//
// This file exposes REST endpoints for ballots and results:
//   - POST /polls/{id}/votes   (submit a ballot)
//   - GET  /polls/{id}/votes   (raw votes, creator only)
//   - GET  /polls/{id}/stats   (derived statistics)
//   - GET  /polls/{id}/export  (downloadable snapshot, creator only)
//
// Submission supports the Idempotency-Key header: a retry of an already
// accepted ballot answers 200 instead of re-executing. Accepted ballots are
// pushed to live subscribers and flip the session's has-voted flag.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/khaled-alabsi/voting/internal/http/middleware"
	"github.com/khaled-alabsi/voting/internal/live"
	"github.com/khaled-alabsi/voting/internal/services"
)

//
// DTOs
//

// SubmitVoteRequest is the JSON payload for casting a ballot.
type SubmitVoteRequest struct {
	// QuestionID names the question being answered.
	QuestionID string `json:"question_id" binding:"required" example:"6b8e1c9a-93f1-4d30-9c2b-0e6cf6f7a111"`
	// AnswerID names the chosen option.
	AnswerID string `json:"answer_id" binding:"required" example:"2f0a7c44-5b6d-49e2-8a3f-c9d1e0b22222"`
	// TimeToVoteMs is the client-measured decision time, if available.
	TimeToVoteMs *int64 `json:"time_to_vote_ms,omitempty" example:"5400"`
}

// VoteAcceptedResponse acknowledges an idempotent replay of a ballot.
type VoteAcceptedResponse struct {
	Status string `json:"status" example:"accepted"`
	Replay bool   `json:"replay" example:"true"`
}

//
// Handlers
//

// SubmitVote godoc
// @ID          submitVote
// @Summary     Cast a ballot
// @Description Records one vote for the current identity. The poll must be active and not expired; one counted vote per question per identity. Supports Idempotency-Key for safe retries.
// @Tags        Votes
// @Accept      json
// @Produce     json
//
// @Param       id               path    string                       true   "Poll ID (UUID)"  format(uuid)
// @Param       Idempotency-Key  header  string                       false  "Retry deduplication key"
// @Param       body             body    handlers.SubmitVoteRequest   true   "Ballot"
//
// @Success     200  {object}  handlers.VoteAcceptedResponse  "Idempotent replay"
// @Success     201  {object}  domain.Vote
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Poll requires authentication"
// @Failure     404  {object}  handlers.ErrorResponse  "Poll not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Duplicate vote or poll closed"
// @Failure     422  {object}  handlers.ErrorResponse  "Unknown question or answer"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls/{id}/votes [post]
func (h *Handlers) SubmitVote(c *gin.Context) {
	if middleware.IsReplay(c) {
		ok(c, http.StatusOK, VoteAcceptedResponse{Status: "accepted", Replay: true})
		return
	}

	var req SubmitVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, 400, ErrCodeBadRequest, "question_id and answer_id required")
		return
	}

	pollID := c.Param("id")
	uid, _ := middleware.UserID(c)
	tok, _ := middleware.SessionToken(c)

	vote, err := h.voteSvc.Submit(c.Request.Context(), services.Ballot{
		PollID:       pollID,
		QuestionID:   req.QuestionID,
		AnswerID:     req.AnswerID,
		UserID:       uid,
		SessionToken: tok,
		TimeToVoteMs: req.TimeToVoteMs,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.VotesCast.Inc()

	// Post-accept bookkeeping is best effort; the ballot is already counted.
	lg := middleware.LoggerFrom(c)
	if tok != "" {
		if err := h.sessSvc.MarkVoted(c.Request.Context(), tok, pollID); err != nil {
			lg.Debug().Err(err).Str("poll_id", pollID).Msg("mark voted skipped")
		}
	}
	if key, okKey := middleware.GetIdempotencyKey(c); okKey && h.recordIdem != nil {
		if err := h.recordIdem(c.Request.Context(), vote.VoterKey, pollID, key, time.Now().UTC()); err != nil {
			lg.Warn().Err(err).Str("poll_id", pollID).Msg("idempotency record failed")
		}
	}

	h.broadcast(pollID, live.Event{Type: live.EventVoteCast, Data: vote})
	ok(c, 201, vote)
}

// ListVotes godoc
// @ID          listVotes
// @Summary     List raw votes (creator only)
// @Description Returns every vote of the poll in submission order. Restricted to the poll creator.
// @Tags        Votes
// @Produce     json
//
// @Param       id  path  string  true  "Poll ID (UUID)"  format(uuid)
//
// @Success     200  {object}  map[string]any
// @Failure     403  {object}  handlers.ErrorResponse  "Not the creator"
// @Failure     404  {object}  handlers.ErrorResponse  "Poll not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls/{id}/votes [get]
func (h *Handlers) ListVotes(c *gin.Context) {
	pollID := c.Param("id")
	if !h.requireCreator(c, pollID) {
		return
	}

	votes, err := h.voteSvc.Votes(c.Request.Context(), pollID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, 200, gin.H{"votes": votes})
}

// GetStats godoc
// @ID          getPollStats
// @Summary     Poll statistics
// @Description Returns derived statistics: totals, unique voters, answer distributions, timing, and the voting timeline. Non-creators see stats only when the poll shows results to voters.
// @Tags        Votes
// @Produce     json
//
// @Param       id  path  string  true  "Poll ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.PollStats
// @Failure     403  {object}  handlers.ErrorResponse  "Results hidden"
// @Failure     404  {object}  handlers.ErrorResponse  "Poll not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls/{id}/stats [get]
func (h *Handlers) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	pollID := c.Param("id")

	p, err := h.pollSvc.Get(ctx, pollID)
	if err != nil {
		failErr(c, err)
		return
	}
	if !p.Settings.ShowResultsToVoters {
		tok, _ := middleware.SessionToken(c)
		uid, _ := middleware.UserID(c)
		isCreator, err := h.sessSvc.IsCreator(ctx, tok, uid, pollID)
		if err != nil {
			failErr(c, err)
			return
		}
		if !isCreator {
			failErr(c, services.ErrResultsHidden)
			return
		}
	}

	stats, err := h.voteSvc.Stats(ctx, pollID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, 200, stats)
}

// ExportPoll godoc
// @ID          exportPoll
// @Summary     Export poll data (creator only)
// @Description Returns a downloadable JSON snapshot: the poll, every vote, and the derived statistics.
// @Tags        Votes
// @Produce     json
//
// @Param       id  path  string  true  "Poll ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.PollExport
// @Header      200  {string}  Content-Disposition  "attachment filename"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the creator"
// @Failure     404  {object}  handlers.ErrorResponse  "Poll not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls/{id}/export [get]
func (h *Handlers) ExportPoll(c *gin.Context) {
	pollID := c.Param("id")
	if !h.requireCreator(c, pollID) {
		return
	}

	export, err := h.voteSvc.Export(c.Request.Context(), pollID)
	if err != nil {
		failErr(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="poll-`+pollID+`.json"`)
	ok(c, 200, export)
}

// requireCreator aborts with 403 (or 404/500) unless the caller created the
// poll. Returns true when the request may proceed.
func (h *Handlers) requireCreator(c *gin.Context, pollID string) bool {
	tok, _ := middleware.SessionToken(c)
	uid, _ := middleware.UserID(c)
	isCreator, err := h.sessSvc.IsCreator(c.Request.Context(), tok, uid, pollID)
	if err != nil {
		failErr(c, err)
		return false
	}
	if !isCreator {
		failErr(c, services.ErrForbidden)
		return false
	}
	return true
}
