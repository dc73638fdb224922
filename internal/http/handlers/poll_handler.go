// Poll HTTP handlers.
//
// This file exposes REST endpoints for poll resources:
//   - POST   /polls                                (create)
//   - GET    /polls                                (creator dashboard, paginated)
//   - GET    /polls/{id}                           (fetch aggregate)
//   - PATCH  /polls/{id}                           (admin toggles)
//   - DELETE /polls/{id}                           (cascade delete)
//   - POST   /polls/{id}/questions                 (append question)
//   - POST   /polls/{id}/questions/{qid}/answers   (append answer option)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Mutations that change what other
// viewers see are pushed to live subscribers via the hub.
package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/khaled-alabsi/voting/internal/domain"
	"github.com/khaled-alabsi/voting/internal/http/middleware"
	"github.com/khaled-alabsi/voting/internal/live"
	"github.com/khaled-alabsi/voting/internal/services"
	"github.com/khaled-alabsi/voting/internal/utils"
)

//
// Service contracts (context-aware)
//

// PollService defines poll lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type PollService interface {
	// Create validates the form and persists the poll aggregate.
	Create(ctx context.Context, form services.PollForm, creatorID string) (*domain.Poll, error)
	// Get fetches the full poll aggregate.
	Get(ctx context.Context, id string) (*domain.Poll, error)
	// ListPage returns a page of the creator's polls and the total count.
	ListPage(ctx context.Context, creatorID string, page, pageSize int) ([]domain.Poll, int64, error)
	// Update applies admin toggles to a poll owned by creatorID.
	Update(ctx context.Context, id, creatorID string, upd services.AdminUpdate) (*domain.Poll, error)
	// Delete removes the poll and every dependent row.
	Delete(ctx context.Context, id, creatorID string) error
	// AddQuestion appends a question when the poll's settings permit it.
	AddQuestion(ctx context.Context, pollID, text string) (*domain.Question, error)
	// AddAnswerOption appends a voter-contributed option to a question.
	AddAnswerOption(ctx context.Context, pollID, questionID, text, addedBy string) (*domain.Answer, error)
}

// VoteService defines vote submission, tallying, and export operations.
type VoteService interface {
	// Submit records one ballot, enforcing the poll's gating rules.
	Submit(ctx context.Context, b services.Ballot) (*domain.Vote, error)
	// Votes returns the full vote set of a poll in submission order.
	Votes(ctx context.Context, pollID string) ([]domain.Vote, error)
	// Stats derives the statistics document from the vote set.
	Stats(ctx context.Context, pollID string) (*domain.PollStats, error)
	// Export assembles the downloadable snapshot.
	Export(ctx context.Context, pollID string) (*domain.PollExport, error)
}

// SessionService defines browser session and participation operations.
type SessionService interface {
	// Join records participation in a poll with a role and display name.
	Join(ctx context.Context, token, pollID, role, voterName, userAgent string) (*domain.PollSession, error)
	// MarkVoted flips the has-voted flag for the (session, poll) pair.
	MarkVoted(ctx context.Context, token, pollID string) error
	// Visitors returns the audience of a poll, newest first.
	Visitors(ctx context.Context, pollID string) ([]domain.PollVisitor, error)
	// History returns the polls this session has touched.
	History(ctx context.Context, token string) ([]services.HistoryEntry, error)
	// IsCreator reports whether the session or user created the poll.
	IsCreator(ctx context.Context, token, userID, pollID string) (bool, error)
	// Bind associates an authenticated user with the session.
	Bind(ctx context.Context, token, userID string) error
	// SignOut marks the session inactive.
	SignOut(ctx context.Context, token string) error
}

// AuthService defines identity operations consumed by HTTP handlers.
type AuthService interface {
	// SignInAnonymously mints a fresh anonymous identity and token.
	SignInAnonymously(ctx context.Context, displayName string) (*domain.User, string, error)
	// Register creates a credentialed account, optionally upgrading an
	// anonymous identity in place.
	Register(ctx context.Context, email, password, displayName, upgradeID string) (*domain.User, string, error)
	// Login verifies credentials and returns the user and a fresh token.
	Login(ctx context.Context, email, password string) (*domain.User, string, error)
}

// IdempotencyRecorder persists a completed idempotency key so retries replay
// instead of re-executing. Failures are logged, never surfaced.
type IdempotencyRecorder func(ctx context.Context, voterKey, pollID, key string, now time.Time) error

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for polls, votes, sessions, and auth.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	pollSvc PollService
	voteSvc VoteService
	sessSvc SessionService
	authSvc AuthService

	hub        *live.Hub
	recordIdem IdempotencyRecorder
}

// New constructs a Handlers instance bound to the given services. hub and
// recordIdem may be nil; the corresponding features are then skipped.
func New(pollSvc PollService, voteSvc VoteService, sessSvc SessionService, authSvc AuthService, hub *live.Hub, recordIdem IdempotencyRecorder) *Handlers {
	return &Handlers{
		pollSvc:    pollSvc,
		voteSvc:    voteSvc,
		sessSvc:    sessSvc,
		authSvc:    authSvc,
		hub:        hub,
		recordIdem: recordIdem,
	}
}

// identity returns the acting identity for the request: the authenticated
// user ID when present, otherwise the session token. This is the same
// derivation the vote deduplication key uses.
func identity(c *gin.Context) string {
	if uid, ok := middleware.UserID(c); ok {
		return uid
	}
	tok, _ := middleware.SessionToken(c)
	return tok
}

// broadcast pushes an event to the poll's live subscribers, if a hub is wired.
func (h *Handlers) broadcast(pollID string, ev live.Event) {
	if h.hub != nil {
		h.hub.Broadcast(pollID, ev)
	}
}

//
// DTOs
//

// AddQuestionRequest is the JSON payload for appending a question.
type AddQuestionRequest struct {
	// Text is the question prompt (non-empty).
	Text string `json:"text" binding:"required" example:"Where should we eat?"`
}

// AddAnswerRequest is the JSON payload for appending an answer option.
type AddAnswerRequest struct {
	// Text is the option label (non-empty).
	Text string `json:"text" binding:"required" example:"Sushi"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListPollsResponse wraps a page of polls and pagination information.
type ListPollsResponse struct {
	Polls      []domain.Poll `json:"polls"`
	Pagination Pagination    `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// CreatePoll godoc
// @ID          createPoll
// @Summary     Create a new poll
// @Description Creates a poll with its questions and answer options and returns the stored aggregate including the shareable link.
// @Tags        Polls
// @Accept      json
// @Produce     json
//
// @Param       body  body  services.PollForm  true  "Poll form"
//
// @Success     201  {object}  domain.Poll
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     422  {object}  handlers.ErrorResponse  "Invalid poll form"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls [post]
func (h *Handlers) CreatePoll(c *gin.Context) {
	var form services.PollForm
	if err := c.ShouldBindJSON(&form); err != nil {
		fail(c, 400, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	creator := identity(c)
	if creator == "" {
		fail(c, 400, ErrCodeSessionRequired, "no session for this browser")
		return
	}

	p, err := h.pollSvc.Create(c.Request.Context(), form, creator)
	if err != nil {
		failErr(c, err)
		return
	}
	middleware.PollsCreated.Inc()

	// Record the creator's participation so the poll shows up in history.
	if tok, okTok := middleware.SessionToken(c); okTok {
		if _, err := h.sessSvc.Join(c.Request.Context(), tok, p.ID, domain.RoleCreator, "", c.Request.UserAgent()); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("poll_id", p.ID).Msg("creator join failed")
		}
	}

	ok(c, 201, p)
}

// GetPoll godoc
// @ID          getPoll
// @Summary     Fetch a poll
// @Description Returns the full poll aggregate: questions, answer options, settings, and counters.
// @Tags        Polls
// @Produce     json
//
// @Param       id  path  string  true  "Poll ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.Poll
// @Failure     404  {object}  handlers.ErrorResponse  "Poll not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls/{id} [get]
func (h *Handlers) GetPoll(c *gin.Context) {
	p, err := h.pollSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, 200, p)
}

// ListPolls godoc
// @ID          listPolls
// @Summary     List the caller's polls (paginated)
// @Description Returns a page of polls created by the current identity, newest first.
// @Tags        Polls
// @Produce     json
//
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListPollsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls [get]
func (h *Handlers) ListPolls(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.pollSvc.ListPage(c.Request.Context(), identity(c), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, 200, ListPollsResponse{
		Polls: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// UpdatePoll godoc
// @ID          updatePoll
// @Summary     Update poll settings
// @Description Applies creator-only toggles: open/close the poll, show or hide results, set or clear the expiry.
// @Tags        Polls
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                 true  "Poll ID (UUID)"  format(uuid)
// @Param       body  body  services.AdminUpdate   true  "Fields to update"
//
// @Success     200  {object}  domain.Poll
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the creator"
// @Failure     404  {object}  handlers.ErrorResponse  "Poll not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls/{id} [patch]
func (h *Handlers) UpdatePoll(c *gin.Context) {
	var upd services.AdminUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		fail(c, 400, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	p, err := h.pollSvc.Update(c.Request.Context(), c.Param("id"), identity(c), upd)
	if err != nil {
		failErr(c, err)
		return
	}

	h.broadcast(p.ID, live.Event{Type: live.EventPollUpdated, Data: p})
	ok(c, 200, p)
}

// DeletePoll godoc
// @ID          deletePoll
// @Summary     Delete a poll
// @Description Removes the poll and all dependent rows (questions, answers, votes, sessions, visitors). Creator only.
// @Tags        Polls
// @Produce     json
//
// @Param       id  path  string  true  "Poll ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     403  {object}  handlers.ErrorResponse  "Not the creator"
// @Failure     404  {object}  handlers.ErrorResponse  "Poll not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls/{id} [delete]
func (h *Handlers) DeletePoll(c *gin.Context) {
	pollID := c.Param("id")
	if err := h.pollSvc.Delete(c.Request.Context(), pollID, identity(c)); err != nil {
		failErr(c, err)
		return
	}

	h.broadcast(pollID, live.Event{Type: live.EventPollDeleted})
	noContent(c)
}

// AddQuestion godoc
// @ID          addQuestion
// @Summary     Append a question to a poll
// @Description Adds a question to a live poll when its settings allow new questions. The question is never required.
// @Tags        Polls
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                       true  "Poll ID (UUID)"  format(uuid)
// @Param       body  body  handlers.AddQuestionRequest  true  "Question text"
//
// @Success     201  {object}  domain.Question
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "New questions not allowed"
// @Failure     404  {object}  handlers.ErrorResponse  "Poll not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls/{id}/questions [post]
func (h *Handlers) AddQuestion(c *gin.Context) {
	var req AddQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		fail(c, 400, ErrCodeBadRequest, "question text required")
		return
	}

	q, err := h.pollSvc.AddQuestion(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		failErr(c, err)
		return
	}

	h.broadcast(q.PollID, live.Event{Type: live.EventPollUpdated, Data: q})
	ok(c, 201, q)
}

// AddAnswerOption godoc
// @ID          addAnswerOption
// @Summary     Append an answer option to a question
// @Description Adds a voter-contributed option when the question allows it. The contributor is recorded for attribution.
// @Tags        Polls
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                     true  "Poll ID (UUID)"      format(uuid)
// @Param       qid   path  string                     true  "Question ID (UUID)"  format(uuid)
// @Param       body  body  handlers.AddAnswerRequest  true  "Option text"
//
// @Success     201  {object}  domain.Answer
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "New options not allowed"
// @Failure     404  {object}  handlers.ErrorResponse  "Poll not found"
// @Failure     422  {object}  handlers.ErrorResponse  "Unknown question"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /polls/{id}/questions/{qid}/answers [post]
func (h *Handlers) AddAnswerOption(c *gin.Context) {
	var req AddAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		fail(c, 400, ErrCodeBadRequest, "answer text required")
		return
	}

	a, err := h.pollSvc.AddAnswerOption(c.Request.Context(), c.Param("id"), c.Param("qid"), req.Text, identity(c))
	if err != nil {
		failErr(c, err)
		return
	}

	h.broadcast(a.PollID, live.Event{Type: live.EventPollUpdated, Data: a})
	ok(c, 201, a)
}
