// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints:
// structured error envelopes, consistent JSON serialization, and helpers for
// common HTTP patterns. Both success and failure cases keep a uniform shape so
// the browser client can branch on stable codes instead of parsing messages.
//
// Conventions:
//   - All error responses return an ErrorResponse with a stable `code`.
//   - `fail()` centralizes error formatting and logs 5xx responses with
//     request context.
//   - `failErr()` maps known service errors to their HTTP status and code in
//     one place, so every handler translates them identically.
//
// Example error response:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "duplicate_vote",
//	  "message": "this identity already voted on this question"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/khaled-alabsi/voting/internal/http/middleware"
	"github.com/khaled-alabsi/voting/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
//
// Fields:
//   - RequestID: optional correlation ID, echoed from the X-Request-ID
//     header, used to correlate server logs with client-side errors.
//   - Code: a stable, machine-readable string (see errors.go constants).
//   - Message: a human-readable description, safe for display to users.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"poll not found"`
}

// fail aborts the request with a structured error and logs server-side errors.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) call Fail to return consistent error
// envelopes without depending on unexported helpers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failErr translates a service-layer error into the matching HTTP response.
// Unknown errors become an opaque 500 so internals never leak to clients.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrPollNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "poll not found")
	case errors.Is(err, services.ErrPollClosed):
		fail(c, http.StatusConflict, ErrCodePollClosed, "poll is closed or expired")
	case errors.Is(err, services.ErrDuplicateVote):
		fail(c, http.StatusConflict, ErrCodeDuplicateVote, "this identity already voted on this question")
	case errors.Is(err, services.ErrAuthRequired):
		fail(c, http.StatusUnauthorized, ErrCodeAuthRequired, "poll requires a signed-in voter")
	case errors.Is(err, services.ErrInvalidChoice):
		fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidChoice, "question or answer does not belong to this poll")
	case errors.Is(err, services.ErrInvalidPollForm):
		fail(c, http.StatusUnprocessableEntity, ErrCodeBadRequest, "invalid poll form")
	case errors.Is(err, services.ErrInvalidRole):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "role must be creator, voter, or viewer")
	case errors.Is(err, services.ErrOptionsLocked):
		fail(c, http.StatusForbidden, ErrCodeOptionsLocked, "poll does not accept new answer options")
	case errors.Is(err, services.ErrQuestionsLocked):
		fail(c, http.StatusForbidden, ErrCodeQuestionsLocked, "poll does not accept new questions")
	case errors.Is(err, services.ErrResultsHidden):
		fail(c, http.StatusForbidden, ErrCodeResultsHidden, "results are not visible to voters")
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, "only the poll creator may do this")
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusBadRequest, ErrCodeSessionRequired, "no session for this browser")
	case errors.Is(err, services.ErrEmailTaken):
		fail(c, http.StatusConflict, ErrCodeEmailTaken, "email already registered")
	case errors.Is(err, services.ErrWeakPassword):
		fail(c, http.StatusUnprocessableEntity, ErrCodeWeakPassword, "password too short")
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid email or password")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}

// ok writes a success JSON response with the given status.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
