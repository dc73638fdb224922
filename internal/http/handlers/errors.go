// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes the symbolic error codes mapped to HTTP responses via
// the fail() helper. The codes give clients a stable, machine-readable error
// taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase snake_case.
//   - Generic codes (bad_request, unauthorized, conflict) mirror common HTTP
//     status semantics.
//   - Domain-specific codes (duplicate_vote, poll_closed, results_hidden) name
//     business outcomes the status alone cannot convey; the client UI branches
//     on them to pick the right message.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeDuplicateVote      = "duplicate_vote"
	ErrCodePollClosed         = "poll_closed"
	ErrCodeInvalidChoice      = "invalid_choice"
	ErrCodeResultsHidden      = "results_hidden"
	ErrCodeOptionsLocked      = "options_locked"
	ErrCodeQuestionsLocked    = "questions_locked"
	ErrCodeSessionRequired    = "session_required"
	ErrCodeAuthRequired       = "auth_required"
	ErrCodeEmailTaken         = "email_taken"
	ErrCodeWeakPassword       = "weak_password"
	ErrCodeInvalidCredentials = "invalid_credentials"
)
