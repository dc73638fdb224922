// Package services defines the business logic for polls, votes, sessions,
// and identities. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

// Poll-related errors.
var (
	// ErrPollNotFound indicates that the requested poll does not exist.
	ErrPollNotFound = errors.New("poll not found")

	// ErrPollClosed is returned when a vote targets a poll that is inactive
	// or past its expiry timestamp.
	ErrPollClosed = errors.New("poll is closed")

	// ErrInvalidPollForm is returned when a poll creation payload fails
	// validation (missing title, no questions, or a question with fewer
	// than two answer options).
	ErrInvalidPollForm = errors.New("invalid poll form")

	// ErrInvalidChoice is returned when a vote references a question or
	// answer that does not belong to the poll.
	ErrInvalidChoice = errors.New("question or answer does not belong to poll")

	// ErrOptionsLocked is returned when a voter tries to append an answer
	// option to a question that does not permit it.
	ErrOptionsLocked = errors.New("new options are not allowed for this question")

	// ErrQuestionsLocked is returned when a question is appended to a poll
	// whose settings forbid it.
	ErrQuestionsLocked = errors.New("new questions are not allowed for this poll")
)

// Vote-related errors.
var (
	// ErrDuplicateVote is returned when the same voter identity submits a
	// second vote for the same (poll, question) pair.
	ErrDuplicateVote = errors.New("vote already recorded for this question")

	// ErrAuthRequired is returned when a poll's settings demand an
	// authenticated voter and the submission carries none.
	ErrAuthRequired = errors.New("authentication required to vote")
)

// Session-related errors.
var (
	// ErrSessionNotFound indicates the session token has no record, or no
	// participation row exists for the (session, poll) pair.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidRole is returned when joining a poll with a role outside
	// creator/voter/viewer.
	ErrInvalidRole = errors.New("invalid poll role")

	// ErrForbidden is returned when a session attempts an operation reserved
	// for the poll creator.
	ErrForbidden = errors.New("operation requires the poll creator")

	// ErrResultsHidden is returned when a non-creator requests results for a
	// poll whose settings keep them private.
	ErrResultsHidden = errors.New("results are not visible to voters")
)

// Identity-related errors.
var (
	// ErrInvalidCredentials is returned on a failed email/password login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken is returned when registering with an email that already
	// belongs to an account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrWeakPassword is returned when a registration password is shorter
	// than the minimum length.
	ErrWeakPassword = errors.New("password too short")

	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("invalid token")
)
