// Package services – SessionService
//
// This file implements SessionService, which correlates an anonymous browser
// with poll participation without requiring login. The server mints one
// opaque token per browser, hands it out in a cookie, and resolves every
// lookup against indexed session tables; the cookie never carries anything
// but the token. Poll participation (role, display name, has-voted flag) and
// visitor presence live in their own keyed rows, one per (session, poll)
// pair.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/khaled-alabsi/voting/internal/domain"
	"github.com/khaled-alabsi/voting/internal/repo"
)

// SessionService implements browser session tracking and poll participation.
type SessionService struct {
	DB *gorm.DB

	// IdleTTL is how long a session may stay inactive before the sweep
	// removes it.
	IdleTTL time.Duration

	// Now returns the current instant; overridable in tests.
	Now func() time.Time

	nameCaser cases.Caser
}

// NewSessionService constructs a SessionService with a 30-day idle TTL.
func NewSessionService(db *gorm.DB) *SessionService {
	return &SessionService{
		DB:        db,
		IdleTTL:   30 * 24 * time.Hour,
		Now:       func() time.Time { return time.Now().UTC() },
		nameCaser: cases.Title(language.Und),
	}
}

// Initialize resolves the token presented by the browser to a live session,
// minting a new one when the token is empty, unknown, or signed out. The
// returned token is what the cookie middleware writes back; it equals the
// input when the session already existed and is still active.
func (s *SessionService) Initialize(ctx context.Context, token, userAgent string) (string, error) {
	now := s.Now()
	if token != "" {
		sess, err := repo.GetUserSession(ctx, s.DB, token)
		switch {
		case err == nil && sess.IsActive:
			if err := repo.TouchUserSession(ctx, s.DB, token, now); err != nil {
				return "", err
			}
			return token, nil
		case err != nil && !errors.Is(err, repo.ErrNotFound):
			return "", err
		}
		// Deactivated tokens fall through: sign-out is final for that token.
	}

	token = uuid.NewString()
	sess := &domain.UserSession{
		Token:        token,
		UserAgent:    userAgent,
		CreatedAt:    now,
		LastActivity: now,
		IsActive:     true,
	}
	if err := repo.CreateUserSession(ctx, s.DB, sess); err != nil {
		return "", err
	}
	return token, nil
}

// Bind associates an authenticated user with the session, so history and
// dedup keys survive the upgrade from anonymous browsing.
func (s *SessionService) Bind(ctx context.Context, token, userID string) error {
	return repo.BindUserSession(ctx, s.DB, token, userID)
}

// Join records the session's participation in a poll with the given role and
// optional display name, and tracks visitor presence. Rejoining is an update
// in place: activity is refreshed, a blank name never overwrites a stored
// one, and a viewer row is promoted to voter when the same browser comes
// back to vote. A creator role is never downgraded.
func (s *SessionService) Join(ctx context.Context, token, pollID, role, voterName, userAgent string) (*domain.PollSession, error) {
	switch role {
	case domain.RoleCreator, domain.RoleVoter, domain.RoleViewer:
	default:
		return nil, ErrInvalidRole
	}
	if _, err := repo.GetPoll(ctx, s.DB, pollID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, err
	}

	now := s.Now()
	name := s.normalizeName(voterName)

	ps, err := repo.GetPollSession(ctx, s.DB, token, pollID)
	switch {
	case err == nil:
		ps.LastActivity = now
		ps.IsActive = true
		if name != "" {
			ps.VoterName = name
		}
		if promotes(ps.Role, role) {
			ps.Role = role
		}
	case errors.Is(err, repo.ErrNotFound):
		ps = &domain.PollSession{
			ID:           domain.PollSessionID(token, pollID),
			SessionToken: token,
			PollID:       pollID,
			Role:         role,
			VoterName:    name,
			JoinedAt:     now,
			LastActivity: now,
			HasVoted:     false,
			IsActive:     true,
		}
	default:
		return nil, err
	}
	if err := repo.SavePollSession(ctx, s.DB, ps); err != nil {
		return nil, err
	}

	if err := s.trackVisitor(ctx, token, pollID, ps.VoterName, userAgent, now); err != nil {
		return nil, err
	}
	return ps, nil
}

// trackVisitor upserts the presence row for the (session, poll) pair.
func (s *SessionService) trackVisitor(ctx context.Context, token, pollID, name, userAgent string, now time.Time) error {
	v, err := repo.GetVisitor(ctx, s.DB, token, pollID)
	switch {
	case err == nil:
		v.LastSeen = now
		if name != "" {
			v.VoterName = name
		}
	case errors.Is(err, repo.ErrNotFound):
		v = &domain.PollVisitor{
			ID:           domain.PollSessionID(token, pollID),
			SessionToken: token,
			PollID:       pollID,
			VoterName:    name,
			UserAgent:    userAgent,
			JoinedAt:     now,
			LastSeen:     now,
		}
	default:
		return err
	}
	return repo.SaveVisitor(ctx, s.DB, v)
}

// MarkVoted flips the has-voted flag on the session's participation and
// visitor rows for the poll. Returns ErrSessionNotFound when the browser
// never joined the poll.
func (s *SessionService) MarkVoted(ctx context.Context, token, pollID string) error {
	err := repo.MarkSessionVoted(ctx, s.DB, token, pollID, s.Now())
	if errors.Is(err, repo.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// Visitors returns the audience of a poll for the admin panel, newest first.
func (s *SessionService) Visitors(ctx context.Context, pollID string) ([]domain.PollVisitor, error) {
	if _, err := repo.GetPoll(ctx, s.DB, pollID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, err
	}
	out, err := repo.ListVisitors(ctx, s.DB, pollID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.PollVisitor{}
	}
	return out, nil
}

// Poll status labels used in history entries.
const (
	PollStatusActive  = "active"
	PollStatusClosed  = "closed"
	PollStatusExpired = "expired"
	PollStatusDeleted = "deleted"
)

// HistoryEntry is one poll the session has touched, labeled with the poll's
// current title and status.
type HistoryEntry struct {
	PollID       string    `json:"poll_id"`
	Title        string    `json:"title"`
	Role         string    `json:"role"`
	HasVoted     bool      `json:"has_voted"`
	LastAccessed time.Time `json:"last_accessed"`
	Status       string    `json:"status"`
}

// History reconstructs "polls this browser has touched" from the session's
// participation rows — one indexed query, most recently active first — and
// joins in each poll's current title and status. Polls deleted since the
// visit stay listed with a deleted status so the history view can explain
// the dead link. The (session, poll) unique index guarantees one row per
// poll, so no client-side dedup pass is needed.
func (s *SessionService) History(ctx context.Context, token string) ([]HistoryEntry, error) {
	sessions, err := repo.ListPollSessionsByToken(ctx, s.DB, token)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	out := make([]HistoryEntry, 0, len(sessions))
	for _, ps := range sessions {
		entry := HistoryEntry{
			PollID:       ps.PollID,
			Role:         ps.Role,
			HasVoted:     ps.HasVoted,
			LastAccessed: ps.LastActivity,
		}
		meta, err := repo.GetPollMeta(ctx, s.DB, ps.PollID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			entry.Status = PollStatusDeleted
		case err != nil:
			return nil, err
		default:
			entry.Title = meta.Title
			switch {
			case meta.ExpiresAt != nil && now.After(*meta.ExpiresAt):
				entry.Status = PollStatusExpired
			case !meta.IsActive:
				entry.Status = PollStatusClosed
			default:
				entry.Status = PollStatusActive
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// IsCreator reports whether the session (or the authenticated user) is the
// creator of the poll. The session's role record and the poll's creator ID
// are both honored so a creator keeps admin access across sign-in state
// changes.
func (s *SessionService) IsCreator(ctx context.Context, token, userID, pollID string) (bool, error) {
	p, err := repo.GetPoll(ctx, s.DB, pollID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, ErrPollNotFound
		}
		return false, err
	}
	if userID != "" && p.CreatorID == userID {
		return true, nil
	}
	ps, err := repo.GetPollSession(ctx, s.DB, token, pollID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return ps.Role == domain.RoleCreator, nil
}

// SignOut marks the session inactive and leaves the row for the idle sweep.
func (s *SessionService) SignOut(ctx context.Context, token string) error {
	return repo.DeactivateUserSession(ctx, s.DB, token, s.Now())
}

// CleanExpired deletes sessions idle past the configured TTL, returning the
// number removed.
func (s *SessionService) CleanExpired(ctx context.Context) (int64, error) {
	return repo.DeleteIdleSessions(ctx, s.DB, s.Now().Add(-s.IdleTTL))
}

// normalizeName trims and title-cases a voter display name.
func (s *SessionService) normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return s.nameCaser.String(name)
}

// promotes reports whether joining with newRole should replace oldRole.
// viewer < voter < creator; roles never downgrade.
func promotes(oldRole, newRole string) bool {
	rank := map[string]int{domain.RoleViewer: 0, domain.RoleVoter: 1, domain.RoleCreator: 2}
	return rank[newRole] > rank[oldRole]
}
