// Package domain defines the persistence models for the voting application.
// This file holds the session-tracking models: an opaque browser session and
// its per-poll participation records. Earlier iterations of this product kept
// copies of this data in client-side cookie blobs; here the server-issued
// token is the only thing the browser stores, and every lookup resolves
// against these indexed tables.
package domain

import "time"

// Poll participation roles.
const (
	RoleCreator = "creator"
	RoleVoter   = "voter"
	RoleViewer  = "viewer"
)

// UserSession is one browser session, keyed by the opaque token issued in the
// session cookie. UserID is filled in once the session authenticates.
type UserSession struct {
	Token        string    `json:"token"      gorm:"type:char(36);primaryKey"`
	UserID       string    `json:"user_id,omitempty" gorm:"type:char(36);index"`
	UserAgent    string    `json:"user_agent,omitempty" gorm:"type:varchar(512)"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity" gorm:"not null;index"`
	IsActive     bool      `json:"is_active"  gorm:"not null;default:true"`
}

// TableName returns the database table name for UserSession.
func (UserSession) TableName() string { return "user_sessions" }

// PollSession associates a browser session with one poll and a role. The row
// ID is the deterministic "<token>_<pollID>" pair so joins and re-joins hit
// the same record; the unique index makes the pairing a hard invariant rather
// than a convention. A viewer session is promoted to voter in place when the
// same browser later joins to vote.
type PollSession struct {
	ID           string    `json:"id"            gorm:"type:varchar(80);primaryKey"`
	SessionToken string    `json:"session_token" gorm:"type:char(36);not null;index:idx_session_polls;uniqueIndex:ux_session_poll,priority:1"`
	PollID       string    `json:"poll_id"       gorm:"type:char(36);not null;index:idx_poll_sessions;uniqueIndex:ux_session_poll,priority:2"`
	Role         string    `json:"role"          gorm:"type:varchar(16);not null;check:role IN ('creator','voter','viewer')"`
	VoterName    string    `json:"voter_name,omitempty" gorm:"type:varchar(120)"`
	JoinedAt     time.Time `json:"joined_at"`
	LastActivity time.Time `json:"last_activity" gorm:"not null;index"`
	HasVoted     bool      `json:"has_voted"     gorm:"not null;default:false"`
	IsActive     bool      `json:"is_active"     gorm:"not null;default:true"`
}

// TableName returns the database table name for PollSession.
func (PollSession) TableName() string { return "poll_sessions" }

// PollVisitor is the audience-facing presence record shown on the admin
// panel. It mirrors a subset of PollSession but tracks last-seen rather than
// role, so lurkers show up even if they never act.
type PollVisitor struct {
	ID           string    `json:"id"            gorm:"type:varchar(80);primaryKey"`
	SessionToken string    `json:"session_token" gorm:"type:char(36);not null"`
	PollID       string    `json:"poll_id"       gorm:"type:char(36);not null;index:idx_poll_visitors"`
	VoterName    string    `json:"voter_name,omitempty" gorm:"type:varchar(120)"`
	UserAgent    string    `json:"user_agent,omitempty" gorm:"type:varchar(512)"`
	JoinedAt     time.Time `json:"joined_at"`
	LastSeen     time.Time `json:"last_seen"     gorm:"not null;index"`
	HasVoted     bool      `json:"has_voted"     gorm:"not null;default:false"`
}

// TableName returns the database table name for PollVisitor.
func (PollVisitor) TableName() string { return "poll_visitors" }

// PollSessionID builds the deterministic primary key for PollSession and
// PollVisitor rows belonging to a (session, poll) pair.
func PollSessionID(token, pollID string) string { return token + "_" + pollID }
