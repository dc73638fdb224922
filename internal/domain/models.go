// Package domain defines the persistence models for polls, questions,
// answers, and votes. These types are mapped with GORM and form the core
// data layer of the voting application.
package domain

import (
	"time"
)

// User represents an identity known to the service. Anonymous users are
// created on first contact with a generated ID and no credentials; they can
// later be upgraded to a credentialed account.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Email: unique login identifier; empty for anonymous users.
//   - DisplayName: optional human-readable name.
//   - PasswordHash: bcrypt hash; empty for anonymous users.
//   - IsAnonymous: true when the identity was minted without credentials.
type User struct {
	ID           string    `json:"id"           gorm:"type:char(36);primaryKey"`
	Email        string    `json:"email,omitempty" gorm:"type:varchar(255);uniqueIndex:ux_users_email,where:email <> ''"`
	DisplayName  string    `json:"display_name,omitempty" gorm:"type:varchar(120)"`
	PasswordHash string    `json:"-"            gorm:"type:varchar(255)"`
	IsAnonymous  bool      `json:"is_anonymous" gorm:"not null;default:true"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// PollSettings captures the per-poll behavioral toggles chosen by the
// creator. The struct is embedded into Poll and stored in the same row.
type PollSettings struct {
	AllowAnonymousVoting  bool       `json:"allowAnonymousVoting"`
	RequireAuthentication bool       `json:"requireAuthentication"`
	AllowNewQuestions     bool       `json:"allowNewQuestions"`
	AllowNewOptions       bool       `json:"allowNewOptions"`
	ShowResultsToVoters   bool       `json:"showResultsToVoters"`
	ExpiresAt             *time.Time `json:"expiresAt,omitempty"`
	AutoDelete            bool       `json:"autoDelete"`
	AutoDeleteAfterDays   int        `json:"autoDeleteAfterDays,omitempty"`
}

// Poll is the aggregate root of the voting domain. Questions and answers are
// owned rows loaded eagerly wherever a full poll is returned; TotalVotes and
// UniqueVoters are denormalized counters maintained transactionally on vote
// submission and reconciled against the votes table by a background job.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - CreatorID: identity of the poll owner; indexed for dashboard queries.
//   - ShareURL: absolute URL voters use to reach the poll.
//   - IsActive: admin kill switch; inactive polls reject votes.
type Poll struct {
	ID           string       `json:"id"          gorm:"type:char(36);primaryKey"`
	Title        string       `json:"title"       gorm:"type:varchar(255);not null"`
	Description  string       `json:"description,omitempty" gorm:"type:text"`
	CreatorID    string       `json:"creator_id"  gorm:"type:char(36);not null;index:idx_creator_polls"`
	Settings     PollSettings `json:"settings"    gorm:"embedded;embeddedPrefix:setting_"`
	IsActive     bool         `json:"is_active"   gorm:"not null;default:true"`
	ShareURL     string       `json:"shareable_link" gorm:"type:varchar(512)"`
	TotalVotes   int64        `json:"total_votes"  gorm:"not null;default:0"`
	UniqueVoters int64        `json:"unique_voters" gorm:"not null;default:0"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`

	Questions []Question `json:"questions" gorm:"foreignKey:PollID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Answers   []Answer   `json:"answers"   gorm:"foreignKey:PollID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Poll.
func (Poll) TableName() string { return "polls" }

// Question is a single prompt within a poll. Question text is immutable once
// created; voters only ever append answer options (when permitted).
//
// Fields:
//   - DisplayOrder: zero-based position within the poll.
//   - AllowNewOptions: per-question override of the poll-level setting.
//   - Required: whether a ballot must answer this question.
type Question struct {
	ID              string    `json:"id"    gorm:"type:char(36);primaryKey"`
	PollID          string    `json:"poll_id" gorm:"type:char(36);not null;index:idx_poll_questions"`
	Text            string    `json:"text"  gorm:"type:text;not null"`
	DisplayOrder    int       `json:"order" gorm:"not null"`
	AllowNewOptions bool      `json:"allowNewOptions" gorm:"not null;default:false"`
	Required        bool      `json:"required" gorm:"not null;default:false"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName returns the database table name for Question.
func (Question) TableName() string { return "questions" }

// Answer is one selectable option under a question. Voter-contributed options
// carry attribution (AddedBy/AddedAt); creator-supplied options do not.
type Answer struct {
	ID           string     `json:"id"          gorm:"type:char(36);primaryKey"`
	PollID       string     `json:"poll_id"     gorm:"type:char(36);not null;index:idx_poll_answers"`
	QuestionID   string     `json:"question_id" gorm:"type:char(36);not null;index:idx_question_answers"`
	Text         string     `json:"text"        gorm:"type:text;not null"`
	DisplayOrder int        `json:"order"       gorm:"not null"`
	AddedBy      string     `json:"added_by,omitempty" gorm:"type:char(36)"`
	AddedAt      *time.Time `json:"added_at,omitempty"`
}

// TableName returns the database table name for Answer.
func (Answer) TableName() string { return "answers" }

// Vote records a single counted choice. VoterKey is the deduplication
// identity: the authenticated user ID when present, otherwise the opaque
// session token of the submitting browser. The composite unique index is what
// enforces "at most one counted vote per (poll, question, voter identity)" —
// the check lives in the schema, not in racy client code.
//
// Fields:
//   - UserID: set only for authenticated voters; absent for anonymous votes.
//   - TimeToVoteMs: optional elapsed decision time reported by the client.
type Vote struct {
	ID           string    `json:"id"          gorm:"type:char(36);primaryKey"`
	PollID       string    `json:"poll_id"     gorm:"type:char(36);not null;index:idx_poll_votes;uniqueIndex:ux_vote_identity,priority:1"`
	QuestionID   string    `json:"question_id" gorm:"type:char(36);not null;uniqueIndex:ux_vote_identity,priority:2"`
	AnswerID     string    `json:"answer_id"   gorm:"type:char(36);not null;index:idx_answer_votes"`
	VoterKey     string    `json:"-"           gorm:"type:varchar(64);not null;uniqueIndex:ux_vote_identity,priority:3"`
	UserID       string    `json:"user_id,omitempty" gorm:"type:char(36);index"`
	VotedAt      time.Time `json:"voted_at"    gorm:"not null;index:idx_poll_votes_time"`
	TimeToVoteMs *int64    `json:"time_to_vote_ms,omitempty"`
}

// TableName returns the database table name for Vote.
func (Vote) TableName() string { return "votes" }
