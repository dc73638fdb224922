// Package domain defines the persistence models for the voting application.
package domain

import "time"

// Idempotency records the outcome of a previously processed mutating request,
// keyed by (voter_key, poll_id, key). It lets clients retry vote or poll
// submissions safely: a replay returns the originally produced resource
// without re-executing side effects.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	VoterKey   string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_voter_poll_key,priority:1"`
	PollID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_voter_poll_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_voter_poll_key,priority:3"`
	ResourceID string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
