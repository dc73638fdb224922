// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Vote rows and
// the denormalized poll counters.
//
// The votes table carries a composite unique index on
// (poll_id, question_id, voter_key); CreateVote surfaces a violation of that
// index as ErrDuplicateVote so callers never need a separate read-then-write
// existence check.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/khaled-alabsi/voting/internal/domain"
)

// ErrDuplicateVote indicates a vote already exists for the same
// (poll, question, voter identity) tuple.
var ErrDuplicateVote = errors.New("duplicate vote")

// CreateVote inserts a vote row. A unique-index violation is mapped to
// ErrDuplicateVote; other DB errors are propagated raw.
func CreateVote(ctx context.Context, db *gorm.DB, v *domain.Vote) error {
	if err := db.WithContext(ctx).Create(v).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return ErrDuplicateVote
		}
		return err
	}
	return nil
}

// ListVotes returns every vote for a poll ordered by submission time
// ascending. Returns an empty slice when the poll has no votes.
func ListVotes(ctx context.Context, db *gorm.DB, pollID string) ([]domain.Vote, error) {
	var out []domain.Vote
	err := db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Order("voted_at asc").
		Find(&out).Error
	return out, err
}

// CountVotes returns the authoritative number of vote rows for a poll.
func CountVotes(ctx context.Context, db *gorm.DB, pollID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Vote{}).
		Where("poll_id = ?", pollID).
		Count(&n).Error
	return n, err
}

// CountDistinctVoters returns the number of distinct voter keys that have
// voted in a poll.
func CountDistinctVoters(ctx context.Context, db *gorm.DB, pollID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Vote{}).
		Where("poll_id = ?", pollID).
		Distinct("voter_key").
		Count(&n).Error
	return n, err
}

// BumpPollCounters applies relative increments to the denormalized counters
// on the poll row using SQL expressions, so concurrent submissions cannot
// lose updates. Returns ErrNotFound when the poll row is missing.
func BumpPollCounters(ctx context.Context, db *gorm.DB, pollID string, votes, voters int64) error {
	res := db.WithContext(ctx).
		Model(&domain.Poll{}).
		Where("id = ?", pollID).
		Updates(map[string]any{
			"total_votes":   gorm.Expr("total_votes + ?", votes),
			"unique_voters": gorm.Expr("unique_voters + ?", voters),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// HasVoterKey reports whether the given voter key has any vote in the poll,
// used to decide whether a submission introduces a new unique voter.
func HasVoterKey(ctx context.Context, db *gorm.DB, pollID, voterKey string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Vote{}).
		Where("poll_id = ? AND voter_key = ?", pollID, voterKey).
		Count(&n).Error
	return n > 0, err
}

// PollCounters is the pair of denormalized counters stored on the poll row.
type PollCounters struct {
	TotalVotes   int64
	UniqueVoters int64
}

// GetPollCounters reads the stored counters for a poll, or ErrNotFound.
func GetPollCounters(ctx context.Context, db *gorm.DB, pollID string) (*PollCounters, error) {
	var row PollCounters
	err := db.WithContext(ctx).
		Model(&domain.Poll{}).
		Select("total_votes, unique_voters").
		Where("id = ?", pollID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// SetPollCounters overwrites the denormalized counters with authoritative
// values, used by the reconciliation job to correct drift.
func SetPollCounters(ctx context.Context, db *gorm.DB, pollID string, votes, voters int64) error {
	return db.WithContext(ctx).
		Model(&domain.Poll{}).
		Where("id = ?", pollID).
		Updates(map[string]any{
			"total_votes":   votes,
			"unique_voters": voters,
		}).Error
}

// isUniqueViolation detects unique-constraint failures across drivers that
// may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	// SQLite typically: "UNIQUE constraint failed"
	// Postgres typically: "duplicate key value violates unique constraint"
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
