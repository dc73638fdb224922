// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for browser
// sessions, per-poll participation rows, and visitor presence records.
//
// Poll sessions and visitors are keyed by the deterministic
// "<token>_<pollID>" ID (domain.PollSessionID), so every lookup and update is
// a primary-key operation rather than a secondary-index scan.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/khaled-alabsi/voting/internal/domain"
)

// GetUserSession fetches a session by its token, or ErrNotFound.
func GetUserSession(ctx context.Context, db *gorm.DB, token string) (*domain.UserSession, error) {
	var s domain.UserSession
	if err := db.WithContext(ctx).First(&s, "token = ?", token).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateUserSession inserts a new session row.
func CreateUserSession(ctx context.Context, db *gorm.DB, s *domain.UserSession) error {
	return db.WithContext(ctx).Create(s).Error
}

// TouchUserSession bumps LastActivity to now.
func TouchUserSession(ctx context.Context, db *gorm.DB, token string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.UserSession{}).
		Where("token = ?", token).
		Update("last_activity", now).Error
}

// BindUserSession attaches an authenticated user ID to an existing session.
func BindUserSession(ctx context.Context, db *gorm.DB, token, userID string) error {
	return db.WithContext(ctx).
		Model(&domain.UserSession{}).
		Where("token = ?", token).
		Update("user_id", userID).Error
}

// DeactivateUserSession marks a session inactive on sign-out. The row is kept
// for history; the idle sweep removes it later.
func DeactivateUserSession(ctx context.Context, db *gorm.DB, token string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.UserSession{}).
		Where("token = ?", token).
		Updates(map[string]any{"is_active": false, "last_activity": now}).Error
}

// DeleteIdleSessions removes sessions whose last activity is older than
// cutoff, returning the number of rows deleted.
func DeleteIdleSessions(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("last_activity < ?", cutoff).
		Delete(&domain.UserSession{})
	return res.RowsAffected, res.Error
}

// GetPollSession fetches the participation row for a (token, poll) pair.
func GetPollSession(ctx context.Context, db *gorm.DB, token, pollID string) (*domain.PollSession, error) {
	var s domain.PollSession
	err := db.WithContext(ctx).First(&s, "id = ?", domain.PollSessionID(token, pollID)).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SavePollSession upserts a participation row by primary key.
func SavePollSession(ctx context.Context, db *gorm.DB, s *domain.PollSession) error {
	return db.WithContext(ctx).Save(s).Error
}

// ListPollSessionsByToken returns every participation row for a session,
// most recently active first. This single indexed query replaces the cookie
// scan the product once used to rebuild a visitor's poll history.
func ListPollSessionsByToken(ctx context.Context, db *gorm.DB, token string) ([]domain.PollSession, error) {
	var out []domain.PollSession
	err := db.WithContext(ctx).
		Where("session_token = ?", token).
		Order("last_activity desc").
		Find(&out).Error
	return out, err
}

// MarkSessionVoted flips HasVoted on both the participation and visitor rows
// for the (token, poll) pair in one transaction.
func MarkSessionVoted(ctx context.Context, db *gorm.DB, token, pollID string, now time.Time) error {
	id := domain.PollSessionID(token, pollID)
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.PollSession{}).
			Where("id = ?", id).
			Updates(map[string]any{"has_voted": true, "last_activity": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&domain.PollVisitor{}).
			Where("id = ?", id).
			Updates(map[string]any{"has_voted": true, "last_seen": now}).Error
	})
}

// GetVisitor fetches the visitor row for a (token, poll) pair.
func GetVisitor(ctx context.Context, db *gorm.DB, token, pollID string) (*domain.PollVisitor, error) {
	var v domain.PollVisitor
	err := db.WithContext(ctx).First(&v, "id = ?", domain.PollSessionID(token, pollID)).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// SaveVisitor upserts a visitor presence row by primary key.
func SaveVisitor(ctx context.Context, db *gorm.DB, v *domain.PollVisitor) error {
	return db.WithContext(ctx).Save(v).Error
}

// ListVisitors returns the visitors of a poll, newest joiners first.
func ListVisitors(ctx context.Context, db *gorm.DB, pollID string) ([]domain.PollVisitor, error) {
	var out []domain.PollVisitor
	err := db.WithContext(ctx).
		Where("poll_id = ?", pollID).
		Order("joined_at desc").
		Find(&out).Error
	return out, err
}
