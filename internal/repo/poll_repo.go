// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Poll
// aggregate (poll rows plus their owned question and answer rows).
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a poll is not found, functions return ErrNotFound (an alias of
//     gorm.ErrRecordNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/khaled-alabsi/voting/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreatePoll inserts the poll row together with its question and answer rows.
// GORM persists the associations in the same transaction as the parent, so a
// failed insert leaves nothing behind.
func CreatePoll(ctx context.Context, db *gorm.DB, p *domain.Poll) error {
	return db.WithContext(ctx).Create(p).Error
}

// GetPoll fetches a poll by ID with its questions and answers preloaded in
// display order. Returns ErrNotFound when the poll does not exist.
func GetPoll(ctx context.Context, db *gorm.DB, id string) (*domain.Poll, error) {
	var p domain.Poll
	err := db.WithContext(ctx).
		Preload("Questions", func(q *gorm.DB) *gorm.DB { return q.Order("display_order asc") }).
		Preload("Answers", func(q *gorm.DB) *gorm.DB { return q.Order("question_id, display_order asc") }).
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPollsByCreator returns a page of polls owned by creatorID, newest
// first. Associations are preloaded so dashboard rows can show counts.
func ListPollsByCreator(ctx context.Context, db *gorm.DB, creatorID string, offset, limit int) ([]domain.Poll, error) {
	var out []domain.Poll
	err := db.WithContext(ctx).
		Preload("Questions", func(q *gorm.DB) *gorm.DB { return q.Order("display_order asc") }).
		Preload("Answers", func(q *gorm.DB) *gorm.DB { return q.Order("question_id, display_order asc") }).
		Where("creator_id = ?", creatorID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountPollsByCreator returns the total number of polls owned by creatorID.
func CountPollsByCreator(ctx context.Context, db *gorm.DB, creatorID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Poll{}).
		Where("creator_id = ?", creatorID).
		Count(&total).Error
	return total, err
}

// UpdatePollFields applies a partial update to the poll row and bumps
// UpdatedAt. If no rows are affected the poll is missing and ErrNotFound is
// returned.
func UpdatePollFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Poll{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePollCascade removes the poll and every row referencing it: questions,
// answers, votes, poll sessions, visitors, and idempotency records. The whole
// cascade runs in one transaction so a partial delete cannot be observed.
func DeletePollCascade(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&domain.Poll{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		for _, m := range []any{
			&domain.Question{}, &domain.Answer{}, &domain.Vote{},
			&domain.PollSession{}, &domain.PollVisitor{}, &domain.Idempotency{},
		} {
			if err := tx.Where("poll_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// AddQuestion appends a question row to an existing poll.
func AddQuestion(ctx context.Context, db *gorm.DB, q *domain.Question) error {
	return db.WithContext(ctx).Create(q).Error
}

// AddAnswer appends an answer row to an existing question.
func AddAnswer(ctx context.Context, db *gorm.DB, a *domain.Answer) error {
	return db.WithContext(ctx).Create(a).Error
}

// CountAnswersForQuestion returns how many options a question currently has,
// used to assign the display order of voter-contributed options.
func CountAnswersForQuestion(ctx context.Context, db *gorm.DB, questionID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Answer{}).
		Where("question_id = ?", questionID).
		Count(&n).Error
	return n, err
}

// PollMeta is the trimmed projection used by the session history view: just
// enough to label a previously visited poll without loading the aggregate.
type PollMeta struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	IsActive  bool       `json:"is_active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ListPollIDs returns the IDs of every poll, used by the reconciliation job
// to walk the counter set.
func ListPollIDs(ctx context.Context, db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Poll{}).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// AutoDeleteCandidate is a poll flagged for automatic removal after expiry.
type AutoDeleteCandidate struct {
	ID        string
	ExpiresAt time.Time
	AfterDays int
}

// ListAutoDeleteCandidates returns polls that opted into auto-deletion and
// have an expiry set. The caller decides whether the grace period has passed.
func ListAutoDeleteCandidates(ctx context.Context, db *gorm.DB) ([]AutoDeleteCandidate, error) {
	var rows []struct {
		ID                         string
		SettingExpiresAt           *time.Time
		SettingAutoDeleteAfterDays int
	}
	err := db.WithContext(ctx).
		Model(&domain.Poll{}).
		Select("id, setting_expires_at, setting_auto_delete_after_days").
		Where("setting_auto_delete = ? AND setting_expires_at IS NOT NULL", true).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]AutoDeleteCandidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, AutoDeleteCandidate{
			ID:        r.ID,
			ExpiresAt: *r.SettingExpiresAt,
			AfterDays: r.SettingAutoDeleteAfterDays,
		})
	}
	return out, nil
}

// GetPollMeta returns the history projection for one poll, or ErrNotFound.
func GetPollMeta(ctx context.Context, db *gorm.DB, id string) (*PollMeta, error) {
	var row struct {
		ID               string
		Title            string
		IsActive         bool
		SettingExpiresAt *time.Time
	}
	err := db.WithContext(ctx).
		Model(&domain.Poll{}).
		Select("id, title, is_active, setting_expires_at").
		Where("id = ?", id).
		Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &PollMeta{ID: row.ID, Title: row.Title, IsActive: row.IsActive, ExpiresAt: row.SettingExpiresAt}, nil
}
