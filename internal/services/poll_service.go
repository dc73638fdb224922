// Package services – PollService
//
// This file implements the PollService, which owns the poll aggregate
// lifecycle: creation from a submitted form, lookups, creator dashboards,
// admin updates, cascading deletion, and late additions of questions and
// answer options. It validates and normalizes input server-side (the
// browser's form checks are advisory only) and coordinates repository
// operations.
//
// Service-level errors (e.g., ErrPollNotFound, ErrInvalidPollForm) are
// returned for predictable cases so handlers can map them to HTTP results
// consistently.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/khaled-alabsi/voting/internal/domain"
	"github.com/khaled-alabsi/voting/internal/repo"
)

// QuestionForm is one question of a poll creation payload: the prompt text
// and the initial answer options in display order.
type QuestionForm struct {
	Text            string   `json:"text"`
	Answers         []string `json:"answers"`
	AllowNewOptions bool     `json:"allowNewOptions"`
	Required        bool     `json:"required"`
}

// PollForm is the poll creation payload.
type PollForm struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Questions   []QuestionForm      `json:"questions"`
	Settings    domain.PollSettings `json:"settings"`
}

// PollRepo defines the repository contract required by PollService.
// Implementations are responsible for persistence of poll aggregates.
type PollRepo interface {
	// CreatePoll inserts a poll row with its question and answer rows.
	CreatePoll(ctx context.Context, db *gorm.DB, p *domain.Poll) error

	// GetPoll fetches a poll aggregate by ID.
	GetPoll(ctx context.Context, db *gorm.DB, id string) (*domain.Poll, error)

	// ListPollsByCreator returns a page of the creator's polls.
	ListPollsByCreator(ctx context.Context, db *gorm.DB, creatorID string, offset, limit int) ([]domain.Poll, error)

	// CountPollsByCreator returns the total for pagination.
	CountPollsByCreator(ctx context.Context, db *gorm.DB, creatorID string) (int64, error)

	// UpdatePollFields applies a partial update to the poll row.
	UpdatePollFields(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error

	// DeletePollCascade removes the poll and all dependent rows.
	DeletePollCascade(ctx context.Context, db *gorm.DB, id string) error

	// AddQuestion appends a question row.
	AddQuestion(ctx context.Context, db *gorm.DB, q *domain.Question) error

	// AddAnswer appends an answer row.
	AddAnswer(ctx context.Context, db *gorm.DB, a *domain.Answer) error

	// CountAnswersForQuestion returns the current option count of a question.
	CountAnswersForQuestion(ctx context.Context, db *gorm.DB, questionID string) (int64, error)
}

// PollService provides poll-level operations. It enforces form validation and
// title rules and derives the shareable URL for new polls.
type PollService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the poll repository used by this service.
	Repo PollRepo

	// BaseURL is the public origin used to derive shareable links,
	// e.g. "https://vote.example.com".
	BaseURL string
	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
}

// NewPollService constructs a PollService with sane defaults.
func NewPollService(db *gorm.DB, r PollRepo, baseURL string) *PollService {
	return &PollService{
		DB:          db,
		Repo:        r,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		TitleMaxLen: 200,
	}
}

// Create validates the form, expands each question's answer texts into flat
// answer rows tagged with their owning question, and persists the aggregate
// in one transaction. It returns the stored poll.
//
// Validation rules:
//   - title must be non-empty after normalization
//   - at least one question, each with non-empty text
//   - every question needs at least two answer options
func (s *PollService) Create(ctx context.Context, form PollForm, creatorID string) (*domain.Poll, error) {
	title := normalizeTitle(form.Title)
	if title == "" || len(form.Questions) == 0 {
		return nil, ErrInvalidPollForm
	}
	for _, q := range form.Questions {
		if strings.TrimSpace(q.Text) == "" || len(q.Answers) < 2 {
			return nil, ErrInvalidPollForm
		}
	}

	now := time.Now().UTC()
	pollID := uuid.NewString()

	questions := make([]domain.Question, 0, len(form.Questions))
	var answers []domain.Answer
	for qi, qf := range form.Questions {
		q := domain.Question{
			ID:              uuid.NewString(),
			PollID:          pollID,
			Text:            strings.TrimSpace(qf.Text),
			DisplayOrder:    qi,
			AllowNewOptions: qf.AllowNewOptions,
			Required:        qf.Required,
			CreatedAt:       now,
		}
		questions = append(questions, q)
		for ai, text := range qf.Answers {
			answers = append(answers, domain.Answer{
				ID:           uuid.NewString(),
				PollID:       pollID,
				QuestionID:   q.ID,
				Text:         strings.TrimSpace(text),
				DisplayOrder: ai,
			})
		}
	}

	p := &domain.Poll{
		ID:          pollID,
		Title:       s.clip(title),
		Description: strings.TrimSpace(form.Description),
		CreatorID:   creatorID,
		Settings:    form.Settings,
		IsActive:    true,
		ShareURL:    s.BaseURL + "/poll/" + pollID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Questions:   questions,
		Answers:     answers,
	}
	if err := s.Repo.CreatePoll(ctx, s.DB, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns the poll aggregate, or ErrPollNotFound.
func (s *PollService) Get(ctx context.Context, id string) (*domain.Poll, error) {
	p, err := s.Repo.GetPoll(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListPage returns a page of the creator's polls, newest first, with the
// total count. It applies defaults for invalid page/pageSize.
func (s *PollService) ListPage(ctx context.Context, creatorID string, page, pageSize int) ([]domain.Poll, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountPollsByCreator(ctx, s.DB, creatorID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Poll{}, 0, nil
	}

	items, err := s.Repo.ListPollsByCreator(ctx, s.DB, creatorID, offset, pageSize)
	return items, total, err
}

// AdminUpdate is the set of creator-adjustable toggles on a live poll.
// Nil fields are left untouched.
type AdminUpdate struct {
	IsActive            *bool      `json:"is_active,omitempty"`
	ShowResultsToVoters *bool      `json:"showResultsToVoters,omitempty"`
	ExpiresAt           *time.Time `json:"expiresAt,omitempty"`
	ClearExpiry         bool       `json:"clearExpiry,omitempty"`
}

// Update applies admin toggles to a poll owned by creatorID. Ownership is
// checked before the write; a mismatch yields ErrForbidden.
func (s *PollService) Update(ctx context.Context, id, creatorID string, upd AdminUpdate) (*domain.Poll, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.CreatorID != creatorID {
		return nil, ErrForbidden
	}

	fields := map[string]any{}
	if upd.IsActive != nil {
		fields["is_active"] = *upd.IsActive
	}
	if upd.ShowResultsToVoters != nil {
		fields["setting_show_results_to_voters"] = *upd.ShowResultsToVoters
	}
	if upd.ClearExpiry {
		fields["setting_expires_at"] = nil
	} else if upd.ExpiresAt != nil {
		fields["setting_expires_at"] = upd.ExpiresAt.UTC()
	}
	if len(fields) == 0 {
		return p, nil
	}
	if err := s.Repo.UpdatePollFields(ctx, s.DB, id, fields); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes a poll owned by creatorID together with every dependent
// row (questions, answers, votes, sessions, visitors).
func (s *PollService) Delete(ctx context.Context, id, creatorID string) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.CreatorID != creatorID {
		return ErrForbidden
	}
	if err := s.Repo.DeletePollCascade(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrPollNotFound
		}
		return err
	}
	return nil
}

// AddQuestion appends a question to a poll when the poll's settings permit
// it. The new question inherits the poll-level AllowNewOptions setting and is
// never required (late questions cannot invalidate ballots already cast).
func (s *PollService) AddQuestion(ctx context.Context, pollID, text string) (*domain.Question, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrInvalidPollForm
	}
	p, err := s.Get(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if !p.Settings.AllowNewQuestions {
		return nil, ErrQuestionsLocked
	}

	q := &domain.Question{
		ID:              uuid.NewString(),
		PollID:          pollID,
		Text:            text,
		DisplayOrder:    len(p.Questions),
		AllowNewOptions: p.Settings.AllowNewOptions,
		Required:        false,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.Repo.AddQuestion(ctx, s.DB, q); err != nil {
		return nil, err
	}
	return q, nil
}

// AddAnswerOption appends a voter-contributed option to a question. The
// per-question AllowNewOptions flag overrides the poll-level setting; the
// contributor is recorded for attribution when known.
func (s *PollService) AddAnswerOption(ctx context.Context, pollID, questionID, text, addedBy string) (*domain.Answer, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrInvalidPollForm
	}
	p, err := s.Get(ctx, pollID)
	if err != nil {
		return nil, err
	}

	var question *domain.Question
	for i := range p.Questions {
		if p.Questions[i].ID == questionID {
			question = &p.Questions[i]
			break
		}
	}
	if question == nil {
		return nil, ErrInvalidChoice
	}
	if !question.AllowNewOptions {
		return nil, ErrOptionsLocked
	}

	order, err := s.Repo.CountAnswersForQuestion(ctx, s.DB, questionID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	a := &domain.Answer{
		ID:           uuid.NewString(),
		PollID:       pollID,
		QuestionID:   questionID,
		Text:         text,
		DisplayOrder: int(order),
		AddedBy:      addedBy,
		AddedAt:      &now,
	}
	if err := s.Repo.AddAnswer(ctx, s.DB, a); err != nil {
		return nil, err
	}
	return a, nil
}

// IsPollExpired reports whether the poll's optional expiry timestamp has
// passed at the given instant. A poll with no expiry never expires.
func IsPollExpired(p *domain.Poll, now time.Time) bool {
	if p.Settings.ExpiresAt == nil {
		return false
	}
	return now.After(*p.Settings.ExpiresAt)
}

// clip truncates a poll title to the configured maximum rune length.
func (s *PollService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	s = whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
	return s
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
