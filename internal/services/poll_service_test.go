package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/khaled-alabsi/voting/internal/domain"
	"github.com/khaled-alabsi/voting/internal/repo"
)

// fakePollRepo is an in-memory PollRepo. The *gorm.DB argument is ignored;
// PollService never dereferences it outside the repository.
type fakePollRepo struct {
	polls map[string]*domain.Poll

	createErr error
	updated   map[string]any
}

func newFakePollRepo() *fakePollRepo {
	return &fakePollRepo{polls: map[string]*domain.Poll{}}
}

func (f *fakePollRepo) CreatePoll(_ context.Context, _ *gorm.DB, p *domain.Poll) error {
	if f.createErr != nil {
		return f.createErr
	}
	cp := *p
	f.polls[p.ID] = &cp
	return nil
}

func (f *fakePollRepo) GetPoll(_ context.Context, _ *gorm.DB, id string) (*domain.Poll, error) {
	p, ok := f.polls[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePollRepo) ListPollsByCreator(_ context.Context, _ *gorm.DB, creatorID string, offset, limit int) ([]domain.Poll, error) {
	var out []domain.Poll
	for _, p := range f.polls {
		if p.CreatorID == creatorID {
			out = append(out, *p)
		}
	}
	if offset > len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePollRepo) CountPollsByCreator(_ context.Context, _ *gorm.DB, creatorID string) (int64, error) {
	var n int64
	for _, p := range f.polls {
		if p.CreatorID == creatorID {
			n++
		}
	}
	return n, nil
}

func (f *fakePollRepo) UpdatePollFields(_ context.Context, _ *gorm.DB, id string, fields map[string]any) error {
	p, ok := f.polls[id]
	if !ok {
		return repo.ErrNotFound
	}
	f.updated = fields
	if v, ok := fields["is_active"].(bool); ok {
		p.IsActive = v
	}
	if v, ok := fields["setting_show_results_to_voters"].(bool); ok {
		p.Settings.ShowResultsToVoters = v
	}
	return nil
}

func (f *fakePollRepo) DeletePollCascade(_ context.Context, _ *gorm.DB, id string) error {
	if _, ok := f.polls[id]; !ok {
		return repo.ErrNotFound
	}
	delete(f.polls, id)
	return nil
}

func (f *fakePollRepo) AddQuestion(_ context.Context, _ *gorm.DB, q *domain.Question) error {
	p, ok := f.polls[q.PollID]
	if !ok {
		return repo.ErrNotFound
	}
	p.Questions = append(p.Questions, *q)
	return nil
}

func (f *fakePollRepo) AddAnswer(_ context.Context, _ *gorm.DB, a *domain.Answer) error {
	p, ok := f.polls[a.PollID]
	if !ok {
		return repo.ErrNotFound
	}
	p.Answers = append(p.Answers, *a)
	return nil
}

func (f *fakePollRepo) CountAnswersForQuestion(_ context.Context, _ *gorm.DB, questionID string) (int64, error) {
	var n int64
	for _, p := range f.polls {
		for _, a := range p.Answers {
			if a.QuestionID == questionID {
				n++
			}
		}
	}
	return n, nil
}

func validForm() PollForm {
	return PollForm{
		Title: "  Team   Lunch ",
		Questions: []QuestionForm{
			{Text: "Where?", Answers: []string{"Sushi", "Pizza"}},
			{Text: "Dessert?", Answers: []string{"Yes", "No"}, Required: true},
		},
		Settings: domain.PollSettings{AllowAnonymousVoting: true, ShowResultsToVoters: true},
	}
}

func TestPollService_Create(t *testing.T) {
	f := newFakePollRepo()
	svc := NewPollService(nil, f, "https://vote.example.com/")

	p, err := svc.Create(context.Background(), validForm(), "creator-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Title != "Team Lunch" {
		t.Fatalf("title not normalized: %q", p.Title)
	}
	if p.CreatorID != "creator-1" || !p.IsActive {
		t.Fatalf("unexpected poll: %+v", p)
	}
	if p.ShareURL != "https://vote.example.com/poll/"+p.ID {
		t.Fatalf("share url: %q", p.ShareURL)
	}
	if len(p.Questions) != 2 || len(p.Answers) != 4 {
		t.Fatalf("expected 2 questions / 4 answers, got %d/%d", len(p.Questions), len(p.Answers))
	}
	// Answers are partitioned per owning question with local display order.
	for _, a := range p.Answers {
		owned := false
		for _, q := range p.Questions {
			if q.ID == a.QuestionID {
				owned = true
			}
		}
		if !owned {
			t.Fatalf("answer %q not attached to a question", a.Text)
		}
	}
	if _, ok := f.polls[p.ID]; !ok {
		t.Fatalf("poll not persisted")
	}
}

func TestPollService_Create_Validation(t *testing.T) {
	svc := NewPollService(nil, newFakePollRepo(), "http://x")

	cases := map[string]PollForm{
		"empty title": func() PollForm { f := validForm(); f.Title = "   "; return f }(),
		"no questions": func() PollForm {
			f := validForm()
			f.Questions = nil
			return f
		}(),
		"blank question text": func() PollForm {
			f := validForm()
			f.Questions[0].Text = " "
			return f
		}(),
		"single answer": func() PollForm {
			f := validForm()
			f.Questions[0].Answers = []string{"only"}
			return f
		}(),
	}
	for name, form := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), form, "c"); !errors.Is(err, ErrInvalidPollForm) {
				t.Fatalf("expected ErrInvalidPollForm, got %v", err)
			}
		})
	}
}

func TestPollService_Create_ClipsLongTitle(t *testing.T) {
	f := newFakePollRepo()
	svc := NewPollService(nil, f, "http://x")
	svc.TitleMaxLen = 10

	form := validForm()
	form.Title = strings.Repeat("ä", 25)
	p, err := svc.Create(context.Background(), form, "c")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := len([]rune(p.Title)); got != 10 {
		t.Fatalf("title rune length = %d, want 10", got)
	}
}

func TestPollService_Get_NotFound(t *testing.T) {
	svc := NewPollService(nil, newFakePollRepo(), "http://x")
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound, got %v", err)
	}
}

func TestPollService_ListPage_Defaults(t *testing.T) {
	f := newFakePollRepo()
	svc := NewPollService(nil, f, "http://x")
	ctx := context.Background()

	items, total, err := svc.ListPage(ctx, "nobody", 0, -5)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 0 || items == nil || len(items) != 0 {
		t.Fatalf("empty page should be non-nil and empty: %v, %d", items, total)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, validForm(), "c1"); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	items, total, err = svc.ListPage(ctx, "c1", 1, 2)
	if err != nil || total != 3 || len(items) != 2 {
		t.Fatalf("page 1 = %d items, total %d, %v; want 2/3", len(items), total, err)
	}
}

func TestPollService_Update_OwnershipAndToggles(t *testing.T) {
	f := newFakePollRepo()
	svc := NewPollService(nil, f, "http://x")
	ctx := context.Background()

	p, err := svc.Create(ctx, validForm(), "owner")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	off := false
	if _, err := svc.Update(ctx, p.ID, "intruder", AdminUpdate{IsActive: &off}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	got, err := svc.Update(ctx, p.ID, "owner", AdminUpdate{IsActive: &off})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.IsActive {
		t.Fatalf("is_active not applied")
	}

	// Empty update is a no-op returning the current poll.
	if _, err := svc.Update(ctx, p.ID, "owner", AdminUpdate{}); err != nil {
		t.Fatalf("no-op update: %v", err)
	}

	// ClearExpiry wins over a provided ExpiresAt.
	exp := time.Now().Add(time.Hour)
	if _, err := svc.Update(ctx, p.ID, "owner", AdminUpdate{ExpiresAt: &exp, ClearExpiry: true}); err != nil {
		t.Fatalf("clear expiry: %v", err)
	}
	if v, ok := f.updated["setting_expires_at"]; !ok || v != nil {
		t.Fatalf("expected expiry cleared, got %v", f.updated)
	}
}

func TestPollService_Delete(t *testing.T) {
	f := newFakePollRepo()
	svc := NewPollService(nil, f, "http://x")
	ctx := context.Background()

	p, _ := svc.Create(ctx, validForm(), "owner")

	if err := svc.Delete(ctx, p.ID, "intruder"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.Delete(ctx, p.ID, "owner"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, p.ID, "owner"); !errors.Is(err, ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound after delete, got %v", err)
	}
}

func TestPollService_AddQuestion_Gated(t *testing.T) {
	f := newFakePollRepo()
	svc := NewPollService(nil, f, "http://x")
	ctx := context.Background()

	locked, _ := svc.Create(ctx, validForm(), "owner")
	if _, err := svc.AddQuestion(ctx, locked.ID, "Extra?"); !errors.Is(err, ErrQuestionsLocked) {
		t.Fatalf("expected ErrQuestionsLocked, got %v", err)
	}

	form := validForm()
	form.Settings.AllowNewQuestions = true
	form.Settings.AllowNewOptions = true
	open, _ := svc.Create(ctx, form, "owner")

	q, err := svc.AddQuestion(ctx, open.ID, "  Extra?  ")
	if err != nil {
		t.Fatalf("AddQuestion: %v", err)
	}
	if q.Text != "Extra?" || q.DisplayOrder != 2 || q.Required {
		t.Fatalf("unexpected question: %+v", q)
	}
	if !q.AllowNewOptions {
		t.Fatalf("question should inherit poll-level AllowNewOptions")
	}

	if _, err := svc.AddQuestion(ctx, open.ID, "  "); !errors.Is(err, ErrInvalidPollForm) {
		t.Fatalf("blank text: got %v", err)
	}
}

func TestPollService_AddAnswerOption(t *testing.T) {
	f := newFakePollRepo()
	svc := NewPollService(nil, f, "http://x")
	ctx := context.Background()

	form := validForm()
	form.Questions[0].AllowNewOptions = true
	p, _ := svc.Create(ctx, form, "owner")
	openQ, lockedQ := p.Questions[0], p.Questions[1]

	a, err := svc.AddAnswerOption(ctx, p.ID, openQ.ID, "Tacos", "sess-1")
	if err != nil {
		t.Fatalf("AddAnswerOption: %v", err)
	}
	if a.DisplayOrder != 2 || a.AddedBy != "sess-1" || a.AddedAt == nil {
		t.Fatalf("unexpected answer: %+v", a)
	}

	if _, err := svc.AddAnswerOption(ctx, p.ID, lockedQ.ID, "Maybe", ""); !errors.Is(err, ErrOptionsLocked) {
		t.Fatalf("expected ErrOptionsLocked, got %v", err)
	}
	if _, err := svc.AddAnswerOption(ctx, p.ID, "no-such-question", "X", ""); !errors.Is(err, ErrInvalidChoice) {
		t.Fatalf("expected ErrInvalidChoice, got %v", err)
	}
	if _, err := svc.AddAnswerOption(ctx, "no-such-poll", openQ.ID, "X", ""); !errors.Is(err, ErrPollNotFound) {
		t.Fatalf("expected ErrPollNotFound, got %v", err)
	}
}

func TestIsPollExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	if IsPollExpired(&domain.Poll{}, now) {
		t.Fatalf("poll without expiry must never expire")
	}
	if !IsPollExpired(&domain.Poll{Settings: domain.PollSettings{ExpiresAt: &past}}, now) {
		t.Fatalf("past expiry should report expired")
	}
	if IsPollExpired(&domain.Poll{Settings: domain.PollSettings{ExpiresAt: &future}}, now) {
		t.Fatalf("future expiry should not report expired")
	}
	// Exactly at the boundary the poll is still open.
	if IsPollExpired(&domain.Poll{Settings: domain.PollSettings{ExpiresAt: &now}}, now) {
		t.Fatalf("boundary instant should not report expired")
	}
}
