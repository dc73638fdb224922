// Package services – VoteService
//
// This file implements VoteService, the application-level component that owns
// vote submission, tallying, and export. Submission enforces the poll's
// gating rules (active, not expired, authentication requirements) and writes
// the vote row plus the denormalized counter bump atomically; the schema's
// composite unique index turns repeated submissions from the same identity
// into ErrDuplicateVote instead of double counts.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// poll identifiers.
package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/khaled-alabsi/voting/internal/domain"
	"github.com/khaled-alabsi/voting/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// VoteService coordinates vote persistence, statistics, and export.
type VoteService struct {
	DB *gorm.DB

	// Now returns the current instant; overridable in tests.
	Now func() time.Time
}

// NewVoteService constructs a VoteService bound to db.
func NewVoteService(db *gorm.DB) *VoteService {
	return &VoteService{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

// Ballot is a single vote submission.
type Ballot struct {
	PollID     string
	QuestionID string
	AnswerID   string

	// UserID is the authenticated identity, empty for anonymous voters.
	UserID string
	// SessionToken identifies the submitting browser; combined with UserID
	// it forms the deduplication key.
	SessionToken string
	// TimeToVoteMs is the client-reported decision time, if any.
	TimeToVoteMs *int64
}

// voterKey derives the deduplication identity for the ballot: the user ID
// when signed in, otherwise the session token.
func (b Ballot) voterKey() string {
	if b.UserID != "" {
		return b.UserID
	}
	return b.SessionToken
}

// Submit validates the ballot against the poll's state and settings, then
// persists the vote row and counter bump in one transaction.
//
// Gating rules:
//   - the poll must exist (ErrPollNotFound), be active, and not be expired
//     at the instant of submission (ErrPollClosed)
//   - polls requiring authentication (or disallowing anonymous voting)
//     reject ballots without a user identity (ErrAuthRequired)
//   - the question must belong to the poll and the answer to the question
//     (ErrInvalidChoice)
//   - one counted vote per (poll, question, voter identity); a second
//     submission yields ErrDuplicateVote
//
// The unique-voter counter is bumped only when the identity has no prior
// vote anywhere in the poll; the existence check and the insert run inside
// the same transaction, so two concurrent first votes cannot both pass.
func (s *VoteService) Submit(ctx context.Context, b Ballot) (*domain.Vote, error) {
	tr := otel.Tracer("services/VoteService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("poll.id", b.PollID),
			attribute.String("question.id", b.QuestionID),
		),
	)
	defer span.End()

	p, err := repo.GetPoll(ctx, s.DB, b.PollID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, err
	}

	now := s.Now()
	if !p.IsActive || IsPollExpired(p, now) {
		return nil, ErrPollClosed
	}
	if b.UserID == "" && (p.Settings.RequireAuthentication || !p.Settings.AllowAnonymousVoting) {
		return nil, ErrAuthRequired
	}
	if !pollHasChoice(p, b.QuestionID, b.AnswerID) {
		return nil, ErrInvalidChoice
	}

	key := b.voterKey()
	if key == "" {
		return nil, ErrSessionNotFound
	}

	vote := &domain.Vote{
		ID:           uuid.NewString(),
		PollID:       b.PollID,
		QuestionID:   b.QuestionID,
		AnswerID:     b.AnswerID,
		VoterKey:     key,
		UserID:       b.UserID,
		VotedAt:      now,
		TimeToVoteMs: b.TimeToVoteMs,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seen, err := repo.HasVoterKey(ctx, tx, b.PollID, key)
		if err != nil {
			return err
		}
		if err := repo.CreateVote(ctx, tx, vote); err != nil {
			return err
		}
		var newVoters int64
		if !seen {
			newVoters = 1
		}
		return repo.BumpPollCounters(ctx, tx, b.PollID, 1, newVoters)
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateVote) {
			return nil, ErrDuplicateVote
		}
		return nil, err
	}
	return vote, nil
}

// Votes returns the full vote set of a poll in submission order.
func (s *VoteService) Votes(ctx context.Context, pollID string) ([]domain.Vote, error) {
	if _, err := repo.GetPoll(ctx, s.DB, pollID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, err
	}
	votes, err := repo.ListVotes(ctx, s.DB, pollID)
	if err != nil {
		return nil, err
	}
	if votes == nil {
		votes = []domain.Vote{}
	}
	return votes, nil
}

// Stats loads the poll and its full vote set and derives the statistics
// document from scratch: totals, distinct voters, mean decision time,
// per-question answer distributions, per-answer timing series, and the
// cumulative voting timeline. The denormalized poll counters are not
// consulted. Linear in the number of votes; vote volumes per poll are
// assumed small enough to aggregate in memory.
func (s *VoteService) Stats(ctx context.Context, pollID string) (*domain.PollStats, error) {
	tr := otel.Tracer("services/VoteService")
	ctx, span := tr.Start(ctx, "Stats",
		trace.WithAttributes(attribute.String("poll.id", pollID)),
	)
	defer span.End()

	p, err := repo.GetPoll(ctx, s.DB, pollID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, err
	}
	votes, err := repo.ListVotes(ctx, s.DB, pollID)
	if err != nil {
		return nil, err
	}
	return computeStats(p, votes), nil
}

// Export assembles the downloadable snapshot: poll, raw votes, and derived
// stats. A poll with zero votes exports an empty (non-nil) votes array and
// zeroed stats.
func (s *VoteService) Export(ctx context.Context, pollID string) (*domain.PollExport, error) {
	p, err := repo.GetPoll(ctx, s.DB, pollID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, err
	}
	votes, err := repo.ListVotes(ctx, s.DB, pollID)
	if err != nil {
		return nil, err
	}
	if votes == nil {
		votes = []domain.Vote{}
	}
	return &domain.PollExport{
		Poll:       *p,
		Votes:      votes,
		Stats:      *computeStats(p, votes),
		ExportedAt: s.Now(),
		Format:     domain.ExportFormatJSON,
	}, nil
}

// pollHasChoice reports whether questionID belongs to the poll and answerID
// belongs to that question.
func pollHasChoice(p *domain.Poll, questionID, answerID string) bool {
	found := false
	for i := range p.Questions {
		if p.Questions[i].ID == questionID {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	for i := range p.Answers {
		if p.Answers[i].ID == answerID && p.Answers[i].QuestionID == questionID {
			return true
		}
	}
	return false
}

// computeStats derives the full statistics document from the vote set.
func computeStats(p *domain.Poll, votes []domain.Vote) *domain.PollStats {
	stats := &domain.PollStats{
		PollID:             p.ID,
		TotalVotes:         int64(len(votes)),
		QuestionStats:      make([]domain.QuestionStats, 0, len(p.Questions)),
		TimeToVoteByOption: make(map[string][]int64, len(p.Answers)),
		VotingPattern:      make([]domain.VotingPatternPoint, 0, len(votes)),
	}

	voters := make(map[string]struct{})
	var timeSum, timeCount int64
	for i := range votes {
		voters[votes[i].VoterKey] = struct{}{}
		if t := votes[i].TimeToVoteMs; t != nil {
			timeSum += *t
			timeCount++
		}
	}
	stats.UniqueVoters = int64(len(voters))
	if timeCount > 0 {
		stats.AverageTimeToVote = float64(timeSum) / float64(timeCount)
	}

	for _, q := range p.Questions {
		qs := domain.QuestionStats{
			QuestionID:         q.ID,
			AnswerDistribution: make(map[string]int64),
		}
		// Every option appears in the distribution, including zero-vote ones.
		for _, a := range p.Answers {
			if a.QuestionID == q.ID {
				qs.AnswerDistribution[a.ID] = 0
			}
		}
		var qTimeSum, qTimeCount int64
		for i := range votes {
			v := &votes[i]
			if v.QuestionID != q.ID {
				continue
			}
			qs.TotalVotes++
			if _, ok := qs.AnswerDistribution[v.AnswerID]; ok {
				qs.AnswerDistribution[v.AnswerID]++
			}
			if v.TimeToVoteMs != nil {
				qTimeSum += *v.TimeToVoteMs
				qTimeCount++
			}
		}
		if qTimeCount > 0 {
			qs.AverageTimeToVote = float64(qTimeSum) / float64(qTimeCount)
		}
		stats.QuestionStats = append(stats.QuestionStats, qs)
	}

	for _, a := range p.Answers {
		var series []int64
		for i := range votes {
			if votes[i].AnswerID == a.ID && votes[i].TimeToVoteMs != nil {
				series = append(series, *votes[i].TimeToVoteMs)
			}
		}
		stats.TimeToVoteByOption[a.ID] = series
	}

	ordered := make([]domain.Vote, len(votes))
	copy(ordered, votes)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].VotedAt.Before(ordered[j].VotedAt)
	})
	for i := range ordered {
		stats.VotingPattern = append(stats.VotingPattern, domain.VotingPatternPoint{
			Timestamp:       ordered[i].VotedAt,
			CumulativeVotes: int64(i + 1),
			QuestionID:      ordered[i].QuestionID,
			AnswerID:        ordered[i].AnswerID,
		})
	}

	return stats
}
