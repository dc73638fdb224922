// Package domain defines the persistence models for the voting application.
// This file holds the derived, non-persisted result types: poll statistics
// computed from the vote set and the export envelope offered for download.
package domain

import "time"

// QuestionStats aggregates the votes cast for a single question.
type QuestionStats struct {
	QuestionID        string           `json:"questionId"`
	TotalVotes        int64            `json:"totalVotes"`
	AverageTimeToVote float64          `json:"averageTimeToVote"`
	AnswerDistribution map[string]int64 `json:"answerDistribution"`
}

// VotingPatternPoint is one step of the cumulative vote timeline, ordered by
// submission time.
type VotingPatternPoint struct {
	Timestamp       time.Time `json:"timestamp"`
	CumulativeVotes int64     `json:"cumulativeVotes"`
	QuestionID      string    `json:"questionId"`
	AnswerID        string    `json:"answerId"`
}

// PollStats is the full derived statistics document for one poll. It is
// recomputed from the vote rows on every request; the poll's denormalized
// counters are deliberately not consulted here.
type PollStats struct {
	PollID            string               `json:"pollId"`
	TotalVotes        int64                `json:"totalVotes"`
	UniqueVoters      int64                `json:"uniqueVoters"`
	AverageTimeToVote float64              `json:"averageTimeToVote"`
	QuestionStats     []QuestionStats      `json:"questionStats"`
	TimeToVoteByOption map[string][]int64  `json:"timeToVoteByOption"`
	VotingPattern     []VotingPatternPoint `json:"votingPattern"`
}

// ExportFormatJSON tags the only export encoding currently produced.
const ExportFormatJSON = "json"

// PollExport is the downloadable snapshot of a poll: the poll document, the
// raw vote rows, and the derived statistics, stamped with the export time.
type PollExport struct {
	Poll       Poll      `json:"poll"`
	Votes      []Vote    `json:"votes"`
	Stats      PollStats `json:"stats"`
	ExportedAt time.Time `json:"exportedAt"`
	Format     string    `json:"format"`
}
