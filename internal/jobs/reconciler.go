// Package jobs contains the background maintenance loops that keep the data
// layer honest without blocking request handling.
//
// The Reconciler periodically:
//   - rewrites each poll's denormalized vote counters from the votes table,
//     correcting any drift left by crashes between the vote insert and the
//     counter bump
//   - deletes browser sessions idle past their TTL
//   - removes polls that opted into auto-deletion once their post-expiry
//     grace period has passed
//   - prunes expired idempotency records
//
// One pass runs per tick; failures are logged and retried on the next tick.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/khaled-alabsi/voting/internal/repo"
)

// Reconciler owns the periodic maintenance pass.
type Reconciler struct {
	DB       *gorm.DB
	Interval time.Duration

	// SessionIdleTTL bounds how long an inactive browser session survives.
	SessionIdleTTL time.Duration

	// Now returns the current instant; overridable in tests.
	Now func() time.Time
}

// NewReconciler constructs a Reconciler with the given cadence.
func NewReconciler(db *gorm.DB, interval, sessionIdleTTL time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Reconciler{
		DB:             db,
		Interval:       interval,
		SessionIdleTTL: sessionIdleTTL,
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

// Run executes reconciliation passes on a ticker until ctx is canceled. One
// pass runs immediately on start so a restarted server converges without
// waiting a full interval.
func (r *Reconciler) Run(ctx context.Context) {
	r.Pass(ctx)

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reconciler: stopped")
			return
		case <-ticker.C:
			r.Pass(ctx)
		}
	}
}

// Pass runs one full maintenance sweep. Each stage is independent; an error
// in one is logged and the others still run.
func (r *Reconciler) Pass(ctx context.Context) {
	start := r.Now()

	fixed, err := r.reconcileCounters(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reconciler: counters")
	}

	deleted, err := r.sweepAutoDelete(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reconciler: auto-delete")
	}

	sessions, err := repo.DeleteIdleSessions(ctx, r.DB, r.Now().Add(-r.SessionIdleTTL))
	if err != nil {
		log.Error().Err(err).Msg("reconciler: idle sessions")
	}

	idem, err := repo.DeleteExpiredIdempotency(ctx, r.DB, r.Now())
	if err != nil {
		log.Error().Err(err).Msg("reconciler: idempotency")
	}

	log.Info().
		Int("counters_fixed", fixed).
		Int("polls_deleted", deleted).
		Int64("sessions_removed", sessions).
		Int64("idempotency_removed", idem).
		Dur("elapsed", time.Since(start)).
		Msg("reconciler: pass complete")
}

// reconcileCounters overwrites each poll's denormalized counters with
// authoritative counts from the votes table, returning how many polls
// needed correction.
func (r *Reconciler) reconcileCounters(ctx context.Context) (int, error) {
	ids, err := repo.ListPollIDs(ctx, r.DB)
	if err != nil {
		return 0, err
	}

	fixed := 0
	for _, id := range ids {
		votes, err := repo.CountVotes(ctx, r.DB, id)
		if err != nil {
			return fixed, err
		}
		voters, err := repo.CountDistinctVoters(ctx, r.DB, id)
		if err != nil {
			return fixed, err
		}
		meta, err := repo.GetPollCounters(ctx, r.DB, id)
		if err != nil {
			// Poll deleted between listing and counting; skip it.
			continue
		}
		if meta.TotalVotes == votes && meta.UniqueVoters == voters {
			continue
		}
		if err := repo.SetPollCounters(ctx, r.DB, id, votes, voters); err != nil {
			return fixed, err
		}
		log.Warn().
			Str("poll_id", id).
			Int64("stored_votes", meta.TotalVotes).
			Int64("actual_votes", votes).
			Int64("stored_voters", meta.UniqueVoters).
			Int64("actual_voters", voters).
			Msg("reconciler: counter drift corrected")
		fixed++
	}
	return fixed, nil
}

// sweepAutoDelete removes polls whose auto-delete grace period has elapsed,
// returning how many were removed.
func (r *Reconciler) sweepAutoDelete(ctx context.Context) (int, error) {
	candidates, err := repo.ListAutoDeleteCandidates(ctx, r.DB)
	if err != nil {
		return 0, err
	}

	now := r.Now()
	deleted := 0
	for _, c := range candidates {
		grace := time.Duration(c.AfterDays) * 24 * time.Hour
		if now.Before(c.ExpiresAt.Add(grace)) {
			continue
		}
		if err := repo.DeletePollCascade(ctx, r.DB, c.ID); err != nil {
			return deleted, err
		}
		log.Info().Str("poll_id", c.ID).Msg("reconciler: expired poll auto-deleted")
		deleted++
	}
	return deleted, nil
}
