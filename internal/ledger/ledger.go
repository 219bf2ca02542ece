// Package ledger serializes reputation updates per identity and persists the
// result. Updates for different identities run in parallel. The in-process
// keyed lock keeps local writers off the database lock; the repository's
// Update serializes across replicas.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/soulscore/internal/emotion"
	"github.com/MikeSquared-Agency/soulscore/internal/reputation"
	"github.com/MikeSquared-Agency/soulscore/internal/store"
)

// consistencyWindow bounds how many recent observations feed the
// emotional_consistency category.
const consistencyWindow = 50

// Repository persists reputation states and emotional observations.
// GetReputation returns store.ErrNotFound for identities with no state yet.
// Update runs fn atomically and exclusively for one identity, across
// processes; fn's writes are discarded when it returns an error.
type Repository interface {
	Update(ctx context.Context, identityID uuid.UUID, fn func(store.Scope) error) error
	GetReputation(ctx context.Context, identityID uuid.UUID) (reputation.State, error)
	ReputationHistory(ctx context.Context, identityID uuid.UUID, limit int) ([]reputation.Point, error)
}

// Snapshotter receives every committed state, e.g. a read cache.
type Snapshotter interface {
	Put(ctx context.Context, identityID uuid.UUID, state reputation.State) error
}

// EmotionalUpdate is the outcome of recording one observation.
type EmotionalUpdate struct {
	State   reputation.State
	Summary emotion.Summary
}

type Ledger struct {
	repo     Repository
	engine   *reputation.Engine
	snapshot Snapshotter
	locks    *keyedMutex
	logger   *slog.Logger
}

// New builds a Ledger. snapshot may be nil.
func New(repo Repository, engine *reputation.Engine, snapshot Snapshotter, logger *slog.Logger) *Ledger {
	return &Ledger{
		repo:     repo,
		engine:   engine,
		snapshot: snapshot,
		locks:    newKeyedMutex(),
		logger:   logger,
	}
}

// Apply folds activity into the identity's reputation as of now.
//
// An identity without stored state starts at now, so its first activity
// sees no elapsed time and leaves every touched category at the 0.5
// neutral prior. Scores start to move from the second activity on.
func (l *Ledger) Apply(ctx context.Context, identityID uuid.UUID, activity reputation.Activity, now int64) (reputation.State, error) {
	unlock := l.locks.Lock(identityID.String())
	defer unlock()

	var next reputation.State
	err := l.repo.Update(ctx, identityID, func(sc store.Scope) error {
		current, err := load(ctx, sc, now)
		if err != nil {
			return err
		}
		if next, err = l.engine.Apply(current, activity, now); err != nil {
			return err
		}
		return save(ctx, sc, next)
	})
	if err != nil {
		return reputation.State{}, err
	}

	l.publishSnapshot(ctx, identityID, next)
	l.logger.Debug("reputation updated",
		"identity", identityID,
		"overall", next.OverallScore,
		"categories", len(activity.CategoryScores),
	)
	return next, nil
}

// RecordObservation appends obs to the identity's trajectory, re-derives
// emotional_consistency from the recent window and applies it at the
// observation's timestamp. The observation and the new state are written
// together or not at all.
func (l *Ledger) RecordObservation(ctx context.Context, identityID uuid.UUID, obs emotion.Observation) (EmotionalUpdate, error) {
	if err := (emotion.Trajectory{obs}).Validate(); err != nil {
		return EmotionalUpdate{}, err
	}

	unlock := l.locks.Lock(identityID.String())
	defer unlock()

	var update EmotionalUpdate
	err := l.repo.Update(ctx, identityID, func(sc store.Scope) error {
		recent, err := sc.RecentObservations(ctx, consistencyWindow-1)
		if err != nil {
			return fmt.Errorf("load trajectory: %w", err)
		}
		summary, err := emotion.Summarize(append(recent, obs))
		if err != nil {
			return err
		}

		activity := reputation.Activity{
			CategoryScores: map[string]float64{
				reputation.EmotionalConsistency: 1 - summary.VarianceComplexity,
			},
			OccurredAt: obs.Timestamp,
		}
		current, err := load(ctx, sc, obs.Timestamp)
		if err != nil {
			return err
		}
		next, err := l.engine.Apply(current, activity, obs.Timestamp)
		if err != nil {
			return err
		}

		if err := sc.AppendObservation(ctx, obs); err != nil {
			return fmt.Errorf("append observation: %w", err)
		}
		if err := save(ctx, sc, next); err != nil {
			return err
		}
		update = EmotionalUpdate{State: next, Summary: summary}
		return nil
	})
	if err != nil {
		return EmotionalUpdate{}, err
	}

	l.publishSnapshot(ctx, identityID, update.State)
	return update, nil
}

// Get returns the stored state for an identity.
func (l *Ledger) Get(ctx context.Context, identityID uuid.UUID) (reputation.State, error) {
	return l.repo.GetReputation(ctx, identityID)
}

// History returns up to limit past overall scores, newest first.
func (l *Ledger) History(ctx context.Context, identityID uuid.UUID, limit int) ([]reputation.Point, error) {
	return l.repo.ReputationHistory(ctx, identityID, limit)
}

// load returns the stored state, or a fresh one created at now.
func load(ctx context.Context, sc store.Scope, now int64) (reputation.State, error) {
	current, err := sc.GetReputation(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return reputation.NewState(now), nil
	case err != nil:
		return reputation.State{}, fmt.Errorf("load reputation: %w", err)
	}
	return current, nil
}

func save(ctx context.Context, sc store.Scope, next reputation.State) error {
	if err := sc.SaveReputation(ctx, next); err != nil {
		return fmt.Errorf("save reputation: %w", err)
	}
	return nil
}

// publishSnapshot refreshes the read cache after a commit. Failures only
// leave the cache stale.
func (l *Ledger) publishSnapshot(ctx context.Context, identityID uuid.UUID, next reputation.State) {
	if l.snapshot == nil {
		return
	}
	if err := l.snapshot.Put(ctx, identityID, next); err != nil {
		l.logger.Warn("snapshot write failed", "identity", identityID, "error", err)
	}
}

// IsValidation reports whether err is an input-contract violation rather
// than an infrastructure failure.
func IsValidation(err error) bool {
	return errors.Is(err, reputation.ErrInvalidRange) ||
		errors.Is(err, reputation.ErrEmptyActivity) ||
		errors.Is(err, reputation.ErrNonMonotonicTime) ||
		errors.Is(err, reputation.ErrUnknownCategory) ||
		errors.Is(err, emotion.ErrInvalidRange)
}
