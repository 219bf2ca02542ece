package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MikeSquared-Agency/soulscore/internal/emotion"
	"github.com/MikeSquared-Agency/soulscore/internal/reputation"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Scope is the view of one identity handed to an Update callback. Reads
// see the callback's own writes; nothing is visible to others until the
// callback returns nil.
type Scope interface {
	GetReputation(ctx context.Context) (reputation.State, error)
	RecentObservations(ctx context.Context, limit int) (emotion.Trajectory, error)
	SaveReputation(ctx context.Context, state reputation.State) error
	AppendObservation(ctx context.Context, obs emotion.Observation) error
}

// Update runs fn in a transaction holding an advisory lock on the identity,
// so read-modify-write cycles from different processes never interleave.
// The transaction commits only when fn returns nil.
func (s *Store) Update(ctx context.Context, identityID uuid.UUID, fn func(Scope) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, identityID.String()); err != nil {
		return fmt.Errorf("lock identity: %w", err)
	}

	if err := fn(txScope{tx: tx, id: identityID}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type txScope struct {
	tx pgx.Tx
	id uuid.UUID
}

func (t txScope) GetReputation(ctx context.Context) (reputation.State, error) {
	return getReputation(ctx, t.tx, t.id)
}

func (t txScope) RecentObservations(ctx context.Context, limit int) (emotion.Trajectory, error) {
	return recentObservations(ctx, t.tx, t.id, limit)
}

func (t txScope) SaveReputation(ctx context.Context, state reputation.State) error {
	return saveReputation(ctx, t.tx, t.id, state)
}

func (t txScope) AppendObservation(ctx context.Context, obs emotion.Observation) error {
	return appendObservation(ctx, t.tx, t.id, obs)
}
