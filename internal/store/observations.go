package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MikeSquared-Agency/soulscore/internal/emotion"
)

// vadVector packs an observation into the vector(3) column used for
// similarity lookups. The float64 columns remain the source of truth.
func vadVector(o emotion.Observation) pgvector.Vector {
	return pgvector.NewVector([]float32{float32(o.Valence), float32(o.Arousal), float32(o.Dominance)})
}

// AppendObservation records one emotional observation for an identity.
func (s *Store) AppendObservation(ctx context.Context, identityID uuid.UUID, obs emotion.Observation) error {
	return appendObservation(ctx, s.pool, identityID, obs)
}

// RecentObservations returns the newest limit observations, oldest first.
func (s *Store) RecentObservations(ctx context.Context, identityID uuid.UUID, limit int) (emotion.Trajectory, error) {
	return recentObservations(ctx, s.pool, identityID, limit)
}

func appendObservation(ctx context.Context, q querier, identityID uuid.UUID, obs emotion.Observation) error {
	_, err := q.Exec(ctx, `
		INSERT INTO emotional_observations (id, identity_id, valence, arousal, dominance, vad, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), identityID, obs.Valence, obs.Arousal, obs.Dominance, vadVector(obs), obs.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

func recentObservations(ctx context.Context, q querier, identityID uuid.UUID, limit int) (emotion.Trajectory, error) {
	rows, err := q.Query(ctx, `
		SELECT valence, arousal, dominance, observed_at
		FROM emotional_observations
		WHERE identity_id = $1
		ORDER BY observed_at DESC, seq DESC
		LIMIT $2`,
		identityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out emotion.Trajectory
	for rows.Next() {
		var o emotion.Observation
		if err := rows.Scan(&o.Valence, &o.Arousal, &o.Dominance, &o.Timestamp); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// NearestObservations returns the identity's k stored observations closest
// to obs in valence/arousal/dominance space.
func (s *Store) NearestObservations(ctx context.Context, identityID uuid.UUID, obs emotion.Observation, k int) (emotion.Trajectory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT valence, arousal, dominance, observed_at
		FROM emotional_observations
		WHERE identity_id = $1
		ORDER BY vad <-> $2
		LIMIT $3`,
		identityID, vadVector(obs), k,
	)
	if err != nil {
		return nil, fmt.Errorf("query nearest observations: %w", err)
	}
	defer rows.Close()

	var out emotion.Trajectory
	for rows.Next() {
		var o emotion.Observation
		if err := rows.Scan(&o.Valence, &o.Arousal, &o.Dominance, &o.Timestamp); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
