package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/soulscore/internal/reputation"
)

// GetReputation fetches the current reputation state of an identity.
func (s *Store) GetReputation(ctx context.Context, identityID uuid.UUID) (reputation.State, error) {
	return getReputation(ctx, s.pool, identityID)
}

// SaveReputation upserts the state and appends a history point in one transaction.
func (s *Store) SaveReputation(ctx context.Context, identityID uuid.UUID, st reputation.State) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := saveReputation(ctx, tx, identityID, st); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReputationHistory returns up to limit history points, newest first.
func (s *Store) ReputationHistory(ctx context.Context, identityID uuid.UUID, limit int) ([]reputation.Point, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT overall_score, recorded_at
		FROM reputation_history
		WHERE identity_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`,
		identityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var points []reputation.Point
	for rows.Next() {
		var p reputation.Point
		if err := rows.Scan(&p.Score, &p.At); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func getReputation(ctx context.Context, q querier, identityID uuid.UUID) (reputation.State, error) {
	row := q.QueryRow(ctx, `
		SELECT overall_score, category_scores, verification_level, last_updated,
		       interactions, positive_feedback, community_building, badges
		FROM identity_reputation
		WHERE identity_id = $1`,
		identityID,
	)

	var (
		st     reputation.State
		scores []byte
		level  string
		badges []string
	)
	err := row.Scan(&st.OverallScore, &scores, &level, &st.LastUpdated,
		&st.Interactions, &st.PositiveFeedback, &st.CommunityBuilding, &badges)
	if errors.Is(err, pgx.ErrNoRows) {
		return reputation.State{}, ErrNotFound
	}
	if err != nil {
		return reputation.State{}, fmt.Errorf("get reputation: %w", err)
	}

	if err := json.Unmarshal(scores, &st.CategoryScores); err != nil {
		return reputation.State{}, fmt.Errorf("decode category scores: %w", err)
	}
	if st.CategoryScores == nil {
		st.CategoryScores = map[string]float64{}
	}
	if st.Verification, err = reputation.ParseVerificationLevel(level); err != nil {
		return reputation.State{}, fmt.Errorf("decode verification level: %w", err)
	}
	for _, b := range badges {
		st.Badges = append(st.Badges, reputation.Badge(b))
	}
	return st, nil
}

func saveReputation(ctx context.Context, q querier, identityID uuid.UUID, st reputation.State) error {
	scores, err := json.Marshal(st.CategoryScores)
	if err != nil {
		return fmt.Errorf("encode category scores: %w", err)
	}
	badges := make([]string, len(st.Badges))
	for i, b := range st.Badges {
		badges[i] = string(b)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO identity_reputation (identity_id, overall_score, category_scores, verification_level, last_updated,
			interactions, positive_feedback, community_building, badges, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (identity_id)
		DO UPDATE SET
			overall_score = $2,
			category_scores = $3,
			verification_level = $4,
			last_updated = $5,
			interactions = $6,
			positive_feedback = $7,
			community_building = $8,
			badges = $9,
			updated_at = now()`,
		identityID, st.OverallScore, scores, st.Verification.String(), st.LastUpdated,
		st.Interactions, st.PositiveFeedback, st.CommunityBuilding, badges,
	)
	if err != nil {
		return fmt.Errorf("upsert reputation: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO reputation_history (id, identity_id, overall_score, recorded_at)
		VALUES ($1, $2, $3, $4)`,
		uuid.New(), identityID, st.OverallScore, st.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}
