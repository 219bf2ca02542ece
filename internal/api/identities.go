package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/soulscore/internal/cache"
	"github.com/MikeSquared-Agency/soulscore/internal/emotion"
	"github.com/MikeSquared-Agency/soulscore/internal/hermes"
	"github.com/MikeSquared-Agency/soulscore/internal/ledger"
	"github.com/MikeSquared-Agency/soulscore/internal/reputation"
	"github.com/MikeSquared-Agency/soulscore/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	defaultSimilarK     = 5
	maxSimilarK         = 100
)

type activityRequest struct {
	CategoryScores map[string]float64 `json:"category_scores"`
	OccurredAt     int64              `json:"occurred_at"`
	Interaction    string             `json:"interaction"`
	Positive       bool               `json:"positive"`
}

type historyResponse struct {
	Points    []reputation.Point    `json:"points"`
	Count     int                   `json:"count"`
	Analytics *reputation.Analytics `json:"analytics,omitempty"`
}

func identityParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid identity id")
		return uuid.Nil, false
	}
	return id, true
}

// getReputation handles GET /api/v1/identities/{id}/reputation
func (s *Server) getReputation(w http.ResponseWriter, r *http.Request) {
	id, ok := identityParam(w, r)
	if !ok {
		return
	}

	if s.deps.Snapshots != nil {
		st, err := s.deps.Snapshots.Get(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, st)
			return
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("snapshot read failed", "identity", id, "error", err)
		}
	}

	st, err := s.deps.Reputations.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "identity has no reputation yet")
		return
	}
	if err != nil {
		s.logger.Error("reputation read failed", "identity", id, "error", err)
		writeError(w, http.StatusInternalServerError, "reputation lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// getHistory handles GET /api/v1/identities/{id}/reputation/history
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := identityParam(w, r)
	if !ok {
		return
	}
	limit, err := intQuery(r, "limit", defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := s.deps.Reputations.History(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("history read failed", "identity", id, "error", err)
		writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if points == nil {
		points = []reputation.Point{}
	}
	resp := historyResponse{Points: points, Count: len(points)}

	st, err := s.deps.Reputations.Get(r.Context(), id)
	switch {
	case err == nil:
		a := reputation.Analyze(st, points)
		resp.Analytics = &a
	case !errors.Is(err, store.ErrNotFound):
		s.logger.Error("reputation read failed", "identity", id, "error", err)
		writeError(w, http.StatusInternalServerError, "reputation lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// postActivity handles POST /api/v1/identities/{id}/activities
//
// The first activity for an unknown identity creates its state at that
// moment; touched categories stay at the 0.5 prior until the next one.
func (s *Server) postActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := identityParam(w, r)
	if !ok {
		return
	}

	var req activityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	now := req.OccurredAt
	if now <= 0 {
		now = s.now().Unix()
	}
	st, err := s.deps.Reputations.Apply(r.Context(), id, reputation.Activity{
		CategoryScores: req.CategoryScores,
		OccurredAt:     req.OccurredAt,
		Interaction:    req.Interaction,
		Positive:       req.Positive,
	}, now)
	switch {
	case ledger.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		s.logger.Error("activity apply failed", "identity", id, "error", err)
		writeError(w, http.StatusInternalServerError, "activity apply failed")
		return
	}

	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.Publish(hermes.SubjectReputationUpdated, hermes.ReputationUpdated{
			IdentityID: id.String(),
			State:      st,
		}); err != nil {
			s.logger.Warn("failed to publish reputation update", "identity", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, st)
}

// similarObservations handles GET /api/v1/identities/{id}/observations/similar
func (s *Server) similarObservations(w http.ResponseWriter, r *http.Request) {
	id, ok := identityParam(w, r)
	if !ok {
		return
	}
	if s.deps.Observations == nil {
		writeError(w, http.StatusServiceUnavailable, "observation search unavailable")
		return
	}

	var target emotion.Observation
	for name, dst := range map[string]*float64{
		"valence":   &target.Valence,
		"arousal":   &target.Arousal,
		"dominance": &target.Dominance,
	} {
		v, err := strconv.ParseFloat(r.URL.Query().Get(name), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+name)
			return
		}
		*dst = v
	}
	if err := (emotion.Trajectory{target}).Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	k, err := intQuery(r, "k", defaultSimilarK, maxSimilarK)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	found, err := s.deps.Observations.NearestObservations(r.Context(), id, target, k)
	if err != nil {
		s.logger.Error("similarity search failed", "identity", id, "error", err)
		writeError(w, http.StatusInternalServerError, "similarity search failed")
		return
	}
	if found == nil {
		found = emotion.Trajectory{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": found, "count": len(found)})
}
