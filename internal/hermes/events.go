package hermes

import (
	"github.com/MikeSquared-Agency/soulscore/internal/emotion"
	"github.com/MikeSquared-Agency/soulscore/internal/reputation"
)

// Subjects consumed and emitted by soulscore.
const (
	SubjectActivityRecorded  = "soulscore.activity.recorded"
	SubjectEmotionObserved   = "soulscore.emotion.observed"
	SubjectReputationUpdated = "soulscore.reputation.updated"
	SubjectEmotionTrend      = "soulscore.emotion.trend"
	SubjectRegistered        = "swarm.agent.soulscore.registered"
)

// ActivityEvent carries one activity for an identity.
type ActivityEvent struct {
	IdentityID     string             `json:"identity_id"`
	CategoryScores map[string]float64 `json:"category_scores"`
	OccurredAt     int64              `json:"occurred_at"`
	Interaction    string             `json:"interaction,omitempty"`
	Positive       bool               `json:"positive,omitempty"`
}

func (e ActivityEvent) Activity() reputation.Activity {
	return reputation.Activity{
		CategoryScores: e.CategoryScores,
		OccurredAt:     e.OccurredAt,
		Interaction:    e.Interaction,
		Positive:       e.Positive,
	}
}

// ObservationEvent carries one emotional observation for an identity.
type ObservationEvent struct {
	IdentityID string  `json:"identity_id"`
	Valence    float64 `json:"valence"`
	Arousal    float64 `json:"arousal"`
	Dominance  float64 `json:"dominance"`
	Timestamp  int64   `json:"timestamp"`
}

func (e ObservationEvent) Observation() emotion.Observation {
	return emotion.Observation{
		Valence:   e.Valence,
		Arousal:   e.Arousal,
		Dominance: e.Dominance,
		Timestamp: e.Timestamp,
	}
}

// ReputationUpdated is published after every committed update.
type ReputationUpdated struct {
	IdentityID string `json:"identity_id"`
	reputation.State
}

// TrendUpdated is published after an observation is folded in.
type TrendUpdated struct {
	IdentityID         string        `json:"identity_id"`
	Trend              emotion.Trend `json:"trend"`
	Complexity         float64       `json:"complexity"`
	VarianceComplexity float64       `json:"variance_complexity"`
	Label              string        `json:"label"`
}
