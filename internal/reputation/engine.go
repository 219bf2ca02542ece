// Package reputation blends activity scores into a decaying per-category map
// and recombines them into a single verification-adjusted reputation score.
package reputation

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"
)

var (
	ErrInvalidRange     = errors.New("score out of range")
	ErrEmptyActivity    = errors.New("activity has no category scores")
	ErrNonMonotonicTime = errors.New("update time precedes last update")
	ErrUnknownCategory  = errors.New("category not allowed")
	ErrInvalidConfig    = errors.New("invalid reputation config")
)

// Canonical category keys that contribute to the overall score.
const (
	EmotionalConsistency  = "emotional_consistency"
	CreativeOutputQuality = "creative_output_quality"
	CommunityEngagement   = "community_engagement"
	CrossChainActivity    = "cross_chain_activity"
	TemporalStability     = "temporal_stability"
)

// NeutralPrior is the starting value for a category seen for the first time.
const NeutralPrior = 0.5

// DefaultHalfLife is the time after which a prior category score carries half its weight.
const DefaultHalfLife = 7 * 24 * time.Hour

// DefaultWeights returns the weight table for the canonical categories.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		EmotionalConsistency:  0.25,
		CreativeOutputQuality: 0.25,
		CommunityEngagement:   0.20,
		CrossChainActivity:    0.15,
		TemporalStability:     0.15,
	}
}

// Config holds the tunables of an Engine.
type Config struct {
	HalfLife    time.Duration
	Weights     map[string]float64
	Multipliers map[VerificationLevel]float64
	// AllowedCategories restricts activity keys when non-empty.
	AllowedCategories []string
}

// DefaultConfig returns the stock half-life, weights and multipliers.
func DefaultConfig() Config {
	return Config{
		HalfLife:    DefaultHalfLife,
		Weights:     DefaultWeights(),
		Multipliers: DefaultMultipliers(),
	}
}

// Validate checks that the half-life is positive and every table entry is
// a finite non-negative number.
func (c Config) Validate() error {
	if c.HalfLife <= 0 {
		return fmt.Errorf("%w: half-life must be positive, got %s", ErrInvalidConfig, c.HalfLife)
	}
	for k, w := range c.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("%w: weight %q = %g", ErrInvalidConfig, k, w)
		}
	}
	for lvl, m := range c.Multipliers {
		if math.IsNaN(m) || math.IsInf(m, 0) || m < 0 {
			return fmt.Errorf("%w: multiplier %s = %g", ErrInvalidConfig, lvl, m)
		}
	}
	return nil
}

// Engine applies activities to reputation states. It holds only immutable
// configuration and is safe for concurrent use; serializing updates to a
// single identity is the caller's job.
type Engine struct {
	halfLife    time.Duration
	weights     map[string]float64
	order       []string
	multipliers map[VerificationLevel]float64
	allowed     map[string]struct{}
}

// NewEngine builds an Engine. Nil tables fall back to the defaults.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		halfLife:    cfg.HalfLife,
		weights:     DefaultWeights(),
		multipliers: DefaultMultipliers(),
	}
	if cfg.Weights != nil {
		e.weights = make(map[string]float64, len(cfg.Weights))
		for k, v := range cfg.Weights {
			e.weights[k] = v
		}
	}
	// Summing in a fixed order keeps Overall bit-for-bit reproducible.
	for k := range e.weights {
		e.order = append(e.order, k)
	}
	sort.Strings(e.order)

	if cfg.Multipliers != nil {
		for k, v := range cfg.Multipliers {
			e.multipliers[k] = v
		}
	}
	if len(cfg.AllowedCategories) > 0 {
		e.allowed = make(map[string]struct{}, len(cfg.AllowedCategories))
		for _, c := range cfg.AllowedCategories {
			e.allowed[c] = struct{}{}
		}
	}
	return e, nil
}

// HalfLife returns the configured decay half-life.
func (e *Engine) HalfLife() time.Duration {
	return e.halfLife
}

// Decay returns the weight a prior score keeps after elapsed seconds.
func (e *Engine) Decay(elapsed int64) float64 {
	return math.Exp(-math.Ln2 * float64(elapsed) / e.halfLife.Seconds())
}

// Apply folds activity into state as of now and returns the new state. The
// input state is never modified; on error the zero State is returned.
//
// Only categories present in the activity are decayed and blended; other
// categories keep their stored value.
func (e *Engine) Apply(state State, activity Activity, now int64) (State, error) {
	if err := e.validate(state, activity, now); err != nil {
		return State{}, err
	}

	decay := e.Decay(now - state.LastUpdated)

	scores := make(map[string]float64, len(state.CategoryScores)+len(activity.CategoryScores))
	for k, v := range state.CategoryScores {
		scores[k] = v
	}
	for category, incoming := range activity.CategoryScores {
		current, ok := scores[category]
		if !ok {
			current = NeutralPrior
		}
		scores[category] = clamp(current*decay + incoming*(1-decay))
	}

	next := State{
		OverallScore:      e.Overall(scores, state.Verification),
		CategoryScores:    scores,
		Verification:      state.Verification,
		LastUpdated:       now,
		Interactions:      state.Interactions + 1,
		PositiveFeedback:  state.PositiveFeedback,
		CommunityBuilding: state.CommunityBuilding,
		Badges:            slices.Clone(state.Badges),
	}
	if activity.Interaction != "" {
		next.CommunityBuilding = math.Min(next.CommunityBuilding+InteractionBoost(activity.Interaction), 1)
	}
	if activity.Positive {
		next.PositiveFeedback++
	}
	next.Badges = awardBadges(next)
	return next, nil
}

// Overall recombines category scores with the weight table and the
// verification multiplier. Missing weighted categories count as zero.
func (e *Engine) Overall(scores map[string]float64, level VerificationLevel) float64 {
	var base float64
	for _, category := range e.order {
		base += e.weights[category] * scores[category]
	}
	return clamp(base * e.multiplier(level))
}

func (e *Engine) multiplier(level VerificationLevel) float64 {
	if m, ok := e.multipliers[level]; ok {
		return m
	}
	return level.Multiplier()
}

func (e *Engine) validate(state State, activity Activity, now int64) error {
	if now < state.LastUpdated {
		return fmt.Errorf("%w: now=%d last_updated=%d", ErrNonMonotonicTime, now, state.LastUpdated)
	}
	if len(activity.CategoryScores) == 0 {
		return ErrEmptyActivity
	}

	keys := make([]string, 0, len(activity.CategoryScores))
	for k := range activity.CategoryScores {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := activity.CategoryScores[k]
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %s=%g", ErrInvalidRange, k, v)
		}
		if e.allowed != nil {
			if _, ok := e.allowed[k]; !ok {
				return fmt.Errorf("%w: %s", ErrUnknownCategory, k)
			}
		}
	}
	return nil
}

func clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
