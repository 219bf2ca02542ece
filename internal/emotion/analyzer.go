// Package emotion classifies emotional trajectories and scores their complexity.
// Every function here is pure; callers may invoke them concurrently.
package emotion

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidRange is returned when an observation axis lies outside [-1,1].
var ErrInvalidRange = errors.New("emotional axis out of range")

// Observation is a single valence/arousal/dominance reading.
type Observation struct {
	Valence   float64 `json:"valence"`
	Arousal   float64 `json:"arousal"`
	Dominance float64 `json:"dominance"`
	Timestamp int64   `json:"timestamp"`
}

// Trajectory is a timestamp-ascending sequence of observations.
type Trajectory []Observation

// Trend is a coarse summary of short-term directional change.
type Trend int

const (
	Stable Trend = iota
	Ascending
	Descending
	Volatile
)

var trendNames = map[Trend]string{
	Stable:     "stable",
	Ascending:  "ascending",
	Descending: "descending",
	Volatile:   "volatile",
}

func (t Trend) String() string {
	if s, ok := trendNames[t]; ok {
		return s
	}
	return "unknown"
}

// MarshalText lets trends travel as strings in JSON payloads.
func (t Trend) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Trend) UnmarshalText(b []byte) error {
	for k, v := range trendNames {
		if v == string(b) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown trend %q", string(b))
}

const (
	trendWindow     = 5
	stableThreshold = 0.1
	volatileSwing   = 0.3
)

// Validate reports ErrInvalidRange for the first observation with an axis
// outside [-1,1] or a non-finite value.
func (t Trajectory) Validate() error {
	for i, o := range t {
		if !inAxisRange(o.Valence) || !inAxisRange(o.Arousal) || !inAxisRange(o.Dominance) {
			return fmt.Errorf("%w: observation %d (v=%g a=%g d=%g)", ErrInvalidRange, i, o.Valence, o.Arousal, o.Dominance)
		}
	}
	return nil
}

// ClassifyTrend looks at the newest five observations and compares the
// oldest and newest of that window.
func ClassifyTrend(t Trajectory) (Trend, error) {
	if err := t.Validate(); err != nil {
		return Stable, err
	}
	if len(t) < 2 {
		return Stable, nil
	}

	window := t[len(t)-min(trendWindow, len(t)):]
	oldest, newest := window[0], window[len(window)-1]
	valenceDiff := newest.Valence - oldest.Valence
	arousalDiff := newest.Arousal - oldest.Arousal

	return classify(valenceDiff, arousalDiff), nil
}

// classify applies the trend rules in priority order. The final Stable is
// reached only for diffs sitting exactly on a boundary.
func classify(valenceDiff, arousalDiff float64) Trend {
	v, a := math.Abs(valenceDiff), math.Abs(arousalDiff)
	switch {
	case v < stableThreshold && a < stableThreshold:
		return Stable
	case v > volatileSwing || a > volatileSwing:
		return Volatile
	case valenceDiff > stableThreshold || arousalDiff > stableThreshold:
		return Ascending
	case valenceDiff < -stableThreshold || arousalDiff < -stableThreshold:
		return Descending
	default:
		return Stable
	}
}

// Complexity is the total (valence, arousal) path length divided by the
// number of observations, clamped to [0,1].
func Complexity(t Trajectory) (float64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	if len(t) < 2 {
		return 0, nil
	}

	var total float64
	for i := 1; i < len(t); i++ {
		total += math.Hypot(t[i].Valence-t[i-1].Valence, t[i].Arousal-t[i-1].Arousal)
	}
	return clamp01(total / float64(len(t))), nil
}

// VarianceComplexity is the square root of the summed per-axis population
// variance, clamped to [0,1]. Low values mean a consistent trajectory.
func VarianceComplexity(t Trajectory) (float64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	if len(t) == 0 {
		return 0, nil
	}

	n := float64(len(t))
	var mv, ma, md float64
	for _, o := range t {
		mv += o.Valence
		ma += o.Arousal
		md += o.Dominance
	}
	mv, ma, md = mv/n, ma/n, md/n

	var vv, va, vd float64
	for _, o := range t {
		vv += (o.Valence - mv) * (o.Valence - mv)
		va += (o.Arousal - ma) * (o.Arousal - ma)
		vd += (o.Dominance - md) * (o.Dominance - md)
	}
	return clamp01(math.Sqrt(vv/n + va/n + vd/n)), nil
}

func inAxisRange(x float64) bool {
	return !math.IsNaN(x) && x >= -1 && x <= 1
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
