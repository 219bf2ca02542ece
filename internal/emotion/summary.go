package emotion

import "math"

// predictHorizon is how far ahead PredictNext places its observation, in seconds.
const predictHorizon = 3600

// Label maps a valence/arousal pair to a human-readable category.
func Label(valence, arousal float64) string {
	switch {
	case valence > 0.5 && arousal > 0.5:
		return "Excited"
	case valence > 0.5:
		return "Happy"
	case arousal > 0.5:
		return "Anxious"
	default:
		return "Calm"
	}
}

// PredictNext extrapolates one step past the newest observation, weighting
// the latest step 0.7 and the one before it 0.3. It needs three observations;
// ok is false otherwise.
func PredictNext(t Trajectory) (next Observation, ok bool, err error) {
	if err := t.Validate(); err != nil {
		return Observation{}, false, err
	}
	if len(t) < 3 {
		return Observation{}, false, nil
	}

	latest, prev, older := t[len(t)-1], t[len(t)-2], t[len(t)-3]
	step := func(l, p, o float64) float64 {
		return clampAxis(l + (l-p)*0.7 + (p-o)*0.3)
	}

	return Observation{
		Valence:   step(latest.Valence, prev.Valence, older.Valence),
		Arousal:   step(latest.Arousal, prev.Arousal, older.Arousal),
		Dominance: step(latest.Dominance, prev.Dominance, older.Dominance),
		Timestamp: latest.Timestamp + predictHorizon,
	}, true, nil
}

// Progress is the mean absolute change across all three axes between the
// first and last observation, clamped to [0,1].
func Progress(t Trajectory) (float64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	if len(t) < 2 {
		return 0, nil
	}
	first, last := t[0], t[len(t)-1]
	change := math.Abs(last.Valence-first.Valence) +
		math.Abs(last.Arousal-first.Arousal) +
		math.Abs(last.Dominance-first.Dominance)
	return clamp01(change / 3), nil
}

// Summary bundles the analyzer outputs for one trajectory.
type Summary struct {
	Count              int          `json:"count"`
	Trend              Trend        `json:"trend"`
	Complexity         float64      `json:"complexity"`
	VarianceComplexity float64      `json:"variance_complexity"`
	AvgValence         float64      `json:"avg_valence"`
	AvgArousal         float64      `json:"avg_arousal"`
	Range              float64      `json:"range"`
	Consistency        float64      `json:"consistency"`
	Volatility         float64      `json:"volatility"`
	Progress           float64      `json:"progress"`
	Label              string       `json:"label,omitempty"`
	Predicted          *Observation `json:"predicted,omitempty"`
}

// Summarize runs every analyzer over t. An empty trajectory yields a zero
// Summary with a Stable trend.
func Summarize(t Trajectory) (Summary, error) {
	if err := t.Validate(); err != nil {
		return Summary{}, err
	}
	s := Summary{Count: len(t)}
	if len(t) == 0 {
		return s, nil
	}

	// Validation already passed, so the analyzers below cannot fail.
	s.Trend, _ = ClassifyTrend(t)
	s.Complexity, _ = Complexity(t)
	s.VarianceComplexity, _ = VarianceComplexity(t)
	s.Progress, _ = Progress(t)
	if next, ok, _ := PredictNext(t); ok {
		s.Predicted = &next
	}

	n := float64(len(t))
	for _, o := range t {
		s.AvgValence += o.Valence
		s.AvgArousal += o.Arousal
	}
	s.AvgValence /= n
	s.AvgArousal /= n

	var sqSum float64
	for _, o := range t {
		d := math.Hypot(o.Valence-s.AvgValence, o.Arousal-s.AvgArousal)
		s.Range = math.Max(s.Range, d)
		sqSum += d * d
	}
	spread := math.Sqrt(sqSum / n)
	s.Consistency = clamp01(1 - spread/math.Sqrt2)
	s.Volatility = clamp01(spread)

	newest := t[len(t)-1]
	s.Label = Label(newest.Valence, newest.Arousal)
	return s, nil
}

func clampAxis(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}
