package reputation

import (
	"math"
	"slices"
)

// Badge is an achievement. Once awarded it is never taken away.
type Badge string

const (
	Pioneer Badge = "pioneer"
	Master  Badge = "master"
)

const (
	pioneerInteractions = 100
	masterScore         = 0.9
	engagementSaturates = 100
)

// InteractionBoost is how much one interaction of the given kind adds to
// CommunityBuilding.
func InteractionBoost(kind string) float64 {
	switch kind {
	case "collaboration":
		return 0.10
	case "mentorship":
		return 0.15
	case "leadership":
		return 0.20
	default:
		return 0.05
	}
}

func awardBadges(s State) []Badge {
	badges := s.Badges
	if s.Interactions >= pioneerInteractions && !slices.Contains(badges, Pioneer) {
		badges = append(badges, Pioneer)
	}
	if s.OverallScore > masterScore && !slices.Contains(badges, Master) {
		badges = append(badges, Master)
	}
	return badges
}

// Analytics describes how an identity's overall score has moved.
type Analytics struct {
	Interactions    int64   `json:"interactions"`
	Complexity      float64 `json:"complexity"`
	CreativityIndex float64 `json:"creativity_index"`
	Engagement      float64 `json:"engagement"`
	Badges          []Badge `json:"badges"`
}

// Analyze derives trajectory analytics from a state and its score history.
// history may be in any order.
func Analyze(s State, history []Point) Analytics {
	points := slices.Clone(history)
	slices.SortStableFunc(points, func(a, b Point) int {
		switch {
		case a.At < b.At:
			return -1
		case a.At > b.At:
			return 1
		}
		return 0
	})

	complexity := TrajectoryComplexity(points)
	badges := slices.Clone(s.Badges)
	if badges == nil {
		badges = []Badge{}
	}
	return Analytics{
		Interactions:    s.Interactions,
		Complexity:      complexity,
		CreativityIndex: CreativityIndex(points),
		Engagement:      Engagement(s.Interactions, complexity),
		Badges:          badges,
	}
}

// TrajectoryComplexity is the summed absolute score change divided by the
// number of points, clamped to [0,1]. points must be oldest first.
func TrajectoryComplexity(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(points); i++ {
		total += math.Abs(points[i].Score - points[i-1].Score)
	}
	return clamp(total / float64(len(points)))
}

// CreativityIndex rewards uneven growth: ten times the standard deviation
// of successive score changes, clamped to [0,1]. Needs three points.
func CreativityIndex(points []Point) float64 {
	if len(points) < 3 {
		return 0
	}
	changes := make([]float64, len(points)-1)
	var sum float64
	for i := 1; i < len(points); i++ {
		changes[i-1] = points[i].Score - points[i-1].Score
		sum += changes[i-1]
	}
	mean := sum / float64(len(changes))
	var variance float64
	for _, c := range changes {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(len(changes))
	return clamp(math.Sqrt(variance) * 10)
}

// Engagement = 0.7·min(interactions,100)/100 + 0.3·complexity.
func Engagement(interactions int64, complexity float64) float64 {
	n := min(max(interactions, 0), engagementSaturates)
	return clamp(0.7*float64(n)/engagementSaturates + 0.3*complexity)
}
