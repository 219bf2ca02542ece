package reputation

import (
	"fmt"
	"slices"
)

// VerificationLevel describes how strongly an identity has been attested.
type VerificationLevel int

const (
	Basic VerificationLevel = iota
	Verified
	Enhanced
	Premium
)

var levelTable = [...]struct {
	name       string
	multiplier float64
}{
	Basic:    {"basic", 0.8},
	Verified: {"verified", 1.0},
	Enhanced: {"enhanced", 1.2},
	Premium:  {"premium", 1.5},
}

// DefaultMultipliers returns a fresh copy of the stock multiplier table.
func DefaultMultipliers() map[VerificationLevel]float64 {
	m := make(map[VerificationLevel]float64, len(levelTable))
	for lvl, row := range levelTable {
		m[VerificationLevel(lvl)] = row.multiplier
	}
	return m
}

// Multiplier returns the stock trust factor for the level. Unknown levels
// get the Basic factor.
func (v VerificationLevel) Multiplier() float64 {
	if !v.Valid() {
		return levelTable[Basic].multiplier
	}
	return levelTable[v].multiplier
}

func (v VerificationLevel) Valid() bool {
	return v >= Basic && int(v) < len(levelTable)
}

func (v VerificationLevel) String() string {
	if !v.Valid() {
		return fmt.Sprintf("level(%d)", int(v))
	}
	return levelTable[v].name
}

func (v VerificationLevel) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("unknown verification level %d", int(v))
	}
	return []byte(v.String()), nil
}

func (v *VerificationLevel) UnmarshalText(b []byte) error {
	lvl, err := ParseVerificationLevel(string(b))
	if err != nil {
		return err
	}
	*v = lvl
	return nil
}

// ParseVerificationLevel maps a level name to its value.
func ParseVerificationLevel(s string) (VerificationLevel, error) {
	for lvl, row := range levelTable {
		if row.name == s {
			return VerificationLevel(lvl), nil
		}
	}
	return Basic, fmt.Errorf("unknown verification level %q", s)
}

// State is the reputation aggregate owned by one identity. OverallScore is
// always derived from CategoryScores and Verification; never set it directly.
type State struct {
	OverallScore   float64            `json:"overall_score"`
	CategoryScores map[string]float64 `json:"category_scores"`
	Verification   VerificationLevel  `json:"verification_level"`
	LastUpdated    int64              `json:"last_updated"`

	// Interactions counts every applied activity.
	Interactions      int64   `json:"interactions"`
	PositiveFeedback  int64   `json:"positive_feedback"`
	CommunityBuilding float64 `json:"community_building"`
	Badges            []Badge `json:"badges,omitempty"`
}

// NewState returns the initial state for an identity created at createdAt.
func NewState(createdAt int64) State {
	return State{
		CategoryScores: map[string]float64{},
		Verification:   Basic,
		LastUpdated:    createdAt,
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	c := s
	c.CategoryScores = make(map[string]float64, len(s.CategoryScores))
	for k, v := range s.CategoryScores {
		c.CategoryScores[k] = v
	}
	c.Badges = slices.Clone(s.Badges)
	return c
}

// Activity is one external event's category scores, each in [0,1].
type Activity struct {
	CategoryScores map[string]float64 `json:"category_scores"`
	OccurredAt     int64              `json:"occurred_at"`

	// Interaction optionally names the community interaction behind the
	// activity ("collaboration", "mentorship", "leadership", ...).
	Interaction string `json:"interaction,omitempty"`
	Positive    bool   `json:"positive,omitempty"`
}

// Point is one entry of an identity's overall-score history.
type Point struct {
	Score float64 `json:"score"`
	At    int64   `json:"at"`
}
