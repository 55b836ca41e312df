package engine

import (
	"math"
	"sort"
)

// Neutral sub-score used when a dimension cannot be evaluated
const NeutralScore = 0.7

const (
	budgetTolerance     = 0.5
	noMatchPreference   = 0.2
	missingMustHaveCap  = 0.2
	matchedPreferenceLo = 0.5
)

// Weights are the relative importance of each sub-score in a member's option score
type Weights struct {
	Budget     float64
	Location   float64
	Preference float64
	Dietary    float64
}

// DefaultWeights returns the fixed scoring weights
func DefaultWeights() Weights {
	return Weights{
		Budget:     0.35,
		Location:   0.25,
		Preference: 0.30,
		Dietary:    0.10,
	}
}

// Sum returns the total of all weights
func (w Weights) Sum() float64 {
	return w.Budget + w.Location + w.Preference + w.Dietary
}

// Scorer computes per-member option scores. It holds no state besides its weights.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the fixed default weights
func NewScorer() *Scorer {
	return &Scorer{weights: DefaultWeights()}
}

// Score scores one (member, option) pair. Vetoed pairs short-circuit to zero.
func (s *Scorer) Score(c Constraint, o Option, multiplier float64) UserScore {
	us := UserScore{
		UserID:              c.UserID,
		OptionID:            o.ID,
		InfluenceMultiplier: multiplier,
	}

	if reasons := vetoReasons(c, o); len(reasons) > 0 {
		us.Vetoed = true
		us.VetoReasons = reasons
		return us
	}

	us.Breakdown = Breakdown{
		BudgetScore:     BudgetScore(c.Budget, o.Price),
		LocationScore:   LocationScore(c.MaxDistance, o.Distance),
		PreferenceScore: PreferenceScore(c.Preferences, c.MustHaves, o.Tags),
		DietaryScore:    1.0,
	}
	us.Score = s.combine(us.Breakdown)
	return us
}

func (s *Scorer) combine(b Breakdown) float64 {
	total := s.weights.Sum()
	if total <= 0 {
		return 0
	}
	score := (b.BudgetScore*s.weights.Budget +
		b.LocationScore*s.weights.Location +
		b.PreferenceScore*s.weights.Preference +
		b.DietaryScore*s.weights.Dietary) / total
	return clamp01(score)
}

// vetoReasons lists deal-breaker tags present on the option and unmet dietary requirements
func vetoReasons(c Constraint, o Option) []string {
	tags := tagSet(o.Tags)
	var reasons []string
	for _, db := range c.DealBreakers {
		if _, ok := tags[db]; ok {
			reasons = append(reasons, "deal_breaker:"+db)
		}
	}
	for _, req := range c.DietaryRequirements {
		if _, ok := tags[req]; !ok {
			reasons = append(reasons, "dietary:"+req)
		}
	}
	return reasons
}

// BudgetScore is 1 inside [min, max] and decays linearly to 0 once the price
// is half the budget span away from the nearest bound. Unknown prices are neutral.
func BudgetScore(b Budget, price *float64) float64 {
	if price == nil {
		return NeutralScore
	}
	p := *price
	if p >= b.Min && p <= b.Max {
		return 1.0
	}

	var bound, divergence float64
	if p < b.Min {
		bound, divergence = b.Min, b.Min-p
	} else {
		bound, divergence = b.Max, p-b.Max
	}

	span := b.Max - b.Min
	tolerance := budgetTolerance * span
	if span <= 0 || math.IsInf(span, 0) {
		tolerance = budgetTolerance * bound
	}
	if tolerance <= 0 {
		return 0
	}
	return clamp01(1 - divergence/tolerance)
}

// LocationScore compares an option's distance with a member's distance limit
func LocationScore(maxDistance, distance *float64) float64 {
	switch {
	case maxDistance == nil && distance == nil:
		return NeutralScore
	case maxDistance == nil:
		return 1.0
	case distance == nil:
		return NeutralScore
	}

	limit, d := *maxDistance, *distance
	if d <= limit {
		return 1.0
	}
	if limit <= 0 {
		return 0
	}
	return clamp01(1 - (d-limit)/limit)
}

// PreferenceScore rewards overlap between declared preferences and option tags.
// A missing must-have caps the result.
func PreferenceScore(preferences, mustHaves, tags []string) float64 {
	set := tagSet(tags)

	score := NeutralScore
	if len(preferences) > 0 {
		matches := 0
		for _, p := range preferences {
			if _, ok := set[p]; ok {
				matches++
			}
		}
		if matches == 0 {
			score = noMatchPreference
		} else {
			score = matchedPreferenceLo + (1-matchedPreferenceLo)*float64(matches)/float64(len(preferences))
		}
	}

	for _, m := range mustHaves {
		if _, ok := set[m]; !ok {
			score = math.Min(score, missingMustHaveCap)
			break
		}
	}
	return score
}

// ScoreMatrix holds every member's score for every option, in input order
type ScoreMatrix struct {
	Users   []string
	Options []Option
	scores  map[string]map[string]UserScore
}

// ScoreAll scores every (member, option) pair
func (s *Scorer) ScoreAll(constraints []Constraint, options []Option, tracker *FairnessTracker) *ScoreMatrix {
	m := &ScoreMatrix{
		Options: options,
		scores:  make(map[string]map[string]UserScore, len(constraints)),
	}
	for _, c := range constraints {
		m.Users = append(m.Users, c.UserID)
		row := make(map[string]UserScore, len(options))
		mult := tracker.Multiplier(c.UserID)
		for _, o := range options {
			row[o.ID] = s.Score(c, o, mult)
		}
		m.scores[c.UserID] = row
	}
	sort.Strings(m.Users)
	return m
}

// Get returns a member's score for an option
func (m *ScoreMatrix) Get(userID, optionID string) UserScore {
	return m.scores[userID][optionID]
}

// ForOption returns every member's score for an option, ordered by user ID
func (m *ScoreMatrix) ForOption(optionID string) []UserScore {
	out := make([]UserScore, 0, len(m.Users))
	for _, u := range m.Users {
		out = append(out, m.scores[u][optionID])
	}
	return out
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
