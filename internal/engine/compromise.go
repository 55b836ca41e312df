package engine

import (
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
)

const (
	// SplitFloor is the minimum score every involved member must give a middle-ground option
	SplitFloor = 0.5

	// SupportThreshold is the score at which a member counts as supporting a compromise
	SupportThreshold = 0.6

	bisectIterations = 60
)

var compromiseNamespace = uuid.MustParse("6f1c3f0e-5d0a-4c59-9a57-2f8d2b7c4e11")

// compromiseRule is one row of the rule table. Fallback rules only fire when
// no earlier rule matched the same conflict.
type compromiseRule struct {
	kind     CompromiseType
	fallback bool
	apply    func(g *CompromiseGenerator, c Conflict) (Compromise, bool)
}

// compromiseRules is evaluated top to bottom for every conflict
var compromiseRules = []compromiseRule{
	{kind: CompromiseSplitDifference, apply: (*CompromiseGenerator).splitDifference},
	{kind: CompromiseBudgetExtension, apply: (*CompromiseGenerator).budgetExtension},
	{kind: CompromiseRotate, fallback: true, apply: (*CompromiseGenerator).rotate},
}

// CompromiseGenerator proposes heuristic remediations for detected conflicts
type CompromiseGenerator struct {
	decisionID  string
	matrix      *ScoreMatrix
	ranked      []rankedOption
	constraints map[string]Constraint
	tracker     *FairnessTracker
	scorer      *Scorer
}

// newCompromiseGenerator creates a generator over one scoring run
func newCompromiseGenerator(decisionID string, m *ScoreMatrix, ranked []rankedOption, constraints []Constraint, tracker *FairnessTracker, scorer *Scorer) *CompromiseGenerator {
	byUser := make(map[string]Constraint, len(constraints))
	for _, c := range constraints {
		byUser[c.UserID] = c
	}
	return &CompromiseGenerator{
		decisionID:  decisionID,
		matrix:      m,
		ranked:      ranked,
		constraints: byUser,
		tracker:     tracker,
		scorer:      scorer,
	}
}

// Generate evaluates the rule table against every conflict in order
func (g *CompromiseGenerator) Generate(conflicts []Conflict) []Compromise {
	var out []Compromise
	for i, c := range conflicts {
		matched := false
		for _, rule := range compromiseRules {
			if rule.fallback && matched {
				continue
			}
			comp, ok := rule.apply(g, c)
			if !ok {
				continue
			}
			matched = true
			comp.Type = rule.kind
			comp.ID = g.compromiseID(i, comp)
			out = append(out, comp)
		}
	}
	return out
}

func (g *CompromiseGenerator) compromiseID(index int, c Compromise) string {
	name := g.decisionID + "/" + strconv.Itoa(index) + "/" + string(c.Type) + "/" + c.OptionID
	return uuid.NewSHA1(compromiseNamespace, []byte(name)).String()
}

// splitDifference looks for an uncontested option every participant can live with
func (g *CompromiseGenerator) splitDifference(c Conflict) (Compromise, bool) {
	var pick Option
	var pickMin, pickTot float64
	found := false
	for _, r := range g.ranked {
		if r.excluded || r.option.ID == c.sides[0] || r.option.ID == c.sides[1] {
			continue
		}
		lowest := math.Inf(1)
		for _, p := range c.Participants {
			lowest = math.Min(lowest, g.matrix.Get(p.UserID, r.option.ID).Score)
		}
		if lowest < SplitFloor {
			continue
		}
		if !found || lowest > pickMin+tieEpsilon || (math.Abs(lowest-pickMin) <= tieEpsilon && better(r.option, r.total, pick, pickTot)) {
			pick, pickMin, pickTot, found = r.option, lowest, r.total, true
		}
	}
	if !found {
		return Compromise{}, false
	}

	support := g.support(pick.ID, nil)
	return Compromise{
		OptionID:     pick.ID,
		Suggestion:   fmt.Sprintf("Choose %s as a middle ground: everyone involved rates it at least %d%%.", pick.Name, percent(pickMin)),
		SupportCount: support,
		Difficulty:   g.difficulty(support),
	}, true
}

// budgetExtension finds the smallest budget relaxation that makes a blocked option acceptable.
// Options vetoed for the group are never proposed.
func (g *CompromiseGenerator) budgetExtension(c Conflict) (Compromise, bool) {
	type candidate struct {
		userID   string
		option   Option
		budget   Budget
		relaxed  UserScore
		amount   float64
		relative float64
		raise    bool
	}
	var best *candidate

	for _, p := range c.Participants {
		constraint, ok := g.constraints[p.UserID]
		if !ok {
			continue
		}
		for _, side := range c.sides {
			r, ok := g.ranking(side)
			if !ok || r.excluded || r.option.Price == nil {
				continue
			}
			option := r.option
			current := g.matrix.Get(p.UserID, side)
			if current.Vetoed || current.Score >= SplitFloor || current.Breakdown.BudgetScore >= 0.5 {
				continue
			}
			budget, amount, raise, ok := g.relaxBudget(constraint, option)
			if !ok {
				continue
			}
			relaxed := constraint
			relaxed.Budget = budget
			cand := candidate{
				userID:   p.UserID,
				option:   option,
				budget:   budget,
				relaxed:  g.scorer.Score(relaxed, option, current.InfluenceMultiplier),
				amount:   amount,
				relative: amount / math.Max(*option.Price, 1),
				raise:    raise,
			}
			if best == nil || cand.relative < best.relative-tieEpsilon ||
				(math.Abs(cand.relative-best.relative) <= tieEpsilon && cand.userID < best.userID) {
				best = &cand
			}
		}
	}
	if best == nil {
		return Compromise{}, false
	}

	support := g.support(best.option.ID, map[string]UserScore{best.userID: best.relaxed})
	var suggestion string
	if best.raise {
		suggestion = fmt.Sprintf("If %s raises their budget by %s (to %s), %s becomes acceptable to them.",
			best.userID, money(best.amount), money(best.budget.Max), best.option.Name)
	} else {
		suggestion = fmt.Sprintf("If %s lowers their minimum budget by %s (to %s), %s becomes acceptable to them.",
			best.userID, money(best.amount), money(best.budget.Min), best.option.Name)
	}
	return Compromise{
		OptionID:     best.option.ID,
		Suggestion:   suggestion,
		SupportCount: support,
		Difficulty:   g.difficulty(support),
	}, true
}

// relaxBudget moves the violated bound toward the price by the smallest whole amount
// that lifts the member's score for the option to the split floor. raise reports
// whether the maximum was raised rather than the minimum lowered.
func (g *CompromiseGenerator) relaxBudget(c Constraint, o Option) (b Budget, amount float64, raise bool, ok bool) {
	price := *o.Price
	raise = price > c.Budget.Max
	if !raise && price >= c.Budget.Min {
		return Budget{}, 0, false, false
	}

	at := func(t float64) Budget {
		nb := c.Budget
		if raise {
			nb.Max = c.Budget.Max + t*(price-c.Budget.Max)
		} else {
			nb.Min = c.Budget.Min - t*(c.Budget.Min-price)
		}
		return nb
	}
	acceptable := func(nb Budget) bool {
		relaxed := c
		relaxed.Budget = nb
		return g.scorer.Score(relaxed, o, 1).Score >= SplitFloor
	}

	if !acceptable(at(1)) {
		return Budget{}, 0, false, false
	}
	lo, hi := 0.0, 1.0
	for i := 0; i < bisectIterations; i++ {
		mid := (lo + hi) / 2
		if acceptable(at(mid)) {
			hi = mid
		} else {
			lo = mid
		}
	}

	b = at(hi)
	if raise {
		b.Max = math.Min(math.Ceil(b.Max), price)
		return b, b.Max - c.Budget.Max, true, true
	}
	b.Min = math.Max(math.Floor(b.Min), price)
	return b, c.Budget.Min - b.Min, false, true
}

// rotate defers the side that has been getting its way to a future decision
func (g *CompromiseGenerator) rotate(c Conflict) (Compromise, bool) {
	sideFairness := [2]float64{}
	sideCount := [2]int{}
	best := BestOptions(g.matrix)
	for _, p := range c.Participants {
		side := 0
		if best[p.UserID].ID == c.sides[1] {
			side = 1
		}
		sideFairness[side] += g.tracker.Metrics(p.UserID).CurrentFairnessScore
		sideCount[side]++
	}
	for i := range sideFairness {
		if sideCount[i] > 0 {
			sideFairness[i] /= float64(sideCount[i])
		}
	}

	now, later := 0, 1
	r0, ok0 := g.ranking(c.sides[0])
	r1, ok1 := g.ranking(c.sides[1])
	if !ok0 || !ok1 {
		return Compromise{}, false
	}
	switch {
	case r0.excluded && r1.excluded:
		return Compromise{}, false
	case r0.excluded:
		now, later = 1, 0
	case r1.excluded:
	case math.Abs(sideFairness[0]-sideFairness[1]) > tieEpsilon:
		if sideFairness[1] < sideFairness[0] {
			now, later = 1, 0
		}
	case better(r1.option, r1.total, r0.option, r0.total):
		now, later = 1, 0
	}

	chosen, deferred := []rankedOption{r0, r1}[now], []rankedOption{r0, r1}[later]
	support := g.support(chosen.option.ID, nil)
	return Compromise{
		OptionID:     chosen.option.ID,
		Suggestion:   fmt.Sprintf("Go with %s this time and prioritize %s in the next decision.", chosen.option.Name, deferred.option.Name),
		SupportCount: support,
		Difficulty:   g.difficulty(support),
	}, true
}

// support counts members scoring the option at or above the support threshold
func (g *CompromiseGenerator) support(optionID string, overrides map[string]UserScore) int {
	n := 0
	for _, u := range g.matrix.Users {
		us := g.matrix.Get(u, optionID)
		if o, ok := overrides[u]; ok {
			us = o
		}
		if !us.Vetoed && us.Score >= SupportThreshold {
			n++
		}
	}
	return n
}

func (g *CompromiseGenerator) difficulty(support int) Difficulty {
	size := len(g.matrix.Users)
	switch {
	case support == size:
		return DifficultyLow
	case support*2 > size:
		return DifficultyMedium
	default:
		return DifficultyHigh
	}
}

func (g *CompromiseGenerator) ranking(optionID string) (rankedOption, bool) {
	for _, r := range g.ranked {
		if r.option.ID == optionID {
			return r, true
		}
	}
	return rankedOption{}, false
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
