// Package engine turns per-member constraints, candidate options and a group's
// fairness history into a ranked, explained group decision.
//
// The engine is a pure computation: it performs no I/O, keeps no state between
// runs and never mutates its input. Fairness changes are returned as planned
// updates that the caller applies once the result has been committed.
package engine

import (
	"fmt"
	"math"
)

// Engine resolves group decisions
type Engine struct {
	scorer   *Scorer
	detector *ConflictDetector
}

// New creates an engine with the default scoring weights and thresholds
func New() *Engine {
	return &Engine{
		scorer:   NewScorer(),
		detector: NewConflictDetector(),
	}
}

// Resolve scores, aggregates and selects a winner, then derives conflicts,
// compromises, reasoning and the fairness updates for this run.
func (e *Engine) Resolve(input DecisionInput) (*DecisionResult, error) {
	if len(input.Options) == 0 || len(input.Constraints) == 0 {
		return nil, fmt.Errorf("decision %s: %w: %d options, %d constraints",
			input.DecisionID, ErrInsufficientData, len(input.Options), len(input.Constraints))
	}

	options, err := NormalizeOptions(input.Options)
	if err != nil {
		return nil, err
	}
	constraints, err := canonicalConstraints(input.Constraints)
	if err != nil {
		return nil, err
	}

	tracker := NewFairnessTracker(input.FairnessSnapshot)
	matrix := e.scorer.ScoreAll(constraints, options, tracker)
	ranked := aggregate(matrix)

	sel, err := selectOption(ranked)
	if err != nil {
		return nil, &NoViableOptionError{
			DecisionID:    input.DecisionID,
			VetoedOptions: sel.vetoed,
			UserScores:    allScores(matrix),
		}
	}

	winner := sel.winner
	userScores := matrix.ForOption(winner.option.ID)
	conflicts := e.detector.Detect(matrix)
	compromises := newCompromiseGenerator(input.DecisionID, matrix, ranked, constraints, tracker, e.scorer).Generate(conflicts)

	result := &DecisionResult{
		DecisionID:       input.DecisionID,
		SelectedOption:   winner.option,
		TotalScore:       winner.total,
		SatisfactionRate: winner.total,
		AlgorithmScore:   winner.raw,
		UserScores:       userScores,
		Alternatives:     nonNil(sel.alternatives),
		Reasoning:        GenerateDecisionReasoning(winner.option, winner.total, userScores),
		Conflicts:        nonNil(conflicts),
		Compromises:      nonNil(compromises),
		Rankings:         sel.rankings,
		VetoedOptions:    nonNil(sel.vetoed),
		FairnessUpdates:  tracker.PlanUpdates(userScores),
	}
	return result, nil
}

// canonicalConstraints re-checks already normalized constraints and rejects duplicate members
func canonicalConstraints(in []Constraint) ([]Constraint, error) {
	verr := &ValidationError{Kind: ErrInvalidConstraint}
	seen := make(map[string]bool, len(in))
	out := make([]Constraint, 0, len(in))

	for _, c := range in {
		field := "constraints[" + c.UserID + "]"
		switch {
		case c.UserID == "":
			verr.add("constraints.userId", "is required")
		case seen[c.UserID]:
			verr.add(field, "duplicate submission")
		}
		seen[c.UserID] = true

		minOK := checkNumber(verr, field+".budget.min", c.Budget.Min, true)
		maxOK := checkNumber(verr, field+".budget.max", c.Budget.Max, false)
		if minOK && c.Budget.Min < 0 {
			verr.add(field+".budget.min", "must not be negative")
			minOK = false
		}
		if maxOK && c.Budget.Max < 0 {
			verr.add(field+".budget.max", "must not be negative")
			maxOK = false
		}
		if minOK && maxOK && c.Budget.Min > c.Budget.Max {
			verr.add(field+".budget", "min (%g) must not exceed max (%g)", c.Budget.Min, c.Budget.Max)
		}
		if math.IsNaN(c.Budget.Weight) || c.Budget.Weight < 0 || c.Budget.Weight > 1 {
			verr.add(field+".budget.weight", "must be between 0 and 1")
		}
		if c.MaxDistance != nil && (math.IsNaN(*c.MaxDistance) || *c.MaxDistance < 0) {
			verr.add(field+".maxDistance", "must not be negative")
		}

		c.Preferences = NormalizeTokens(c.Preferences)
		c.DietaryRequirements = NormalizeTokens(c.DietaryRequirements)
		c.MustHaves = NormalizeTokens(c.MustHaves)
		c.DealBreakers = NormalizeTokens(c.DealBreakers)
		out = append(out, c)
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func allScores(m *ScoreMatrix) []UserScore {
	var out []UserScore
	for _, o := range m.Options {
		out = append(out, m.ForOption(o.ID)...)
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
