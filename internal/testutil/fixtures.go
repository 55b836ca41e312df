package testutil

import (
	"group-decision/internal/engine"
	"group-decision/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

// DinnerOptions are two restaurants that split a group with disjoint budgets
func DinnerOptions() []engine.Option {
	return []engine.Option{
		{ID: "trattoria", Name: "Trattoria", Price: floatPtr(15), Tags: []string{"italian"}},
		{ID: "steakhouse", Name: "Steakhouse", Price: floatPtr(60), Tags: []string{"steak"}},
	}
}

// DinnerDecision is a create request for the dinner options
func DinnerDecision(groupID string) models.CreateDecisionRequest {
	return models.CreateDecisionRequest{
		GroupID: groupID,
		Title:   "Team dinner",
		Options: DinnerOptions(),
	}
}

// BudgetConstraint submits a budget range with preference tags
func BudgetConstraint(min, max float64, preferences ...string) models.SubmitConstraintRequest {
	return models.SubmitConstraintRequest{
		Budget:      &engine.RawBudget{Min: floatPtr(min), Max: floatPtr(max)},
		Preferences: preferences,
	}
}
