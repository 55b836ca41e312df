package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func openBudget() Budget {
	return Budget{Min: 0, Max: math.Inf(1), Weight: DefaultBudgetWeight}
}

func dinnerInput() DecisionInput {
	return DecisionInput{
		DecisionID: "dinner-42",
		Options: []Option{
			{ID: "trattoria", Name: "Trattoria", Price: ptr(15), Tags: []string{"italian"}},
			{ID: "steakhouse", Name: "Steakhouse", Price: ptr(60), Tags: []string{"steak"}},
		},
		Constraints: []Constraint{
			{UserID: "u1", Budget: Budget{Min: 0, Max: 20, Weight: 0.8}, Preferences: []string{"italian"}},
			{UserID: "u2", Budget: Budget{Min: 50, Max: 100, Weight: 0.8}, Preferences: []string{"steak"}},
		},
	}
}

func TestResolveBudgetConflict(t *testing.T) {
	result, err := New().Resolve(dinnerInput())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// both options tie; the lower ID wins
	if result.SelectedOption.ID != "steakhouse" {
		t.Errorf("selected %s, expected steakhouse", result.SelectedOption.ID)
	}
	if !near(result.TotalScore, 0.63) || result.SatisfactionRate != result.TotalScore {
		t.Errorf("TotalScore = %v SatisfactionRate = %v", result.TotalScore, result.SatisfactionRate)
	}

	if len(result.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %+v", result.Conflicts)
	}
	if result.Conflicts[0].Severity != SeverityMedium {
		t.Errorf("Severity = %s, expected medium", result.Conflicts[0].Severity)
	}

	if len(result.Compromises) != 1 {
		t.Fatalf("expected 1 compromise, got %+v", result.Compromises)
	}
	c := result.Compromises[0]
	if c.Type != CompromiseBudgetExtension {
		t.Errorf("Type = %s, expected budget_extension", c.Type)
	}
	if want := "If u1 raises their budget by 28 (to 48), Steakhouse becomes acceptable to them."; c.Suggestion != want {
		t.Errorf("Suggestion = %q, expected %q", c.Suggestion, want)
	}

	if len(result.FairnessUpdates) != 2 {
		t.Fatalf("expected 2 fairness updates, got %d", len(result.FairnessUpdates))
	}
	for _, u := range result.FairnessUpdates {
		if u.Before.CurrentFairnessScore != InitialFairnessScore {
			t.Errorf("%s started at %v, expected %v", u.UserID, u.Before.CurrentFairnessScore, InitialFairnessScore)
		}
	}
}

func TestResolveBoostsUnderweightedMember(t *testing.T) {
	in := dinnerInput()
	in.FairnessSnapshot = map[string]FairnessMetrics{
		"u1": {UserID: "u1", CurrentFairnessScore: 0.2, DecisionsParticipated: 3},
	}

	result, err := New().Resolve(in)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.SelectedOption.ID != "trattoria" {
		t.Errorf("selected %s, expected trattoria once u1 is boosted", result.SelectedOption.ID)
	}
	for _, us := range result.UserScores {
		if us.UserID == "u1" && !near(us.InfluenceMultiplier, 1.5) {
			t.Errorf("u1 multiplier = %v, expected 1.5", us.InfluenceMultiplier)
		}
	}
	if !near(result.AlgorithmScore, 0.63) {
		t.Errorf("AlgorithmScore = %v, expected the unweighted 0.63", result.AlgorithmScore)
	}
}

func TestResolveNeverSelectsVetoedOption(t *testing.T) {
	in := DecisionInput{
		DecisionID: "lunch",
		Options: []Option{
			{ID: "oyster-bar", Name: "Oyster Bar", Tags: []string{"seafood"}, Rating: ptr(5)},
			{ID: "diner", Name: "Diner", Rating: ptr(2)},
		},
		Constraints: []Constraint{
			{UserID: "u1", Budget: openBudget(), Preferences: []string{"seafood"}},
			{UserID: "u2", Budget: openBudget(), DealBreakers: []string{"Seafood"}},
			{UserID: "u3", Budget: openBudget(), Preferences: []string{"seafood"}},
		},
	}

	result, err := New().Resolve(in)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if result.SelectedOption.ID != "diner" {
		t.Errorf("selected %s, expected diner", result.SelectedOption.ID)
	}
	if len(result.VetoedOptions) != 1 || result.VetoedOptions[0].Reasons[0] != "deal_breaker:seafood" {
		t.Errorf("VetoedOptions = %+v", result.VetoedOptions)
	}
	for _, a := range result.Alternatives {
		if a.Option.ID == "oyster-bar" {
			t.Error("vetoed option listed as alternative")
		}
	}
}

func TestResolveNoViableOption(t *testing.T) {
	in := DecisionInput{
		DecisionID: "snack",
		Options:    []Option{{ID: "bakery", Name: "Bakery", Tags: []string{"pastry"}}},
		Constraints: []Constraint{
			{UserID: "u1", Budget: openBudget(), DietaryRequirements: []string{"nut-free"}},
		},
	}

	_, err := New().Resolve(in)
	if !errors.Is(err, ErrNoViableOption) {
		t.Fatalf("expected ErrNoViableOption, got %v", err)
	}
	var nv *NoViableOptionError
	if !errors.As(err, &nv) {
		t.Fatalf("error %T is not a *NoViableOptionError", err)
	}
	if nv.DecisionID != "snack" || len(nv.VetoedOptions) != 1 || nv.VetoedOptions[0].Reasons[0] != "dietary:nut-free" {
		t.Errorf("diagnostics = %+v", nv)
	}
}

func TestResolveInsufficientData(t *testing.T) {
	tests := []struct {
		name  string
		input DecisionInput
	}{
		{"no options", DecisionInput{Constraints: []Constraint{{UserID: "u", Budget: openBudget()}}}},
		{"no constraints", DecisionInput{Options: []Option{{ID: "a"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Resolve(tt.input)
			if !errors.Is(err, ErrInsufficientData) {
				t.Errorf("expected ErrInsufficientData, got %v", err)
			}
		})
	}
}

func TestResolveRejectsDuplicateMembers(t *testing.T) {
	in := dinnerInput()
	in.Constraints = append(in.Constraints, in.Constraints[0])

	_, err := New().Resolve(in)
	if !errors.Is(err, ErrInvalidConstraint) {
		t.Fatalf("expected ErrInvalidConstraint, got %v", err)
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error %q does not mention the duplicate", err)
	}
}

func TestResolveReportsBudgetErrorsSeparately(t *testing.T) {
	tests := []struct {
		name    string
		budget  Budget
		field   string
		message string
	}{
		{"negative min", Budget{Min: -5, Max: 20, Weight: 0.8}, "constraints[u1].budget.min", "must not be negative"},
		{"min above max", Budget{Min: 30, Max: 20, Weight: 0.8}, "constraints[u1].budget", "min (30) must not exceed max (20)"},
		{"nan min", Budget{Min: math.NaN(), Max: 20, Weight: 0.8}, "constraints[u1].budget.min", "must be a number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := dinnerInput()
			in.Constraints[0].Budget = tt.budget

			_, err := New().Resolve(in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if len(verr.Fields) != 1 {
				t.Fatalf("expected 1 field error, got %+v", verr.Fields)
			}
			if got := verr.Fields[0]; got.Field != tt.field || got.Message != tt.message {
				t.Errorf("field error = %+v, expected %s %q", got, tt.field, tt.message)
			}
		})
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	in := dinnerInput()
	in.FairnessSnapshot = map[string]FairnessMetrics{
		"u1": {CurrentFairnessScore: 0.35},
		"u2": {CurrentFairnessScore: 0.75},
	}
	in.Options = append(in.Options, Option{ID: "cafe", Name: "Cafe", Price: ptr(30), Tags: []string{"italian", "steak"}, Rating: ptr(4.2)})

	first, err := New().Resolve(in)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	a, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	for i := 0; i < 5; i++ {
		again, err := New().Resolve(in)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		b, _ := json.Marshal(again)
		if !bytes.Equal(a, b) {
			t.Fatalf("run %d differs:\n%s\n%s", i, a, b)
		}
	}

	if in.FairnessSnapshot["u1"].DecisionsParticipated != 0 {
		t.Error("Resolve mutated the fairness snapshot")
	}
}

func TestConstraintJSONKeys(t *testing.T) {
	data, err := json.Marshal(Constraint{
		UserID:              "u1",
		Budget:              openBudget(),
		DietaryRequirements: []string{"vegan"},
		MustHaves:           []string{"patio"},
		DealBreakers:        []string{"loud"},
		MaxDistance:         ptr(3),
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	for _, key := range []string{`"userId"`, `"dietaryRequirements"`, `"mustHaves"`, `"dealBreakers"`, `"maxDistance"`} {
		if !bytes.Contains(data, []byte(key)) {
			t.Errorf("%s missing from %s", key, data)
		}
	}
	if bytes.Contains(data, []byte("_")) {
		t.Errorf("snake_case key in %s", data)
	}
}
