package engine

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// DefaultBudgetWeight is applied when a submission omits the budget weight
const DefaultBudgetWeight = 0.8

// RawBudget is a budget as submitted; every bound is optional
type RawBudget struct {
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Weight *float64 `json:"weight,omitempty"`
}

// RawConstraint is a constraint submission before normalization
type RawConstraint struct {
	UserID              string     `json:"userId"`
	Budget              *RawBudget `json:"budget,omitempty"`
	Preferences         []string   `json:"preferences"`
	DietaryRequirements []string   `json:"dietaryRequirements"`
	MustHaves           []string   `json:"mustHaves"`
	DealBreakers        []string   `json:"dealBreakers"`
	MaxDistance         *float64   `json:"maxDistance,omitempty"`
}

// NormalizeConstraint validates a submission and converts it to the canonical shape.
// Every violated field is reported; nothing is returned on failure.
func NormalizeConstraint(raw RawConstraint) (Constraint, error) {
	verr := &ValidationError{Kind: ErrInvalidConstraint}

	userID := strings.TrimSpace(raw.UserID)
	if userID == "" {
		verr.add("userId", "is required")
	}

	budget := Budget{Min: 0, Max: math.Inf(1), Weight: DefaultBudgetWeight}
	if raw.Budget != nil {
		if raw.Budget.Min != nil {
			budget.Min = *raw.Budget.Min
		}
		if raw.Budget.Max != nil {
			budget.Max = *raw.Budget.Max
		}
		if raw.Budget.Weight != nil {
			budget.Weight = *raw.Budget.Weight
		}
	}
	minOK := checkNumber(verr, "budget.min", budget.Min, true)
	maxOK := checkNumber(verr, "budget.max", budget.Max, false)
	if minOK && budget.Min < 0 {
		verr.add("budget.min", "must not be negative")
		minOK = false
	}
	if maxOK && budget.Max < 0 {
		verr.add("budget.max", "must not be negative")
		maxOK = false
	}
	if minOK && maxOK && budget.Min > budget.Max {
		verr.add("budget", "min (%g) must not exceed max (%g)", budget.Min, budget.Max)
	}
	if checkNumber(verr, "budget.weight", budget.Weight, true) && (budget.Weight < 0 || budget.Weight > 1) {
		verr.add("budget.weight", "must be between 0 and 1")
	}

	var maxDistance *float64
	if raw.MaxDistance != nil {
		d := *raw.MaxDistance
		if checkNumber(verr, "maxDistance", d, true) && d < 0 {
			verr.add("maxDistance", "must not be negative")
		}
		maxDistance = &d
	}

	if err := verr.orNil(); err != nil {
		return Constraint{}, err
	}

	return Constraint{
		UserID:              userID,
		Budget:              budget,
		Preferences:         NormalizeTokens(raw.Preferences),
		DietaryRequirements: NormalizeTokens(raw.DietaryRequirements),
		MustHaves:           NormalizeTokens(raw.MustHaves),
		DealBreakers:        NormalizeTokens(raw.DealBreakers),
		MaxDistance:         maxDistance,
	}, nil
}

// NormalizeOptions validates the decision's options and canonicalizes their tags
func NormalizeOptions(options []Option) ([]Option, error) {
	verr := &ValidationError{Kind: ErrInvalidOption}
	seen := make(map[string]bool, len(options))
	out := make([]Option, 0, len(options))

	for i, o := range options {
		prefix := "options[" + strconv.Itoa(i) + "]"
		id := strings.TrimSpace(o.ID)
		switch {
		case id == "":
			verr.add(prefix+".id", "is required")
		case seen[id]:
			verr.add(prefix+".id", "duplicate id %q", id)
		}
		seen[id] = true

		if o.Price != nil && checkNumber(verr, prefix+".price", *o.Price, true) && *o.Price < 0 {
			verr.add(prefix+".price", "must not be negative")
		}
		if o.Rating != nil && checkNumber(verr, prefix+".rating", *o.Rating, true) && (*o.Rating < 0 || *o.Rating > 5) {
			verr.add(prefix+".rating", "must be between 0 and 5")
		}
		if o.Distance != nil && checkNumber(verr, prefix+".distance", *o.Distance, true) && *o.Distance < 0 {
			verr.add(prefix+".distance", "must not be negative")
		}

		o.ID = id
		o.Name = strings.TrimSpace(o.Name)
		if o.Name == "" {
			o.Name = id
		}
		o.Tags = NormalizeTokens(o.Tags)
		out = append(out, o)
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizeTokens lower-cases, trims, deduplicates and sorts a token set.
// Empty and whitespace-only tokens are dropped.
func NormalizeTokens(tokens []string) []string {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		set[t] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// checkNumber reports NaN (and +Inf unless allowed) values
func checkNumber(verr *ValidationError, field string, v float64, finite bool) bool {
	if math.IsNaN(v) {
		verr.add(field, "must be a number")
		return false
	}
	if finite && math.IsInf(v, 0) {
		verr.add(field, "must be finite")
		return false
	}
	if math.IsInf(v, -1) {
		verr.add(field, "must not be negative")
		return false
	}
	return true
}
