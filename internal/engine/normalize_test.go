package engine

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestNormalizeConstraintDefaults(t *testing.T) {
	c, err := NormalizeConstraint(RawConstraint{
		UserID:      "  alice ",
		Preferences: []string{"Italian", "italian", "  ", "Outdoor", ""},
	})
	if err != nil {
		t.Fatalf("NormalizeConstraint() error = %v", err)
	}

	if c.UserID != "alice" {
		t.Errorf("UserID = %q, expected %q", c.UserID, "alice")
	}
	if c.Budget.Min != 0 || !math.IsInf(c.Budget.Max, 1) {
		t.Errorf("Budget = %+v, expected {0, +Inf}", c.Budget)
	}
	if c.Budget.Weight != DefaultBudgetWeight {
		t.Errorf("Budget.Weight = %v, expected %v", c.Budget.Weight, DefaultBudgetWeight)
	}
	if want := []string{"italian", "outdoor"}; !reflect.DeepEqual(c.Preferences, want) {
		t.Errorf("Preferences = %v, expected %v", c.Preferences, want)
	}
	if len(c.DealBreakers) != 0 {
		t.Errorf("DealBreakers = %v, expected empty", c.DealBreakers)
	}
}

func TestNormalizeConstraintKeepsExplicitBudget(t *testing.T) {
	c, err := NormalizeConstraint(RawConstraint{
		UserID:      "bob",
		Budget:      &RawBudget{Min: ptr(10), Max: ptr(20), Weight: ptr(0.5)},
		MaxDistance: ptr(3),
	})
	if err != nil {
		t.Fatalf("NormalizeConstraint() error = %v", err)
	}
	if c.Budget != (Budget{Min: 10, Max: 20, Weight: 0.5}) {
		t.Errorf("Budget = %+v", c.Budget)
	}
	if c.MaxDistance == nil || *c.MaxDistance != 3 {
		t.Errorf("MaxDistance = %v, expected 3", c.MaxDistance)
	}
}

func TestNormalizeConstraintReportsEveryField(t *testing.T) {
	_, err := NormalizeConstraint(RawConstraint{
		UserID:      " ",
		Budget:      &RawBudget{Min: ptr(30), Max: ptr(20), Weight: ptr(1.5)},
		MaxDistance: ptr(-1),
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, ErrInvalidConstraint) {
		t.Errorf("error %v does not match ErrInvalidConstraint", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error %T is not a *ValidationError", err)
	}
	got := map[string]bool{}
	for _, f := range verr.Fields {
		got[f.Field] = true
	}
	for _, field := range []string{"userId", "budget", "budget.weight", "maxDistance"} {
		if !got[field] {
			t.Errorf("missing violation for %s in %v", field, verr.Fields)
		}
	}
}

func TestNormalizeConstraintRejectsNaN(t *testing.T) {
	_, err := NormalizeConstraint(RawConstraint{
		UserID: "carol",
		Budget: &RawBudget{Min: ptr(math.NaN())},
	})
	if !errors.Is(err, ErrInvalidConstraint) {
		t.Errorf("expected ErrInvalidConstraint, got %v", err)
	}
}

func TestNormalizeOptions(t *testing.T) {
	tests := []struct {
		name    string
		options []Option
		wantErr bool
	}{
		{
			name:    "valid options",
			options: []Option{{ID: "a", Name: "A", Price: ptr(10), Tags: []string{"Vegan"}, Rating: ptr(4)}, {ID: "b"}},
		},
		{
			name:    "duplicate id",
			options: []Option{{ID: "a"}, {ID: "a"}},
			wantErr: true,
		},
		{
			name:    "negative price",
			options: []Option{{ID: "a", Price: ptr(-1)}},
			wantErr: true,
		},
		{
			name:    "rating out of range",
			options: []Option{{ID: "a", Rating: ptr(5.5)}},
			wantErr: true,
		},
		{
			name:    "missing id",
			options: []Option{{Name: "nameless"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NormalizeOptions(tt.options)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidOption) {
					t.Errorf("error %v does not match ErrInvalidOption", err)
				}
				return
			}
			if out[0].Tags[0] != "vegan" {
				t.Errorf("tags not lower-cased: %v", out[0].Tags)
			}
			if out[1].Name != "b" {
				t.Errorf("empty name should fall back to id, got %q", out[1].Name)
			}
		})
	}
}
