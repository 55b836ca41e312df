package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"group-decision/internal/config"
	"group-decision/internal/engine"
	"group-decision/internal/models"
	"group-decision/internal/repository"
	"group-decision/internal/testutil"
)

func testConfig() config.DecisionConfig {
	return config.DecisionConfig{
		DefaultCollectionWindow: time.Hour,
		MaxOptions:              5,
		MaxMembers:              2,
		ResolveTimeout:          10 * time.Second,
	}
}

func newTestService(t *testing.T) (*DecisionService, *testutil.TestContainers) {
	t.Helper()
	tc := testutil.SetupTestContainers(t, false)
	svc := NewDecisionService(
		tc.DB,
		repository.NewDecisionRepository(tc.DB),
		repository.NewConstraintRepository(tc.DB, nil),
		repository.NewResultRepository(tc.DB),
		repository.NewFairnessRepository(tc.DB),
		engine.New(),
		testConfig(),
	)
	return svc, tc
}

func TestCreateDecisionValidation(t *testing.T) {
	// validation fails before any database access
	svc := NewDecisionService(nil, nil, nil, nil, nil, engine.New(), testConfig())
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name string
		req  models.CreateDecisionRequest
	}{
		{"missing group", models.CreateDecisionRequest{Title: "x", Options: testutil.DinnerOptions()}},
		{"missing title", models.CreateDecisionRequest{GroupID: "g", Options: testutil.DinnerOptions()}},
		{"no options", models.CreateDecisionRequest{GroupID: "g", Title: "x"}},
		{"too many options", models.CreateDecisionRequest{GroupID: "g", Title: "x", Options: make([]engine.Option, 6)}},
		{"past deadline", models.CreateDecisionRequest{GroupID: "g", Title: "x", Options: testutil.DinnerOptions(), Deadline: &past}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateDecision(context.Background(), "u1", tt.req)
			if !errors.Is(err, ErrInvalidDecision) {
				t.Errorf("expected ErrInvalidDecision, got %v", err)
			}
		})
	}

	dup := testutil.DinnerDecision("g")
	dup.Options[1].ID = dup.Options[0].ID
	if _, err := svc.CreateDecision(context.Background(), "u1", dup); !errors.Is(err, engine.ErrInvalidOption) {
		t.Errorf("duplicate option IDs: expected ErrInvalidOption, got %v", err)
	}
}

func TestUnknownDecisionIDs(t *testing.T) {
	svc := NewDecisionService(nil, nil, nil, nil, nil, engine.New(), testConfig())
	ctx := context.Background()

	if _, err := svc.GetDecision(ctx, "not-a-uuid"); !errors.Is(err, ErrDecisionNotFound) {
		t.Errorf("GetDecision: %v", err)
	}
	if _, err := svc.ResolveDecision(ctx, "not-a-uuid"); !errors.Is(err, ErrDecisionNotFound) {
		t.Errorf("ResolveDecision: %v", err)
	}
	if _, err := svc.SubmitConstraint(ctx, "not-a-uuid", "u1", models.SubmitConstraintRequest{}); !errors.Is(err, ErrDecisionNotFound) {
		t.Errorf("SubmitConstraint: %v", err)
	}
}

func TestResolveDecisionEndToEnd(t *testing.T) {
	svc, tc := newTestService(t)
	ctx := context.Background()

	decision, err := svc.CreateDecision(ctx, "u1", testutil.DinnerDecision("g1"))
	if err != nil {
		t.Fatalf("CreateDecision() error = %v", err)
	}
	if decision.Deadline == nil || decision.Status != models.StatusCollecting {
		t.Fatalf("decision = %+v", decision)
	}

	if _, err := svc.ResolveDecision(ctx, decision.ID); !errors.Is(err, engine.ErrInsufficientData) {
		t.Fatalf("resolving without constraints: expected ErrInsufficientData, got %v", err)
	}
	if got, _ := svc.GetDecision(ctx, decision.ID); got.Status != models.StatusCollecting {
		t.Fatalf("failed run left status %s", got.Status)
	}

	if _, err := svc.SubmitConstraint(ctx, decision.ID, "u1", testutil.BudgetConstraint(0, 20, "italian")); err != nil {
		t.Fatalf("SubmitConstraint(u1) error = %v", err)
	}
	if _, err := svc.SubmitConstraint(ctx, decision.ID, "u2", testutil.BudgetConstraint(50, 100, "steak")); err != nil {
		t.Fatalf("SubmitConstraint(u2) error = %v", err)
	}
	if _, err := svc.SubmitConstraint(ctx, decision.ID, "u3", testutil.BudgetConstraint(0, 10)); !errors.Is(err, ErrMemberLimitExceeded) {
		t.Errorf("third member: expected ErrMemberLimitExceeded, got %v", err)
	}

	stored, err := svc.ResolveDecision(ctx, decision.ID)
	if err != nil {
		t.Fatalf("ResolveDecision() error = %v", err)
	}
	if stored.Result.SelectedOption.ID != "steakhouse" || len(stored.Result.FairnessUpdates) != 2 {
		t.Errorf("result = %+v", stored.Result)
	}

	if _, err := svc.ResolveDecision(ctx, decision.ID); !errors.Is(err, ErrDecisionClosed) {
		t.Errorf("second resolve: expected ErrDecisionClosed, got %v", err)
	}
	if _, err := svc.SubmitConstraint(ctx, decision.ID, "u1", testutil.BudgetConstraint(0, 30)); !errors.Is(err, ErrDecisionClosed) {
		t.Errorf("late submission: expected ErrDecisionClosed, got %v", err)
	}

	if n := tc.CountRows(t, "fairness_events", "decision_id = $1", decision.ID); n != 2 {
		t.Errorf("fairness events = %d, expected 2", n)
	}

	latest, err := svc.GetResult(ctx, decision.ID)
	if err != nil || latest.ID != stored.ID {
		t.Errorf("GetResult() = %+v, %v", latest, err)
	}

	alt, err := svc.ExplainAlternative(ctx, decision.ID, "trattoria")
	if err != nil {
		t.Fatalf("ExplainAlternative() error = %v", err)
	}
	if alt.SelectedOptionID != "steakhouse" || alt.Explanation == "" {
		t.Errorf("explanation = %+v", alt)
	}
	if _, err := svc.ExplainAlternative(ctx, decision.ID, "bistro"); !errors.Is(err, ErrOptionNotFound) {
		t.Errorf("unknown option: expected ErrOptionNotFound, got %v", err)
	}

	fairness, err := svc.ExplainFairness(ctx, "g1", "u1")
	if err != nil {
		t.Fatalf("ExplainFairness() error = %v", err)
	}
	if fairness.Metrics.DecisionsParticipated != 1 {
		t.Errorf("metrics = %+v", fairness.Metrics)
	}

	newcomer, err := svc.ExplainFairness(ctx, "g1", "u9")
	if err != nil || newcomer.Metrics.CurrentFairnessScore != engine.InitialFairnessScore {
		t.Errorf("newcomer = %+v, %v", newcomer, err)
	}
}

func TestResolveDecisionNoViableOption(t *testing.T) {
	svc, tc := newTestService(t)
	ctx := context.Background()

	decision, err := svc.CreateDecision(ctx, "u1", testutil.DinnerDecision("g1"))
	if err != nil {
		t.Fatalf("CreateDecision() error = %v", err)
	}
	req := models.SubmitConstraintRequest{DealBreakers: []string{"italian", "steak"}}
	if _, err := svc.SubmitConstraint(ctx, decision.ID, "u1", req); err != nil {
		t.Fatalf("SubmitConstraint() error = %v", err)
	}

	_, err = svc.ResolveDecision(ctx, decision.ID)
	var noViable *engine.NoViableOptionError
	if !errors.As(err, &noViable) || len(noViable.VetoedOptions) != 2 {
		t.Fatalf("expected NoViableOptionError with 2 vetoed options, got %v", err)
	}

	got, _ := svc.GetDecision(ctx, decision.ID)
	if got.Status != models.StatusNoViableOption {
		t.Errorf("status = %s", got.Status)
	}
	stored, err := svc.GetResult(ctx, decision.ID)
	if err != nil || stored.NoViableOption == nil {
		t.Errorf("stored report = %+v, %v", stored, err)
	}
	if n := tc.CountRows(t, "fairness_metrics", "group_id = $1", "g1"); n != 0 {
		t.Errorf("fairness was updated for a run without winner: %d rows", n)
	}
}

func TestResolveDecisionRecoversFromNoViableOption(t *testing.T) {
	svc, tc := newTestService(t)
	ctx := context.Background()

	decision, err := svc.CreateDecision(ctx, "u1", testutil.DinnerDecision("g1"))
	if err != nil {
		t.Fatalf("CreateDecision() error = %v", err)
	}
	vetoAll := models.SubmitConstraintRequest{DealBreakers: []string{"italian", "steak"}}
	if _, err := svc.SubmitConstraint(ctx, decision.ID, "u1", vetoAll); err != nil {
		t.Fatalf("SubmitConstraint() error = %v", err)
	}
	if _, err := svc.ResolveDecision(ctx, decision.ID); !errors.Is(err, engine.ErrNoViableOption) {
		t.Fatalf("expected ErrNoViableOption, got %v", err)
	}

	// an unchanged re-run is allowed and reaches the same outcome
	if _, err := svc.ResolveDecision(ctx, decision.ID); !errors.Is(err, engine.ErrNoViableOption) {
		t.Fatalf("re-run: expected ErrNoViableOption, got %v", err)
	}

	relaxed := models.SubmitConstraintRequest{DealBreakers: []string{"steak"}}
	if _, err := svc.SubmitConstraint(ctx, decision.ID, "u1", relaxed); err != nil {
		t.Fatalf("SubmitConstraint() after no viable option error = %v", err)
	}
	reopened, err := svc.GetDecision(ctx, decision.ID)
	if err != nil {
		t.Fatalf("GetDecision() error = %v", err)
	}
	if reopened.Status != models.StatusCollecting || reopened.ResolvedAt != nil {
		t.Errorf("status = %s resolvedAt = %v, expected collecting and unset", reopened.Status, reopened.ResolvedAt)
	}

	stored, err := svc.ResolveDecision(ctx, decision.ID)
	if err != nil {
		t.Fatalf("ResolveDecision() after relaxing error = %v", err)
	}
	if stored.Result == nil || stored.Result.SelectedOption.ID != "trattoria" {
		t.Fatalf("stored = %+v, expected trattoria", stored)
	}

	latest, err := svc.GetResult(ctx, decision.ID)
	if err != nil || latest.ID != stored.ID {
		t.Errorf("GetResult() = %+v, %v; expected the latest run %s", latest, err, stored.ID)
	}
	if n := tc.CountRows(t, "decision_results", "decision_id = $1", decision.ID); n != 3 {
		t.Errorf("%d results stored, expected 3", n)
	}
	if n := tc.CountRows(t, "fairness_events", "decision_id = $1", decision.ID); n != 1 {
		t.Errorf("%d fairness events, expected 1", n)
	}

	if _, err := svc.SubmitConstraint(ctx, decision.ID, "u1", relaxed); !errors.Is(err, ErrDecisionClosed) {
		t.Errorf("submission after resolution: expected ErrDecisionClosed, got %v", err)
	}
}

func TestResolveDecisionRunsOnce(t *testing.T) {
	svc, tc := newTestService(t)
	ctx := context.Background()

	decision, err := svc.CreateDecision(ctx, "u1", testutil.DinnerDecision("g1"))
	if err != nil {
		t.Fatalf("CreateDecision() error = %v", err)
	}
	if _, err := svc.SubmitConstraint(ctx, decision.ID, "u1", testutil.BudgetConstraint(0, 20, "italian")); err != nil {
		t.Fatal(err)
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ResolveDecision(ctx, decision.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrDecisionBusy), errors.Is(err, ErrDecisionClosed):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d runs succeeded, expected exactly 1", succeeded)
	}
	if n := tc.CountRows(t, "decision_results", "decision_id = $1", decision.ID); n != 1 {
		t.Errorf("%d results stored, expected 1", n)
	}
}

func TestResolveDue(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	decision, err := svc.CreateDecision(ctx, "u1", testutil.DinnerDecision("g1"))
	if err != nil {
		t.Fatalf("CreateDecision() error = %v", err)
	}
	if _, err := svc.SubmitConstraint(ctx, decision.ID, "u1", testutil.BudgetConstraint(0, 20, "italian")); err != nil {
		t.Fatal(err)
	}
	empty, err := svc.CreateDecision(ctx, "u1", testutil.DinnerDecision("g1"))
	if err != nil {
		t.Fatal(err)
	}

	summary, err := svc.ResolveDue(ctx, time.Now(), 10)
	if err != nil || summary.Resolved != 0 {
		t.Fatalf("before the deadline: %+v, %v", summary, err)
	}

	summary, err = svc.ResolveDue(ctx, time.Now().Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("ResolveDue() error = %v", err)
	}
	if summary.Resolved != 1 || summary.Insufficient != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v", summary)
	}

	if got, _ := svc.GetDecision(ctx, empty.ID); got.Status != models.StatusCollecting {
		t.Errorf("decision without constraints has status %s", got.Status)
	}
}
