package engine

import (
	"testing"
)

func TestMultiplierFor(t *testing.T) {
	tests := []struct {
		score float64
		want  float64
	}{
		{0.2, 1.5},
		{0.0, 2.0},
		{0.4, 1.0},
		{0.5, 1.0},
		{0.7, 1.0},
		{1.0, 0.5},
		{0.85, 0.75},
	}

	for _, tt := range tests {
		if got := MultiplierFor(tt.score); !near(got, tt.want) {
			t.Errorf("MultiplierFor(%v) = %v, expected %v", tt.score, got, tt.want)
		}
	}
}

func TestRecordOutcomeUnderweightedMember(t *testing.T) {
	tracker := NewFairnessTracker(map[string]FairnessMetrics{
		"alice": {UserID: "alice", CurrentFairnessScore: 0.2, InfluenceMultiplier: 9, DecisionsParticipated: 4},
	})

	if got := tracker.Multiplier("alice"); !near(got, 1.5) {
		t.Errorf("Multiplier(alice) = %v, expected 1.5", got)
	}
	if got := tracker.Multiplier("newcomer"); got != 1.0 {
		t.Errorf("Multiplier(newcomer) = %v, expected 1.0", got)
	}

	m := tracker.RecordOutcome("alice", 0.9)
	// 0.3*0.9 + 0.7*0.2
	if !near(m.CurrentFairnessScore, 0.41) {
		t.Errorf("CurrentFairnessScore = %v, expected 0.41", m.CurrentFairnessScore)
	}
	if m.DecisionsParticipated != 5 {
		t.Errorf("DecisionsParticipated = %d, expected 5", m.DecisionsParticipated)
	}
	if !near(m.InfluenceMultiplier, 1.0) {
		t.Errorf("InfluenceMultiplier = %v, expected 1.0", m.InfluenceMultiplier)
	}
}

func TestRecordOutcomeConverges(t *testing.T) {
	tests := []struct {
		name         string
		satisfaction float64
		limit        float64
		increasing   bool
	}{
		{"always dissatisfied", 0, MaxInfluenceMultiplier, true},
		{"always satisfied", 1, MinInfluenceMultiplier, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewFairnessTracker(nil)
			prev := tracker.Multiplier("u")
			for i := 0; i < 60; i++ {
				m := tracker.RecordOutcome("u", tt.satisfaction)
				if tt.increasing && m.InfluenceMultiplier < prev-eps {
					t.Fatalf("round %d: multiplier dropped from %v to %v", i, prev, m.InfluenceMultiplier)
				}
				if !tt.increasing && m.InfluenceMultiplier > prev+eps {
					t.Fatalf("round %d: multiplier rose from %v to %v", i, prev, m.InfluenceMultiplier)
				}
				if m.InfluenceMultiplier < MinInfluenceMultiplier || m.InfluenceMultiplier > MaxInfluenceMultiplier {
					t.Fatalf("round %d: multiplier %v outside bounds", i, m.InfluenceMultiplier)
				}
				prev = m.InfluenceMultiplier
			}
			if diff := prev - tt.limit; diff > 0.01 || diff < -0.01 {
				t.Errorf("multiplier settled at %v, expected close to %v", prev, tt.limit)
			}
		})
	}
}

func TestPlanUpdatesLeavesTrackerUntouched(t *testing.T) {
	snapshot := map[string]FairnessMetrics{
		"alice": {UserID: "alice", CurrentFairnessScore: 0.2},
	}
	tracker := NewFairnessTracker(snapshot)

	updates := tracker.PlanUpdates([]UserScore{
		{UserID: "bob", Score: 0.4},
		{UserID: "alice", Score: 0.9},
	})

	if len(updates) != 2 || updates[0].UserID != "alice" || updates[1].UserID != "bob" {
		t.Fatalf("updates not ordered by user: %+v", updates)
	}
	if !near(updates[0].Before.CurrentFairnessScore, 0.2) || !near(updates[0].After.CurrentFairnessScore, 0.41) {
		t.Errorf("alice update = %+v", updates[0])
	}
	if !near(updates[1].Before.CurrentFairnessScore, InitialFairnessScore) {
		t.Errorf("bob should start at %v, got %v", InitialFairnessScore, updates[1].Before.CurrentFairnessScore)
	}
	if got := tracker.Metrics("alice").CurrentFairnessScore; !near(got, 0.2) {
		t.Errorf("tracker mutated by PlanUpdates: alice = %v", got)
	}
	if snapshot["alice"].CurrentFairnessScore != 0.2 {
		t.Error("input snapshot mutated")
	}
}
