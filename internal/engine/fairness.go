package engine

import "sort"

const (
	// FairnessAlpha is the recency weight of the newest outcome
	FairnessAlpha = 0.3

	// InitialFairnessScore is assumed for members without history
	InitialFairnessScore = 0.5

	LowFairnessThreshold  = 0.4
	HighFairnessThreshold = 0.7

	MinInfluenceMultiplier = 0.5
	MaxInfluenceMultiplier = 2.0
)

// MultiplierFor derives the influence multiplier from a fairness score.
// Under-satisfied members are boosted toward 2.0, over-satisfied ones dampened toward 0.5.
func MultiplierFor(score float64) float64 {
	switch {
	case score < LowFairnessThreshold:
		return clamp(1+(LowFairnessThreshold-score)/LowFairnessThreshold, 1.0, MaxInfluenceMultiplier)
	case score > HighFairnessThreshold:
		return clamp(1-(score-HighFairnessThreshold)/0.6, MinInfluenceMultiplier, 1.0)
	default:
		return 1.0
	}
}

// NextFairness applies one realized satisfaction to a fairness record without mutating it
func NextFairness(m FairnessMetrics, satisfaction float64) FairnessMetrics {
	satisfaction = clamp01(satisfaction)
	score := clamp01(FairnessAlpha*satisfaction + (1-FairnessAlpha)*m.CurrentFairnessScore)
	return FairnessMetrics{
		UserID:                m.UserID,
		CurrentFairnessScore:  score,
		InfluenceMultiplier:   MultiplierFor(score),
		DecisionsParticipated: m.DecisionsParticipated + 1,
	}
}

// NewFairnessMetrics returns the record of a member with no history
func NewFairnessMetrics(userID string) FairnessMetrics {
	return FairnessMetrics{
		UserID:               userID,
		CurrentFairnessScore: InitialFairnessScore,
		InfluenceMultiplier:  MultiplierFor(InitialFairnessScore),
	}
}

// FairnessTracker holds the fairness records of one group.
// It owns a private copy of the snapshot it was built from.
type FairnessTracker struct {
	metrics map[string]FairnessMetrics
}

// NewFairnessTracker copies a snapshot, re-deriving every multiplier from its score
func NewFairnessTracker(snapshot map[string]FairnessMetrics) *FairnessTracker {
	t := &FairnessTracker{metrics: make(map[string]FairnessMetrics, len(snapshot))}
	for userID, m := range snapshot {
		m.UserID = userID
		m.CurrentFairnessScore = clamp01(m.CurrentFairnessScore)
		m.InfluenceMultiplier = MultiplierFor(m.CurrentFairnessScore)
		t.metrics[userID] = m
	}
	return t
}

// Metrics returns a member's record, or a fresh one when the member has no history
func (t *FairnessTracker) Metrics(userID string) FairnessMetrics {
	if t != nil {
		if m, ok := t.metrics[userID]; ok {
			return m
		}
	}
	return NewFairnessMetrics(userID)
}

// Multiplier returns a member's influence multiplier
func (t *FairnessTracker) Multiplier(userID string) float64 {
	return t.Metrics(userID).InfluenceMultiplier
}

// RecordOutcome folds one decision's realized satisfaction into a member's history.
// Callers must record each member exactly once per completed decision.
func (t *FairnessTracker) RecordOutcome(userID string, satisfaction float64) FairnessMetrics {
	next := NextFairness(t.Metrics(userID), satisfaction)
	t.metrics[userID] = next
	return next
}

// Apply records a batch of planned updates
func (t *FairnessTracker) Apply(updates []FairnessUpdate) {
	for _, u := range updates {
		t.metrics[u.UserID] = u.After
	}
}

// Snapshot returns a copy of every record, keyed by user ID
func (t *FairnessTracker) Snapshot() map[string]FairnessMetrics {
	out := make(map[string]FairnessMetrics, len(t.metrics))
	for k, v := range t.metrics {
		out[k] = v
	}
	return out
}

// PlanUpdates computes, without applying, the fairness change each member
// receives from their own score for the selected option
func (t *FairnessTracker) PlanUpdates(selected []UserScore) []FairnessUpdate {
	updates := make([]FairnessUpdate, 0, len(selected))
	for _, us := range selected {
		before := t.Metrics(us.UserID)
		updates = append(updates, FairnessUpdate{
			UserID:               us.UserID,
			RealizedSatisfaction: us.Score,
			Before:               before,
			After:                NextFairness(before, us.Score),
		})
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].UserID < updates[j].UserID })
	return updates
}
