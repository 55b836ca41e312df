package engine

import (
	"fmt"
	"math"
)

// Thresholds a sub-score must exceed for a member to count in the reasoning
const (
	withinBudgetThreshold     = 0.8
	convenientLocationThresh  = 0.7
	preferenceMatchThreshold  = 0.5
	boostedInfluenceThreshold = 1.1
	highRatingThreshold       = 4.0
)

// Gap thresholds, in percentage points, used to describe alternatives
const (
	VeryCloseGap = 5
	SolidGap     = 15
)

// GenerateDecisionReasoning explains a winner in plain sentences, in a fixed order.
// Sentences whose data is missing or whose count is zero are omitted.
func GenerateDecisionReasoning(winner Option, satisfactionRate float64, scores []UserScore) []string {
	reasons := []string{
		fmt.Sprintf("This option achieves %d%% overall group satisfaction.", percent(satisfactionRate)),
	}

	var withinBudget, convenient, matched, boosted int
	for _, us := range scores {
		if us.Breakdown.BudgetScore > withinBudgetThreshold {
			withinBudget++
		}
		if us.Breakdown.LocationScore > convenientLocationThresh {
			convenient++
		}
		if us.Breakdown.PreferenceScore > preferenceMatchThreshold {
			matched++
		}
		if us.InfluenceMultiplier > boostedInfluenceThreshold {
			boosted++
		}
	}

	if len(scores) > 0 {
		reasons = append(reasons, fmt.Sprintf("%d of %d %s within budget.", withinBudget, len(scores), plural(len(scores), "member is", "members are")))
	}
	if convenient > 0 {
		reasons = append(reasons, fmt.Sprintf("%s a convenient location.", countPhrase(convenient, "member has", "members have")))
	}
	if matched > 0 {
		reasons = append(reasons, fmt.Sprintf("%s preferences are matched.", countPhrase(matched, "member's", "members'")))
	}
	if boosted > 0 {
		reasons = append(reasons, fmt.Sprintf("%s boosted influence because their preferences were underweighted in past decisions.", countPhrase(boosted, "member received", "members received")))
	}
	if winner.Rating != nil && *winner.Rating >= highRatingThreshold {
		reasons = append(reasons, fmt.Sprintf("Highly rated option (%.1f/5 stars).", *winner.Rating))
	}
	return reasons
}

// ExplainFairness describes a member's current fairness standing
func ExplainFairness(m FairnessMetrics) string {
	multiplier := MultiplierFor(m.CurrentFairnessScore)
	switch {
	case m.CurrentFairnessScore < LowFairnessThreshold:
		return fmt.Sprintf("Your preferences have been chosen less often recently, so your input carries %.1fx weight in the next decision.", multiplier)
	case m.CurrentFairnessScore > HighFairnessThreshold:
		return fmt.Sprintf("Your preferences have been well represented recently, so your input carries %.1fx weight to give others a turn.", multiplier)
	default:
		return "Your influence is balanced with the rest of the group."
	}
}

// PercentGap returns the gap between two satisfaction rates in whole percentage points
func PercentGap(winner, alternative float64) int {
	return percent(winner) - percent(alternative)
}

func percent(v float64) int {
	return int(math.Round(v * 100))
}

// ExplainAlternative describes why an alternative lost to the winner
func ExplainAlternative(winnerScore, alternativeScore float64) string {
	gap := PercentGap(winnerScore, alternativeScore)
	switch {
	case gap < VeryCloseGap:
		return fmt.Sprintf("very close second choice (%d%% difference).", gap)
	case gap < SolidGap:
		return fmt.Sprintf("solid alternative (%d%% lower satisfaction).", gap)
	default:
		return fmt.Sprintf("lower satisfaction for the group (%d%% difference).", gap)
	}
}

func countPhrase(n int, singular, pluralForm string) string {
	return fmt.Sprintf("%d %s", n, plural(n, singular, pluralForm))
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}
