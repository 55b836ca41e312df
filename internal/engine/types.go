package engine

import (
	"encoding/json"
	"math"
)

// Budget holds a member's spending range and how much it matters to them
type Budget struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Weight float64 `json:"weight"`
}

// MarshalJSON encodes an unbounded maximum as null
func (b Budget) MarshalJSON() ([]byte, error) {
	var max *float64
	if !math.IsInf(b.Max, 1) {
		max = &b.Max
	}
	return json.Marshal(struct {
		Min    float64  `json:"min"`
		Max    *float64 `json:"max"`
		Weight float64  `json:"weight"`
	}{b.Min, max, b.Weight})
}

// UnmarshalJSON reads a null or missing maximum as unbounded
func (b *Budget) UnmarshalJSON(data []byte) error {
	var aux struct {
		Min    float64  `json:"min"`
		Max    *float64 `json:"max"`
		Weight float64  `json:"weight"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	b.Min, b.Weight = aux.Min, aux.Weight
	b.Max = math.Inf(1)
	if aux.Max != nil {
		b.Max = *aux.Max
	}
	return nil
}

// Constraint represents one member's normalized requirements for a single decision
type Constraint struct {
	UserID              string   `json:"userId"`
	Budget              Budget   `json:"budget"`
	Preferences         []string `json:"preferences"`
	DietaryRequirements []string `json:"dietaryRequirements"`
	MustHaves           []string `json:"mustHaves"`
	DealBreakers        []string `json:"dealBreakers"`
	MaxDistance         *float64 `json:"maxDistance,omitempty"`
}

// Option represents a candidate the group can choose
type Option struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Price    *float64 `json:"price,omitempty"`
	Tags     []string `json:"tags"`
	Rating   *float64 `json:"rating,omitempty"`
	Distance *float64 `json:"distance,omitempty"`
}

// Breakdown holds the four sub-scores of a (member, option) pair
type Breakdown struct {
	BudgetScore     float64 `json:"budgetScore"`
	LocationScore   float64 `json:"locationScore"`
	PreferenceScore float64 `json:"preferenceScore"`
	DietaryScore    float64 `json:"dietaryScore"`
}

// UserScore is the score one member gives one option
type UserScore struct {
	UserID              string    `json:"userId"`
	OptionID            string    `json:"optionId"`
	Score               float64   `json:"score"`
	Breakdown           Breakdown `json:"breakdown"`
	InfluenceMultiplier float64   `json:"influenceMultiplier"`
	Vetoed              bool      `json:"vetoed"`
	VetoReasons         []string  `json:"vetoReasons,omitempty"`
}

// FairnessMetrics is a member's long-lived satisfaction record within a group
type FairnessMetrics struct {
	UserID                string  `json:"userId"`
	CurrentFairnessScore  float64 `json:"currentFairnessScore"`
	InfluenceMultiplier   float64 `json:"influenceMultiplier"`
	DecisionsParticipated int     `json:"decisionsParticipated"`
}

// FairnessUpdate is the planned change to one member's fairness record.
// It is applied by the caller only after the result has been committed.
type FairnessUpdate struct {
	UserID               string          `json:"userId"`
	RealizedSatisfaction float64         `json:"realizedSatisfaction"`
	Before               FairnessMetrics `json:"before"`
	After                FairnessMetrics `json:"after"`
}

// Alternative is a runner-up option with the reason it lost
type Alternative struct {
	Option Option  `json:"option"`
	Score  float64 `json:"score"`
	Why    string  `json:"why"`
}

// OptionRanking is the aggregated score of one option
type OptionRanking struct {
	OptionID   string  `json:"optionId"`
	TotalScore float64 `json:"totalScore"`
	Excluded   bool    `json:"excluded"`
}

// VetoedOption records why an option was excluded for the whole group
type VetoedOption struct {
	OptionID string   `json:"optionId"`
	VetoedBy []string `json:"vetoedBy"`
	Reasons  []string `json:"reasons"`
}

// Severity grades a conflict
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Difficulty grades how hard a compromise is to adopt
type Difficulty string

const (
	DifficultyLow    Difficulty = "low"
	DifficultyMedium Difficulty = "medium"
	DifficultyHigh   Difficulty = "high"
)

// ConflictParticipant is a member involved in a conflict and the option they prefer
type ConflictParticipant struct {
	UserID     string `json:"userId"`
	Preference string `json:"preference"`
}

// Conflict describes members whose best options are mutually unacceptable
type Conflict struct {
	Description  string                `json:"description"`
	Severity     Severity              `json:"severity"`
	Participants []ConflictParticipant `json:"participants"`

	// contested option IDs, one per side
	sides [2]string
}

// CompromiseType names a remediation strategy
type CompromiseType string

const (
	CompromiseSplitDifference CompromiseType = "split_difference"
	CompromiseBudgetExtension CompromiseType = "budget_extension"
	CompromiseRotate          CompromiseType = "rotate"
)

// Compromise is a suggested remediation for a conflict
type Compromise struct {
	ID           string         `json:"id"`
	Type         CompromiseType `json:"type"`
	OptionID     string         `json:"optionId"`
	Suggestion   string         `json:"suggestion"`
	SupportCount int            `json:"supportCount"`
	Difficulty   Difficulty     `json:"difficulty"`
}

// DecisionInput is the immutable snapshot the engine resolves
type DecisionInput struct {
	DecisionID       string                     `json:"decisionId"`
	Options          []Option                   `json:"options"`
	Constraints      []Constraint               `json:"constraints"`
	FairnessSnapshot map[string]FairnessMetrics `json:"fairnessSnapshot"`
}

// DecisionResult is the outcome of one resolution run. It is never mutated after creation.
type DecisionResult struct {
	DecisionID       string           `json:"decisionId"`
	SelectedOption   Option           `json:"selectedOption"`
	TotalScore       float64          `json:"totalScore"`
	SatisfactionRate float64          `json:"satisfactionRate"`
	AlgorithmScore   float64          `json:"algorithmScore"`
	UserScores       []UserScore      `json:"userScores"`
	Alternatives     []Alternative    `json:"alternatives"`
	Reasoning        []string         `json:"reasoning"`
	Conflicts        []Conflict       `json:"conflicts"`
	Compromises      []Compromise     `json:"compromises"`
	Rankings         []OptionRanking  `json:"rankings"`
	VetoedOptions    []VetoedOption   `json:"vetoedOptions"`
	FairnessUpdates  []FairnessUpdate `json:"fairnessUpdates"`
}
