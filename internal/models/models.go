package models

import (
	"time"

	"group-decision/internal/engine"
)

// DecisionStatus is the lifecycle state of a decision
type DecisionStatus string

const (
	// StatusCollecting accepts constraint submissions
	StatusCollecting DecisionStatus = "collecting"
	// StatusProcessing is held by exactly one resolution run
	StatusProcessing DecisionStatus = "processing"
	StatusResolved   DecisionStatus = "resolved"
	// StatusNoViableOption means the last run vetoed every option. A new
	// submission reopens the decision and it may be resolved again.
	StatusNoViableOption DecisionStatus = "no_viable_option"
)

// Decision represents one group decision and its candidate options
type Decision struct {
	ID         string          `json:"id" db:"id"`
	GroupID    string          `json:"groupId" db:"group_id"`
	Title      string          `json:"title" db:"title"`
	Status     DecisionStatus  `json:"status" db:"status"`
	CreatedBy  string          `json:"createdBy" db:"created_by"`
	Deadline   *time.Time      `json:"deadline,omitempty" db:"deadline"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time       `json:"updatedAt" db:"updated_at"`
	ResolvedAt *time.Time      `json:"resolvedAt,omitempty" db:"resolved_at"`
	Options    []engine.Option `json:"options"`
}

// ConstraintSubmission is one member's stored constraint for a decision
type ConstraintSubmission struct {
	DecisionID  string            `json:"decisionId" db:"decision_id"`
	Constraint  engine.Constraint `json:"constraint"`
	SubmittedAt time.Time         `json:"submittedAt" db:"submitted_at"`
	UpdatedAt   time.Time         `json:"updatedAt" db:"updated_at"`
}

// ResultOutcome distinguishes successful runs from runs where every option was vetoed
type ResultOutcome string

const (
	OutcomeResolved       ResultOutcome = "resolved"
	OutcomeNoViableOption ResultOutcome = "no_viable_option"
)

// NoViableOptionReport is persisted instead of a result when every option was vetoed
type NoViableOptionReport struct {
	DecisionID    string                `json:"decisionId"`
	Message       string                `json:"message"`
	VetoedOptions []engine.VetoedOption `json:"vetoedOptions"`
	UserScores    []engine.UserScore    `json:"userScores"`
}

// StoredResult is an immutable record of one resolution run
type StoredResult struct {
	ID               string                 `json:"id" db:"id"`
	DecisionID       string                 `json:"decisionId" db:"decision_id"`
	Outcome          ResultOutcome          `json:"outcome" db:"outcome"`
	SelectedOptionID *string                `json:"selectedOptionId,omitempty" db:"selected_option_id"`
	TotalScore       *float64               `json:"totalScore,omitempty" db:"total_score"`
	Result           *engine.DecisionResult `json:"result,omitempty"`
	NoViableOption   *NoViableOptionReport  `json:"noViableOption,omitempty"`
	CreatedAt        time.Time              `json:"createdAt" db:"created_at"`
}

// FairnessExplanation is a member's fairness standing within a group
type FairnessExplanation struct {
	GroupID     string                 `json:"groupId"`
	Metrics     engine.FairnessMetrics `json:"metrics"`
	Explanation string                 `json:"explanation"`
}

// AlternativeExplanation describes why a runner-up lost
type AlternativeExplanation struct {
	DecisionID       string  `json:"decisionId"`
	OptionID         string  `json:"optionId"`
	SelectedOptionID string  `json:"selectedOptionId"`
	Score            float64 `json:"score"`
	WinnerScore      float64 `json:"winnerScore"`
	Explanation      string  `json:"explanation"`
}

// CreateDecisionRequest is the body of POST /decisions
type CreateDecisionRequest struct {
	GroupID  string          `json:"groupId"`
	Title    string          `json:"title"`
	Options  []engine.Option `json:"options"`
	Deadline *time.Time      `json:"deadline,omitempty"`
}

// SubmitConstraintRequest is the body of POST /decisions/{id}/constraints.
// The member is taken from the authenticated token.
type SubmitConstraintRequest struct {
	Budget              *engine.RawBudget `json:"budget,omitempty"`
	Preferences         []string          `json:"preferences"`
	DietaryRequirements []string          `json:"dietaryRequirements"`
	MustHaves           []string          `json:"mustHaves"`
	DealBreakers        []string          `json:"dealBreakers"`
	MaxDistance         *float64          `json:"maxDistance,omitempty"`
}
