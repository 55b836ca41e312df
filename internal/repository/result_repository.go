package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"group-decision/internal/engine"
	"group-decision/internal/models"

	"github.com/google/uuid"
)

// ResultRepository stores immutable resolution results
type ResultRepository struct {
	db DBTX
}

func NewResultRepository(db DBTX) *ResultRepository {
	return &ResultRepository{db: db}
}

// WithTx returns a repository bound to a transaction
func (r *ResultRepository) WithTx(tx *sql.Tx) *ResultRepository {
	return &ResultRepository{db: tx}
}

// Create inserts a result row. Exactly one of Result and NoViableOption must be set.
func (r *ResultRepository) Create(ctx context.Context, res *models.StoredResult) error {
	var payload []byte
	var err error

	switch {
	case res.Result != nil:
		res.Outcome = models.OutcomeResolved
		selected := res.Result.SelectedOption.ID
		total := res.Result.TotalScore
		res.SelectedOptionID, res.TotalScore = &selected, &total
		payload, err = json.Marshal(res.Result)
	case res.NoViableOption != nil:
		res.Outcome = models.OutcomeNoViableOption
		payload, err = json.Marshal(res.NoViableOption)
	default:
		return fmt.Errorf("result for decision %s has no payload", res.DecisionID)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if res.ID == "" {
		res.ID = uuid.NewString()
	}

	query := `
		INSERT INTO decision_results (id, decision_id, outcome, selected_option_id, total_score, result)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		res.ID,
		res.DecisionID,
		res.Outcome,
		res.SelectedOptionID,
		res.TotalScore,
		payload,
	).Scan(&res.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create result: %w", err)
	}

	return nil
}

// GetLatest returns the most recent result for a decision, or nil when none exists
func (r *ResultRepository) GetLatest(ctx context.Context, decisionID string) (*models.StoredResult, error) {
	var res models.StoredResult
	var selected sql.NullString
	var total sql.NullFloat64
	var payload []byte

	query := `
		SELECT id, decision_id, outcome, selected_option_id, total_score, result, created_at
		FROM decision_results
		WHERE decision_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	err := r.db.QueryRowContext(ctx, query, decisionID).Scan(
		&res.ID,
		&res.DecisionID,
		&res.Outcome,
		&selected,
		&total,
		&payload,
		&res.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	if selected.Valid {
		res.SelectedOptionID = &selected.String
	}
	res.TotalScore = floatPtr(total)

	switch res.Outcome {
	case models.OutcomeResolved:
		var dr engine.DecisionResult
		if err := json.Unmarshal(payload, &dr); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		res.Result = &dr
	case models.OutcomeNoViableOption:
		var report models.NoViableOptionReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal no-viable-option report: %w", err)
		}
		res.NoViableOption = &report
	}

	return &res, nil
}
