package repository

import (
	"context"
	"database/sql"
	"fmt"

	"group-decision/internal/engine"
)

// FairnessRepository stores per-member fairness records of each group
type FairnessRepository struct {
	db DBTX
}

func NewFairnessRepository(db DBTX) *FairnessRepository {
	return &FairnessRepository{db: db}
}

// WithTx returns a repository bound to a transaction
func (r *FairnessRepository) WithTx(tx *sql.Tx) *FairnessRepository {
	return &FairnessRepository{db: tx}
}

// LockGroup serializes fairness reads and writes of a group until the transaction ends
func (r *FairnessRepository) LockGroup(ctx context.Context, groupID string) error {
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, groupID); err != nil {
		return fmt.Errorf("failed to lock group fairness: %w", err)
	}
	return nil
}

// Snapshot returns every fairness record of a group keyed by member
func (r *FairnessRepository) Snapshot(ctx context.Context, groupID string) (map[string]engine.FairnessMetrics, error) {
	query := `
		SELECT user_id, current_fairness_score, influence_multiplier, decisions_participated
		FROM fairness_metrics
		WHERE group_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query fairness metrics: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string]engine.FairnessMetrics)
	for rows.Next() {
		var m engine.FairnessMetrics
		if err := rows.Scan(&m.UserID, &m.CurrentFairnessScore, &m.InfluenceMultiplier, &m.DecisionsParticipated); err != nil {
			return nil, fmt.Errorf("failed to scan fairness metrics: %w", err)
		}
		snapshot[m.UserID] = m
	}

	return snapshot, rows.Err()
}

// Get returns a member's fairness record, or nil when the member has no history in the group
func (r *FairnessRepository) Get(ctx context.Context, groupID, userID string) (*engine.FairnessMetrics, error) {
	var m engine.FairnessMetrics
	query := `
		SELECT user_id, current_fairness_score, influence_multiplier, decisions_participated
		FROM fairness_metrics
		WHERE group_id = $1 AND user_id = $2
	`
	err := r.db.QueryRowContext(ctx, query, groupID, userID).Scan(
		&m.UserID,
		&m.CurrentFairnessScore,
		&m.InfluenceMultiplier,
		&m.DecisionsParticipated,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fairness metrics: %w", err)
	}
	return &m, nil
}

// ApplyUpdates records one decision's planned fairness updates.
// A member can only be recorded once per decision.
func (r *FairnessRepository) ApplyUpdates(ctx context.Context, groupID, decisionID string, updates []engine.FairnessUpdate) error {
	eventQuery := `
		INSERT INTO fairness_events (decision_id, user_id, realized_satisfaction, score_before, score_after)
		VALUES ($1, $2, $3, $4, $5)
	`
	metricsQuery := `
		INSERT INTO fairness_metrics (group_id, user_id, current_fairness_score, influence_multiplier, decisions_participated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (group_id, user_id) DO UPDATE SET
			current_fairness_score = EXCLUDED.current_fairness_score,
			influence_multiplier = EXCLUDED.influence_multiplier,
			decisions_participated = EXCLUDED.decisions_participated,
			updated_at = CURRENT_TIMESTAMP
	`

	for _, u := range updates {
		_, err := r.db.ExecContext(ctx, eventQuery,
			decisionID,
			u.UserID,
			u.RealizedSatisfaction,
			u.Before.CurrentFairnessScore,
			u.After.CurrentFairnessScore,
		)
		if err != nil {
			return fmt.Errorf("failed to record fairness event for %s: %w", u.UserID, err)
		}

		_, err = r.db.ExecContext(ctx, metricsQuery,
			groupID,
			u.UserID,
			u.After.CurrentFairnessScore,
			u.After.InfluenceMultiplier,
			u.After.DecisionsParticipated,
		)
		if err != nil {
			return fmt.Errorf("failed to update fairness metrics for %s: %w", u.UserID, err)
		}
	}

	return nil
}
