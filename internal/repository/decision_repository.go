package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"group-decision/internal/engine"
	"group-decision/internal/models"

	"github.com/lib/pq"
)

// DecisionRepository stores decisions and their options
type DecisionRepository struct {
	db DBTX
}

func NewDecisionRepository(db DBTX) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// WithTx returns a repository bound to a transaction
func (r *DecisionRepository) WithTx(tx *sql.Tx) *DecisionRepository {
	return &DecisionRepository{db: tx}
}

// EnsureGroup registers a group the first time it is referenced
func (r *DecisionRepository) EnsureGroup(ctx context.Context, groupID string) error {
	query := `INSERT INTO groups (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, groupID); err != nil {
		return fmt.Errorf("failed to ensure group: %w", err)
	}
	return nil
}

// Create inserts a decision and its options
func (r *DecisionRepository) Create(ctx context.Context, d *models.Decision) error {
	query := `
		INSERT INTO decisions (id, group_id, title, status, created_by, deadline)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		d.ID,
		d.GroupID,
		d.Title,
		d.Status,
		d.CreatedBy,
		d.Deadline,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create decision: %w", err)
	}

	optionQuery := `
		INSERT INTO decision_options (decision_id, option_id, position, name, price, tags, rating, distance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for i, o := range d.Options {
		_, err := r.db.ExecContext(ctx, optionQuery,
			d.ID,
			o.ID,
			i,
			o.Name,
			nullableFloat(o.Price),
			pq.Array(nonNilStrings(o.Tags)),
			nullableFloat(o.Rating),
			nullableFloat(o.Distance),
		)
		if err != nil {
			return fmt.Errorf("failed to create option %s: %w", o.ID, err)
		}
	}

	return nil
}

// GetByID retrieves a decision with its options, or nil when it does not exist
func (r *DecisionRepository) GetByID(ctx context.Context, id string) (*models.Decision, error) {
	var d models.Decision
	query := `
		SELECT id, group_id, title, status, created_by, deadline, created_at, updated_at, resolved_at
		FROM decisions
		WHERE id = $1
	`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID,
		&d.GroupID,
		&d.Title,
		&d.Status,
		&d.CreatedBy,
		&d.Deadline,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.ResolvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get decision: %w", err)
	}

	options, err := r.getOptions(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Options = options

	return &d, nil
}

// getOptions loads options in their submitted order
func (r *DecisionRepository) getOptions(ctx context.Context, decisionID string) ([]engine.Option, error) {
	query := `
		SELECT option_id, name, price, tags, rating, distance
		FROM decision_options
		WHERE decision_id = $1
		ORDER BY position
	`
	rows, err := r.db.QueryContext(ctx, query, decisionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query options: %w", err)
	}
	defer rows.Close()

	options := []engine.Option{}
	for rows.Next() {
		var o engine.Option
		var price, rating, distance sql.NullFloat64
		if err := rows.Scan(&o.ID, &o.Name, &price, pq.Array(&o.Tags), &rating, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		o.Price = floatPtr(price)
		o.Rating = floatPtr(rating)
		o.Distance = floatPtr(distance)
		options = append(options, o)
	}

	return options, rows.Err()
}

// StatusForShare reads a decision's status and holds a share lock on the row
// until the transaction ends, so a concurrent status change waits for it
func (r *DecisionRepository) StatusForShare(ctx context.Context, id string) (models.DecisionStatus, error) {
	var status models.DecisionStatus
	query := `SELECT status FROM decisions WHERE id = $1 FOR SHARE`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to lock decision: %w", err)
	}
	return status, nil
}

// TransitionStatus moves a decision from one status to another.
// It reports false when the decision was not in the expected status.
func (r *DecisionRepository) TransitionStatus(ctx context.Context, id string, from, to models.DecisionStatus) (bool, error) {
	query := `
		UPDATE decisions
		SET status = $3::VARCHAR,
			updated_at = CURRENT_TIMESTAMP,
			resolved_at = CASE
				WHEN $3::VARCHAR IN ('resolved', 'no_viable_option') THEN CURRENT_TIMESTAMP
				WHEN $3::VARCHAR = 'collecting' THEN NULL
				ELSE resolved_at
			END
		WHERE id = $1 AND status = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to update decision status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// ListDue returns collecting decisions whose deadline has passed, oldest first
func (r *DecisionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	query := `
		SELECT id
		FROM decisions
		WHERE status = 'collecting' AND deadline IS NOT NULL AND deadline <= $1
		ORDER BY deadline, id
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due decisions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan decision id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ReleaseStale returns decisions stuck in processing since before cutoff to collecting
func (r *DecisionRepository) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE decisions
		SET status = 'collecting', updated_at = CURRENT_TIMESTAMP
		WHERE status = 'processing' AND updated_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale decisions: %w", err)
	}
	return res.RowsAffected()
}
