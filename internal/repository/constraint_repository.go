package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"group-decision/internal/engine"
	"group-decision/internal/models"

	"github.com/lib/pq"
)

// Cipher encrypts sensitive constraint fields before they are stored
type Cipher interface {
	Encrypt(ctx context.Context, plaintext []byte, aad map[string]string) (string, error)
	Decrypt(ctx context.Context, ciphertext string, aad map[string]string) ([]byte, error)
}

// ConstraintRepository stores member constraint submissions.
// Dietary requirements are encrypted when a cipher is configured.
type ConstraintRepository struct {
	db     DBTX
	cipher Cipher
}

// NewConstraintRepository creates a repository; cipher may be nil to store dietary data in plaintext
func NewConstraintRepository(db DBTX, cipher Cipher) *ConstraintRepository {
	return &ConstraintRepository{db: db, cipher: cipher}
}

// WithTx returns a repository bound to a transaction
func (r *ConstraintRepository) WithTx(tx *sql.Tx) *ConstraintRepository {
	return &ConstraintRepository{db: tx, cipher: r.cipher}
}

func dietaryAAD(decisionID, userID string) map[string]string {
	return map[string]string{"decision_id": decisionID, "user_id": userID, "field": "dietary_requirements"}
}

// Upsert stores a member's constraint, replacing any earlier submission
func (r *ConstraintRepository) Upsert(ctx context.Context, decisionID string, c engine.Constraint) (*models.ConstraintSubmission, error) {
	var plain interface{} = pq.Array(nonNilStrings(c.DietaryRequirements))
	var encrypted sql.NullString

	if r.cipher != nil {
		payload, err := json.Marshal(nonNilStrings(c.DietaryRequirements))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal dietary requirements: %w", err)
		}
		ciphertext, err := r.cipher.Encrypt(ctx, payload, dietaryAAD(decisionID, c.UserID))
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt dietary requirements: %w", err)
		}
		plain = nil
		encrypted = sql.NullString{String: ciphertext, Valid: true}
	}

	query := `
		INSERT INTO constraint_submissions (
			decision_id, user_id, budget_min, budget_max, budget_weight, preferences,
			dietary_requirements, dietary_encrypted, must_haves, deal_breakers, max_distance
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (decision_id, user_id) DO UPDATE SET
			budget_min = EXCLUDED.budget_min,
			budget_max = EXCLUDED.budget_max,
			budget_weight = EXCLUDED.budget_weight,
			preferences = EXCLUDED.preferences,
			dietary_requirements = EXCLUDED.dietary_requirements,
			dietary_encrypted = EXCLUDED.dietary_encrypted,
			must_haves = EXCLUDED.must_haves,
			deal_breakers = EXCLUDED.deal_breakers,
			max_distance = EXCLUDED.max_distance,
			updated_at = CURRENT_TIMESTAMP
		RETURNING submitted_at, updated_at
	`
	sub := &models.ConstraintSubmission{DecisionID: decisionID, Constraint: c}
	err := r.db.QueryRowContext(ctx, query,
		decisionID,
		c.UserID,
		c.Budget.Min,
		boundedMax(c.Budget.Max),
		c.Budget.Weight,
		pq.Array(nonNilStrings(c.Preferences)),
		plain,
		encrypted,
		pq.Array(nonNilStrings(c.MustHaves)),
		pq.Array(nonNilStrings(c.DealBreakers)),
		nullableFloat(c.MaxDistance),
	).Scan(&sub.SubmittedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store constraint: %w", err)
	}

	return sub, nil
}

// ListByDecision returns every constraint submitted for a decision, ordered by member
func (r *ConstraintRepository) ListByDecision(ctx context.Context, decisionID string) ([]engine.Constraint, error) {
	query := `
		SELECT user_id, budget_min, budget_max, budget_weight, preferences,
			dietary_requirements, dietary_encrypted, must_haves, deal_breakers, max_distance
		FROM constraint_submissions
		WHERE decision_id = $1
		ORDER BY user_id
	`
	rows, err := r.db.QueryContext(ctx, query, decisionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query constraints: %w", err)
	}
	defer rows.Close()

	type row struct {
		c         engine.Constraint
		encrypted sql.NullString
	}
	var scanned []row
	for rows.Next() {
		var rw row
		var budgetMax, maxDistance sql.NullFloat64
		err := rows.Scan(
			&rw.c.UserID,
			&rw.c.Budget.Min,
			&budgetMax,
			&rw.c.Budget.Weight,
			pq.Array(&rw.c.Preferences),
			pq.Array(&rw.c.DietaryRequirements),
			&rw.encrypted,
			pq.Array(&rw.c.MustHaves),
			pq.Array(&rw.c.DealBreakers),
			&maxDistance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan constraint: %w", err)
		}
		rw.c.Budget.Max = unboundedMax(budgetMax)
		rw.c.MaxDistance = floatPtr(maxDistance)
		scanned = append(scanned, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	constraints := make([]engine.Constraint, 0, len(scanned))
	for _, rw := range scanned {
		if rw.encrypted.Valid {
			dietary, err := r.decryptDietary(ctx, decisionID, rw.c.UserID, rw.encrypted.String)
			if err != nil {
				return nil, err
			}
			rw.c.DietaryRequirements = dietary
		}
		constraints = append(constraints, rw.c)
	}

	return constraints, nil
}

func (r *ConstraintRepository) decryptDietary(ctx context.Context, decisionID, userID, ciphertext string) ([]string, error) {
	if r.cipher == nil {
		return nil, fmt.Errorf("constraint of %s is encrypted but no cipher is configured", userID)
	}
	payload, err := r.cipher.Decrypt(ctx, ciphertext, dietaryAAD(decisionID, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt dietary requirements: %w", err)
	}
	var dietary []string
	if err := json.Unmarshal(payload, &dietary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dietary requirements: %w", err)
	}
	return dietary, nil
}

// CountOtherMembers returns how many members other than userID have submitted a constraint
func (r *ConstraintRepository) CountOtherMembers(ctx context.Context, decisionID, userID string) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM constraint_submissions WHERE decision_id = $1 AND user_id <> $2`
	if err := r.db.QueryRowContext(ctx, query, decisionID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count constraints: %w", err)
	}
	return n, nil
}
