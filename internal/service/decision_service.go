package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"group-decision/internal/config"
	"group-decision/internal/database"
	"group-decision/internal/engine"
	"group-decision/internal/models"
	"group-decision/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrDecisionNotFound    = errors.New("decision not found")
	ErrDecisionBusy        = errors.New("decision is already being resolved")
	ErrDecisionClosed      = errors.New("decision is no longer collecting constraints")
	ErrInvalidDecision     = errors.New("invalid decision")
	ErrMemberLimitExceeded = errors.New("decision has reached its member limit")
	ErrResultNotFound      = errors.New("decision has no result yet")
	ErrOptionNotFound      = errors.New("option not found in decision result")
)

// DecisionService runs the decision lifecycle around the resolution engine
type DecisionService struct {
	db             *sql.DB
	decisionRepo   *repository.DecisionRepository
	constraintRepo *repository.ConstraintRepository
	resultRepo     *repository.ResultRepository
	fairnessRepo   *repository.FairnessRepository
	engine         *engine.Engine
	cfg            config.DecisionConfig

	// decision IDs with a resolution run in this process
	inflight sync.Map
	now      func() time.Time
}

func NewDecisionService(
	db *sql.DB,
	decisionRepo *repository.DecisionRepository,
	constraintRepo *repository.ConstraintRepository,
	resultRepo *repository.ResultRepository,
	fairnessRepo *repository.FairnessRepository,
	eng *engine.Engine,
	cfg config.DecisionConfig,
) *DecisionService {
	return &DecisionService{
		db:             db,
		decisionRepo:   decisionRepo,
		constraintRepo: constraintRepo,
		resultRepo:     resultRepo,
		fairnessRepo:   fairnessRepo,
		engine:         eng,
		cfg:            cfg,
		now:            time.Now,
	}
}

// CreateDecision validates the options and opens a decision for constraint collection
func (s *DecisionService) CreateDecision(ctx context.Context, userID string, req models.CreateDecisionRequest) (*models.Decision, error) {
	groupID := strings.TrimSpace(req.GroupID)
	title := strings.TrimSpace(req.Title)

	var problems []string
	if groupID == "" {
		problems = append(problems, "group_id is required")
	}
	if title == "" {
		problems = append(problems, "title is required")
	}
	if len(req.Options) == 0 {
		problems = append(problems, "at least one option is required")
	}
	if len(req.Options) > s.cfg.MaxOptions {
		problems = append(problems, fmt.Sprintf("at most %d options are allowed", s.cfg.MaxOptions))
	}

	now := s.now()
	deadline := now.Add(s.cfg.DefaultCollectionWindow)
	if req.Deadline != nil {
		if !req.Deadline.After(now) {
			problems = append(problems, "deadline must be in the future")
		}
		deadline = *req.Deadline
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDecision, strings.Join(problems, "; "))
	}

	options, err := engine.NormalizeOptions(req.Options)
	if err != nil {
		return nil, err
	}

	decision := &models.Decision{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		Title:     title,
		Status:    models.StatusCollecting,
		CreatedBy: userID,
		Deadline:  &deadline,
		Options:   options,
	}

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := s.decisionRepo.WithTx(tx)
		if err := repo.EnsureGroup(ctx, groupID); err != nil {
			return err
		}
		return repo.Create(ctx, decision)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Decision created",
		"decision_id", decision.ID,
		"group_id", groupID,
		"options", len(options),
		"deadline", deadline)

	return decision, nil
}

// SubmitConstraint normalizes and stores the caller's constraint, replacing an earlier one
func (s *DecisionService) SubmitConstraint(ctx context.Context, decisionID, userID string, req models.SubmitConstraintRequest) (*models.ConstraintSubmission, error) {
	if !isDecisionID(decisionID) {
		return nil, ErrDecisionNotFound
	}
	constraint, err := engine.NormalizeConstraint(engine.RawConstraint{
		UserID:              userID,
		Budget:              req.Budget,
		Preferences:         req.Preferences,
		DietaryRequirements: req.DietaryRequirements,
		MustHaves:           req.MustHaves,
		DealBreakers:        req.DealBreakers,
		MaxDistance:         req.MaxDistance,
	})
	if err != nil {
		return nil, err
	}

	var submission *models.ConstraintSubmission
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		decisions := s.decisionRepo.WithTx(tx)
		// A new submission reopens a decision whose last run found no viable option.
		// This runs before the share lock so that lock is never upgraded.
		if _, err := decisions.TransitionStatus(ctx, decisionID, models.StatusNoViableOption, models.StatusCollecting); err != nil {
			return err
		}

		// The share lock keeps the decision in collecting until this submission commits
		status, err := decisions.StatusForShare(ctx, decisionID)
		if err != nil {
			return err
		}
		switch status {
		case "":
			return ErrDecisionNotFound
		case models.StatusCollecting:
		default:
			return fmt.Errorf("%w: status is %s", ErrDecisionClosed, status)
		}

		constraints := s.constraintRepo.WithTx(tx)
		others, err := constraints.CountOtherMembers(ctx, decisionID, userID)
		if err != nil {
			return err
		}
		if others >= s.cfg.MaxMembers {
			return ErrMemberLimitExceeded
		}

		submission, err = constraints.Upsert(ctx, decisionID, constraint)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Constraint submitted", "decision_id", decisionID, "user_id", userID)
	return submission, nil
}

// ResolveDecision runs the engine over a snapshot of the decision's inputs.
//
// At most one run per decision is active: a second caller gets ErrDecisionBusy.
// The result, the fairness updates and the status change commit in one
// transaction; on any failure nothing is kept and the decision returns to
// collecting. When every option is vetoed the diagnostics are stored, the
// decision becomes no_viable_option and the returned error wraps
// engine.ErrNoViableOption. Such a decision accepts new submissions and can
// be resolved again.
func (s *DecisionService) ResolveDecision(ctx context.Context, decisionID string) (*models.StoredResult, error) {
	if !isDecisionID(decisionID) {
		return nil, ErrDecisionNotFound
	}
	if _, loaded := s.inflight.LoadOrStore(decisionID, struct{}{}); loaded {
		return nil, ErrDecisionBusy
	}
	defer s.inflight.Delete(decisionID)

	if s.cfg.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ResolveTimeout)
		defer cancel()
	}

	decision, err := s.decisionRepo.GetByID(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		return nil, ErrDecisionNotFound
	}

	claimed, err := s.claim(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, s.notClaimable(ctx, decisionID)
	}

	start := s.now()
	var stored *models.StoredResult
	var noViable *engine.NoViableOptionError

	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		fairness := s.fairnessRepo.WithTx(tx)
		if err := fairness.LockGroup(ctx, decision.GroupID); err != nil {
			return err
		}
		snapshot, err := fairness.Snapshot(ctx, decision.GroupID)
		if err != nil {
			return err
		}
		constraints, err := s.constraintRepo.WithTx(tx).ListByDecision(ctx, decisionID)
		if err != nil {
			return err
		}

		result, err := s.engine.Resolve(engine.DecisionInput{
			DecisionID:       decisionID,
			Options:          decision.Options,
			Constraints:      constraints,
			FairnessSnapshot: snapshot,
		})

		stored = &models.StoredResult{DecisionID: decisionID}
		finalStatus := models.StatusResolved
		switch {
		case errors.As(err, &noViable):
			stored.NoViableOption = &models.NoViableOptionReport{
				DecisionID:    decisionID,
				Message:       engine.ErrNoViableOption.Error(),
				VetoedOptions: noViable.VetoedOptions,
				UserScores:    noViable.UserScores,
			}
			finalStatus = models.StatusNoViableOption
		case err != nil:
			return err
		default:
			stored.Result = result
		}

		if err := s.resultRepo.WithTx(tx).Create(ctx, stored); err != nil {
			return err
		}
		if stored.Result != nil {
			if err := fairness.ApplyUpdates(ctx, decision.GroupID, decisionID, stored.Result.FairnessUpdates); err != nil {
				return err
			}
		}

		ok, err := s.decisionRepo.WithTx(tx).TransitionStatus(ctx, decisionID, models.StatusProcessing, finalStatus)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("decision %s left processing during resolution", decisionID)
		}
		return nil
	})
	if err != nil {
		s.release(decisionID)
		slog.Warn("Decision resolution failed", "decision_id", decisionID, "error", err)
		return nil, fmt.Errorf("resolve decision %s: %w", decisionID, err)
	}

	if noViable != nil {
		slog.Info("Decision has no viable option",
			"decision_id", decisionID,
			"vetoed_options", len(noViable.VetoedOptions),
			"duration", s.now().Sub(start))
		return nil, noViable
	}

	slog.Info("Decision resolved",
		"decision_id", decisionID,
		"selected_option", stored.Result.SelectedOption.ID,
		"total_score", stored.Result.TotalScore,
		"conflicts", len(stored.Result.Conflicts),
		"duration", s.now().Sub(start))

	return stored, nil
}

// claim moves the decision to processing from collecting or from a previous
// run that found no viable option
func (s *DecisionService) claim(ctx context.Context, decisionID string) (bool, error) {
	for _, from := range []models.DecisionStatus{models.StatusCollecting, models.StatusNoViableOption} {
		ok, err := s.decisionRepo.TransitionStatus(ctx, decisionID, from, models.StatusProcessing)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// notClaimable explains why a decision could not be moved to processing
func (s *DecisionService) notClaimable(ctx context.Context, decisionID string) error {
	current, err := s.decisionRepo.GetByID(ctx, decisionID)
	if err != nil {
		return err
	}
	if current == nil {
		return ErrDecisionNotFound
	}
	if current.Status == models.StatusProcessing {
		return ErrDecisionBusy
	}
	return fmt.Errorf("%w: status is %s", ErrDecisionClosed, current.Status)
}

// release returns a failed run's decision to collecting. It uses its own
// context so a cancelled request still releases the claim.
func (s *DecisionService) release(decisionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.decisionRepo.TransitionStatus(ctx, decisionID, models.StatusProcessing, models.StatusCollecting); err != nil {
		slog.Error("Failed to release decision", "decision_id", decisionID, "error", err)
	}
}

// GetResult returns the latest stored result of a decision
func (s *DecisionService) GetResult(ctx context.Context, decisionID string) (*models.StoredResult, error) {
	if !isDecisionID(decisionID) {
		return nil, ErrDecisionNotFound
	}
	decision, err := s.decisionRepo.GetByID(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		return nil, ErrDecisionNotFound
	}

	result, err := s.resultRepo.GetLatest(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrResultNotFound
	}
	return result, nil
}

// GetDecision returns a decision with its options
func (s *DecisionService) GetDecision(ctx context.Context, decisionID string) (*models.Decision, error) {
	if !isDecisionID(decisionID) {
		return nil, ErrDecisionNotFound
	}
	decision, err := s.decisionRepo.GetByID(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		return nil, ErrDecisionNotFound
	}
	return decision, nil
}

// ExplainFairness describes a member's current standing in a group
func (s *DecisionService) ExplainFairness(ctx context.Context, groupID, userID string) (*models.FairnessExplanation, error) {
	stored, err := s.fairnessRepo.Get(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}

	metrics := engine.NewFairnessMetrics(userID)
	if stored != nil {
		metrics = *stored
	}

	return &models.FairnessExplanation{
		GroupID:     groupID,
		Metrics:     metrics,
		Explanation: engine.ExplainFairness(metrics),
	}, nil
}

// ExplainAlternative describes why an option lost in the latest resolved run
func (s *DecisionService) ExplainAlternative(ctx context.Context, decisionID, optionID string) (*models.AlternativeExplanation, error) {
	stored, err := s.GetResult(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if stored.Result == nil {
		return nil, fmt.Errorf("%w: decision %s has no viable option", ErrResultNotFound, decisionID)
	}

	r := stored.Result
	out := &models.AlternativeExplanation{
		DecisionID:       decisionID,
		OptionID:         optionID,
		SelectedOptionID: r.SelectedOption.ID,
		WinnerScore:      r.TotalScore,
	}

	if optionID == r.SelectedOption.ID {
		out.Score = r.TotalScore
		out.Explanation = "selected option."
		return out, nil
	}
	for _, a := range r.Alternatives {
		if a.Option.ID == optionID {
			out.Score = a.Score
			out.Explanation = a.Why
			return out, nil
		}
	}
	for _, v := range r.VetoedOptions {
		if v.OptionID == optionID {
			out.Explanation = fmt.Sprintf("excluded: vetoed by %d %s (%s).",
				len(v.VetoedBy), pluralMember(len(v.VetoedBy)), strings.Join(v.Reasons, ", "))
			return out, nil
		}
	}

	return nil, ErrOptionNotFound
}

// isDecisionID reports whether id can name a stored decision
func isDecisionID(id string) bool {
	return uuid.Validate(id) == nil
}

func pluralMember(n int) string {
	if n == 1 {
		return "member"
	}
	return "members"
}

// DueSummary counts the outcomes of one deadline sweep
type DueSummary struct {
	Resolved     int
	NoViable     int
	Insufficient int
	Failed       int
}

// ResolveDue resolves up to limit decisions whose collection deadline has passed
func (s *DecisionService) ResolveDue(ctx context.Context, now time.Time, limit int) (DueSummary, error) {
	var summary DueSummary

	ids, err := s.decisionRepo.ListDue(ctx, now, limit)
	if err != nil {
		return summary, err
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		_, err := s.ResolveDecision(ctx, id)
		switch {
		case err == nil:
			summary.Resolved++
		case errors.Is(err, engine.ErrNoViableOption):
			summary.NoViable++
		case errors.Is(err, engine.ErrInsufficientData):
			// stays collecting until a member submits
			summary.Insufficient++
			slog.Debug("Due decision has no constraints yet", "decision_id", id)
		case errors.Is(err, ErrDecisionBusy), errors.Is(err, ErrDecisionClosed):
		default:
			summary.Failed++
			slog.Error("Failed to resolve due decision", "decision_id", id, "error", err)
		}
	}

	return summary, nil
}

// ReleaseStale returns decisions stuck in processing for longer than maxAge to collecting
func (s *DecisionService) ReleaseStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	n, err := s.decisionRepo.ReleaseStale(ctx, s.now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Warn("Released stale decisions", "count", n)
	}
	return n, nil
}
