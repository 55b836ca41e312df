package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"group-decision/internal/engine"
	"group-decision/internal/middleware"
	"group-decision/internal/models"
	"group-decision/internal/service"
)

// DecisionService is the part of service.DecisionService the HTTP layer uses
type DecisionService interface {
	CreateDecision(ctx context.Context, userID string, req models.CreateDecisionRequest) (*models.Decision, error)
	GetDecision(ctx context.Context, decisionID string) (*models.Decision, error)
	SubmitConstraint(ctx context.Context, decisionID, userID string, req models.SubmitConstraintRequest) (*models.ConstraintSubmission, error)
	ResolveDecision(ctx context.Context, decisionID string) (*models.StoredResult, error)
	GetResult(ctx context.Context, decisionID string) (*models.StoredResult, error)
	ExplainAlternative(ctx context.Context, decisionID, optionID string) (*models.AlternativeExplanation, error)
	ExplainFairness(ctx context.Context, groupID, userID string) (*models.FairnessExplanation, error)
}

type DecisionHandler struct {
	decisionService DecisionService
}

func NewDecisionHandler(decisionService DecisionService) *DecisionHandler {
	return &DecisionHandler{decisionService: decisionService}
}

// ValidationErrorResponse lists every invalid field of a rejected request
type ValidationErrorResponse struct {
	Error  string              `json:"error"`
	Fields []engine.FieldError `json:"fields"`
}

// NoViableOptionResponse carries the veto diagnostics of a run where every option was excluded
type NoViableOptionResponse struct {
	Error         string                `json:"error"`
	DecisionID    string                `json:"decisionId"`
	VetoedOptions []engine.VetoedOption `json:"vetoedOptions"`
	UserScores    []engine.UserScore    `json:"userScores"`
}

// CreateDecision opens a decision for constraint collection
// @Summary Create a decision
// @Description Create a decision for a group with its candidate options
// @Tags Decisions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateDecisionRequest true "Decision and options"
// @Success 201 {object} models.Decision
// @Failure 400 {object} ValidationErrorResponse
// @Failure 401 {object} map[string]string
// @Router /decisions [post]
func (h *DecisionHandler) CreateDecision(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}

	var req models.CreateDecisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody+": "+err.Error())
		return
	}

	decision, err := h.decisionService.CreateDecision(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, err, "create decision")
		return
	}

	respondWithJSON(w, http.StatusCreated, decision)
}

// GetDecision returns a decision with its options and status
// @Summary Get a decision
// @Tags Decisions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Decision ID"
// @Success 200 {object} models.Decision
// @Failure 404 {object} map[string]string
// @Router /decisions/{id} [get]
func (h *DecisionHandler) GetDecision(w http.ResponseWriter, r *http.Request) {
	decisionID := r.PathValue("id")
	if decisionID == "" {
		respondWithError(w, http.StatusBadRequest, ErrMsgMissingID)
		return
	}

	decision, err := h.decisionService.GetDecision(r.Context(), decisionID)
	if err != nil {
		writeServiceError(w, err, "get decision")
		return
	}

	respondWithJSON(w, http.StatusOK, decision)
}

// SubmitConstraint stores the caller's constraint, replacing an earlier submission
// @Summary Submit a constraint
// @Description Submit or replace the authenticated member's constraint while the decision is collecting or after a run with no viable option
// @Tags Decisions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Decision ID"
// @Param request body models.SubmitConstraintRequest true "Constraint"
// @Success 200 {object} models.ConstraintSubmission
// @Failure 400 {object} ValidationErrorResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "Decision already resolved or being resolved"
// @Router /decisions/{id}/constraints [post]
func (h *DecisionHandler) SubmitConstraint(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}
	decisionID := r.PathValue("id")
	if decisionID == "" {
		respondWithError(w, http.StatusBadRequest, ErrMsgMissingID)
		return
	}

	var req models.SubmitConstraintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody+": "+err.Error())
		return
	}

	submission, err := h.decisionService.SubmitConstraint(r.Context(), decisionID, userID, req)
	if err != nil {
		writeServiceError(w, err, "submit constraint")
		return
	}

	respondWithJSON(w, http.StatusOK, submission)
}

// ResolveDecision runs the resolution engine for a decision
// @Summary Resolve a decision
// @Description Select the option maximizing fairness-weighted group satisfaction
// @Tags Decisions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Decision ID"
// @Success 200 {object} models.StoredResult
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "Already resolving or resolved"
// @Failure 422 {object} NoViableOptionResponse "Every option was vetoed"
// @Router /decisions/{id}/resolve [post]
func (h *DecisionHandler) ResolveDecision(w http.ResponseWriter, r *http.Request) {
	decisionID := r.PathValue("id")
	if decisionID == "" {
		respondWithError(w, http.StatusBadRequest, ErrMsgMissingID)
		return
	}

	result, err := h.decisionService.ResolveDecision(r.Context(), decisionID)
	if err != nil {
		writeServiceError(w, err, "resolve decision")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// GetResult returns the latest result of a decision
// @Summary Get a decision result
// @Tags Decisions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Decision ID"
// @Success 200 {object} models.StoredResult
// @Failure 404 {object} map[string]string
// @Router /decisions/{id}/result [get]
func (h *DecisionHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	decisionID := r.PathValue("id")
	if decisionID == "" {
		respondWithError(w, http.StatusBadRequest, ErrMsgMissingID)
		return
	}

	result, err := h.decisionService.GetResult(r.Context(), decisionID)
	if err != nil {
		writeServiceError(w, err, "get result")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// ExplainAlternative explains why an option was not selected
// @Summary Explain an alternative
// @Tags Decisions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Decision ID"
// @Param optionId path string true "Option ID"
// @Success 200 {object} models.AlternativeExplanation
// @Failure 404 {object} map[string]string
// @Router /decisions/{id}/alternatives/{optionId}/explanation [get]
func (h *DecisionHandler) ExplainAlternative(w http.ResponseWriter, r *http.Request) {
	decisionID := r.PathValue("id")
	optionID := r.PathValue("optionId")
	if decisionID == "" || optionID == "" {
		respondWithError(w, http.StatusBadRequest, ErrMsgMissingID)
		return
	}

	explanation, err := h.decisionService.ExplainAlternative(r.Context(), decisionID, optionID)
	if err != nil {
		writeServiceError(w, err, "explain alternative")
		return
	}

	respondWithJSON(w, http.StatusOK, explanation)
}

// ExplainMyFairness describes the caller's standing within a group
// @Summary Explain my fairness
// @Tags Fairness
// @Produce json
// @Security BearerAuth
// @Param id path string true "Group ID"
// @Success 200 {object} models.FairnessExplanation
// @Router /groups/{id}/fairness/me [get]
func (h *DecisionHandler) ExplainMyFairness(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}
	groupID := r.PathValue("id")
	if groupID == "" {
		respondWithError(w, http.StatusBadRequest, ErrMsgMissingID)
		return
	}

	explanation, err := h.decisionService.ExplainFairness(r.Context(), groupID, userID)
	if err != nil {
		writeServiceError(w, err, "explain fairness")
		return
	}

	respondWithJSON(w, http.StatusOK, explanation)
}

// writeServiceError maps service and engine errors to HTTP responses
func writeServiceError(w http.ResponseWriter, err error, action string) {
	var verr *engine.ValidationError
	var noViable *engine.NoViableOptionError

	switch {
	case errors.As(err, &verr):
		respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:  verr.Kind.Error(),
			Fields: verr.Fields,
		})
	case errors.As(err, &noViable):
		respondWithJSON(w, http.StatusUnprocessableEntity, NoViableOptionResponse{
			Error:         engine.ErrNoViableOption.Error(),
			DecisionID:    noViable.DecisionID,
			VetoedOptions: noViable.VetoedOptions,
			UserScores:    noViable.UserScores,
		})
	case errors.Is(err, service.ErrInvalidDecision):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrDecisionNotFound),
		errors.Is(err, service.ErrResultNotFound),
		errors.Is(err, service.ErrOptionNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrDecisionBusy),
		errors.Is(err, service.ErrDecisionClosed),
		errors.Is(err, service.ErrMemberLimitExceeded):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrInsufficientData):
		respondWithError(w, http.StatusUnprocessableEntity, engine.ErrInsufficientData.Error())
	case errors.Is(err, context.DeadlineExceeded):
		slog.Warn("Request timed out", "action", action, "error", err)
		respondWithError(w, http.StatusServiceUnavailable, "Request timed out")
	default:
		slog.Error("Failed to "+action, "error", err)
		respondWithError(w, http.StatusInternalServerError, ErrMsgInternal)
	}
}
