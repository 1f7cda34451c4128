package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/application/services"
	apperrors "github.com/zatekoja/Clinicalordervalidation/backend/pkg/errors"
)

const maxRareConditionLimit = 50

// RareConditionLookup ranks registry entries against free-text notes.
type RareConditionLookup interface {
	Lookup(ctx context.Context, notes string, k int) (*services.RareConditionResult, error)
}

// RareConditionRequest is the body of POST /api/rare-conditions.
type RareConditionRequest struct {
	Notes string `json:"notes"`
	Limit int    `json:"limit,omitempty"`
}

// RareConditionHandler handles rare-condition similarity requests
type RareConditionHandler struct {
	lookup RareConditionLookup
}

// NewRareConditionHandler creates a new rare-condition handler
func NewRareConditionHandler(lookup RareConditionLookup) *RareConditionHandler {
	return &RareConditionHandler{lookup: lookup}
}

// FindRareConditions handles POST /api/rare-conditions
func (h *RareConditionHandler) FindRareConditions(w http.ResponseWriter, r *http.Request) {
	var req RareConditionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if req.Limit < 0 || req.Limit > maxRareConditionLimit {
		respondWithAppError(w, r, apperrors.NewValidationError("limit must be between 0 and 50"))
		return
	}

	result, err := h.lookup.Lookup(r.Context(), req.Notes, req.Limit)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}
