package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/application/services"
)

// ContextGenerator produces the LLM context block for a keyword list.
type ContextGenerator interface {
	Generate(ctx context.Context, keywords []string) services.ContextResult
}

// ContextRequest is the body of POST /api/context.
type ContextRequest struct {
	Keywords []string `json:"keywords"`
	Notes    string   `json:"notes,omitempty"`
}

// ContextHandler serves reference context for order validation prompts.
type ContextHandler struct {
	generator ContextGenerator
}

// NewContextHandler creates a new context handler
func NewContextHandler(generator ContextGenerator) *ContextHandler {
	return &ContextHandler{generator: generator}
}

// GenerateContext handles POST /api/context. Notes are split on whitespace
// and appended to the keyword list; the engine drops anything too short to
// score. The response is always 200 with a context block, because the
// engine degrades to a sentinel rather than failing.
func (h *ContextHandler) GenerateContext(w http.ResponseWriter, r *http.Request) {
	var req ContextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	keywords := append([]string{}, req.Keywords...)
	keywords = append(keywords, strings.Fields(req.Notes)...)

	result := h.generator.Generate(r.Context(), keywords)
	w.Header().Set("X-Request-ID", result.RequestID)
	respondWithJSON(w, http.StatusOK, result)
}
