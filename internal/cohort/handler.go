package cohort

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Handler exposes cohort reassignment over HTTP.
//
// Routes:
//
//	POST /participants/{id}/cohort → move participant to a new cohort
type Handler struct {
	svc *Service
}

// NewHandler returns a configured Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Handle handles POST /participants/{id}/cohort. Mounted by the pipeline
// route dispatcher since both share the /participants/ prefix.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request, participantID string) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.Header.Get("x-user-id")
	if userID == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}

	var body struct {
		FromCohortID string `json:"fromCohortId"`
		ToCohortID   string `json:"toCohortId"`
		Reason       string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
		body.FromCohortID == "" || body.ToCohortID == "" {
		jsonError(w, "body must contain fromCohortId and toCohortId", http.StatusBadRequest)
		return
	}

	res, err := h.svc.ChangeCohort(r.Context(), participantID,
		body.FromCohortID, body.ToCohortID, userID, strings.TrimSpace(body.Reason))
	switch {
	case errors.Is(err, ErrNotInCohort):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrCohortNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case err != nil:
		jsonError(w, "database error", http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(res)
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
