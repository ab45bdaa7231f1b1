package ros

import (
	"encoding/json"
	"net/http"
)

// Handler exposes ROS recording over HTTP.
//
// Routes:
//
//	POST /participants/{id}/ros → record a new return-of-service commitment
type Handler struct {
	rec *Recorder
}

// NewHandler returns a configured Handler.
func NewHandler(rec *Recorder) *Handler {
	return &Handler{rec: rec}
}

// Handle handles POST /participants/{id}/ros. Mounted by the pipeline route
// dispatcher since both share the /participants/ prefix.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request, participantID string) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Header.Get("x-user-id") == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return
	}

	var data Data
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data.Date == "" {
		jsonError(w, "body must contain date", http.StatusBadRequest)
		return
	}

	res, err := h.rec.Record(r.Context(), participantID, data)
	if err != nil {
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(res)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
