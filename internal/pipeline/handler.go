// HTTP handlers for the pipeline service.
//
// All routes expect identity headers forwarded by the gateway after
// authentication: x-user-id, x-employer-id and x-user-sites (comma-separated
// site ids).
//
// Routes:
//
//	POST /participants/{id}/status → apply one status transition
//	POST /participants/engage      → bulk move to prospecting
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ActionHandler serves one /participants/{id}/{action} route owned by
// another package (cohort reassignment, ROS recording).
type ActionHandler func(w http.ResponseWriter, r *http.Request, participantID string)

// Handler exposes the engine over HTTP.
type Handler struct {
	engine  *Engine
	actions map[string]ActionHandler
}

// NewHandler returns a configured Handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine, actions: make(map[string]ActionHandler)}
}

// RegisterAction mounts an extra /participants/{id}/{name} route.
func (h *Handler) RegisterAction(name string, fn ActionHandler) {
	h.actions[name] = fn
}

// RegisterRoutes mounts all pipeline routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/participants/engage", h.handleBulkEngage)
	mux.HandleFunc("/participants/", h.handleParticipantAction)
}

// ─── Route dispatch ───────────────────────────────────────────────────────────

// handleParticipantAction handles POST /participants/{id}/status
func (h *Handler) handleParticipantAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 {
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}

	participantID := parts[1]
	switch action := parts[2]; action {
	case "status":
		h.setStatus(w, r, participantID)
	default:
		if fn, ok := h.actions[action]; ok {
			fn(w, r, participantID)
			return
		}
		jsonError(w, fmt.Sprintf("unknown action %q", action), http.StatusNotFound)
	}
}

// ─── Individual handlers ──────────────────────────────────────────────────────

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, participantID string) {
	actor, employerID, ok := identity(w, r)
	if !ok {
		return
	}

	var body struct {
		Status        string          `json:"status"`
		Data          json.RawMessage `json:"data"`
		PriorStatusID string          `json:"priorStatusId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		jsonError(w, "body must contain status", http.StatusBadRequest)
		return
	}

	status, err := ParseStatus(body.Status)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := decodeData(status, body.Data)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.engine.SetStatus(r.Context(), Request{
		EmployerID:    employerID,
		ParticipantID: participantID,
		Status:        status,
		Data:          data,
		Actor:         actor,
		PriorStatusID: body.PriorStatusID,
	})
	if errors.Is(err, ErrNotFound) {
		jsonError(w, "record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	writeResult(w, res)
}

// handleBulkEngage handles POST /participants/engage
func (h *Handler) handleBulkEngage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, employerID, ok := identity(w, r)
	if !ok {
		return
	}

	var body struct {
		ParticipantIDs []string `json:"participantIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.ParticipantIDs) == 0 {
		jsonError(w, "body must contain participantIds", http.StatusBadRequest)
		return
	}

	results, err := h.engine.BulkEngage(r.Context(), employerID, body.ParticipantIDs, actor)
	if err != nil {
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}
	jsonOK(w, results)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// identity extracts the acting user and employer from the forwarded headers.
func identity(w http.ResponseWriter, r *http.Request) (Actor, string, bool) {
	userID := r.Header.Get("x-user-id")
	employerID := r.Header.Get("x-employer-id")
	if userID == "" || employerID == "" {
		jsonError(w, "missing x-user-id or x-employer-id header", http.StatusUnauthorized)
		return Actor{}, "", false
	}
	var sites []string
	if raw := r.Header.Get("x-user-sites"); raw != "" {
		sites = strings.Split(raw, ",")
	}
	return Actor{ID: userID, Sites: sites}, employerID, true
}

// writeResult maps an engine outcome to its HTTP shape.
func writeResult(w http.ResponseWriter, res *Result) {
	switch res.Outcome {
	case OutcomeOK:
		payload := map[string]string{"id": res.ID, "status": string(res.NewStatus)}
		if res.EmailAddress != "" {
			payload["emailAddress"] = res.EmailAddress
		}
		if res.PhoneNumber != "" {
			payload["phoneNumber"] = res.PhoneNumber
		}
		jsonOK(w, payload)
	case OutcomeInvalidStatus:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": string(res.Outcome),
		})
	case OutcomeInvalidTransition:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status":        string(res.Outcome),
			"currentStatus": string(res.CurrentStatus),
			"newStatus":     string(res.NewStatus),
		})
	case OutcomeAlreadyHired:
		writeJSON(w, http.StatusConflict, map[string]string{
			"status": string(res.Outcome),
		})
	case OutcomeInvalidArchive:
		writeJSON(w, http.StatusConflict, map[string]string{
			"status": string(res.Outcome),
			"reason": res.Reason,
		})
	default:
		jsonError(w, "unhandled outcome", http.StatusInternalServerError)
	}
}

func jsonOK(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
