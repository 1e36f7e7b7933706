package escalation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mindline/platform/internal/patients"
	"github.com/mindline/platform/pkg/logging"
)

// Handler handles HTTP requests for the escalation state machine
type Handler struct {
	coordinator *Coordinator
	logger      *logging.Logger
}

// NewHandler creates a new escalation handler
func NewHandler(coordinator *Coordinator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{coordinator: coordinator, logger: logger}
}

// Escalate handles POST /escalations requests. A no-doctor outcome is a
// 200 with success=false, not an error.
func (h *Handler) Escalate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PatientID string `json:"patient_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	outcome, err := h.coordinator.Escalate(r.Context(), req.PatientID)
	if err != nil {
		h.writeError(w, err, "failed to escalate")
		return
	}
	h.writeOutcome(w, outcome)
}

// Analyze handles POST /escalations/analyze requests: run the risk detector
// over a patient message and escalate only on a crisis verdict.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PatientID string `json:"patient_id"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.coordinator.EscalateFromMessage(r.Context(), req.PatientID, req.Message)
	if err != nil {
		h.writeError(w, err, "failed to analyze message")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

// Accept handles POST /escalations/{requestID}/accept requests
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	req, err := h.coordinator.Accept(r.Context(), requestID)
	if err != nil {
		h.writeError(w, err, "failed to accept request")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"request": req,
	})
}

// Reject handles POST /escalations/{requestID}/reject requests
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	outcome, err := h.coordinator.Reject(r.Context(), requestID)
	if err != nil {
		h.writeError(w, err, "failed to reject request")
		return
	}
	h.writeOutcome(w, outcome)
}

// Status handles GET /escalations/{requestID} requests (polling fallback
// for clients without a live socket).
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	req, err := h.coordinator.Status(r.Context(), requestID)
	if err != nil {
		h.writeError(w, err, "failed to load request")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(req)
}

func (h *Handler) writeOutcome(w http.ResponseWriter, outcome *Outcome) {
	w.Header().Set("Content-Type", "application/json")
	if outcome.NoDoctor {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":              false,
			"no_doctors_available": true,
			"message":              outcome.Message,
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"request": outcome.Request,
		"doctor":  outcome.Doctor,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, ErrInvalidPatientID), errors.Is(err, ErrInvalidMessage):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, patients.ErrPatientNotFound):
		http.Error(w, "patient not found", http.StatusNotFound)
	case errors.Is(err, ErrRequestNotFound):
		http.Error(w, "request not found", http.StatusNotFound)
	case errors.Is(err, ErrActiveRequestExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error(logMsg, "error", err)
		http.Error(w, logMsg, http.StatusInternalServerError)
	}
}
