package doctors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mindline/platform/pkg/logging"
)

// Handler handles HTTP requests for the doctor registry
type Handler struct {
	registry Registry
	presence *Presence
	logger   *logging.Logger
}

// NewHandler creates a new doctors handler. presence may be nil when Redis
// is not configured.
func NewHandler(registry Registry, presence *Presence, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		registry: registry,
		presence: presence,
		logger:   logger,
	}
}

// Register handles POST /doctors requests
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	doc, err := h.registry.Register(r.Context(), &req)
	if err != nil {
		h.logger.Error("failed to register doctor", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info("doctor registered", "id", doc.ID, "specialty", doc.Specialty)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(doc)
}

// Get handles GET /doctors/{doctorID} requests
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "doctorID")
	doc, err := h.registry.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			http.Error(w, "doctor not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load doctor", "error", err, "doctor_id", id)
		http.Error(w, "failed to load doctor", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

// SetStatus handles POST /doctors/{doctorID}/status requests (online toggle).
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "doctorID")

	var req struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.registry.SetOnline(r.Context(), id, req.Online); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			http.Error(w, "doctor not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to update doctor status", "error", err, "doctor_id", id)
		http.Error(w, "failed to update status", http.StatusInternalServerError)
		return
	}

	h.logger.Info("doctor status updated", "doctor_id", id, "online", req.Online)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// Heartbeat handles POST /doctors/{doctorID}/heartbeat requests.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if h.presence == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	id := chi.URLParam(r, "doctorID")
	if _, err := h.registry.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			http.Error(w, "doctor not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load doctor", http.StatusInternalServerError)
		return
	}

	if err := h.presence.Heartbeat(r.Context(), id); err != nil {
		h.logger.Error("failed to record heartbeat", "error", err, "doctor_id", id)
		http.Error(w, "failed to record heartbeat", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
