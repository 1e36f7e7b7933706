package session

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mindline/platform/internal/escalation"
	"github.com/mindline/platform/pkg/logging"
)

// Handler handles HTTP requests for the session lifecycle
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a new session handler
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// CreateRoom handles POST /sessions/rooms requests: the patient picked a
// connection type after the doctor accepted.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestID      string `json:"request_id"`
		ConnectionType string `json:"connection_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	created, err := h.service.CreateRoom(r.Context(), req.RequestID, req.ConnectionType)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidConnectionType):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, escalation.ErrRequestNotFound):
			http.Error(w, "request not found", http.StatusNotFound)
		case errors.Is(err, ErrInvalidRequestState):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("failed to create room", "error", err)
			http.Error(w, "failed to create room", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":      true,
		"room":         created.Room,
		"redirect_url": created.RedirectURL,
	})
}

// GetRoom handles GET /sessions/rooms/{roomID} requests.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	room, err := h.service.rooms.GetByID(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load room", "error", err, "room_id", roomID)
		http.Error(w, "failed to load room", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(room)
}
