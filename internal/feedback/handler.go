package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mindline/platform/internal/escalation"
	"github.com/mindline/platform/pkg/logging"
)

// Escalator is the slice of the escalation coordinator the feedback flow
// drives: close out a satisfied session, or cascade an unsatisfied one.
type Escalator interface {
	ReEscalate(ctx context.Context, patientID, prevDoctorID, sessionID string) (*escalation.ReEscalationResult, error)
	Resolve(ctx context.Context, patientID string) error
}

// Handler handles HTTP requests for session feedback
type Handler struct {
	store     FeedbackStore
	sessions  SessionStore
	escalator Escalator
	logger    *logging.Logger
}

// NewHandler creates a new feedback handler
func NewHandler(store FeedbackStore, sessions SessionStore, escalator Escalator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		store:     store,
		sessions:  sessions,
		escalator: escalator,
		logger:    logger,
	}
}

// Submit handles POST /sessions/feedback requests. Unsatisfied feedback is
// the re-escalation trigger; everything downstream of it happens inside the
// escalation coordinator.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fb := &Feedback{
		ID:          uuid.New().String(),
		PatientID:   req.PatientID,
		DoctorID:    req.DoctorID,
		SessionID:   req.SessionID,
		Satisfied:   *req.Satisfied,
		Rating:      req.Rating,
		Comment:     req.Comment,
		SessionType: req.SessionType,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.store.Create(r.Context(), fb); err != nil {
		h.logger.Error("failed to store feedback", "error", err)
		http.Error(w, "failed to store feedback", http.StatusInternalServerError)
		return
	}

	if req.SessionID != "" {
		if err := h.sessions.Complete(r.Context(), req.SessionID, time.Now()); err != nil && !errors.Is(err, ErrSessionNotFound) {
			h.logger.Error("failed to complete session", "error", err, "session_id", req.SessionID)
		}
	}

	h.logger.Info("feedback received",
		"patient_id", req.PatientID,
		"doctor_id", req.DoctorID,
		"satisfied", *req.Satisfied,
		"rating", req.Rating,
	)

	w.Header().Set("Content-Type", "application/json")

	if *req.Satisfied {
		if err := h.escalator.Resolve(r.Context(), req.PatientID); err != nil {
			h.logger.Error("failed to resolve escalation", "error", err, "patient_id", req.PatientID)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":      true,
			"re_escalated": false,
			"message":      "Thank you for your feedback.",
		})
		return
	}

	result, err := h.escalator.ReEscalate(r.Context(), req.PatientID, req.DoctorID, req.SessionID)
	if err != nil {
		h.logger.Error("re-escalation failed", "error", err, "patient_id", req.PatientID)
		http.Error(w, "failed to re-escalate", http.StatusInternalServerError)
		return
	}

	resp := map[string]any{
		"success":      true,
		"re_escalated": !result.Outcome.NoDoctor,
		"message":      result.Outcome.Message,
	}
	if !result.Outcome.NoDoctor {
		resp["is_same_doctor"] = result.SameDoctor
	}
	_ = json.NewEncoder(w).Encode(resp)
}
