package escalation

import "time"

// Status is the lifecycle state of an escalation request.
type Status string

const (
	// StatusPending means a doctor has been assigned and has not responded.
	StatusPending Status = "pending"
	// StatusAccepted means the doctor accepted and a session may start.
	StatusAccepted Status = "accepted"
	// StatusRejected means the doctor declined; a follow-up request is
	// created for the next candidate.
	StatusRejected Status = "rejected"
	// StatusCompleted means the session finished and the request is closed.
	StatusCompleted Status = "completed"
)

// Active reports whether the request still blocks new escalations for the
// same patient. A patient has at most one active request at a time.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusAccepted
}

// Request is a single dispatch attempt: one patient, one assigned doctor,
// pending until the doctor responds. A rejection cascade is a chain of
// requests linked through PreviousRequestID, each excluding every doctor
// that already declined.
type Request struct {
	ID        string `json:"id"`
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Status    Status `json:"status"`

	RequestedAt time.Time  `json:"requested_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`

	// IsReEscalation marks requests created by an unsatisfied-feedback
	// cascade; IsRetry additionally marks the same-doctor retry tier.
	IsReEscalation    bool   `json:"is_re_escalation,omitempty"`
	IsRetry           bool   `json:"is_retry,omitempty"`
	PreviousSessionID string `json:"previous_session_id,omitempty"`
	PreviousRequestID string `json:"previous_request_id,omitempty"`

	// ExcludedDoctorIDs accumulates every doctor skipped for this cascade:
	// rejectors, and on re-escalation the doctor being moved away from.
	ExcludedDoctorIDs []string `json:"excluded_doctor_ids,omitempty"`
}
