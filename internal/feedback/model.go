package feedback

import "time"

// Session statuses.
const (
	SessionStarted   = "started"
	SessionCompleted = "completed"
)

// DoctorSession is one patient/doctor encounter tied to a room. It is
// created when the room opens and completed when feedback arrives.
type DoctorSession struct {
	ID          string     `json:"id"`
	PatientID   string     `json:"patient_id"`
	DoctorID    string     `json:"doctor_id"`
	RoomID      string     `json:"room_id"`
	SessionType string     `json:"session_type"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Feedback is the patient's verdict on a finished session. Satisfied=false
// is the trigger for the re-escalation cascade.
type Feedback struct {
	ID          string    `json:"id"`
	PatientID   string    `json:"patient_id"`
	DoctorID    string    `json:"doctor_id"`
	SessionID   string    `json:"session_id"`
	Satisfied   bool      `json:"satisfied"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	SessionType string    `json:"session_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SubmitFeedbackRequest is the request body for submitting session feedback.
// Satisfied is a pointer so a missing field is distinguishable from false.
type SubmitFeedbackRequest struct {
	PatientID   string `json:"patient_id"`
	DoctorID    string `json:"doctor_id"`
	SessionID   string `json:"session_id"`
	Satisfied   *bool  `json:"satisfied"`
	Rating      int    `json:"rating"`
	Comment     string `json:"comment"`
	SessionType string `json:"session_type"`
}

// Validate validates the submit feedback request
func (r *SubmitFeedbackRequest) Validate() error {
	if r.PatientID == "" {
		return ErrInvalidPatientID
	}
	if r.DoctorID == "" {
		return ErrInvalidDoctorID
	}
	if r.Satisfied == nil {
		return ErrSatisfiedRequired
	}
	if r.Rating < 1 || r.Rating > 5 {
		return ErrInvalidRating
	}
	return nil
}
