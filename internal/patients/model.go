package patients

import (
	"strings"
	"time"
)

// Patient represents a platform user who can trigger a crisis escalation.
type Patient struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	EmergencyNumber string    `json:"emergency_number,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// RegisterPatientRequest is the request body for registering a patient
type RegisterPatientRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	EmergencyNumber string `json:"emergency_number"`
}

// Validate validates the register patient request
func (r *RegisterPatientRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if strings.TrimSpace(r.Email) == "" {
		return ErrInvalidEmail
	}
	return nil
}
