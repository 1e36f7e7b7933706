package doctors

import (
	"strings"
	"time"
)

// SpecialtyPsychology is the specialty preferred by the crisis matching policy.
const SpecialtyPsychology = "psychology"

// Doctor represents an on-call doctor in the registry.
//
// Online is the login/availability toggle controlled by the doctor. Busy is
// set while the doctor is engaged with an escalation or live session; a
// doctor is dispatchable only when Online && !Busy.
type Doctor struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Specialty    string    `json:"specialty"`
	Online       bool      `json:"online"`
	Busy         bool      `json:"busy"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Dispatchable reports whether the doctor can be assigned a new escalation.
func (d *Doctor) Dispatchable() bool {
	return d.Online && !d.Busy
}

// RegisterDoctorRequest is the request body for registering a doctor.
type RegisterDoctorRequest struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
}

// Validate validates the register doctor request
func (r *RegisterDoctorRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if strings.TrimSpace(r.Specialty) == "" {
		return ErrInvalidSpecialty
	}
	return nil
}
