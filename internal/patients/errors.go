package patients

import "errors"

var (
	// ErrInvalidName is returned when the name is missing
	ErrInvalidName = errors.New("patients: name is required")

	// ErrInvalidEmail is returned when the email is missing
	ErrInvalidEmail = errors.New("patients: email is required")

	// ErrPatientNotFound is returned when a patient is not found
	ErrPatientNotFound = errors.New("patients: patient not found")
)
