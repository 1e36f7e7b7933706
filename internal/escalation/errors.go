package escalation

import "errors"

var (
	// ErrRequestNotFound is returned when no request matches the ID
	ErrRequestNotFound = errors.New("escalation: request not found")

	// ErrInvalidState is returned when an operation is applied to a
	// request outside the pending state (e.g. accepting twice).
	ErrInvalidState = errors.New("escalation: request is not pending")

	// ErrActiveRequestExists is returned when a patient already has a
	// pending or accepted request. One active escalation per patient.
	ErrActiveRequestExists = errors.New("escalation: patient already has an active request")

	// ErrInvalidPatientID is returned when the patient ID is missing
	ErrInvalidPatientID = errors.New("escalation: patient id is required")

	// ErrInvalidMessage is returned when the analyze message is missing
	ErrInvalidMessage = errors.New("escalation: message is required")
)
