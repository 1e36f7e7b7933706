package doctors

import "errors"

var (
	// ErrInvalidName is returned when the doctor name is missing
	ErrInvalidName = errors.New("doctors: name is required")

	// ErrInvalidSpecialty is returned when the specialty is missing
	ErrInvalidSpecialty = errors.New("doctors: specialty is required")

	// ErrDoctorNotFound is returned when a doctor is not found
	ErrDoctorNotFound = errors.New("doctors: doctor not found")

	// ErrNoDoctorAvailable is returned by Claim when no dispatchable
	// doctor matches the query. Callers treat this as an expected
	// outcome, not a fault.
	ErrNoDoctorAvailable = errors.New("doctors: no doctor available")
)
