package feedback

import "errors"

var (
	// ErrSessionNotFound is returned when no session matches the ID
	ErrSessionNotFound = errors.New("feedback: session not found")

	// ErrInvalidPatientID is returned when the patient ID is missing
	ErrInvalidPatientID = errors.New("feedback: patient id is required")

	// ErrInvalidDoctorID is returned when the doctor ID is missing
	ErrInvalidDoctorID = errors.New("feedback: doctor id is required")

	// ErrSatisfiedRequired is returned when the satisfied flag is missing
	ErrSatisfiedRequired = errors.New("feedback: satisfied is required")

	// ErrInvalidRating is returned when the rating is outside 1..5
	ErrInvalidRating = errors.New("feedback: rating must be between 1 and 5")
)
