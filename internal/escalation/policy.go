package escalation

import "github.com/mindline/platform/internal/doctors"

// Tier is one candidate query in the matching cascade. A tier either names
// an exact doctor (the re-escalation retry tier) or a specialty filter,
// where the empty specialty matches any doctor.
type Tier struct {
	Specialty string
	DoctorID  string
	Retry     bool
}

// Policy builds the ordered claim tiers for a dispatch attempt. It is pure:
// the coordinator walks the tiers and claims against the registry.
type Policy struct {
	// PreferredSpecialty is tried before falling back to any doctor.
	PreferredSpecialty string
}

// DefaultPolicy prefers psychology specialists, matching the crisis triage
// rules of the platform.
func DefaultPolicy() Policy {
	return Policy{PreferredSpecialty: doctors.SpecialtyPsychology}
}

// TierOptions selects the cascade variant.
type TierOptions struct {
	// PreviousDoctorID is the doctor the patient is being moved away from.
	// When AllowRetry is set, that doctor is appended as a last-resort tier
	// instead of being excluded outright.
	PreviousDoctorID string
	AllowRetry       bool
}

// Tiers returns the ordered candidate queries: preferred specialty first,
// then any specialty, then (for re-escalations) the previous doctor again.
func (p Policy) Tiers(opts TierOptions) []Tier {
	tiers := []Tier{
		{Specialty: p.PreferredSpecialty},
		{Specialty: ""},
	}
	if opts.AllowRetry && opts.PreviousDoctorID != "" {
		tiers = append(tiers, Tier{DoctorID: opts.PreviousDoctorID, Retry: true})
	}
	return tiers
}
