package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mindline/platform/internal/crisis"
	"github.com/mindline/platform/internal/doctors"
	"github.com/mindline/platform/internal/notify"
	"github.com/mindline/platform/internal/observability/metrics"
	"github.com/mindline/platform/internal/patients"
	"github.com/mindline/platform/internal/realtime"
	"github.com/mindline/platform/pkg/logging"
)

// Patient-facing copy for the no-doctor and re-escalation outcomes.
const (
	msgNoDoctors       = "No doctors are available right now. Your emergency contact has been notified."
	msgDifferentDoctor = "We're connecting you with a different doctor."
	msgSameDoctor      = "We're reconnecting you with your previous doctor."
)

// Outcome is the result of a dispatch attempt. A no-doctor outcome is a
// normal result, not an error: the caller gets NoDoctor=true and the
// emergency path has already fired.
type Outcome struct {
	Request  *Request        `json:"request,omitempty"`
	Doctor   *doctors.Doctor `json:"doctor,omitempty"`
	NoDoctor bool            `json:"no_doctor"`
	Message  string          `json:"message,omitempty"`
}

// AnalyzeOutcome is the result of a message-driven trigger: the risk verdict
// plus, when the verdict demands it, the dispatch outcome.
type AnalyzeOutcome struct {
	Assessment crisis.Assessment `json:"assessment"`
	Escalated  bool              `json:"escalated"`
	Outcome    *Outcome          `json:"outcome,omitempty"`
}

// ReEscalationResult reports how an unsatisfied-feedback cascade resolved.
type ReEscalationResult struct {
	Outcome    *Outcome `json:"outcome"`
	SameDoctor bool     `json:"same_doctor"`
}

// Coordinator owns the escalation state machine: it claims doctors through
// the registry, persists requests, and pushes realtime events to both
// parties. All patient-mutating operations serialize on a per-patient lock,
// so a rejection cascade and a fresh escalation for the same patient can
// never interleave.
type Coordinator struct {
	store    Store
	registry doctors.Registry
	patients patients.Repository
	hub      *realtime.Hub
	notifier notify.EmergencyNotifier
	detector crisis.Detector
	policy   Policy
	metrics  *metrics.EscalationMetrics
	logger   *logging.Logger

	locks keyedMutex

	nowFunc func() time.Time
	newID   func() string
}

// CoordinatorConfig wires the coordinator's collaborators.
type CoordinatorConfig struct {
	Store    Store
	Registry doctors.Registry
	Patients patients.Repository
	Hub      *realtime.Hub
	Notifier notify.EmergencyNotifier
	Detector crisis.Detector
	Policy   *Policy
	Metrics  *metrics.EscalationMetrics
	Logger   *logging.Logger
}

// NewCoordinator creates the coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	policy := DefaultPolicy()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewStubNotifier(logger)
	}
	detector := cfg.Detector
	if detector == nil {
		detector = crisis.NewKeywordDetector()
	}
	return &Coordinator{
		store:    cfg.Store,
		registry: cfg.Registry,
		patients: cfg.Patients,
		hub:      cfg.Hub,
		notifier: notifier,
		detector: detector,
		policy:   policy,
		metrics:  cfg.Metrics,
		logger:   logger,
		nowFunc:  time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Escalate dispatches a crisis for the patient: claims the best available
// doctor, creates a pending request, and notifies the doctor's channel.
// When the pool is exhausted it alerts the patient's emergency contact and
// returns a no-doctor outcome.
func (c *Coordinator) Escalate(ctx context.Context, patientID string) (*Outcome, error) {
	if patientID == "" {
		return nil, ErrInvalidPatientID
	}
	unlock := c.locks.lock(patientID)
	defer unlock()

	return c.dispatch(ctx, patientID, dispatchOptions{})
}

// EscalateFromMessage runs the risk detector over a patient message and
// escalates only when the verdict demands it.
func (c *Coordinator) EscalateFromMessage(ctx context.Context, patientID, message string) (*AnalyzeOutcome, error) {
	if patientID == "" {
		return nil, ErrInvalidPatientID
	}
	if message == "" {
		return nil, ErrInvalidMessage
	}

	assessment, err := c.detector.Assess(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("escalation: risk assessment failed: %w", err)
	}
	result := &AnalyzeOutcome{Assessment: assessment}
	if !assessment.Escalate {
		return result, nil
	}

	unlock := c.locks.lock(patientID)
	defer unlock()

	outcome, err := c.dispatch(ctx, patientID, dispatchOptions{riskLevel: assessment.RiskLevel})
	if err != nil {
		return nil, err
	}
	result.Escalated = true
	result.Outcome = outcome
	return result, nil
}

// Accept moves a pending request to accepted and tells the patient which
// doctor picked up, with the connection options they may choose from.
func (c *Coordinator) Accept(ctx context.Context, requestID string) (*Request, error) {
	req, err := c.store.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	unlock := c.locks.lock(req.PatientID)
	defer unlock()

	// Re-read under the lock: a concurrent reject may have moved it.
	req, err = c.store.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, ErrInvalidState
	}

	now := c.nowFunc().UTC()
	if err := c.store.UpdateStatus(ctx, req.ID, StatusAccepted, now); err != nil {
		return nil, err
	}
	req.Status = StatusAccepted
	req.RespondedAt = &now

	doc, err := c.registry.GetByID(ctx, req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("escalation: load accepting doctor: %w", err)
	}

	c.hub.Emit(realtime.UserChannel(req.PatientID), realtime.NewEvent(realtime.EventDoctorAccepted, realtime.DoctorAcceptedPayload{
		RequestID:  req.ID,
		DoctorID:   doc.ID,
		DoctorName: doc.Name,
		Options:    []string{"chat", "video"},
	}))

	c.metrics.ObserveEscalation("accepted")
	c.metrics.ObserveCascadeDepth(len(req.ExcludedDoctorIDs) + 1)
	c.logger.Info("escalation accepted", "request_id", req.ID, "doctor_id", doc.ID, "patient_id", req.PatientID)
	return req, nil
}

// Reject moves a pending request to rejected, frees the doctor, and chains
// a new pending request for the next candidate, excluding everyone who
// already declined this cascade. Exhaustion notifies the patient.
func (c *Coordinator) Reject(ctx context.Context, requestID string) (*Outcome, error) {
	req, err := c.store.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	unlock := c.locks.lock(req.PatientID)
	defer unlock()

	req, err = c.store.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusPending {
		return nil, ErrInvalidState
	}

	if err := c.store.UpdateStatus(ctx, req.ID, StatusRejected, c.nowFunc().UTC()); err != nil {
		return nil, err
	}
	if err := c.registry.Release(ctx, req.DoctorID); err != nil {
		c.logger.Error("failed to release rejecting doctor", "error", err, "doctor_id", req.DoctorID)
	}
	c.metrics.ObserveRejection()
	c.logger.Info("escalation rejected", "request_id", req.ID, "doctor_id", req.DoctorID)

	return c.dispatch(ctx, req.PatientID, dispatchOptions{
		excluding:         append(req.ExcludedDoctorIDs, req.DoctorID),
		previousRequestID: req.ID,
		isReEscalation:    req.IsReEscalation,
		previousSessionID: req.PreviousSessionID,
	})
}

// ReEscalate runs the unsatisfied-feedback cascade: the finished session's
// request is closed, its doctor released, and the patient is handed to a
// different doctor when one exists, falling back to the original doctor as
// a retry. The patient is told what is happening either way.
func (c *Coordinator) ReEscalate(ctx context.Context, patientID, prevDoctorID, sessionID string) (*ReEscalationResult, error) {
	if patientID == "" {
		return nil, ErrInvalidPatientID
	}
	unlock := c.locks.lock(patientID)
	defer unlock()

	c.closeActive(ctx, patientID, prevDoctorID)

	outcome, err := c.dispatch(ctx, patientID, dispatchOptions{
		excluding:         []string{prevDoctorID},
		isReEscalation:    true,
		previousSessionID: sessionID,
		retryDoctorID:     prevDoctorID,
	})
	if err != nil {
		return nil, err
	}

	result := &ReEscalationResult{Outcome: outcome}
	if outcome.Doctor != nil {
		result.SameDoctor = outcome.Doctor.ID == prevDoctorID
		message := msgDifferentDoctor
		if result.SameDoctor {
			message = msgSameDoctor
		}
		outcome.Message = message
		c.hub.Emit(realtime.UserChannel(patientID), realtime.NewEvent(realtime.EventReEscalationStarted, realtime.ReEscalationStartedPayload{
			Message:           message,
			DoctorName:        outcome.Doctor.Name,
			IsDifferentDoctor: !result.SameDoctor,
		}))
		c.metrics.ObserveEscalation("re_escalated")
	}
	return result, nil
}

// Resolve closes the patient's active request after a satisfied session and
// frees the doctor. A patient with no active request is a no-op.
func (c *Coordinator) Resolve(ctx context.Context, patientID string) error {
	if patientID == "" {
		return ErrInvalidPatientID
	}
	unlock := c.locks.lock(patientID)
	defer unlock()

	active, err := c.store.GetActiveByPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return nil
		}
		return err
	}
	c.closeRequest(ctx, active)
	return nil
}

// Status returns the request for polling clients.
func (c *Coordinator) Status(ctx context.Context, requestID string) (*Request, error) {
	return c.store.GetByID(ctx, requestID)
}

type dispatchOptions struct {
	riskLevel         string
	excluding         []string
	previousRequestID string
	isReEscalation    bool
	previousSessionID string
	retryDoctorID     string
}

// dispatch claims a doctor through the policy tiers and creates the pending
// request. Callers must hold the patient lock.
func (c *Coordinator) dispatch(ctx context.Context, patientID string, opts dispatchOptions) (*Outcome, error) {
	patient, err := c.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}

	// A fresh escalation must not stack on an unresolved one. Cascades
	// (reject/re-escalate) already closed the prior request.
	if opts.previousRequestID == "" && !opts.isReEscalation {
		if _, err := c.store.GetActiveByPatient(ctx, patientID); err == nil {
			return nil, ErrActiveRequestExists
		} else if !errors.Is(err, ErrRequestNotFound) {
			return nil, err
		}
	}

	doc, retry := c.claim(ctx, opts)
	if doc == nil {
		c.metrics.ObserveEscalation("no_doctor")
		c.alertEmergencyContact(ctx, patient)
		c.hub.Emit(realtime.UserChannel(patientID), realtime.NewEvent(realtime.EventNoDoctorsAvailable, realtime.NoDoctorsPayload{
			Message: msgNoDoctors,
		}))
		c.logger.Warn("no doctor available for escalation", "patient_id", patientID)
		return &Outcome{NoDoctor: true, Message: msgNoDoctors}, nil
	}

	excluded := opts.excluding
	if retry {
		// The retry tier reassigns the previously excluded doctor.
		excluded = nil
	}
	req := &Request{
		ID:                c.newID(),
		PatientID:         patientID,
		DoctorID:          doc.ID,
		Status:            StatusPending,
		RequestedAt:       c.nowFunc().UTC(),
		IsReEscalation:    opts.isReEscalation,
		IsRetry:           retry,
		PreviousSessionID: opts.previousSessionID,
		PreviousRequestID: opts.previousRequestID,
		ExcludedDoctorIDs: excluded,
	}
	if err := c.store.Create(ctx, req); err != nil {
		if relErr := c.registry.Release(ctx, doc.ID); relErr != nil {
			c.logger.Error("failed to release doctor after create failure", "error", relErr, "doctor_id", doc.ID)
		}
		return nil, err
	}

	c.hub.Emit(realtime.DoctorChannel(doc.ID), realtime.NewEvent(realtime.EventEscalationRequest, realtime.EscalationRequestPayload{
		RequestID:         req.ID,
		DoctorID:          doc.ID,
		PatientID:         patient.ID,
		PatientName:       patient.Name,
		PatientEmail:      patient.Email,
		RiskLevel:         opts.riskLevel,
		IsReEscalation:    req.IsReEscalation,
		IsRetry:           req.IsRetry,
		PreviousSessionID: req.PreviousSessionID,
	}))

	c.metrics.ObserveEscalation("dispatched")
	c.logger.Info("escalation dispatched",
		"request_id", req.ID,
		"patient_id", patientID,
		"doctor_id", doc.ID,
		"re_escalation", req.IsReEscalation,
		"retry", req.IsRetry,
	)
	return &Outcome{Request: req, Doctor: doc}, nil
}

// claim walks the policy tiers. The second return reports whether the
// retry tier won.
func (c *Coordinator) claim(ctx context.Context, opts dispatchOptions) (*doctors.Doctor, bool) {
	tiers := c.policy.Tiers(TierOptions{
		PreviousDoctorID: opts.retryDoctorID,
		AllowRetry:       opts.retryDoctorID != "",
	})
	for _, tier := range tiers {
		var (
			doc *doctors.Doctor
			err error
		)
		if tier.DoctorID != "" {
			doc, err = c.registry.ClaimByID(ctx, tier.DoctorID)
		} else {
			doc, err = c.registry.Claim(ctx, tier.Specialty, opts.excluding)
		}
		if err == nil {
			return doc, tier.Retry
		}
		if !errors.Is(err, doctors.ErrNoDoctorAvailable) && !errors.Is(err, doctors.ErrDoctorNotFound) {
			c.logger.Error("doctor claim failed", "error", err, "specialty", tier.Specialty)
		}
	}
	return nil, false
}

// closeActive completes the patient's active request, if any, and releases
// the session doctor. Callers must hold the patient lock.
func (c *Coordinator) closeActive(ctx context.Context, patientID, doctorID string) {
	active, err := c.store.GetActiveByPatient(ctx, patientID)
	if err == nil {
		c.closeRequest(ctx, active)
		return
	}
	if !errors.Is(err, ErrRequestNotFound) {
		c.logger.Error("failed to load active request", "error", err, "patient_id", patientID)
	}
	// No active request on record; still free the doctor the session held.
	if doctorID != "" {
		if err := c.registry.Release(ctx, doctorID); err != nil && !errors.Is(err, doctors.ErrDoctorNotFound) {
			c.logger.Error("failed to release doctor", "error", err, "doctor_id", doctorID)
		}
	}
}

func (c *Coordinator) closeRequest(ctx context.Context, req *Request) {
	if err := c.store.UpdateStatus(ctx, req.ID, StatusCompleted, c.nowFunc().UTC()); err != nil {
		c.logger.Error("failed to complete request", "error", err, "request_id", req.ID)
	}
	if err := c.registry.Release(ctx, req.DoctorID); err != nil && !errors.Is(err, doctors.ErrDoctorNotFound) {
		c.logger.Error("failed to release doctor", "error", err, "doctor_id", req.DoctorID)
	}
}

// alertEmergencyContact is fire-and-forget: a notifier failure never fails
// the escalation.
func (c *Coordinator) alertEmergencyContact(ctx context.Context, patient *patients.Patient) {
	msg := fmt.Sprintf("URGENT: %s may need immediate support. No doctors were available on the platform right now. Please check on them.", patient.Name)
	if err := c.notifier.NotifyEmergencyContact(ctx, patient, msg); err != nil {
		c.logger.Error("emergency contact notification failed", "error", err, "patient_id", patient.ID)
	}
}

// keyedMutex serializes operations per patient.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*patientLock
}

type patientLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*patientLock)
	}
	l := k.locks[key]
	if l == nil {
		l = &patientLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
