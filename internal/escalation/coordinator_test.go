package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/mindline/platform/internal/doctors"
	"github.com/mindline/platform/internal/patients"
	"github.com/mindline/platform/internal/realtime"
	"github.com/mindline/platform/pkg/logging"
)

// channelRecorder captures every frame emitted to a hub identity.
type channelRecorder struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *channelRecorder) Send(data []byte) bool {
	r.mu.Lock()
	r.frames = append(r.frames, data)
	r.mu.Unlock()
	return true
}

type wireEvent struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func (r *channelRecorder) events(t *testing.T) []wireEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]wireEvent, 0, len(r.frames))
	for _, data := range r.frames {
		var evt wireEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		out = append(out, evt)
	}
	return out
}

func (r *channelRecorder) lastEvent(t *testing.T) wireEvent {
	t.Helper()
	evts := r.events(t)
	if len(evts) == 0 {
		t.Fatal("no events recorded")
	}
	return evts[len(evts)-1]
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) NotifyEmergencyContact(ctx context.Context, patient *patients.Patient, message string) error {
	n.mu.Lock()
	n.calls = append(n.calls, patient.ID)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type fixture struct {
	registry *doctors.InMemoryRegistry
	store    *InMemoryStore
	patients *patients.InMemoryRepository
	hub      *realtime.Hub
	notifier *recordingNotifier
	coord    *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry: doctors.NewInMemoryRegistry(),
		store:    NewInMemoryStore(),
		patients: patients.NewInMemoryRepository(),
		hub:      realtime.NewHub(logging.New("error")),
		notifier: &recordingNotifier{},
	}
	f.coord = NewCoordinator(CoordinatorConfig{
		Store:    f.store,
		Registry: f.registry,
		Patients: f.patients,
		Hub:      f.hub,
		Notifier: f.notifier,
		Logger:   logging.New("error"),
	})
	return f
}

func (f *fixture) addDoctor(t *testing.T, name, specialty string, online bool) string {
	t.Helper()
	doc, err := f.registry.Register(context.Background(), &doctors.RegisterDoctorRequest{Name: name, Specialty: specialty})
	if err != nil {
		t.Fatalf("register doctor: %v", err)
	}
	if online {
		if err := f.registry.SetOnline(context.Background(), doc.ID, true); err != nil {
			t.Fatalf("set online: %v", err)
		}
	}
	return doc.ID
}

func (f *fixture) addPatient(t *testing.T, name string) string {
	t.Helper()
	p, err := f.patients.Create(context.Background(), &patients.RegisterPatientRequest{
		Name:            name,
		Email:           name + "@example.com",
		EmergencyNumber: "9876543210",
	})
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return p.ID
}

func (f *fixture) watch(identity string) *channelRecorder {
	rec := &channelRecorder{}
	f.hub.Join(identity, rec)
	return rec
}

func (f *fixture) doctor(t *testing.T, id string) *doctors.Doctor {
	t.Helper()
	doc, err := f.registry.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get doctor: %v", err)
	}
	return doc
}

func TestEscalatePrefersSpecialist(t *testing.T) {
	f := newFixture(t)
	gp := f.addDoctor(t, "Dr. General", "general", true)
	psy := f.addDoctor(t, "Dr. Mind", "psychology", true)
	patientID := f.addPatient(t, "alice")
	doctorRec := f.watch(realtime.DoctorChannel(psy))

	outcome, err := f.coord.Escalate(context.Background(), patientID)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if outcome.NoDoctor {
		t.Fatal("expected a doctor to be assigned")
	}
	if outcome.Doctor.ID != psy {
		t.Errorf("assigned %s, want the psychology specialist", outcome.Doctor.ID)
	}
	if !f.doctor(t, psy).Busy {
		t.Error("assigned doctor should be busy")
	}
	if f.doctor(t, gp).Busy {
		t.Error("non-assigned doctor must stay free")
	}
	if outcome.Request.Status != StatusPending {
		t.Errorf("status = %s, want pending", outcome.Request.Status)
	}

	evt := doctorRec.lastEvent(t)
	if evt.Name != realtime.EventEscalationRequest {
		t.Fatalf("doctor received %q, want escalation-request", evt.Name)
	}
	var payload realtime.EscalationRequestPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.PatientName != "alice" || payload.PatientEmail != "alice@example.com" {
		t.Errorf("payload carries %q/%q, want patient identity", payload.PatientName, payload.PatientEmail)
	}
	if payload.RequestID != outcome.Request.ID {
		t.Error("payload request id mismatch")
	}
}

func TestEscalateFallsBackToAnySpecialty(t *testing.T) {
	f := newFixture(t)
	gp := f.addDoctor(t, "Dr. General", "general", true)
	patientID := f.addPatient(t, "bob")

	outcome, err := f.coord.Escalate(context.Background(), patientID)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if outcome.NoDoctor || outcome.Doctor.ID != gp {
		t.Errorf("outcome = %+v, want the general doctor", outcome)
	}
}

func TestEscalateNoDoctorAvailable(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(t, "Dr. Offline", "psychology", false)
	patientID := f.addPatient(t, "carol")
	patientRec := f.watch(realtime.UserChannel(patientID))

	outcome, err := f.coord.Escalate(context.Background(), patientID)
	if err != nil {
		t.Fatalf("no-doctor must not be an error, got %v", err)
	}
	if !outcome.NoDoctor {
		t.Fatal("expected no-doctor outcome")
	}
	if f.notifier.count() != 1 {
		t.Errorf("emergency notifications = %d, want 1", f.notifier.count())
	}
	if evt := patientRec.lastEvent(t); evt.Name != realtime.EventNoDoctorsAvailable {
		t.Errorf("patient received %q, want no-doctors-available", evt.Name)
	}
	if _, err := f.store.GetActiveByPatient(context.Background(), patientID); !errors.Is(err, ErrRequestNotFound) {
		t.Error("no request should be created when the pool is empty")
	}
}

func TestEscalateUnknownPatient(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(t, "Dr. Mind", "psychology", true)

	if _, err := f.coord.Escalate(context.Background(), "missing"); !errors.Is(err, patients.ErrPatientNotFound) {
		t.Errorf("err = %v, want ErrPatientNotFound", err)
	}
}

func TestEscalateRejectsSecondActiveRequest(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(t, "Dr. A", "psychology", true)
	f.addDoctor(t, "Dr. B", "psychology", true)
	patientID := f.addPatient(t, "dave")

	if _, err := f.coord.Escalate(context.Background(), patientID); err != nil {
		t.Fatalf("first escalate: %v", err)
	}
	if _, err := f.coord.Escalate(context.Background(), patientID); !errors.Is(err, ErrActiveRequestExists) {
		t.Errorf("err = %v, want ErrActiveRequestExists", err)
	}
}

func TestAcceptNotifiesPatient(t *testing.T) {
	f := newFixture(t)
	psy := f.addDoctor(t, "Dr. Mind", "psychology", true)
	patientID := f.addPatient(t, "erin")
	patientRec := f.watch(realtime.UserChannel(patientID))

	outcome, err := f.coord.Escalate(context.Background(), patientID)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}

	req, err := f.coord.Accept(context.Background(), outcome.Request.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if req.Status != StatusAccepted || req.RespondedAt == nil {
		t.Errorf("request = %+v, want accepted with response time", req)
	}

	evt := patientRec.lastEvent(t)
	if evt.Name != realtime.EventDoctorAccepted {
		t.Fatalf("patient received %q, want doctor-accepted", evt.Name)
	}
	var payload realtime.DoctorAcceptedPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.DoctorID != psy || len(payload.Options) != 2 {
		t.Errorf("payload = %+v, want doctor id and chat/video options", payload)
	}

	// Accepting twice is a state error.
	if _, err := f.coord.Accept(context.Background(), outcome.Request.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second accept err = %v, want ErrInvalidState", err)
	}
}

func TestRejectCascadesToNextDoctor(t *testing.T) {
	f := newFixture(t)
	first := f.addDoctor(t, "Dr. First", "psychology", true)
	second := f.addDoctor(t, "Dr. Second", "psychology", true)
	patientID := f.addPatient(t, "frank")

	outcome, err := f.coord.Escalate(context.Background(), patientID)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if outcome.Doctor.ID != first {
		t.Fatalf("expected deterministic first pick, got %s", outcome.Doctor.ID)
	}

	next, err := f.coord.Reject(context.Background(), outcome.Request.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if next.NoDoctor {
		t.Fatal("second doctor should be claimed")
	}
	if next.Doctor.ID != second {
		t.Errorf("cascade assigned %s, want the second doctor", next.Doctor.ID)
	}
	if next.Request.PreviousRequestID != outcome.Request.ID {
		t.Error("follow-up request must chain to the rejected one")
	}
	if len(next.Request.ExcludedDoctorIDs) != 1 || next.Request.ExcludedDoctorIDs[0] != first {
		t.Errorf("excluded = %v, want the rejecting doctor", next.Request.ExcludedDoctorIDs)
	}

	// The rejector is free again but must not be re-picked for this cascade.
	if f.doctor(t, first).Busy {
		t.Error("rejecting doctor should be released")
	}

	// The rejected request is terminal.
	if _, err := f.coord.Reject(context.Background(), outcome.Request.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("re-reject err = %v, want ErrInvalidState", err)
	}
}

func TestRejectExhaustionNotifiesPatient(t *testing.T) {
	f := newFixture(t)
	only := f.addDoctor(t, "Dr. Only", "psychology", true)
	patientID := f.addPatient(t, "grace")
	patientRec := f.watch(realtime.UserChannel(patientID))

	outcome, err := f.coord.Escalate(context.Background(), patientID)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}

	next, err := f.coord.Reject(context.Background(), outcome.Request.ID)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !next.NoDoctor {
		t.Fatal("cascade should exhaust with a single doctor")
	}
	if evt := patientRec.lastEvent(t); evt.Name != realtime.EventNoDoctorsAvailable {
		t.Errorf("patient received %q, want no-doctors-available", evt.Name)
	}
	if f.doctor(t, only).Busy {
		t.Error("rejecting doctor should be free after exhaustion")
	}
}

func TestReEscalatePrefersDifferentDoctor(t *testing.T) {
	f := newFixture(t)
	prev := f.addDoctor(t, "Dr. Prev", "psychology", true)
	other := f.addDoctor(t, "Dr. Other", "psychology", true)
	patientID := f.addPatient(t, "heidi")
	patientRec := f.watch(realtime.UserChannel(patientID))

	outcome, err := f.coord.Escalate(context.Background(), patientID)
	if err != nil || outcome.Doctor.ID != prev {
		t.Fatalf("escalate: outcome=%+v err=%v", outcome, err)
	}
	if _, err := f.coord.Accept(context.Background(), outcome.Request.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	result, err := f.coord.ReEscalate(context.Background(), patientID, prev, "session-1")
	if err != nil {
		t.Fatalf("re-escalate: %v", err)
	}
	if result.SameDoctor {
		t.Error("a different specialist was available")
	}
	if result.Outcome.Doctor.ID != other {
		t.Errorf("assigned %s, want the other specialist", result.Outcome.Doctor.ID)
	}
	if !result.Outcome.Request.IsReEscalation || result.Outcome.Request.IsRetry {
		t.Errorf("request flags = %+v, want re-escalation without retry", result.Outcome.Request)
	}
	if result.Outcome.Request.PreviousSessionID != "session-1" {
		t.Error("request should carry the previous session id")
	}

	// Prior request is closed and the previous doctor released.
	prior, err := f.store.GetByID(context.Background(), outcome.Request.ID)
	if err != nil || prior.Status != StatusCompleted {
		t.Errorf("prior request = %+v err=%v, want completed", prior, err)
	}
	if f.doctor(t, prev).Busy {
		t.Error("previous doctor should be released")
	}

	evt := patientRec.lastEvent(t)
	if evt.Name != realtime.EventReEscalationStarted {
		t.Fatalf("patient received %q, want re-escalation-started", evt.Name)
	}
	var payload realtime.ReEscalationStartedPayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !payload.IsDifferentDoctor || payload.DoctorName != "Dr. Other" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestReEscalateRetriesOriginalDoctor(t *testing.T) {
	f := newFixture(t)
	prev := f.addDoctor(t, "Dr. Prev", "psychology", true)
	patientID := f.addPatient(t, "ivan")

	outcome, err := f.coord.Escalate(context.Background(), patientID)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if _, err := f.coord.Accept(context.Background(), outcome.Request.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	result, err := f.coord.ReEscalate(context.Background(), patientID, prev, "session-2")
	if err != nil {
		t.Fatalf("re-escalate: %v", err)
	}
	if !result.SameDoctor {
		t.Fatal("only the original doctor is online; expected retry")
	}
	if !result.Outcome.Request.IsRetry {
		t.Error("retry tier must mark IsRetry")
	}
	if !f.doctor(t, prev).Busy {
		t.Error("retried doctor must be claimed again")
	}
}

func TestReEscalateExhaustion(t *testing.T) {
	f := newFixture(t)
	prev := f.addDoctor(t, "Dr. Prev", "psychology", true)
	patientID := f.addPatient(t, "judy")

	outcome, err := f.coord.Escalate(context.Background(), patientID)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if _, err := f.coord.Accept(context.Background(), outcome.Request.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	// The previous doctor logs off before feedback lands.
	if err := f.registry.SetOnline(context.Background(), prev, false); err != nil {
		t.Fatalf("set offline: %v", err)
	}

	result, err := f.coord.ReEscalate(context.Background(), patientID, prev, "session-3")
	if err != nil {
		t.Fatalf("re-escalate: %v", err)
	}
	if !result.Outcome.NoDoctor {
		t.Error("expected no-doctor outcome")
	}
}

func TestEscalateFromMessage(t *testing.T) {
	f := newFixture(t)
	psy := f.addDoctor(t, "Dr. Mind", "psychology", true)
	patientID := f.addPatient(t, "kate")

	calm, err := f.coord.EscalateFromMessage(context.Background(), patientID, "I had an okay day today")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if calm.Escalated {
		t.Error("a calm message must not escalate")
	}
	if f.doctor(t, psy).Busy {
		t.Error("no doctor should be claimed for a calm message")
	}

	crisisMsg, err := f.coord.EscalateFromMessage(context.Background(), patientID, "I want to end my life")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !crisisMsg.Escalated || crisisMsg.Outcome == nil || crisisMsg.Outcome.Doctor == nil {
		t.Fatalf("crisis message should escalate, got %+v", crisisMsg)
	}
	if crisisMsg.Outcome.Doctor.ID != psy {
		t.Error("specialist should be claimed")
	}
}

func TestResolveCompletesActiveRequest(t *testing.T) {
	f := newFixture(t)
	psy := f.addDoctor(t, "Dr. Mind", "psychology", true)
	patientID := f.addPatient(t, "liam")

	outcome, err := f.coord.Escalate(context.Background(), patientID)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if _, err := f.coord.Accept(context.Background(), outcome.Request.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := f.coord.Resolve(context.Background(), patientID); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	req, err := f.store.GetByID(context.Background(), outcome.Request.ID)
	if err != nil || req.Status != StatusCompleted {
		t.Errorf("request = %+v err=%v, want completed", req, err)
	}
	if f.doctor(t, psy).Busy {
		t.Error("doctor should be released after a resolved session")
	}

	// Resolving again is a no-op.
	if err := f.coord.Resolve(context.Background(), patientID); err != nil {
		t.Errorf("second resolve: %v", err)
	}
}

func TestConcurrentEscalationsSinglePatient(t *testing.T) {
	f := newFixture(t)
	f.addDoctor(t, "Dr. A", "psychology", true)
	f.addDoctor(t, "Dr. B", "psychology", true)
	f.addDoctor(t, "Dr. C", "psychology", true)
	patientID := f.addPatient(t, "mallory")

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.Escalate(context.Background(), patientID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, conflicted int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrActiveRequestExists):
			conflicted++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("succeeded = %d, want exactly 1 active escalation", succeeded)
	}
	if conflicted != attempts-1 {
		t.Errorf("conflicted = %d, want %d", conflicted, attempts-1)
	}

	// Only one doctor may be claimed.
	var busy int
	online, _ := f.registry.ListOnline(context.Background())
	for _, doc := range online {
		if doc.Busy {
			busy++
		}
	}
	if busy != 1 {
		t.Errorf("busy doctors = %d, want 1", busy)
	}
}
