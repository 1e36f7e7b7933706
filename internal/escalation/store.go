package escalation

import (
	"context"
	"sync"
	"time"
)

// Store defines the interface for escalation request persistence.
type Store interface {
	// Create persists a new request. Returns ErrActiveRequestExists when
	// the patient already has a pending or accepted request.
	Create(ctx context.Context, req *Request) error
	GetByID(ctx context.Context, id string) (*Request, error)

	// GetActiveByPatient returns the patient's pending or accepted
	// request, or ErrRequestNotFound when there is none.
	GetActiveByPatient(ctx context.Context, patientID string) (*Request, error)

	// UpdateStatus moves the request to the given status and stamps the
	// response time.
	UpdateStatus(ctx context.Context, id string, status Status, respondedAt time.Time) error
}

// InMemoryStore is a mutex-guarded Store used in tests and single-node
// deployments without Postgres.
type InMemoryStore struct {
	mu   sync.Mutex
	byID map[string]*Request
}

// NewInMemoryStore creates a new in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[string]*Request)}
}

// Create persists the request, enforcing one active request per patient.
func (s *InMemoryStore) Create(ctx context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if existing.PatientID == req.PatientID && existing.Status.Active() {
			return ErrActiveRequestExists
		}
	}

	clone := cloneRequest(req)
	s.byID[req.ID] = clone
	return nil
}

// GetByID retrieves a request by ID
func (s *InMemoryStore) GetByID(ctx context.Context, id string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.byID[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return cloneRequest(req), nil
}

// GetActiveByPatient returns the patient's active request, if any.
func (s *InMemoryStore) GetActiveByPatient(ctx context.Context, patientID string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, req := range s.byID {
		if req.PatientID == patientID && req.Status.Active() {
			return cloneRequest(req), nil
		}
	}
	return nil, ErrRequestNotFound
}

// UpdateStatus transitions the request and stamps the response time.
func (s *InMemoryStore) UpdateStatus(ctx context.Context, id string, status Status, respondedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.byID[id]
	if !ok {
		return ErrRequestNotFound
	}
	req.Status = status
	ts := respondedAt.UTC()
	req.RespondedAt = &ts
	return nil
}

func cloneRequest(req *Request) *Request {
	clone := *req
	if req.RespondedAt != nil {
		ts := *req.RespondedAt
		clone.RespondedAt = &ts
	}
	clone.ExcludedDoctorIDs = append([]string(nil), req.ExcludedDoctorIDs...)
	return &clone
}

var _ Store = (*InMemoryStore)(nil)
