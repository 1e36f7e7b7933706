package feedback

import (
	"context"
	"sync"
	"time"
)

// SessionStore defines the interface for doctor session persistence.
type SessionStore interface {
	Create(ctx context.Context, session *DoctorSession) error
	GetByID(ctx context.Context, id string) (*DoctorSession, error)

	// Complete marks the session finished. Idempotent.
	Complete(ctx context.Context, id string, at time.Time) error
}

// FeedbackStore defines the interface for feedback persistence.
type FeedbackStore interface {
	Create(ctx context.Context, fb *Feedback) error
	ListByDoctor(ctx context.Context, doctorID string) ([]*Feedback, error)
}

// InMemorySessionStore is a mutex-guarded SessionStore.
type InMemorySessionStore struct {
	mu   sync.Mutex
	byID map[string]*DoctorSession
}

// NewInMemorySessionStore creates a new in-memory session store
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{byID: make(map[string]*DoctorSession)}
}

// Create persists the session
func (s *InMemorySessionStore) Create(ctx context.Context, session *DoctorSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *session
	s.byID[session.ID] = &clone
	return nil
}

// GetByID retrieves a session by ID
func (s *InMemorySessionStore) GetByID(ctx context.Context, id string) (*DoctorSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byID[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	clone := *session
	if session.CompletedAt != nil {
		ts := *session.CompletedAt
		clone.CompletedAt = &ts
	}
	return &clone, nil
}

// Complete marks the session finished.
func (s *InMemorySessionStore) Complete(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byID[id]
	if !ok {
		return ErrSessionNotFound
	}
	if session.Status == SessionCompleted {
		return nil
	}
	session.Status = SessionCompleted
	ts := at.UTC()
	session.CompletedAt = &ts
	return nil
}

// InMemoryFeedbackStore is a mutex-guarded FeedbackStore.
type InMemoryFeedbackStore struct {
	mu      sync.Mutex
	entries []*Feedback
}

// NewInMemoryFeedbackStore creates a new in-memory feedback store
func NewInMemoryFeedbackStore() *InMemoryFeedbackStore {
	return &InMemoryFeedbackStore{}
}

// Create persists the feedback entry
func (s *InMemoryFeedbackStore) Create(ctx context.Context, fb *Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *fb
	s.entries = append(s.entries, &clone)
	return nil
}

// ListByDoctor returns all feedback left for the doctor, oldest first.
func (s *InMemoryFeedbackStore) ListByDoctor(ctx context.Context, doctorID string) ([]*Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Feedback
	for _, fb := range s.entries {
		if fb.DoctorID == doctorID {
			clone := *fb
			out = append(out, &clone)
		}
	}
	return out, nil
}

var (
	_ SessionStore  = (*InMemorySessionStore)(nil)
	_ FeedbackStore = (*InMemoryFeedbackStore)(nil)
)
