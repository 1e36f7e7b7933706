package doctors

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry defines the interface for doctor availability tracking.
//
// Claim and ClaimByID are the only ways a doctor becomes Busy: both are
// atomic check-and-set operations, so two concurrent escalations can never
// select the same doctor.
type Registry interface {
	Register(ctx context.Context, req *RegisterDoctorRequest) (*Doctor, error)
	GetByID(ctx context.Context, id string) (*Doctor, error)
	ListOnline(ctx context.Context) ([]*Doctor, error)

	// SetOnline flips the doctor's availability toggle. Idempotent.
	SetOnline(ctx context.Context, id string, online bool) error

	// FindAvailable returns the first dispatchable doctor matching the
	// specialty (empty string matches any), skipping excluded IDs. It does
	// not mutate state; selection for assignment must go through Claim.
	FindAvailable(ctx context.Context, specialty string, excluding []string) (*Doctor, error)

	// Claim atomically finds a dispatchable doctor and marks them busy.
	// Returns ErrNoDoctorAvailable when the pool is exhausted.
	Claim(ctx context.Context, specialty string, excluding []string) (*Doctor, error)

	// ClaimByID marks the given doctor busy if they are dispatchable.
	ClaimByID(ctx context.Context, id string) (*Doctor, error)

	// Release clears the busy flag after a rejection or session end.
	Release(ctx context.Context, id string) error
}

// InMemoryRegistry is a mutex-guarded Registry used in tests and
// single-node deployments without Postgres.
type InMemoryRegistry struct {
	mu      sync.Mutex
	byID    map[string]*Doctor
	nowFunc func() time.Time
}

// NewInMemoryRegistry creates a new in-memory registry
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		byID:    make(map[string]*Doctor),
		nowFunc: time.Now,
	}
}

// Register adds a doctor to the registry. New doctors start offline.
func (r *InMemoryRegistry) Register(ctx context.Context, req *RegisterDoctorRequest) (*Doctor, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	doc := &Doctor{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Specialty:    req.Specialty,
		RegisteredAt: r.nowFunc().UTC(),
	}

	r.mu.Lock()
	r.byID[doc.ID] = doc
	r.mu.Unlock()

	clone := *doc
	return &clone, nil
}

// GetByID retrieves a doctor by ID
func (r *InMemoryRegistry) GetByID(ctx context.Context, id string) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.byID[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	clone := *doc
	return &clone, nil
}

// ListOnline returns all doctors with the online flag set, in registration order.
func (r *InMemoryRegistry) ListOnline(ctx context.Context) ([]*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Doctor
	for _, doc := range r.byID {
		if doc.Online {
			clone := *doc
			out = append(out, &clone)
		}
	}
	sortDoctors(out)
	return out, nil
}

// SetOnline flips the availability toggle.
func (r *InMemoryRegistry) SetOnline(ctx context.Context, id string, online bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.byID[id]
	if !ok {
		return ErrDoctorNotFound
	}
	doc.Online = online
	return nil
}

// FindAvailable returns the first dispatchable candidate without claiming it.
func (r *InMemoryRegistry) FindAvailable(ctx context.Context, specialty string, excluding []string) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.pickLocked(specialty, excluding)
	if doc == nil {
		return nil, ErrNoDoctorAvailable
	}
	clone := *doc
	return &clone, nil
}

// Claim finds a dispatchable doctor and marks them busy in one step.
func (r *InMemoryRegistry) Claim(ctx context.Context, specialty string, excluding []string) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.pickLocked(specialty, excluding)
	if doc == nil {
		return nil, ErrNoDoctorAvailable
	}
	doc.Busy = true
	clone := *doc
	return &clone, nil
}

// ClaimByID marks the given doctor busy if dispatchable.
func (r *InMemoryRegistry) ClaimByID(ctx context.Context, id string) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.byID[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	if !doc.Dispatchable() {
		return nil, ErrNoDoctorAvailable
	}
	doc.Busy = true
	clone := *doc
	return &clone, nil
}

// Release clears the busy flag. Idempotent.
func (r *InMemoryRegistry) Release(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.byID[id]
	if !ok {
		return ErrDoctorNotFound
	}
	doc.Busy = false
	return nil
}

// pickLocked selects the earliest-registered dispatchable doctor matching
// the query. Tie-break order is registration time then ID, so selection is
// deterministic for a given pool.
func (r *InMemoryRegistry) pickLocked(specialty string, excluding []string) *Doctor {
	excluded := make(map[string]struct{}, len(excluding))
	for _, id := range excluding {
		excluded[id] = struct{}{}
	}

	var candidates []*Doctor
	for _, doc := range r.byID {
		if !doc.Dispatchable() {
			continue
		}
		if specialty != "" && doc.Specialty != specialty {
			continue
		}
		if _, skip := excluded[doc.ID]; skip {
			continue
		}
		candidates = append(candidates, doc)
	}
	if len(candidates) == 0 {
		return nil
	}
	sortDoctors(candidates)
	return candidates[0]
}

func sortDoctors(docs []*Doctor) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].RegisteredAt.Equal(docs[j].RegisteredAt) {
			return docs[i].RegisteredAt.Before(docs[j].RegisteredAt)
		}
		return docs[i].ID < docs[j].ID
	})
}

var _ Registry = (*InMemoryRegistry)(nil)
