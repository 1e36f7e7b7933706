package patients

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for patient storage
type Repository interface {
	Create(ctx context.Context, req *RegisterPatientRequest) (*Patient, error)
	GetByID(ctx context.Context, id string) (*Patient, error)
	GetByEmail(ctx context.Context, email string) (*Patient, error)
}

// InMemoryRepository is a Repository implementation using in-memory storage
type InMemoryRepository struct {
	mu       sync.RWMutex
	patients map[string]*Patient
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		patients: make(map[string]*Patient),
	}
}

// Create creates a new patient in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *RegisterPatientRequest) (*Patient, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	patient := &Patient{
		ID:              uuid.New().String(),
		Name:            req.Name,
		Email:           req.Email,
		EmergencyNumber: req.EmergencyNumber,
		CreatedAt:       time.Now().UTC(),
	}

	r.mu.Lock()
	r.patients[patient.ID] = patient
	r.mu.Unlock()

	return patient, nil
}

// GetByID retrieves a patient by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	patient, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return patient, nil
}

// GetByEmail retrieves a patient by email
func (r *InMemoryRepository) GetByEmail(ctx context.Context, email string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, patient := range r.patients {
		if patient.Email == email {
			return patient, nil
		}
	}
	return nil, ErrPatientNotFound
}

var _ Repository = (*InMemoryRepository)(nil)
