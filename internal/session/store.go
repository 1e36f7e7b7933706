package session

import (
	"context"
	"sync"
	"time"
)

// Store defines the interface for room persistence.
type Store interface {
	Create(ctx context.Context, room *Room) error
	GetByID(ctx context.Context, id string) (*Room, error)

	// End marks the room finished. Ending twice returns ErrRoomEnded.
	End(ctx context.Context, id string, at time.Time) error
}

// InMemoryStore is a mutex-guarded Store.
type InMemoryStore struct {
	mu   sync.Mutex
	byID map[string]*Room
}

// NewInMemoryStore creates a new in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[string]*Room)}
}

// Create persists the room
func (s *InMemoryStore) Create(ctx context.Context, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *room
	s.byID[room.ID] = &clone
	return nil
}

// GetByID retrieves a room by ID
func (s *InMemoryStore) GetByID(ctx context.Context, id string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.byID[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	clone := *room
	if room.EndedAt != nil {
		ts := *room.EndedAt
		clone.EndedAt = &ts
	}
	return &clone, nil
}

// End marks the room finished.
func (s *InMemoryStore) End(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.byID[id]
	if !ok {
		return ErrRoomNotFound
	}
	if room.Status == RoomEnded {
		return ErrRoomEnded
	}
	room.Status = RoomEnded
	ts := at.UTC()
	room.EndedAt = &ts
	return nil
}

var _ Store = (*InMemoryStore)(nil)
