package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists rooms.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("session: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

const roomColumns = "id, request_id, patient_id, doctor_id, session_id, room_type, status, started_at, ended_at"

// Create inserts the room row.
func (s *PostgresStore) Create(ctx context.Context, room *Room) error {
	query := `
		INSERT INTO rooms (id, request_id, patient_id, doctor_id, session_id, room_type, status, started_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), $6, $7, $8)
	`
	_, err := s.pool.Exec(ctx, query,
		room.ID, room.RequestID, room.PatientID, room.DoctorID,
		room.SessionID, room.Type, room.Status, room.StartedAt)
	if err != nil {
		return fmt.Errorf("session: insert failed: %w", err)
	}
	return nil
}

// GetByID fetches a room by ID.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Room, error) {
	query := `
		SELECT id, COALESCE(request_id, ''), patient_id, doctor_id, COALESCE(session_id, ''),
		       room_type, status, started_at, ended_at
		FROM rooms WHERE id = $1
	`
	var room Room
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&room.ID, &room.RequestID, &room.PatientID, &room.DoctorID, &room.SessionID,
		&room.Type, &room.Status, &room.StartedAt, &room.EndedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("session: select failed: %w", err)
	}
	return &room, nil
}

// End marks the room finished. The conditional update makes a double-end
// detectable without a read-modify-write.
func (s *PostgresStore) End(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE rooms SET status = $2, ended_at = $3 WHERE id = $1 AND status = $4`
	tag, err := s.pool.Exec(ctx, query, id, RoomEnded, at, RoomActive)
	if err != nil {
		return fmt.Errorf("session: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrRoomEnded
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
