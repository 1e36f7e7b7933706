package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSessionStore persists doctor sessions.
type PostgresSessionStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionStore initializes a session store backed by pgxpool.
func NewPostgresSessionStore(pool *pgxpool.Pool) *PostgresSessionStore {
	if pool == nil {
		panic("feedback: pgx pool required")
	}
	return &PostgresSessionStore{pool: pool}
}

const sessionColumns = "id, patient_id, doctor_id, room_id, session_type, status, started_at, completed_at"

// Create inserts the session row.
func (s *PostgresSessionStore) Create(ctx context.Context, session *DoctorSession) error {
	query := `
		INSERT INTO doctor_sessions (id, patient_id, doctor_id, room_id, session_type, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query,
		session.ID, session.PatientID, session.DoctorID, session.RoomID,
		session.SessionType, session.Status, session.StartedAt)
	if err != nil {
		return fmt.Errorf("feedback: insert session failed: %w", err)
	}
	return nil
}

// GetByID fetches a session by ID.
func (s *PostgresSessionStore) GetByID(ctx context.Context, id string) (*DoctorSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM doctor_sessions WHERE id = $1`
	var session DoctorSession
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&session.ID, &session.PatientID, &session.DoctorID, &session.RoomID,
		&session.SessionType, &session.Status, &session.StartedAt, &session.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("feedback: select session failed: %w", err)
	}
	return &session, nil
}

// Complete marks the session finished.
func (s *PostgresSessionStore) Complete(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE doctor_sessions
		SET status = $2, completed_at = COALESCE(completed_at, $3)
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, id, SessionCompleted, at)
	if err != nil {
		return fmt.Errorf("feedback: update session failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// PostgresFeedbackStore persists feedback entries.
type PostgresFeedbackStore struct {
	pool *pgxpool.Pool
}

// NewPostgresFeedbackStore initializes a feedback store backed by pgxpool.
func NewPostgresFeedbackStore(pool *pgxpool.Pool) *PostgresFeedbackStore {
	if pool == nil {
		panic("feedback: pgx pool required")
	}
	return &PostgresFeedbackStore{pool: pool}
}

// Create inserts the feedback row.
func (s *PostgresFeedbackStore) Create(ctx context.Context, fb *Feedback) error {
	query := `
		INSERT INTO feedback (id, patient_id, doctor_id, session_id, satisfied, rating, comment, session_type, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)
	`
	_, err := s.pool.Exec(ctx, query,
		fb.ID, fb.PatientID, fb.DoctorID, fb.SessionID,
		fb.Satisfied, fb.Rating, fb.Comment, fb.SessionType, fb.CreatedAt)
	if err != nil {
		return fmt.Errorf("feedback: insert failed: %w", err)
	}
	return nil
}

// ListByDoctor returns all feedback left for the doctor, oldest first.
func (s *PostgresFeedbackStore) ListByDoctor(ctx context.Context, doctorID string) ([]*Feedback, error) {
	query := `
		SELECT id, patient_id, doctor_id, COALESCE(session_id, ''), satisfied, rating, comment, session_type, created_at
		FROM feedback
		WHERE doctor_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.pool.Query(ctx, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("feedback: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Feedback
	for rows.Next() {
		var fb Feedback
		if err := rows.Scan(
			&fb.ID, &fb.PatientID, &fb.DoctorID, &fb.SessionID,
			&fb.Satisfied, &fb.Rating, &fb.Comment, &fb.SessionType, &fb.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("feedback: scan failed: %w", err)
		}
		out = append(out, &fb)
	}
	return out, rows.Err()
}

var (
	_ SessionStore  = (*PostgresSessionStore)(nil)
	_ FeedbackStore = (*PostgresFeedbackStore)(nil)
)
