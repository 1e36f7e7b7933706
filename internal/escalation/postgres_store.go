package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists escalation requests. One-active-request-per-patient
// is enforced by a partial unique index, so two racing escalations for the
// same patient resolve at the storage layer.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("escalation: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

const requestColumns = `id, patient_id, doctor_id, status, requested_at, responded_at,
	is_re_escalation, is_retry, previous_session_id, previous_request_id, excluded_doctor_ids`

// Create inserts the request. A unique violation on the active-request index
// maps to ErrActiveRequestExists.
func (s *PostgresStore) Create(ctx context.Context, req *Request) error {
	query := `
		INSERT INTO escalation_requests
			(id, patient_id, doctor_id, status, requested_at,
			 is_re_escalation, is_retry, previous_session_id, previous_request_id, excluded_doctor_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10)
	`
	_, err := s.pool.Exec(ctx, query,
		req.ID,
		req.PatientID,
		req.DoctorID,
		string(req.Status),
		req.RequestedAt,
		req.IsReEscalation,
		req.IsRetry,
		req.PreviousSessionID,
		req.PreviousRequestID,
		normalizeIDs(req.ExcludedDoctorIDs),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrActiveRequestExists
		}
		return fmt.Errorf("escalation: insert failed: %w", err)
	}
	return nil
}

// GetByID fetches a request by ID.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Request, error) {
	query := `SELECT ` + requestColumns + ` FROM escalation_requests WHERE id = $1`
	req, err := scanRequest(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("escalation: select failed: %w", err)
	}
	return req, nil
}

// GetActiveByPatient returns the patient's pending or accepted request.
func (s *PostgresStore) GetActiveByPatient(ctx context.Context, patientID string) (*Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM escalation_requests
		WHERE patient_id = $1 AND status IN ('pending', 'accepted')
	`
	req, err := scanRequest(s.pool.QueryRow(ctx, query, patientID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("escalation: select failed: %w", err)
	}
	return req, nil
}

// UpdateStatus transitions the request and stamps the response time.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status, respondedAt time.Time) error {
	query := `UPDATE escalation_requests SET status = $2, responded_at = $3 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, string(status), respondedAt)
	if err != nil {
		return fmt.Errorf("escalation: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func normalizeIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func scanRequest(row pgx.Row) (*Request, error) {
	var (
		req               Request
		status            string
		respondedAt       *time.Time
		previousSessionID *string
		previousRequestID *string
	)
	if err := row.Scan(
		&req.ID,
		&req.PatientID,
		&req.DoctorID,
		&status,
		&req.RequestedAt,
		&respondedAt,
		&req.IsReEscalation,
		&req.IsRetry,
		&previousSessionID,
		&previousRequestID,
		&req.ExcludedDoctorIDs,
	); err != nil {
		return nil, err
	}
	req.Status = Status(status)
	req.RespondedAt = respondedAt
	if previousSessionID != nil {
		req.PreviousSessionID = *previousSessionID
	}
	if previousRequestID != nil {
		req.PreviousRequestID = *previousRequestID
	}
	return &req, nil
}

var _ Store = (*PostgresStore)(nil)
