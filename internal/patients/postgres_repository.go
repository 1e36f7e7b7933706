package patients

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores patients in the relational database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *RegisterPatientRequest) (*Patient, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO patients (id, name, email, emergency_number)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := r.pool.QueryRow(ctx, query, id, req.Name, req.Email, req.EmergencyNumber).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("patients: insert failed: %w", err)
	}

	return &Patient{
		ID:              id.String(),
		Name:            req.Name,
		Email:           req.Email,
		EmergencyNumber: req.EmergencyNumber,
		CreatedAt:       createdAt,
	}, nil
}

// GetByID fetches a patient by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Patient, error) {
	return r.get(ctx, `SELECT id, name, email, emergency_number, created_at FROM patients WHERE id = $1`, id)
}

// GetByEmail fetches a patient by email.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*Patient, error) {
	return r.get(ctx, `SELECT id, name, email, emergency_number, created_at FROM patients WHERE email = $1`, email)
}

func (r *PostgresRepository) get(ctx context.Context, query string, arg any) (*Patient, error) {
	var p Patient
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.EmergencyNumber,
		&p.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patients: select failed: %w", err)
	}
	return &p, nil
}

var _ Repository = (*PostgresRepository)(nil)
