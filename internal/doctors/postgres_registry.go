package doctors

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRegistry stores doctors in the relational database.
//
// Claim is a single conditional UPDATE, so the find-and-mark-busy step is
// atomic at the storage layer; zero rows affected means the pool was
// exhausted (or raced) and the caller should treat it as no doctor.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry initializes a registry backed by pgxpool.
func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	if pool == nil {
		panic("doctors: pgx pool required")
	}
	return &PostgresRegistry{pool: pool}
}

const doctorColumns = "id, name, specialty, online, busy, registered_at"

// Register inserts a new doctor row. New doctors start offline.
func (r *PostgresRegistry) Register(ctx context.Context, req *RegisterDoctorRequest) (*Doctor, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO doctors (id, name, specialty)
		VALUES ($1, $2, $3)
		RETURNING registered_at
	`
	var registeredAt time.Time
	if err := r.pool.QueryRow(ctx, query, id, req.Name, req.Specialty).Scan(&registeredAt); err != nil {
		return nil, fmt.Errorf("doctors: insert failed: %w", err)
	}

	return &Doctor{
		ID:           id.String(),
		Name:         req.Name,
		Specialty:    req.Specialty,
		RegisteredAt: registeredAt,
	}, nil
}

// GetByID fetches a doctor by ID.
func (r *PostgresRegistry) GetByID(ctx context.Context, id string) (*Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE id = $1`
	doc, err := scanDoctor(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("doctors: select failed: %w", err)
	}
	return doc, nil
}

// ListOnline returns every doctor with the online flag set.
func (r *PostgresRegistry) ListOnline(ctx context.Context) ([]*Doctor, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE online ORDER BY registered_at, id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("doctors: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Doctor
	for rows.Next() {
		doc, err := scanDoctor(rows)
		if err != nil {
			return nil, fmt.Errorf("doctors: scan failed: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// SetOnline flips the availability toggle.
func (r *PostgresRegistry) SetOnline(ctx context.Context, id string, online bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE doctors SET online = $2 WHERE id = $1`, id, online)
	if err != nil {
		return fmt.Errorf("doctors: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

// FindAvailable returns the first dispatchable candidate without claiming it.
func (r *PostgresRegistry) FindAvailable(ctx context.Context, specialty string, excluding []string) (*Doctor, error) {
	query := `
		SELECT ` + doctorColumns + `
		FROM doctors
		WHERE online AND NOT busy
		  AND ($1 = '' OR specialty = $1)
		  AND NOT (id = ANY($2))
		ORDER BY registered_at, id
		LIMIT 1
	`
	doc, err := scanDoctor(r.pool.QueryRow(ctx, query, specialty, normalizeExcluding(excluding)))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNoDoctorAvailable
		}
		return nil, fmt.Errorf("doctors: select failed: %w", err)
	}
	return doc, nil
}

// Claim atomically selects and marks a doctor busy.
func (r *PostgresRegistry) Claim(ctx context.Context, specialty string, excluding []string) (*Doctor, error) {
	query := `
		UPDATE doctors SET busy = TRUE
		WHERE id = (
			SELECT id FROM doctors
			WHERE online AND NOT busy
			  AND ($1 = '' OR specialty = $1)
			  AND NOT (id = ANY($2))
			ORDER BY registered_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + doctorColumns
	doc, err := scanDoctor(r.pool.QueryRow(ctx, query, specialty, normalizeExcluding(excluding)))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNoDoctorAvailable
		}
		return nil, fmt.Errorf("doctors: claim failed: %w", err)
	}
	return doc, nil
}

// ClaimByID marks the given doctor busy if dispatchable.
func (r *PostgresRegistry) ClaimByID(ctx context.Context, id string) (*Doctor, error) {
	query := `
		UPDATE doctors SET busy = TRUE
		WHERE id = $1 AND online AND NOT busy
		RETURNING ` + doctorColumns
	doc, err := scanDoctor(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNoDoctorAvailable
		}
		return nil, fmt.Errorf("doctors: claim failed: %w", err)
	}
	return doc, nil
}

// Release clears the busy flag.
func (r *PostgresRegistry) Release(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE doctors SET busy = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("doctors: release failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func normalizeExcluding(excluding []string) []string {
	if excluding == nil {
		return []string{}
	}
	return excluding
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var doc Doctor
	if err := row.Scan(
		&doc.ID,
		&doc.Name,
		&doc.Specialty,
		&doc.Online,
		&doc.Busy,
		&doc.RegisteredAt,
	); err != nil {
		return nil, err
	}
	return &doc, nil
}

var _ Registry = (*PostgresRegistry)(nil)
