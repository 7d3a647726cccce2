package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/clinic-api/internal/models"
)

const userColumns = `id, email, full_name, kind, active, specialty, date_of_birth, created_at, updated_at`

type userRow struct {
	ID          string         `db:"id"`
	Email       string         `db:"email"`
	FullName    string         `db:"full_name"`
	Kind        string         `db:"kind"`
	Active      bool           `db:"active"`
	Specialty   sql.NullString `db:"specialty"`
	DateOfBirth sql.NullTime   `db:"date_of_birth"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r userRow) toModel() *models.User {
	user := &models.User{
		ID:        r.ID,
		Email:     r.Email,
		FullName:  r.FullName,
		Kind:      models.UserKind(r.Kind),
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	switch user.Kind {
	case models.KindDoctor:
		user.Doctor = &models.DoctorProfile{Specialty: r.Specialty.String}
	case models.KindPatient:
		profile := &models.PatientProfile{}
		if r.DateOfBirth.Valid {
			dob := r.DateOfBirth.Time
			profile.DateOfBirth = &dob
		}
		user.Patient = profile
	}
	return user
}

// UserRepository reads the user directory.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return row.toModel(), nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return row.toModel(), nil
}

// LockByIDs takes row locks on the given users in id order so concurrent callers never deadlock.
func (r *UserRepository) LockByIDs(ctx context.Context, exec sqlx.ExtContext, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)

	target := exec
	if target == nil {
		target = r.db
	}
	const query = `SELECT id FROM users WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	var locked []string
	if err := sqlx.SelectContext(ctx, target, &locked, query, pq.Array(ordered)); err != nil {
		return fmt.Errorf("lock users: %w", err)
	}
	return nil
}
