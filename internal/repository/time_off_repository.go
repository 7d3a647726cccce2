package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/clinic-api/internal/models"
)

const timeOffColumns = `id, employee_id, start_at, end_at, reason, status, approved_by, approval_notes, created_at, updated_at`

// TimeOffRepository persists employee absence requests.
type TimeOffRepository struct {
	db *sqlx.DB
}

// NewTimeOffRepository constructs the repository.
func NewTimeOffRepository(db *sqlx.DB) *TimeOffRepository {
	return &TimeOffRepository{db: db}
}

func (r *TimeOffRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new request.
func (r *TimeOffRepository) Create(ctx context.Context, exec sqlx.ExtContext, timeOff *models.TimeOff) error {
	if timeOff.ID == "" {
		timeOff.ID = uuid.NewString()
	}
	if timeOff.Status == "" {
		timeOff.Status = models.TimeOffPending
	}
	now := time.Now().UTC()
	timeOff.CreatedAt = now
	timeOff.UpdatedAt = now

	const query = `INSERT INTO time_offs (` + timeOffColumns + `)
		VALUES (:id, :employee_id, :start_at, :end_at, :reason, :status, :approved_by, :approval_notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, timeOff); err != nil {
		return fmt.Errorf("insert time off: %w", err)
	}
	return nil
}

// FindByID loads a request by identifier.
func (r *TimeOffRepository) FindByID(ctx context.Context, id string) (*models.TimeOff, error) {
	const query = `SELECT ` + timeOffColumns + ` FROM time_offs WHERE id = $1`
	var timeOff models.TimeOff
	if err := r.db.GetContext(ctx, &timeOff, query, id); err != nil {
		return nil, err
	}
	return &timeOff, nil
}

// LockByID loads a request and holds its row lock until the transaction ends.
func (r *TimeOffRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeOff, error) {
	const query = `SELECT ` + timeOffColumns + ` FROM time_offs WHERE id = $1 FOR UPDATE`
	var timeOff models.TimeOff
	if err := sqlx.GetContext(ctx, r.exec(exec), &timeOff, query, id); err != nil {
		return nil, err
	}
	return &timeOff, nil
}

// Update writes the mutable fields of a request.
func (r *TimeOffRepository) Update(ctx context.Context, exec sqlx.ExtContext, timeOff *models.TimeOff) error {
	timeOff.UpdatedAt = time.Now().UTC()
	const query = `UPDATE time_offs
		SET start_at = :start_at, end_at = :end_at, reason = :reason, status = :status,
		    approved_by = :approved_by, approval_notes = :approval_notes, updated_at = :updated_at
		WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, timeOff)
	if err != nil {
		return fmt.Errorf("update time off: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("time off rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a request.
func (r *TimeOffRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM time_offs WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete time off: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("time off rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListOverlapping returns requests of the employee in the given statuses that intersect [from, to).
// excludeID skips one request, used when re-validating an edit.
func (r *TimeOffRepository) ListOverlapping(ctx context.Context, exec sqlx.ExtContext, employeeID string, from, to time.Time, statuses []models.TimeOffStatus, excludeID string) ([]models.TimeOff, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	query := `SELECT ` + timeOffColumns + ` FROM time_offs
		WHERE employee_id = $1 AND start_at < $3 AND end_at > $2 AND status = ANY($4)`
	args := []interface{}{employeeID, from, to, pq.Array(values)}
	if excludeID != "" {
		query += ` AND id <> $5`
		args = append(args, excludeID)
	}
	query += ` ORDER BY start_at`

	var items []models.TimeOff
	if err := sqlx.SelectContext(ctx, r.exec(exec), &items, query, args...); err != nil {
		return nil, fmt.Errorf("list overlapping time offs: %w", err)
	}
	return items, nil
}

// List returns requests matching the filter, newest start first.
func (r *TimeOffRepository) List(ctx context.Context, filter models.TimeOffFilter) ([]models.TimeOff, error) {
	var conditions []string
	var args []interface{}

	if filter.EmployeeID != "" {
		args = append(args, filter.EmployeeID)
		conditions = append(conditions, fmt.Sprintf("employee_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("end_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("start_at <= $%d", len(args)))
	}

	query := `SELECT ` + timeOffColumns + ` FROM time_offs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY start_at DESC"

	var items []models.TimeOff
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list time offs: %w", err)
	}
	return items, nil
}

// ListActive returns approved requests covering the instant.
func (r *TimeOffRepository) ListActive(ctx context.Context, at time.Time) ([]models.TimeOff, error) {
	const query = `SELECT ` + timeOffColumns + ` FROM time_offs
		WHERE status = 'APPROVED' AND start_at <= $1 AND end_at >= $1 ORDER BY start_at`
	var items []models.TimeOff
	if err := r.db.SelectContext(ctx, &items, query, at); err != nil {
		return nil, fmt.Errorf("list active time offs: %w", err)
	}
	return items, nil
}

// LockExpiredPending returns pending requests starting before cutoff, locked for the sweep.
func (r *TimeOffRepository) LockExpiredPending(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time) ([]models.TimeOff, error) {
	const query = `SELECT ` + timeOffColumns + ` FROM time_offs
		WHERE status = 'PENDING' AND start_at < $1 ORDER BY start_at FOR UPDATE SKIP LOCKED`
	var items []models.TimeOff
	if err := sqlx.SelectContext(ctx, r.exec(exec), &items, query, cutoff); err != nil {
		return nil, fmt.Errorf("list expired pending time offs: %w", err)
	}
	return items, nil
}
