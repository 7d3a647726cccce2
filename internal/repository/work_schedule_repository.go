package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clinic-api/internal/models"
)

const workScheduleColumns = `id, employee_id, day_of_week, start_time, end_time, created_at, updated_at`

// WorkScheduleRepository persists weekly working hours, one row per employee and weekday.
type WorkScheduleRepository struct {
	db *sqlx.DB
}

// NewWorkScheduleRepository constructs the repository.
func NewWorkScheduleRepository(db *sqlx.DB) *WorkScheduleRepository {
	return &WorkScheduleRepository{db: db}
}

func (r *WorkScheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListByEmployee returns every slot configured for the employee.
func (r *WorkScheduleRepository) ListByEmployee(ctx context.Context, exec sqlx.ExtContext, employeeID string) ([]models.ScheduleSlot, error) {
	const query = `SELECT ` + workScheduleColumns + ` FROM work_schedules WHERE employee_id = $1 ORDER BY start_time`
	var slots []models.ScheduleSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, employeeID); err != nil {
		return nil, fmt.Errorf("list work schedules: %w", err)
	}
	return slots, nil
}

// FindByDay returns the slot for a given weekday.
func (r *WorkScheduleRepository) FindByDay(ctx context.Context, employeeID string, day models.Weekday) (*models.ScheduleSlot, error) {
	const query = `SELECT ` + workScheduleColumns + ` FROM work_schedules WHERE employee_id = $1 AND day_of_week = $2`
	var slot models.ScheduleSlot
	if err := r.db.GetContext(ctx, &slot, query, employeeID, day); err != nil {
		return nil, err
	}
	return &slot, nil
}

// Upsert creates the slot or replaces the hours of the existing one for that weekday.
func (r *WorkScheduleRepository) Upsert(ctx context.Context, slot *models.ScheduleSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now

	const query = `INSERT INTO work_schedules (id, employee_id, day_of_week, start_time, end_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (employee_id, day_of_week) DO UPDATE
		SET start_time = EXCLUDED.start_time,
		    end_time = EXCLUDED.end_time,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`
	row := r.db.QueryRowxContext(ctx, query, slot.ID, slot.EmployeeID, slot.DayOfWeek, slot.StartTime, slot.EndTime, slot.CreatedAt, slot.UpdatedAt)
	if err := row.Scan(&slot.ID, &slot.CreatedAt); err != nil {
		return fmt.Errorf("upsert work schedule: %w", err)
	}
	return nil
}

// Delete removes the slot for a weekday.
func (r *WorkScheduleRepository) Delete(ctx context.Context, employeeID string, day models.Weekday) error {
	const query = `DELETE FROM work_schedules WHERE employee_id = $1 AND day_of_week = $2`
	result, err := r.db.ExecContext(ctx, query, employeeID, day)
	if err != nil {
		return fmt.Errorf("delete work schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("work schedule rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
