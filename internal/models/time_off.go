package models

import "time"

// TimeOffStatus is the review state of a time-off request.
type TimeOffStatus string

const (
	TimeOffPending  TimeOffStatus = "PENDING"
	TimeOffApproved TimeOffStatus = "APPROVED"
	TimeOffDeclined TimeOffStatus = "DECLINED"
)

// Valid reports whether the status is one of the known values.
func (s TimeOffStatus) Valid() bool {
	switch s {
	case TimeOffPending, TimeOffApproved, TimeOffDeclined:
		return true
	}
	return false
}

// TimeOff is an absence period for an employee.
type TimeOff struct {
	ID            string        `db:"id" json:"id"`
	EmployeeID    string        `db:"employee_id" json:"employee_id"`
	StartAt       time.Time     `db:"start_at" json:"start_at"`
	EndAt         time.Time     `db:"end_at" json:"end_at"`
	Reason        string        `db:"reason" json:"reason"`
	Status        TimeOffStatus `db:"status" json:"status"`
	ApprovedBy    *string       `db:"approved_by" json:"approved_by,omitempty"`
	ApprovalNotes *string       `db:"approval_notes" json:"approval_notes,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// Overlaps reports whether [StartAt, EndAt) intersects [start, end).
func (t TimeOff) Overlaps(start, end time.Time) bool {
	return t.StartAt.Before(end) && t.EndAt.After(start)
}

// TimeOffFilter narrows time-off listings.
type TimeOffFilter struct {
	EmployeeID string
	Status     *TimeOffStatus
	From       *time.Time
	To         *time.Time
}
