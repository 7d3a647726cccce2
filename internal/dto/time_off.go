package dto

import (
	"time"

	"github.com/noah-isme/clinic-api/internal/models"
)

// CreateTimeOffRequest asks for an absence period.
type CreateTimeOffRequest struct {
	EmployeeEmail string     `json:"employeeEmail" validate:"required,email"`
	StartTime     *time.Time `json:"startTime" validate:"required"`
	EndTime       *time.Time `json:"endTime" validate:"required"`
	Reason        string     `json:"reason" validate:"max=500"`
}

// UpdateTimeOffRequest edits a pending request.
type UpdateTimeOffRequest struct {
	StartTime *time.Time `json:"startTime" validate:"required"`
	EndTime   *time.Time `json:"endTime" validate:"required"`
	Reason    string     `json:"reason" validate:"max=500"`
}

// UpdateTimeOffStatusRequest approves or declines a pending request.
type UpdateTimeOffStatusRequest struct {
	Status        models.TimeOffStatus `json:"status" validate:"required,oneof=APPROVED DECLINED"`
	ApprovalNotes string               `json:"approvalNotes" validate:"max=500"`
}

// TimeOffQuery filters an employee's time-off listing.
type TimeOffQuery struct {
	Status *models.TimeOffStatus
	From   *time.Time
	To     *time.Time
}
