package models

import "time"

// Slot is a bookable window.
type Slot struct {
	StartAt         time.Time `json:"start_time"`
	EndAt           time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
}

// AvailabilitySnapshot is everything the resolver needs about one employee.
type AvailabilitySnapshot struct {
	Schedule     []ScheduleSlot
	TimeOffs     []TimeOff
	Appointments []Appointment
}
