package dto

// UpsertScheduleSlotRequest sets the working hours for one weekday.
type UpsertScheduleSlotRequest struct {
	StartTime string `json:"startTime" validate:"required,len=5"`
	EndTime   string `json:"endTime" validate:"required,len=5"`
}
