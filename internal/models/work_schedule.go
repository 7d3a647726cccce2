package models

import (
	"fmt"
	"strings"
	"time"
)

// Weekday names a day of the week in upper case, e.g. MONDAY.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

var weekdays = map[time.Weekday]Weekday{
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
	time.Sunday:    Sunday,
}

// WeekdayOf converts a time.Weekday.
func WeekdayOf(d time.Weekday) Weekday {
	return weekdays[d]
}

// ParseWeekday accepts case-insensitive day names.
func ParseWeekday(raw string) (Weekday, bool) {
	candidate := Weekday(strings.ToUpper(strings.TrimSpace(raw)))
	for _, d := range weekdays {
		if d == candidate {
			return d, true
		}
	}
	return "", false
}

// ScheduleSlot is an employee's working interval for one day of the week.
type ScheduleSlot struct {
	ID         string    `db:"id" json:"id"`
	EmployeeID string    `db:"employee_id" json:"employee_id"`
	DayOfWeek  Weekday   `db:"day_of_week" json:"day_of_week"`
	StartTime  string    `db:"start_time" json:"start_time"`
	EndTime    string    `db:"end_time" json:"end_time"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Bounds returns start and end as offsets from midnight.
func (s ScheduleSlot) Bounds() (time.Duration, time.Duration, error) {
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(raw string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", raw, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
