package service

import (
	"time"

	"github.com/noah-isme/clinic-api/internal/models"
)

// AvailabilityPolicy configures the resolver.
type AvailabilityPolicy struct {
	// Location is the clinic time zone in which weekdays and clock times are read.
	Location *time.Location
	SlotStep time.Duration
	// PendingTimeOffBlocks makes PENDING requests block appointments like APPROVED ones.
	PendingTimeOffBlocks bool
}

// AvailabilityResolver answers availability questions over an in-memory snapshot.
// It never touches storage.
type AvailabilityResolver struct {
	loc                  *time.Location
	step                 time.Duration
	pendingTimeOffBlocks bool
}

// NewAvailabilityResolver builds a resolver, defaulting to UTC and 30 minute steps.
func NewAvailabilityResolver(policy AvailabilityPolicy) *AvailabilityResolver {
	loc := policy.Location
	if loc == nil {
		loc = time.UTC
	}
	step := policy.SlotStep
	if step <= 0 {
		step = 30 * time.Minute
	}
	return &AvailabilityResolver{loc: loc, step: step, pendingTimeOffBlocks: policy.PendingTimeOffBlocks}
}

// Location returns the clinic time zone.
func (r *AvailabilityResolver) Location() *time.Location {
	return r.loc
}

// BlockingStatuses lists the time-off statuses that suppress appointments.
func (r *AvailabilityResolver) BlockingStatuses() []models.TimeOffStatus {
	if r.pendingTimeOffBlocks {
		return []models.TimeOffStatus{models.TimeOffPending, models.TimeOffApproved}
	}
	return []models.TimeOffStatus{models.TimeOffApproved}
}

// DayBounds returns the clinic-local calendar day containing at as [start, end).
func (r *AvailabilityResolver) DayBounds(at time.Time) (time.Time, time.Time) {
	local := at.In(r.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, r.loc)
	end := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, r.loc)
	return start, end
}

// IsWorking reports whether the employee is on shift at the instant: a slot exists for the
// weekday, the clock time lies within it (bounds inclusive), and no blocking time-off
// touches that calendar day.
func (r *AvailabilityResolver) IsWorking(snapshot models.AvailabilitySnapshot, at time.Time) bool {
	local := at.In(r.loc)
	slotStart, slotEnd, ok := r.slotFor(snapshot.Schedule, local)
	if !ok {
		return false
	}
	if local.Before(slotStart) || local.After(slotEnd) {
		return false
	}
	return !r.dayBlocked(snapshot.TimeOffs, local)
}

// IsAvailable reports whether [start, start+minutes) can be booked: the doctor is working at
// start, the window ends no later than the shift, and no open appointment overlaps it.
func (r *AvailabilityResolver) IsAvailable(snapshot models.AvailabilitySnapshot, start time.Time, minutes int) bool {
	if minutes <= 0 || !r.IsWorking(snapshot, start) {
		return false
	}
	local := start.In(r.loc)
	_, slotEnd, _ := r.slotFor(snapshot.Schedule, local)
	end := local.Add(time.Duration(minutes) * time.Minute)
	if end.After(slotEnd) {
		return false
	}
	return !conflicts(snapshot.Appointments, local, end)
}

// AvailableSlots enumerates free windows of the given length on the calendar day of date,
// stepping from the shift start. Results are chronological.
func (r *AvailabilityResolver) AvailableSlots(snapshot models.AvailabilitySnapshot, date time.Time, minutes int) []models.Slot {
	slots := []models.Slot{}
	if minutes <= 0 {
		return slots
	}
	local := date.In(r.loc)
	slotStart, slotEnd, ok := r.slotFor(snapshot.Schedule, local)
	if !ok || r.dayBlocked(snapshot.TimeOffs, local) {
		return slots
	}

	length := time.Duration(minutes) * time.Minute
	for candidate := slotStart; !candidate.Add(length).After(slotEnd); candidate = candidate.Add(r.step) {
		end := candidate.Add(length)
		if conflicts(snapshot.Appointments, candidate, end) {
			continue
		}
		slots = append(slots, models.Slot{StartAt: candidate, EndAt: end, DurationMinutes: minutes})
	}
	return slots
}

// slotFor returns the shift bounds on local's calendar day.
func (r *AvailabilityResolver) slotFor(schedule []models.ScheduleSlot, local time.Time) (time.Time, time.Time, bool) {
	day := models.WeekdayOf(local.Weekday())
	for _, slot := range schedule {
		if slot.DayOfWeek != day {
			continue
		}
		from, to, err := slot.Bounds()
		if err != nil || to <= from {
			return time.Time{}, time.Time{}, false
		}
		return r.clockOn(local, from), r.clockOn(local, to), true
	}
	return time.Time{}, time.Time{}, false
}

// clockOn builds the wall-clock instant offset from midnight on local's day.
func (r *AvailabilityResolver) clockOn(local time.Time, offset time.Duration) time.Time {
	hours := int(offset / time.Hour)
	minutes := int((offset % time.Hour) / time.Minute)
	return time.Date(local.Year(), local.Month(), local.Day(), hours, minutes, 0, 0, r.loc)
}

func (r *AvailabilityResolver) dayBlocked(timeOffs []models.TimeOff, local time.Time) bool {
	dayStart, dayEnd := r.DayBounds(local)
	for _, to := range timeOffs {
		if !r.blocks(to.Status) {
			continue
		}
		if to.Overlaps(dayStart, dayEnd) {
			return true
		}
	}
	return false
}

func (r *AvailabilityResolver) blocks(status models.TimeOffStatus) bool {
	if status == models.TimeOffApproved {
		return true
	}
	return r.pendingTimeOffBlocks && status == models.TimeOffPending
}

// conflicts treats intervals as half-open so touching appointments do not collide.
func conflicts(appointments []models.Appointment, start, end time.Time) bool {
	for _, existing := range appointments {
		if existing.Active() && existing.Overlaps(start, end) {
			return true
		}
	}
	return false
}
