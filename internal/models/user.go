package models

import "time"

// UserKind tags the variant of a user record.
type UserKind string

const (
	KindAdmin   UserKind = "ADMIN"
	KindDoctor  UserKind = "DOCTOR"
	KindStaff   UserKind = "STAFF"
	KindPatient UserKind = "PATIENT"
)

// DoctorProfile carries fields only doctors have.
type DoctorProfile struct {
	Specialty string `json:"specialty"`
}

// PatientProfile carries fields only patients have.
type PatientProfile struct {
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
}

// User is a clinic user. Doctor and Patient are populated according to Kind.
type User struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	FullName  string          `json:"full_name"`
	Kind      UserKind        `json:"kind"`
	Active    bool            `json:"active"`
	Doctor    *DoctorProfile  `json:"doctor,omitempty"`
	Patient   *PatientProfile `json:"patient,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IsEmployee reports whether the user is staff that can hold a schedule or request time-off.
func (u *User) IsEmployee() bool {
	if u == nil {
		return false
	}
	switch u.Kind {
	case KindAdmin, KindDoctor, KindStaff:
		return true
	}
	return false
}

// IsDoctor reports whether the user can be booked for appointments.
func (u *User) IsDoctor() bool {
	return u != nil && u.Kind == KindDoctor
}

// IsPatient reports whether the user can book appointments for themselves.
func (u *User) IsPatient() bool {
	return u != nil && u.Kind == KindPatient
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
